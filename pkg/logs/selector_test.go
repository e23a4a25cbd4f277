package logs

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/loggate-io/loggate/pkg/config"
	"github.com/loggate-io/loggate/pkg/errors"
)

type fakeSource struct {
	kind Kind
}

func (f *fakeSource) Tail(ctx context.Context) (*Stream, error) {
	entries := make(chan Entry)
	errs := make(chan error)
	close(entries)
	close(errs)
	return NewStream(entries, errs, nil), nil
}

func (f *fakeSource) History(ctx context.Context, limit int) ([]Entry, error) {
	return nil, nil
}

func (f *fakeSource) Kind() Kind {
	return f.kind
}

func TestKindFor(t *testing.T) {
	tests := []struct {
		environment string
		want        Kind
	}{
		{"local", KindDocker},
		{"production", KindCloudWatch},
		{"staging", KindCloudWatch},
		{"", KindCloudWatch},
	}

	for _, tt := range tests {
		if got := KindFor(tt.environment); got != tt.want {
			t.Errorf("KindFor(%q) = %s, want %s", tt.environment, got, tt.want)
		}
	}
}

func TestSelector_MemoizesPerKind(t *testing.T) {
	kind := Kind("test-memo")
	calls := 0
	Register(kind, func(cfg *config.Config, log zerolog.Logger) (Source, error) {
		calls++
		return &fakeSource{kind: kind}, nil
	})

	sel := NewSelector(config.DefaultConfig(), zerolog.Nop())

	first, err := sel.Get(kind)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := sel.Get(kind)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first != second {
		t.Error("expected the same source instance across calls")
	}
	if calls != 1 {
		t.Errorf("factory ran %d times, want 1", calls)
	}
}

func TestSelector_DoesNotCacheFailures(t *testing.T) {
	kind := Kind("test-flaky")
	calls := 0
	Register(kind, func(cfg *config.Config, log zerolog.Logger) (Source, error) {
		calls++
		if calls == 1 {
			return nil, errors.New(errors.ErrCodeSource, "transient")
		}
		return &fakeSource{kind: kind}, nil
	})

	sel := NewSelector(config.DefaultConfig(), zerolog.Nop())

	if _, err := sel.Get(kind); err == nil {
		t.Fatal("expected first construction to fail")
	}
	source, err := sel.Get(kind)
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if source.Kind() != kind {
		t.Errorf("unexpected kind %s", source.Kind())
	}
}

func TestSelector_ActiveFollowsEnvironment(t *testing.T) {
	Register(KindDocker, func(cfg *config.Config, log zerolog.Logger) (Source, error) {
		return &fakeSource{kind: KindDocker}, nil
	})

	cfg := config.DefaultConfig()
	cfg.Environment = config.EnvLocal

	sel := NewSelector(cfg, zerolog.Nop())
	source, err := sel.Active()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if source.Kind() != KindDocker {
		t.Errorf("Active() kind = %s, want %s", source.Kind(), KindDocker)
	}
}

func TestNew_UnknownKind(t *testing.T) {
	_, err := New(Kind("no-such-kind"), config.DefaultConfig(), zerolog.Nop())
	if err == nil {
		t.Fatal("expected error for unregistered kind")
	}
	if !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}

	le, ok := err.(*errors.Error)
	if !ok {
		t.Fatalf("expected *errors.Error, got %T", err)
	}
	if le.Details["name"] != "no-such-kind" {
		t.Errorf("expected the kind in the error details, got %v", le.Details)
	}
	if le.Details["registered_kinds"] == nil {
		t.Error("expected the registered kinds in the error details")
	}
}
