package cloudwatch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/rs/zerolog"

	"github.com/loggate-io/loggate/pkg/config"
	"github.com/loggate-io/loggate/pkg/errors"
	"github.com/loggate-io/loggate/pkg/logs"
)

type result struct {
	out *cloudwatchlogs.FilterLogEventsOutput
	err error
}

// fakeAPI returns queued responses per log group and records every call.
// An empty queue yields an empty page, like a quiet group.
type fakeAPI struct {
	mu    sync.Mutex
	calls []cloudwatchlogs.FilterLogEventsInput
	queue map[string][]result
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{queue: make(map[string][]result)}
}

func (f *fakeAPI) FilterLogEvents(ctx context.Context, params *cloudwatchlogs.FilterLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.FilterLogEventsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, *params)

	group := aws.ToString(params.LogGroupName)
	q := f.queue[group]
	if len(q) == 0 {
		return &cloudwatchlogs.FilterLogEventsOutput{}, nil
	}
	f.queue[group] = q[1:]
	return q[0].out, q[0].err
}

func (f *fakeAPI) enqueue(group string, out *cloudwatchlogs.FilterLogEventsOutput, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue[group] = append(f.queue[group], result{out: out, err: err})
}

func (f *fakeAPI) callsFor(group string) []cloudwatchlogs.FilterLogEventsInput {
	f.mu.Lock()
	defer f.mu.Unlock()

	var calls []cloudwatchlogs.FilterLogEventsInput
	for _, call := range f.calls {
		if aws.ToString(call.LogGroupName) == group {
			calls = append(calls, call)
		}
	}
	return calls
}

func event(ts time.Time, message string) types.FilteredLogEvent {
	return types.FilteredLogEvent{
		Timestamp: aws.Int64(ts.UnixMilli()),
		Message:   aws.String(message),
	}
}

func page(nextToken string, events ...types.FilteredLogEvent) *cloudwatchlogs.FilterLogEventsOutput {
	out := &cloudwatchlogs.FilterLogEventsOutput{Events: events}
	if nextToken != "" {
		out.NextToken = aws.String(nextToken)
	}
	return out
}

func testConfig(services ...string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Environment = "production"
	cfg.CloudWatch.PollInterval = 10 * time.Millisecond
	for _, name := range services {
		cfg.Services[name] = &config.ServiceConfig{LogGroup: "/ecs/" + name}
		cfg.ServiceOrder = append(cfg.ServiceOrder, name)
	}
	return cfg
}

func recvEntry(t *testing.T, stream *logs.Stream) logs.Entry {
	t.Helper()
	select {
	case entry, ok := <-stream.Entries:
		if !ok {
			t.Fatal("entries channel closed before an entry arrived")
		}
		return entry
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an entry")
	}
	return logs.Entry{}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestTail_StreamsPolledEvents(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	api := newFakeAPI()
	api.enqueue("/ecs/api", page("",
		event(base, "INFO checkout ready"),
		event(base.Add(time.Second), "ERROR db timeout request_id=r-9"),
	), nil)

	src := newSource(api, testConfig("api"), zerolog.Nop())

	stream, err := src.Tail(context.Background())
	if err != nil {
		t.Fatalf("Tail failed: %v", err)
	}
	defer stream.Close()

	first := recvEntry(t, stream)
	if first.Service != "api" {
		t.Errorf("expected service %q, got %q", "api", first.Service)
	}
	if first.Level != logs.LevelInfo {
		t.Errorf("expected level %q, got %q", logs.LevelInfo, first.Level)
	}
	if !first.Timestamp.Equal(base) {
		t.Errorf("expected timestamp %v, got %v", base, first.Timestamp)
	}

	second := recvEntry(t, stream)
	if second.Level != logs.LevelError {
		t.Errorf("expected level %q, got %q", logs.LevelError, second.Level)
	}
	if second.RequestID != "r-9" {
		t.Errorf("expected request id %q, got %q", "r-9", second.RequestID)
	}
}

func TestTail_CursorAdvancesPastSeen(t *testing.T) {
	now := time.Now()

	api := newFakeAPI()
	api.enqueue("/ecs/api", page("", event(now, "one event")), nil)

	cfg := testConfig("api")
	src := newSource(api, cfg, zerolog.Nop())

	stream, err := src.Tail(context.Background())
	if err != nil {
		t.Fatalf("Tail failed: %v", err)
	}
	defer stream.Close()

	recvEntry(t, stream)
	waitFor(t, "a second poll round", func() bool {
		return len(api.callsFor("/ecs/api")) >= 2
	})

	calls := api.callsFor("/ecs/api")

	wantFirst := now.Add(-cfg.CloudWatch.Lookback).UnixMilli()
	gotFirst := aws.ToInt64(calls[0].StartTime)
	if gotFirst < wantFirst-2000 || gotFirst > wantFirst+2000 {
		t.Errorf("expected first poll to start around %d, got %d", wantFirst, gotFirst)
	}

	wantNext := now.UnixMilli() + 1
	if got := aws.ToInt64(calls[1].StartTime); got != wantNext {
		t.Errorf("expected cursor %d after first round, got %d", wantNext, got)
	}
}

func TestTail_GroupFaultIsolation(t *testing.T) {
	api := newFakeAPI()
	api.enqueue("/ecs/api", nil, fmt.Errorf("throttled"))
	api.enqueue("/ecs/worker", page("", event(time.Now(), "worker still polled")), nil)

	src := newSource(api, testConfig("api", "worker"), zerolog.Nop())

	stream, err := src.Tail(context.Background())
	if err != nil {
		t.Fatalf("Tail failed: %v", err)
	}
	defer stream.Close()

	entry := recvEntry(t, stream)
	if entry.Service != "worker" {
		t.Errorf("expected service %q, got %q", "worker", entry.Service)
	}

	// The failing group keeps being polled on later rounds.
	waitFor(t, "the failing group to be retried", func() bool {
		return len(api.callsFor("/ecs/api")) >= 2
	})
}

func TestTail_CloseJoinsPoller(t *testing.T) {
	api := newFakeAPI()
	api.enqueue("/ecs/api", page("", event(time.Now(), "still alive")), nil)

	src := newSource(api, testConfig("api"), zerolog.Nop())

	stream, err := src.Tail(context.Background())
	if err != nil {
		t.Fatalf("Tail failed: %v", err)
	}

	recvEntry(t, stream)
	stream.Close()

	// The poller closes the channel on its way out.
	for range stream.Entries {
	}
}

func TestTail_NoGroupsConfigured(t *testing.T) {
	src := newSource(newFakeAPI(), testConfig(), zerolog.Nop())

	_, err := src.Tail(context.Background())
	if err == nil {
		t.Fatal("expected an error")
	}
	if !errors.Is(err, errors.ErrCodeSource) {
		t.Errorf("expected code %s, got %v", errors.ErrCodeSource, err)
	}
}

func TestHistory_MergesGroups(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	api := newFakeAPI()
	api.enqueue("/ecs/api", page("",
		event(base, "a first"),
		event(base.Add(2*time.Second), "a third"),
	), nil)
	api.enqueue("/ecs/worker", page("",
		event(base.Add(time.Second), "w second"),
		event(base.Add(3*time.Second), "w fourth"),
	), nil)

	cfg := testConfig("api", "worker")
	src := newSource(api, cfg, zerolog.Nop())

	entries, err := src.History(context.Background(), 10)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}

	wantMessages := []string{"a first", "w second", "a third", "w fourth"}
	for i, want := range wantMessages {
		if entries[i].Message != want {
			t.Errorf("entry %d: expected message %q, got %q", i, want, entries[i].Message)
		}
	}

	// The query window spans the history lookback up to now.
	calls := api.callsFor("/ecs/api")
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	wantStart := time.Now().Add(-cfg.CloudWatch.HistoryLookback).UnixMilli()
	gotStart := aws.ToInt64(calls[0].StartTime)
	if gotStart < wantStart-2000 || gotStart > wantStart+2000 {
		t.Errorf("expected window start around %d, got %d", wantStart, gotStart)
	}
	if calls[0].EndTime == nil {
		t.Error("expected a bounded window end")
	}

	// Later calls are served from the ring, not refetched.
	recent, err := src.History(context.Background(), 2)
	if err != nil {
		t.Fatalf("History from ring failed: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(recent))
	}
	if recent[0].Message != "a third" || recent[1].Message != "w fourth" {
		t.Errorf("expected the newest entries, got %q and %q", recent[0].Message, recent[1].Message)
	}
}

func TestHistory_FollowsPagination(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	api := newFakeAPI()
	api.enqueue("/ecs/api", page("tok-1", event(base, "page one")), nil)
	api.enqueue("/ecs/api", page("", event(base.Add(time.Second), "page two")), nil)

	src := newSource(api, testConfig("api"), zerolog.Nop())

	entries, err := src.History(context.Background(), 10)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	calls := api.callsFor("/ecs/api")
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	if got := aws.ToString(calls[1].NextToken); got != "tok-1" {
		t.Errorf("expected second call to carry token %q, got %q", "tok-1", got)
	}
}

func TestHistory_SkipsFailingGroup(t *testing.T) {
	api := newFakeAPI()
	api.enqueue("/ecs/api", nil, fmt.Errorf("access denied"))
	api.enqueue("/ecs/worker", page("", event(time.Now(), "worker history")), nil)

	src := newSource(api, testConfig("api", "worker"), zerolog.Nop())

	entries, err := src.History(context.Background(), 10)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Service != "worker" {
		t.Errorf("expected service %q, got %q", "worker", entries[0].Service)
	}
}

func TestParseEvent_MissingTimestamp(t *testing.T) {
	src := newSource(newFakeAPI(), testConfig("api"), zerolog.Nop())

	entry, ok := src.parseEvent("api", types.FilteredLogEvent{Message: aws.String("no timestamp")})
	if !ok {
		t.Fatal("expected a parsed entry")
	}
	if entry.Timestamp.IsZero() {
		t.Error("expected a fallback timestamp")
	}
}

func TestRegistration(t *testing.T) {
	source, err := logs.New(logs.KindCloudWatch, testConfig("api"), zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to create registered source: %v", err)
	}
	if source.Kind() != logs.KindCloudWatch {
		t.Errorf("expected kind %q, got %q", logs.KindCloudWatch, source.Kind())
	}
}
