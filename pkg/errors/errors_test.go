package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Message(t *testing.T) {
	plain := New(ErrCodeConfig, "bad config")
	if got := plain.Error(); got != "[CONFIG_ERROR] bad config" {
		t.Errorf("Error() = %q", got)
	}

	wrapped := Wrap(ErrCodeSource, "poll failed", fmt.Errorf("throttled"))
	if got := wrapped.Error(); !strings.Contains(got, "throttled") {
		t.Errorf("expected cause in message, got %q", got)
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := Wrap(ErrCodeSource, "poll failed", cause)

	if !stderrors.Is(err, cause) {
		t.Error("expected wrapped error to match its cause")
	}
}

func TestIs(t *testing.T) {
	err := New(ErrCodeAuth, "unknown token")

	if !Is(err, ErrCodeAuth) {
		t.Error("expected code match")
	}
	if Is(err, ErrCodeSource) {
		t.Error("expected code mismatch")
	}
	if Is(nil, ErrCodeAuth) {
		t.Error("nil must not match any code")
	}
	if Is(fmt.Errorf("plain"), ErrCodeAuth) {
		t.Error("plain errors carry no code")
	}

	// The code is found through wrapping layers.
	outer := fmt.Errorf("request failed: %w", err)
	if !Is(outer, ErrCodeAuth) {
		t.Error("expected code match through the wrap chain")
	}
}

func TestNotFoundError(t *testing.T) {
	err := NotFoundError("log source kind", "syslog")

	if err.Code != ErrCodeNotFound {
		t.Errorf("Code = %s", err.Code)
	}
	if got := err.Error(); !strings.Contains(got, `"syslog"`) {
		t.Errorf("expected the name in the message, got %q", got)
	}
	if err.Details["resource_type"] != "log source kind" || err.Details["name"] != "syslog" {
		t.Errorf("Details = %v", err.Details)
	}
}

func TestSourceError(t *testing.T) {
	cause := fmt.Errorf("socket gone")
	err := SourceError("docker", "client construction", cause)

	if err.Code != ErrCodeSource {
		t.Errorf("Code = %s", err.Code)
	}
	if got := err.Error(); !strings.Contains(got, "docker") || !strings.Contains(got, "client construction") {
		t.Errorf("expected source and operation in the message, got %q", got)
	}
	if !stderrors.Is(err, cause) {
		t.Error("expected the cause to survive wrapping")
	}
}

func TestPermissionError_Hint(t *testing.T) {
	err := PermissionError("docker daemon denied access", "join the docker group", fmt.Errorf("EACCES"))

	if err.Code != ErrCodePermission {
		t.Errorf("Code = %s", err.Code)
	}
	if got := err.Hint(); got != "join the docker group" {
		t.Errorf("Hint() = %q", got)
	}
}

func TestHint_Absent(t *testing.T) {
	if got := New(ErrCodeSource, "no hint here").Hint(); got != "" {
		t.Errorf("expected empty hint, got %q", got)
	}

	bare := &Error{Code: ErrCodeSource, Message: "nil details"}
	if got := bare.Hint(); got != "" {
		t.Errorf("expected empty hint for nil details, got %q", got)
	}
}

func TestWithDetail(t *testing.T) {
	err := New(ErrCodeConfig, "bad port").WithDetail("port", 70000)

	if err.Details["port"] != 70000 {
		t.Errorf("Details = %v", err.Details)
	}
}

func TestWithDetails(t *testing.T) {
	err := New(ErrCodeConfig, "bad service").WithDetails(map[string]interface{}{
		"service":     "api",
		"environment": "local",
	})

	if err.Details["service"] != "api" || err.Details["environment"] != "local" {
		t.Errorf("Details = %v", err.Details)
	}
}
