package cli

import (
	"testing"
	"time"
)

func TestNewTailCmd_Flags(t *testing.T) {
	cmd := newTailCmd()

	if cmd.Use != "tail" {
		t.Errorf("expected use 'tail', got '%s'", cmd.Use)
	}

	// Check flags
	flags := []string{"address", "token", "level", "service", "pattern", "user", "request", "since", "timestamps", "no-color", "json"}
	for _, flagName := range flags {
		if cmd.Flags().Lookup(flagName) == nil {
			t.Errorf("expected --%s flag", flagName)
		}
	}

	// Check shorthands
	if cmd.Flags().ShorthandLookup("a") == nil {
		t.Error("expected -a shorthand for --address")
	}
}

func TestNewServeCmd(t *testing.T) {
	cmd := newServeCmd()

	if cmd.Use != "serve" {
		t.Errorf("expected use 'serve', got '%s'", cmd.Use)
	}
	if !cmd.SilenceUsage {
		t.Error("expected serve to silence usage on runtime errors")
	}
}

func TestParseSince_Duration(t *testing.T) {
	before := time.Now()
	result, err := parseSince("5m")
	after := time.Now()

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Result should be ~5 minutes ago
	expected := before.Add(-5 * time.Minute)
	if result.Before(expected.Add(-time.Second)) || result.After(after.Add(-5*time.Minute).Add(time.Second)) {
		t.Errorf("parseSince(5m) = %v, expected ~%v", result, expected)
	}
}

func TestParseSince_RFC3339(t *testing.T) {
	result, err := parseSince("2026-01-15T10:30:00Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)
	if !result.Equal(expected) {
		t.Errorf("parseSince(RFC3339) = %v, expected %v", result, expected)
	}
}

func TestParseSince_Invalid(t *testing.T) {
	_, err := parseSince("not-a-time")
	if err == nil {
		t.Fatal("expected error for invalid since value")
	}
}
