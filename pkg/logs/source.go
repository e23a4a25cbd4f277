// Package logs provides the core log streaming domain: entries, filters,
// the in-memory history ring, and a pluggable source framework.
//
// Log sources (e.g., Docker, CloudWatch) register themselves via init() in
// their sub-packages. The CLI imports these packages as side effects to make
// them available at runtime.
package logs

import (
	"context"
	"sync"
)

// Kind names a registered log source implementation.
type Kind string

const (
	// KindDocker streams logs from containers on a Docker daemon.
	KindDocker Kind = "docker"

	// KindCloudWatch polls aggregated log groups in AWS CloudWatch Logs.
	KindCloudWatch Kind = "cloudwatch"
)

// Source is the interface log source adapters must implement.
type Source interface {
	// Tail returns a live stream of entries from every configured service.
	Tail(ctx context.Context) (*Stream, error)

	// History retrieves up to limit recent entries, oldest first.
	History(ctx context.Context, limit int) ([]Entry, error)

	// Kind reports which adapter backs this source.
	Kind() Kind
}

// Stream represents a live log stream.
// Entries are delivered on the Entries channel. The Err channel receives
// any non-nil error that terminates the stream. Both channels are closed
// when the stream ends.
type Stream struct {
	Entries <-chan Entry
	Err     <-chan error

	close     func()
	closeOnce sync.Once
}

// NewStream creates a Stream backed by the provided channels and closer.
func NewStream(entries <-chan Entry, errs <-chan error, closer func()) *Stream {
	return &Stream{
		Entries: entries,
		Err:     errs,
		close:   closer,
	}
}

// Close terminates the stream and releases resources. It does not return
// until every producer goroutine feeding the stream has exited, so callers
// can rely on no further sends after Close.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		if s.close != nil {
			s.close()
		}
	})
	return nil
}
