// Package docker provides the container log source for loggate.
//
// It is imported as a side effect to register the "docker" source kind:
//
//	import _ "github.com/loggate-io/loggate/pkg/logs/docker"
package docker

import (
	"bufio"
	"context"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/rs/zerolog"

	"github.com/loggate-io/loggate/pkg/config"
	"github.com/loggate-io/loggate/pkg/errors"
	"github.com/loggate-io/loggate/pkg/logs"
)

func init() {
	logs.Register(logs.KindDocker, func(cfg *config.Config, log zerolog.Logger) (logs.Source, error) {
		return New(cfg, log)
	})
}

const (
	// fanInBuffer bounds the channel all producers feed. When the pump
	// stalls, producers block here instead of growing an unbounded queue.
	fanInBuffer = 64

	// historyFetchWorkers caps how many containers are read in parallel on
	// the history cold path.
	historyFetchWorkers = 4

	// Line scanner sizing for chatty services.
	scanBufferSize  = 64 * 1024
	maxScanTokenLen = 4 * 1024 * 1024
)

// API is the slice of the Docker client the source needs. Tests substitute
// a fake; production code passes *client.Client.
type API interface {
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
}

// target is a configured service resolved to its container.
type target struct {
	service   string
	container string
	tty       bool
}

// Source streams logs from one container per configured service.
type Source struct {
	api  API
	cfg  *config.Config
	log  zerolog.Logger
	ring *logs.Ring
	sem  chan struct{}
}

// New creates a docker source using a real Docker client.
func New(cfg *config.Config, log zerolog.Logger) (*Source, error) {
	api, err := newClient(cfg.Docker)
	if err != nil {
		return nil, errors.SourceError("docker", "client construction", err)
	}
	return newSource(api, cfg, log), nil
}

func newSource(api API, cfg *config.Config, log zerolog.Logger) *Source {
	return &Source{
		api:  api,
		cfg:  cfg,
		log:  log.With().Str("component", "docker").Logger(),
		ring: logs.NewRing(logs.DefaultHistorySize),
		sem:  make(chan struct{}, historyFetchWorkers),
	}
}

// Kind reports which adapter backs this source.
func (s *Source) Kind() logs.Kind {
	return logs.KindDocker
}

// ---------------------------------------------------------------------------
// Tail (live streaming)
// ---------------------------------------------------------------------------

// Tail starts one producer goroutine per resolvable container, all feeding a
// bounded fan-in channel. A single pump goroutine appends each entry to the
// shared history ring and forwards it to the returned stream. Closing the
// stream cancels and joins every goroutine before returning.
func (s *Source) Tail(ctx context.Context) (*logs.Stream, error) {
	targets, err := s.resolveTargets(ctx)
	if err != nil {
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(ctx)

	fanIn := make(chan logs.Entry, fanInBuffer)
	entries := make(chan logs.Entry, fanInBuffer)
	errs := make(chan error, 1)

	var producers sync.WaitGroup
	for _, tgt := range targets {
		producers.Add(1)
		go func(tgt target) {
			defer producers.Done()
			s.follow(streamCtx, tgt, fanIn)
		}(tgt)
	}

	go func() {
		producers.Wait()
		close(fanIn)
	}()

	var pump sync.WaitGroup
	pump.Add(1)
	go func() {
		defer pump.Done()
		defer close(errs)
		defer close(entries)

		for entry := range fanIn {
			s.ring.Append(entry)
			select {
			case entries <- entry:
			case <-streamCtx.Done():
				// Keep draining so blocked producers can exit.
			}
		}
	}()

	closer := func() {
		cancel()
		producers.Wait()
		pump.Wait()
	}

	return logs.NewStream(entries, errs, closer), nil
}

// follow tails one container until the context ends.
// Failures here are logged and end only this producer; sibling services
// keep streaming.
func (s *Source) follow(ctx context.Context, tgt target, fanIn chan<- logs.Entry) {
	reader, err := s.api.ContainerLogs(ctx, tgt.container, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
		Timestamps: true,
		Tail:       "0",
	})
	if err != nil {
		s.log.Warn().Err(err).Str("service", tgt.service).Str("container", tgt.container).
			Msg("container logs unavailable")
		return
	}

	// Close the reader when the context ends to unblock the scanner.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		reader.Close()
	}()

	src := demux(reader, tgt.tty)
	defer src.Close()

	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, scanBufferSize), maxScanTokenLen)

	for scanner.Scan() {
		entry, ok := s.parseLine(tgt.service, scanner.Text())
		if !ok {
			continue
		}

		select {
		case fanIn <- entry:
		case <-ctx.Done():
			return
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		s.log.Warn().Err(err).Str("service", tgt.service).Msg("log stream ended")
	}
}

// ---------------------------------------------------------------------------
// History
// ---------------------------------------------------------------------------

// History serves from the shared ring when it holds entries. On a cold start
// it fetches a bounded tail from every container in parallel, merges the
// results oldest-first, seeds the ring, and returns the newest limit entries.
func (s *Source) History(ctx context.Context, limit int) ([]logs.Entry, error) {
	if limit <= 0 {
		limit = logs.DefaultHistorySize
	}

	if s.ring.Len() > 0 {
		return s.ring.Recent(limit), nil
	}

	targets, err := s.resolveTargets(ctx)
	if err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		entries []logs.Entry
		wg      sync.WaitGroup
	)

	for _, tgt := range targets {
		wg.Add(1)
		go func(tgt target) {
			defer wg.Done()

			s.sem <- struct{}{}
			defer func() { <-s.sem }()

			fetched, err := s.fetchTail(ctx, tgt)
			if err != nil {
				s.log.Warn().Err(err).Str("service", tgt.service).Msg("history fetch failed")
				return
			}

			mu.Lock()
			entries = append(entries, fetched...)
			mu.Unlock()
		}(tgt)
	}
	wg.Wait()

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})

	s.ring.Append(entries...)

	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

// fetchTail reads a bounded, non-following tail from one container.
func (s *Source) fetchTail(ctx context.Context, tgt target) ([]logs.Entry, error) {
	reader, err := s.api.ContainerLogs(ctx, tgt.container, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Timestamps: true,
		Tail:       strconv.Itoa(s.cfg.Docker.HistoryTail),
	})
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	src := demux(reader, tgt.tty)
	defer src.Close()

	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, scanBufferSize), maxScanTokenLen)

	var entries []logs.Entry
	for scanner.Scan() {
		if entry, ok := s.parseLine(tgt.service, scanner.Text()); ok {
			entries = append(entries, entry)
		}
	}
	return entries, scanner.Err()
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// resolveTargets inspects each configured service's container, in config
// order. Unresolvable containers are logged and skipped. A daemon permission
// failure aborts instead, so the caller can surface the remediation hint;
// resolving nothing at all is an error too.
func (s *Source) resolveTargets(ctx context.Context) ([]target, error) {
	var targets []target

	for _, name := range s.cfg.OrderedServices() {
		svc := s.cfg.Services[name]
		if svc == nil || svc.Container == "" {
			continue
		}

		info, err := s.api.ContainerInspect(ctx, svc.Container)
		if err != nil {
			if permissionDenied(err) {
				return nil, errors.PermissionError(
					"docker daemon denied access",
					"grant the loggate user access to the docker socket (usually the docker group)",
					err)
			}

			s.log.Warn().Err(err).Str("service", name).Str("container", svc.Container).
				Msg("skipping unresolvable container")
			continue
		}

		targets = append(targets, target{
			service:   name,
			container: svc.Container,
			tty:       info.Config != nil && info.Config.Tty,
		})
	}

	if len(targets) == 0 {
		return nil, errors.New(errors.ErrCodeSource, "no configured container could be resolved")
	}
	return targets, nil
}

// demux unwraps docker's stdout/stderr multiplexing. Containers running with
// a TTY deliver a plain byte stream instead and pass through untouched.
// Closing the returned reader releases the copy goroutine.
func demux(reader io.Reader, tty bool) io.ReadCloser {
	if tty {
		return io.NopCloser(reader)
	}

	pr, pw := io.Pipe()
	go func() {
		_, err := stdcopy.StdCopy(pw, pw, reader)
		pw.CloseWithError(err)
	}()
	return pr
}

// parseLine strips the RFC3339Nano timestamp docker prefixes each line with
// when Timestamps is on, then normalizes the rest. Lines without a parsable
// prefix keep their full text and get stamped with the current time.
func (s *Source) parseLine(service, line string) (logs.Entry, bool) {
	var ts time.Time
	rest := line

	if i := strings.IndexByte(line, ' '); i > 0 {
		if parsed, err := time.Parse(time.RFC3339Nano, line[:i]); err == nil {
			ts = parsed
			rest = line[i+1:]
		}
	}

	return logs.ParseLine(service, rest, ts)
}

// permissionDenied reports whether an inspect failure looks like a docker
// socket permission problem rather than a missing container.
func permissionDenied(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "permission denied")
}
