// Package cloudwatch provides the aggregated log source for loggate,
// polling CloudWatch Logs groups.
//
// It is imported as a side effect to register the "cloudwatch" source kind:
//
//	import _ "github.com/loggate-io/loggate/pkg/logs/cloudwatch"
package cloudwatch

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/rs/zerolog"

	"github.com/loggate-io/loggate/pkg/config"
	"github.com/loggate-io/loggate/pkg/errors"
	"github.com/loggate-io/loggate/pkg/logs"
)

func init() {
	logs.Register(logs.KindCloudWatch, func(cfg *config.Config, log zerolog.Logger) (logs.Source, error) {
		return New(cfg, log)
	})
}

// entryBuffer bounds the stream channel. The poller blocks here when the
// consumer stalls instead of growing an unbounded queue.
const entryBuffer = 64

// API is the slice of the CloudWatch Logs client the source needs. Tests
// substitute a fake; production code passes *cloudwatchlogs.Client.
type API interface {
	FilterLogEvents(ctx context.Context, params *cloudwatchlogs.FilterLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.FilterLogEventsOutput, error)
}

// target is a configured service resolved to its log group.
type target struct {
	service string
	group   string
}

// Source streams logs from one CloudWatch Logs group per configured service.
type Source struct {
	api  API
	cfg  *config.Config
	log  zerolog.Logger
	ring *logs.Ring
}

// New creates a cloudwatch source using a real CloudWatch Logs client.
func New(cfg *config.Config, log zerolog.Logger) (*Source, error) {
	api, err := newClient(cfg.CloudWatch)
	if err != nil {
		return nil, errors.SourceError("cloudwatch", "client construction", err)
	}
	return newSource(api, cfg, log), nil
}

func newSource(api API, cfg *config.Config, log zerolog.Logger) *Source {
	return &Source{
		api:  api,
		cfg:  cfg,
		log:  log.With().Str("component", "cloudwatch").Logger(),
		ring: logs.NewRing(logs.DefaultHistorySize),
	}
}

// Kind reports which adapter backs this source.
func (s *Source) Kind() logs.Kind {
	return logs.KindCloudWatch
}

// ---------------------------------------------------------------------------
// Tail (polled streaming)
// ---------------------------------------------------------------------------

// Tail starts a single poller goroutine. Each round it queries every log
// group from that group's cursor, appends new events to the shared history
// ring, forwards them to the returned stream, and advances the cursor past
// the newest timestamp seen. Cursors start one lookback window in the past.
// A failing group is logged and skipped for the round; the others keep
// flowing. Closing the stream cancels and joins the poller before returning.
func (s *Source) Tail(ctx context.Context) (*logs.Stream, error) {
	targets, err := s.resolveTargets()
	if err != nil {
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(ctx)

	entries := make(chan logs.Entry, entryBuffer)
	errs := make(chan error, 1)

	cursors := make(map[string]int64, len(targets))
	start := time.Now().Add(-s.cfg.CloudWatch.Lookback).UnixMilli()
	for _, tgt := range targets {
		cursors[tgt.group] = start
	}

	var poller sync.WaitGroup
	poller.Add(1)
	go func() {
		defer poller.Done()
		defer close(errs)
		defer close(entries)

		ticker := time.NewTicker(s.cfg.CloudWatch.PollInterval)
		defer ticker.Stop()

		for {
			s.pollOnce(streamCtx, targets, cursors, entries)

			select {
			case <-streamCtx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	closer := func() {
		cancel()
		poller.Wait()
	}

	return logs.NewStream(entries, errs, closer), nil
}

// pollOnce runs one round over all targets.
func (s *Source) pollOnce(ctx context.Context, targets []target, cursors map[string]int64, out chan<- logs.Entry) {
	for _, tgt := range targets {
		if ctx.Err() != nil {
			return
		}

		events, err := s.filterEvents(ctx, tgt.group, cursors[tgt.group], 0)
		if err != nil {
			if ctx.Err() == nil {
				s.log.Warn().Err(err).Str("service", tgt.service).Str("group", tgt.group).
					Msg("poll failed")
			}
			continue
		}

		for _, ev := range events {
			entry, ok := s.parseEvent(tgt.service, ev)
			if !ok {
				continue
			}

			// Advance past this event so the next round does not refetch it.
			if ms := aws.ToInt64(ev.Timestamp); ms >= cursors[tgt.group] {
				cursors[tgt.group] = ms + 1
			}

			s.ring.Append(entry)
			select {
			case out <- entry:
			case <-ctx.Done():
				return
			}
		}
	}
}

// filterEvents queries one group from startMillis, following pagination
// tokens until the configured result cap is reached. A zero endMillis leaves
// the upper bound open.
func (s *Source) filterEvents(ctx context.Context, group string, startMillis, endMillis int64) ([]types.FilteredLogEvent, error) {
	input := &cloudwatchlogs.FilterLogEventsInput{
		LogGroupName: aws.String(group),
		StartTime:    aws.Int64(startMillis),
		Limit:        aws.Int32(int32(s.cfg.CloudWatch.QueryLimit)),
	}
	if endMillis > 0 {
		input.EndTime = aws.Int64(endMillis)
	}

	var events []types.FilteredLogEvent
	for {
		out, err := s.api.FilterLogEvents(ctx, input)
		if err != nil {
			return nil, err
		}
		events = append(events, out.Events...)

		if out.NextToken == nil || len(events) >= s.cfg.CloudWatch.QueryLimit {
			return events, nil
		}
		input.NextToken = out.NextToken
	}
}

// ---------------------------------------------------------------------------
// History
// ---------------------------------------------------------------------------

// History serves from the shared ring when it holds entries. On a cold start
// it runs one bounded query per group over the history lookback window,
// merges the results oldest-first, seeds the ring, and returns the newest
// limit entries.
func (s *Source) History(ctx context.Context, limit int) ([]logs.Entry, error) {
	if limit <= 0 {
		limit = logs.DefaultHistorySize
	}

	if s.ring.Len() > 0 {
		return s.ring.Recent(limit), nil
	}

	targets, err := s.resolveTargets()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	start := now.Add(-s.cfg.CloudWatch.HistoryLookback).UnixMilli()
	end := now.UnixMilli()

	var entries []logs.Entry
	for _, tgt := range targets {
		events, err := s.filterEvents(ctx, tgt.group, start, end)
		if err != nil {
			s.log.Warn().Err(err).Str("service", tgt.service).Str("group", tgt.group).
				Msg("history fetch failed")
			continue
		}

		for _, ev := range events {
			if entry, ok := s.parseEvent(tgt.service, ev); ok {
				entries = append(entries, entry)
			}
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})

	s.ring.Append(entries...)

	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// resolveTargets maps configured services to their log groups, in config
// order. Services without a log group are skipped.
func (s *Source) resolveTargets() ([]target, error) {
	var targets []target

	for _, name := range s.cfg.OrderedServices() {
		svc := s.cfg.Services[name]
		if svc == nil || svc.LogGroup == "" {
			continue
		}
		targets = append(targets, target{service: name, group: svc.LogGroup})
	}

	if len(targets) == 0 {
		return nil, errors.New(errors.ErrCodeSource, "no configured service has a log group")
	}
	return targets, nil
}

// parseEvent converts one CloudWatch event into an Entry. Events without a
// timestamp fall back to the receive time.
func (s *Source) parseEvent(service string, ev types.FilteredLogEvent) (logs.Entry, bool) {
	var ts time.Time
	if ev.Timestamp != nil {
		ts = time.UnixMilli(*ev.Timestamp).UTC()
	}
	return logs.ParseLine(service, aws.ToString(ev.Message), ts)
}
