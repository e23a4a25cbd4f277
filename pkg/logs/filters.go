package logs

import (
	"regexp"
	"strings"
	"time"

	"github.com/loggate-io/loggate/pkg/errors"
)

// Filters restricts which entries a connection receives. Fields left at
// their zero value match everything; a nil *Filters matches everything.
type Filters struct {
	Level     Level
	Service   string
	Start     time.Time
	End       time.Time
	UserID    string
	RequestID string
	Pattern   *regexp.Regexp

	// patternSource is the text the Pattern was compiled from, echoed back
	// to clients in acknowledgements.
	patternSource string
}

// FilterSpec is the wire form of Filters carried by updateFilters messages
// and echoed in filtersUpdated acknowledgements.
type FilterSpec struct {
	Level     string `json:"level,omitempty"`
	Service   string `json:"service,omitempty"`
	Start     string `json:"startTime,omitempty"`
	End       string `json:"endTime,omitempty"`
	UserID    string `json:"userId,omitempty"`
	RequestID string `json:"requestId,omitempty"`
	Pattern   string `json:"pattern,omitempty"`
}

// ParseFilters converts a wire spec into usable Filters. Parsing is
// tolerant: fields that fail to parse are dropped and reported through the
// returned error, while the rest of the filters stay in effect. The regex
// pattern is compiled here, exactly once.
func ParseFilters(spec FilterSpec) (*Filters, error) {
	f := &Filters{
		Service:   strings.TrimSpace(spec.Service),
		UserID:    strings.TrimSpace(spec.UserID),
		RequestID: strings.TrimSpace(spec.RequestID),
	}

	invalid := map[string]interface{}{}

	if spec.Level != "" {
		if level, ok := ParseLevel(spec.Level); ok {
			f.Level = level
		} else {
			invalid["level"] = spec.Level
		}
	}

	if spec.Start != "" {
		if ts, err := time.Parse(time.RFC3339, spec.Start); err == nil {
			f.Start = ts
		} else {
			invalid["startTime"] = spec.Start
		}
	}

	if spec.End != "" {
		if ts, err := time.Parse(time.RFC3339, spec.End); err == nil {
			f.End = ts
		} else {
			invalid["endTime"] = spec.End
		}
	}

	if spec.Pattern != "" {
		if re, err := regexp.Compile(spec.Pattern); err == nil {
			f.Pattern = re
			f.patternSource = spec.Pattern
		} else {
			invalid["pattern"] = spec.Pattern
		}
	}

	if len(invalid) > 0 {
		return f, errors.ValidationError("ignored invalid filter fields", invalid)
	}

	return f, nil
}

// Matches reports whether the entry passes every present filter field.
// The time window is half-open: [Start, End).
func (f *Filters) Matches(e Entry) bool {
	if f == nil {
		return true
	}
	if f.Level != "" && e.Level != f.Level {
		return false
	}
	if f.Service != "" && e.Service != f.Service {
		return false
	}
	if !f.Start.IsZero() && e.Timestamp.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && !e.Timestamp.Before(f.End) {
		return false
	}
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.RequestID != "" && e.RequestID != f.RequestID {
		return false
	}
	if f.Pattern != nil && !f.Pattern.MatchString(e.Message) {
		return false
	}
	return true
}

// Spec returns the wire form of the filters.
func (f *Filters) Spec() FilterSpec {
	if f == nil {
		return FilterSpec{}
	}

	spec := FilterSpec{
		Level:     string(f.Level),
		Service:   f.Service,
		UserID:    f.UserID,
		RequestID: f.RequestID,
		Pattern:   f.patternSource,
	}

	if !f.Start.IsZero() {
		spec.Start = f.Start.Format(time.RFC3339Nano)
	}
	if !f.End.IsZero() {
		spec.End = f.End.Format(time.RFC3339Nano)
	}

	return spec
}
