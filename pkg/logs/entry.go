package logs

import (
	"regexp"
	"strings"
	"sync/atomic"
	"time"
)

// Level classifies the severity of a log entry.
type Level string

const (
	LevelDebug    Level = "DEBUG"
	LevelInfo     Level = "INFO"
	LevelWarning  Level = "WARNING"
	LevelError    Level = "ERROR"
	LevelCritical Level = "CRITICAL"
)

// ParseLevel maps a client-supplied string onto a Level.
func ParseLevel(s string) (Level, bool) {
	switch Level(strings.ToUpper(strings.TrimSpace(s))) {
	case LevelDebug:
		return LevelDebug, true
	case LevelInfo:
		return LevelInfo, true
	case LevelWarning:
		return LevelWarning, true
	case LevelError:
		return LevelError, true
	case LevelCritical:
		return LevelCritical, true
	}
	return "", false
}

// Entry is a single normalized log line.
type Entry struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Level     Level     `json:"level"`
	Service   string    `json:"service"`
	Message   string    `json:"message"`
	UserID    string    `json:"userId,omitempty"`
	RequestID string    `json:"requestId,omitempty"`
	Raw       string    `json:"raw"`
}

// entrySeq issues entry IDs unique within the process.
var entrySeq atomic.Int64

func nextEntryID() int64 {
	return entrySeq.Add(1)
}

// Level detection is ordered: the first matching rule wins, so a line
// mentioning both FATAL and ERROR classifies as CRITICAL.
var levelRules = []struct {
	pattern *regexp.Regexp
	level   Level
}{
	{regexp.MustCompile(`(?i)\b(critical|fatal)\b`), LevelCritical},
	{regexp.MustCompile(`(?i)\b(error|err)\b`), LevelError},
	{regexp.MustCompile(`(?i)\bwarn(ing)?\b`), LevelWarning},
	{regexp.MustCompile(`(?i)\b(debug|trace)\b`), LevelDebug},
}

var (
	userIDPattern    = regexp.MustCompile(`(?i)\buser[_-]?id["']?\s*[:=]\s*["']?([\w-]+)`)
	requestIDPattern = regexp.MustCompile(`(?i)\b(?:request|req)[_-]?id["']?\s*[:=]\s*["']?([\w-]+)`)
)

// DetectLevel infers the severity of a raw log line.
func DetectLevel(line string) Level {
	for _, rule := range levelRules {
		if rule.pattern.MatchString(line) {
			return rule.level
		}
	}
	return LevelInfo
}

// ParseLine normalizes one raw log line from a service into an Entry.
// Blank lines produce no entry. A zero timestamp falls back to the current
// time, for sources that do not stamp their lines.
func ParseLine(service, line string, ts time.Time) (Entry, bool) {
	message := strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(message) == "" {
		return Entry{}, false
	}

	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	entry := Entry{
		ID:        nextEntryID(),
		Timestamp: ts,
		Level:     DetectLevel(message),
		Service:   service,
		Message:   message,
		Raw:       line,
	}

	if m := userIDPattern.FindStringSubmatch(message); m != nil {
		entry.UserID = m[1]
	}
	if m := requestIDPattern.FindStringSubmatch(message); m != nil {
		entry.RequestID = m[1]
	}

	return entry, true
}
