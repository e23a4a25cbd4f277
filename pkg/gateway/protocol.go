package gateway

import (
	"encoding/json"
	"time"

	"github.com/loggate-io/loggate/pkg/logs"
)

// MessageType represents the type of message in the wire protocol.
type MessageType string

// Client → server message types.
const (
	// MessagePing asks for an immediate pong, in any connection state.
	MessagePing MessageType = "ping"
	// MessageUpdateFilters replaces the connection's active filters.
	MessageUpdateFilters MessageType = "updateFilters"
	// MessageClearLogs signals a dashboard reset; it has no server-side
	// effect beyond the acknowledgement.
	MessageClearLogs MessageType = "clearLogs"
)

// Server → client event types.
const (
	MessageHistory        MessageType = "history"
	MessageLog            MessageType = "log"
	MessageError          MessageType = "error"
	MessagePong           MessageType = "pong"
	MessageFiltersUpdated MessageType = "filtersUpdated"
	MessageLogsCleared    MessageType = "logsCleared"
)

// Close codes delivered on rejected connections.
const (
	// CloseUnauthenticated rejects a missing or unknown token.
	CloseUnauthenticated = 4401
	// CloseForbidden rejects a disallowed origin or a non-admin principal.
	CloseForbidden = 4403
)

// Envelope is one inbound client message.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Filters json.RawMessage `json:"filters,omitempty"`
}

// HistoryEvent replays buffered entries right after the connection is
// accepted.
type HistoryEvent struct {
	Type MessageType  `json:"type"`
	Logs []logs.Entry `json:"logs"`
}

// LogEvent carries one live entry that passed the connection's filters.
type LogEvent struct {
	Type MessageType `json:"type"`
	Log  logs.Entry  `json:"log"`
}

// ErrorEvent reports a failure without closing the connection.
type ErrorEvent struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
	Hint    string      `json:"hint,omitempty"`
}

// PongEvent answers a ping.
type PongEvent struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// FiltersUpdatedEvent acknowledges a filter update, echoing the filters now
// in effect.
type FiltersUpdatedEvent struct {
	Type    MessageType     `json:"type"`
	Filters logs.FilterSpec `json:"filters"`
}

// LogsClearedEvent acknowledges a clearLogs request.
type LogsClearedEvent struct {
	Type MessageType `json:"type"`
}

func newHistoryEvent(entries []logs.Entry) HistoryEvent {
	if entries == nil {
		entries = []logs.Entry{}
	}
	return HistoryEvent{Type: MessageHistory, Logs: entries}
}

func newLogEvent(entry logs.Entry) LogEvent {
	return LogEvent{Type: MessageLog, Log: entry}
}

func newErrorEvent(message, hint string) ErrorEvent {
	return ErrorEvent{Type: MessageError, Message: message, Hint: hint}
}

func newPongEvent() PongEvent {
	return PongEvent{Type: MessagePong, Timestamp: time.Now().UTC()}
}

func newFiltersUpdatedEvent(f *logs.Filters) FiltersUpdatedEvent {
	return FiltersUpdatedEvent{Type: MessageFiltersUpdated, Filters: f.Spec()}
}

func newLogsClearedEvent() LogsClearedEvent {
	return LogsClearedEvent{Type: MessageLogsCleared}
}
