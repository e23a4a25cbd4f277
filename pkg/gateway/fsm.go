package gateway

import (
	"context"

	"github.com/looplab/fsm"
	"github.com/rs/zerolog"
)

// FSM states
const (
	StateConnecting = "connecting"
	StateAccepted   = "accepted"
	StateStreaming  = "streaming"
	StateClosed     = "closed"
)

// FSM events
const (
	EventAccept = "accept"
	EventStream = "stream"
	EventClose  = "close"
)

// newConnFSM creates a state machine for one connection's lifecycle. A
// rejected handshake closes straight from connecting.
func newConnFSM(connID string, log zerolog.Logger) *fsm.FSM {
	return fsm.NewFSM(
		StateConnecting,
		fsm.Events{
			{Name: EventAccept, Src: []string{StateConnecting}, Dst: StateAccepted},
			{Name: EventStream, Src: []string{StateAccepted}, Dst: StateStreaming},
			{Name: EventClose, Src: []string{StateConnecting, StateAccepted, StateStreaming}, Dst: StateClosed},
		},
		fsm.Callbacks{
			"after_event": func(ctx context.Context, e *fsm.Event) {
				log.Debug().Str("conn", connID).Msgf("STATE %s → %s (trigger: %s)", e.Src, e.Dst, e.Event)
			},
		},
	)
}
