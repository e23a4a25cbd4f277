package gateway

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
)

// Hub tracks live connections for the health endpoint and fans server-wide
// events, such as the shutdown notice, out to all of them.
type Hub struct {
	log zerolog.Logger

	register   chan *Conn
	unregister chan *Conn
	broadcast  chan []byte
	done       chan struct{}

	mu    sync.RWMutex
	conns map[*Conn]bool
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		log:        log.With().Str("component", "hub").Logger(),
		register:   make(chan *Conn),
		unregister: make(chan *Conn),
		broadcast:  make(chan []byte),
		done:       make(chan struct{}),
		conns:      make(map[*Conn]bool),
	}
}

// Register adds a connection to the hub.
func (h *Hub) Register(c *Conn) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

// Unregister removes a connection. Once this returns the hub will not touch
// the connection again, so the caller is free to close its send channel.
func (h *Hub) Unregister(c *Conn) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Broadcast fans one event out to every connection. It returns once the
// hub has accepted the event, so a caller that broadcasts and then stops
// the hub knows the frames were enqueued first.
func (h *Hub) Broadcast(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to marshal broadcast")
		return
	}
	select {
	case h.broadcast <- data:
	case <-h.done:
	}
}

// Count reports the number of live connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// run serializes all membership changes. On shutdown it closes every
// connection's socket, which unblocks their read loops and lets each
// handler run its own teardown.
func (h *Hub) run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.conns {
				c.closeWS()
				delete(h.conns, c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.conns[c] = true
			total := len(h.conns)
			h.mu.Unlock()
			h.log.Debug().Str("conn", c.id).Int("total", total).Msg("connection registered")

		case c := <-h.unregister:
			h.mu.Lock()
			delete(h.conns, c)
			h.mu.Unlock()
			h.log.Debug().Str("conn", c.id).Msg("connection unregistered")

		case data := <-h.broadcast:
			h.mu.RLock()
			for c := range h.conns {
				c.sendFrame(data)
			}
			h.mu.RUnlock()
		}
	}
}
