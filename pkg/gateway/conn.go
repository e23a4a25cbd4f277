package gateway

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/looplab/fsm"
	"github.com/rs/zerolog"

	"github.com/loggate-io/loggate/pkg/auth"
	"github.com/loggate-io/loggate/pkg/logs"
)

const (
	// sendBuffer is the per-connection outbound queue. A dashboard that
	// cannot drain this many frames is dropped instead of blocking
	// producers.
	sendBuffer = 256

	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second
)

// Conn is one dashboard connection. All socket writes go through the write
// pump; producers enqueue marshaled frames on the send channel.
type Conn struct {
	id        string
	ws        *websocket.Conn
	principal auth.Principal
	log       zerolog.Logger
	machine   *fsm.FSM

	send    chan []byte
	filters atomic.Pointer[logs.Filters]

	wsOnce sync.Once
	wg     sync.WaitGroup
}

func newConn(ws *websocket.Conn, log zerolog.Logger) *Conn {
	id := uuid.New().String()
	c := &Conn{
		id:   id,
		ws:   ws,
		log:  log.With().Str("conn", id).Logger(),
		send: make(chan []byte, sendBuffer),
	}
	c.machine = newConnFSM(id, c.log)
	c.filters.Store(&logs.Filters{})
	return c
}

// Filters returns the filters the streaming loop applies at forward time.
func (c *Conn) Filters() *logs.Filters {
	return c.filters.Load()
}

// SetFilters replaces the active filters. Only entries forwarded after the
// swap observe the new set.
func (c *Conn) SetFilters(f *logs.Filters) {
	c.filters.Store(f)
}

// Send marshals and enqueues one event for the write pump.
func (c *Conn) Send(v interface{}) bool {
	data, err := json.Marshal(v)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to marshal event")
		return false
	}
	return c.sendFrame(data)
}

// sendFrame enqueues without blocking. A full queue means the client cannot
// keep up; the connection is dropped so producers never stall behind it.
func (c *Conn) sendFrame(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		c.log.Warn().Msg("send queue full, dropping connection")
		c.closeWS()
		return false
	}
}

// closeWS tears down the socket. Safe to call more than once; pending pump
// reads and writes fail out.
func (c *Conn) closeWS() {
	c.wsOnce.Do(func() {
		c.ws.Close()
	})
}

// startWritePump owns all writes to the socket. It exits when the send
// channel is closed (normal teardown, after a close frame) or when a write
// fails (dropped client).
func (c *Conn) startWritePump() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		for data := range c.send {
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Debug().Err(err).Msg("write failed")
				return
			}
		}

		c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		c.ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}()
}

// joinWritePump waits for the write pump to exit. Callers close the send
// channel first.
func (c *Conn) joinWritePump() {
	c.wg.Wait()
}
