// Package gateway implements the websocket endpoint the admin dashboard
// connects to for live log streaming.
//
// Every connection goes through the same handshake: the socket is upgraded
// first, then origin and bearer token are validated so rejections reach the
// client as distinct close codes instead of opaque HTTP errors. Accepted
// connections receive a history snapshot, then live entries filtered by the
// connection's current filter set.
package gateway

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/loggate-io/loggate/pkg/auth"
	"github.com/loggate-io/loggate/pkg/config"
	"github.com/loggate-io/loggate/pkg/errors"
	"github.com/loggate-io/loggate/pkg/logs"
)

// historyLimit caps the snapshot replayed to a freshly accepted connection.
const historyLimit = 100

// SourceProvider hands the gateway the log source for the configured
// environment. *logs.Selector implements it.
type SourceProvider interface {
	Active() (logs.Source, error)
}

// Gateway serves the websocket log endpoint and the health check.
type Gateway struct {
	cfg      *config.Config
	log      zerolog.Logger
	sources  SourceProvider
	verifier auth.Verifier
	hub      *Hub
	upgrader websocket.Upgrader
}

func New(cfg *config.Config, log zerolog.Logger, sources SourceProvider, verifier auth.Verifier) *Gateway {
	return &Gateway{
		cfg:      cfg,
		log:      log.With().Str("component", "gateway").Logger(),
		sources:  sources,
		verifier: verifier,
		hub:      NewHub(log),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Origin is checked after the upgrade so rejections carry a
			// close code the dashboard can distinguish.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Register mounts the gateway endpoints on mux.
func (g *Gateway) Register(mux *http.ServeMux) {
	mux.HandleFunc("/ws/logs", g.handleLogs)
	mux.HandleFunc("/healthz", g.handleHealth)
}

// Run drives the connection hub until ctx ends. It must be running before
// the first connection is accepted.
func (g *Gateway) Run(ctx context.Context) {
	g.hub.run(ctx)
}

// Broadcast sends one event to every live connection, e.g. a shutdown
// notice.
func (g *Gateway) Broadcast(v interface{}) {
	g.hub.Broadcast(v)
}

// Connections reports the number of live connections.
func (g *Gateway) Connections() int {
	return g.hub.Count()
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":      "ok",
		"connections": g.hub.Count(),
	})
}

func (g *Gateway) handleLogs(w http.ResponseWriter, r *http.Request) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := newConn(ws, g.log)
	if !g.handshake(r, c) {
		return
	}

	g.serveConn(r.Context(), c)
}

// handshake validates origin and token on the upgraded socket. Rejected
// connections are closed with 4401 (authentication) or 4403 (authorization)
// before any other frame is sent.
func (g *Gateway) handshake(r *http.Request, c *Conn) bool {
	if origin := r.Header.Get("Origin"); !g.originAllowed(origin) {
		c.log.Warn().Str("origin", origin).Msg("rejected connection: origin not allowed")
		g.reject(r.Context(), c, CloseForbidden, "origin not allowed")
		return false
	}

	principal, err := g.verifier.Verify(r.Context(), bearerToken(r))
	if err != nil {
		c.log.Warn().Err(err).Msg("rejected connection: authentication failed")
		g.reject(r.Context(), c, CloseUnauthenticated, "authentication required")
		return false
	}

	if !principal.Admin {
		c.log.Warn().Str("subject", principal.Subject).Msg("rejected connection: not an admin")
		g.reject(r.Context(), c, CloseForbidden, "admin access required")
		return false
	}

	c.principal = principal
	c.log = c.log.With().Str("subject", principal.Subject).Logger()
	return true
}

func (g *Gateway) reject(ctx context.Context, c *Conn, code int, reason string) {
	_ = c.machine.Event(ctx, EventClose)
	deadline := time.Now().Add(writeWait)
	c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	c.closeWS()
}

// originAllowed permits requests with no Origin header (non-browser
// clients) and treats an empty allow-list as allow-all for local
// development.
func (g *Gateway) originAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	if len(g.cfg.Auth.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range g.cfg.Auth.AllowedOrigins {
		if strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// bearerToken pulls the token from the query string, which browser
// websocket clients are limited to, or from the Authorization header.
func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	const prefix = "Bearer "
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, prefix) {
		return strings.TrimPrefix(h, prefix)
	}
	return ""
}

// serveConn runs an accepted connection: history snapshot, live stream,
// inbound message loop, then teardown in an order that guarantees nothing
// forwards to the connection after it leaves the hub.
func (g *Gateway) serveConn(ctx context.Context, c *Conn) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	_ = c.machine.Event(connCtx, EventAccept)
	g.hub.Register(c)
	c.startWritePump()
	c.log.Info().Msg("connection accepted")

	source, err := g.sources.Active()
	if err != nil {
		c.log.Error().Err(err).Msg("log source unavailable")
		c.Send(sourceErrorEvent(err))
		source = nil
	}

	var streamWG sync.WaitGroup
	if source != nil {
		g.sendHistory(connCtx, c, source)

		streamWG.Add(1)
		go func() {
			defer streamWG.Done()
			g.streamTo(connCtx, c, source)
		}()
	}

	g.readLoop(connCtx, c)

	// Stop the stream and wait for it before leaving the hub, so no
	// producer can enqueue on a closed send channel.
	cancel()
	streamWG.Wait()
	g.hub.Unregister(c)
	close(c.send)
	c.joinWritePump()
	c.closeWS()
	_ = c.machine.Event(context.Background(), EventClose)
	c.log.Info().Msg("connection closed")
}

func (g *Gateway) sendHistory(ctx context.Context, c *Conn, source logs.Source) {
	entries, err := source.History(ctx, historyLimit)
	if err != nil {
		c.log.Error().Err(err).Msg("history retrieval failed")
		c.Send(sourceErrorEvent(err))
		return
	}
	c.Send(newHistoryEvent(entries))
}

// streamTo forwards live entries that match the connection's filters at the
// moment of forwarding. A stream that ends leaves the connection open; the
// client still gets pongs and filter acks.
func (g *Gateway) streamTo(ctx context.Context, c *Conn, source logs.Source) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Msg("streaming loop panicked")
			c.Send(newErrorEvent("internal streaming error", ""))
		}
	}()

	stream, err := source.Tail(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.log.Error().Err(err).Msg("failed to start log stream")
		c.Send(sourceErrorEvent(err))
		return
	}
	defer stream.Close()

	_ = c.machine.Event(ctx, EventStream)
	c.log.Debug().Msg("live streaming started")

	errCh := stream.Err
	for {
		select {
		case <-ctx.Done():
			return

		case entry, ok := <-stream.Entries:
			if !ok {
				c.log.Debug().Msg("log stream ended")
				return
			}
			if c.Filters().Matches(entry) {
				c.Send(newLogEvent(entry))
			}

		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				c.log.Error().Err(err).Msg("log stream failed")
				c.Send(sourceErrorEvent(err))
			}
		}
	}
}

func (g *Gateway) readLoop(ctx context.Context, c *Conn) {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug().Err(err).Msg("connection read failed")
			}
			return
		}
		g.handleMessage(ctx, c, data)
	}
}

// handleMessage dispatches one inbound message. Bad input yields an error
// event; it never closes the connection.
func (g *Gateway) handleMessage(ctx context.Context, c *Conn, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.log.Debug().Err(err).Msg("malformed client message")
		c.Send(newErrorEvent("malformed message", ""))
		return
	}

	switch env.Type {
	case MessagePing:
		c.Send(newPongEvent())

	case MessageUpdateFilters:
		var spec logs.FilterSpec
		if len(env.Filters) > 0 {
			if err := json.Unmarshal(env.Filters, &spec); err != nil {
				c.log.Debug().Err(err).Msg("malformed filters payload")
				c.Send(newErrorEvent("malformed filters", ""))
				return
			}
		}
		filters, err := logs.ParseFilters(spec)
		if err != nil {
			// Invalid fields are dropped, not fatal; the ack reflects what
			// actually applied.
			c.log.Debug().Err(err).Msg("ignored invalid filter fields")
		}
		c.SetFilters(filters)
		c.Send(newFiltersUpdatedEvent(filters))

	case MessageClearLogs:
		// Clearing is a client-side view operation; the server just
		// acknowledges so every pane clears at the same point in the
		// stream.
		c.Send(newLogsClearedEvent())

	default:
		c.log.Debug().Str("type", string(env.Type)).Msg("unknown message type")
		c.Send(newErrorEvent(fmt.Sprintf("unknown message type %q", env.Type), ""))
	}
}

// sourceErrorEvent sanitizes a source failure for the client. Permission
// problems keep their remediation hint; anything unexpected is reported
// generically with detail only in the server log.
func sourceErrorEvent(err error) ErrorEvent {
	var e *errors.Error
	if stderrors.As(err, &e) {
		switch e.Code {
		case errors.ErrCodePermission:
			return newErrorEvent(e.Message, e.Hint())
		case errors.ErrCodeSource, errors.ErrCodeConfig:
			return newErrorEvent(e.Message, "")
		}
	}
	return newErrorEvent("log source unavailable", "")
}
