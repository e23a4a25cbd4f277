package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/loggate-io/loggate/pkg/config"
	"github.com/loggate-io/loggate/pkg/gateway"
	"github.com/loggate-io/loggate/pkg/logs"
)

func newTailCmd() *cobra.Command {
	var (
		address        string
		token          string
		level          string
		service        string
		pattern        string
		userID         string
		requestID      string
		since          string
		showTimestamps bool
		noColor        bool
		jsonOut        bool
	)

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Stream logs from a running gateway",
		Long: `Connect to a loggate gateway and stream logs to the terminal.

The connection replays recent history first, then follows new entries in
real-time until interrupted. The token comes from --token or the
LOGGATE_TOKEN environment variable.

Streaming:
  loggate tail                                # Gateway from loggate.yaml
  loggate tail -a logs.internal:8765          # Explicit gateway address

Filtering (applied server-side, to new entries only):
  loggate tail --level error                  # One severity
  loggate tail --service payment              # One service
  loggate tail --pattern 'timeout|refused'    # Message regex
  loggate tail --since 15m                    # Entries after a point in time

Output:
  loggate tail --timestamps                   # Prefix entries with timestamps
  loggate tail --json                         # Raw protocol frames, one per line`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}

			if address == "" {
				address = fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
			}
			if token == "" {
				token = os.Getenv("LOGGATE_TOKEN")
			}

			spec := logs.FilterSpec{
				Level:     level,
				Service:   service,
				Pattern:   pattern,
				UserID:    userID,
				RequestID: requestID,
			}
			if since != "" {
				sinceTime, err := parseSince(since)
				if err != nil {
					return fmt.Errorf("invalid --since value %q: %w", since, err)
				}
				spec.Start = sinceTime.Format(time.RFC3339)
			}

			opts := logs.FormatOptions{
				ShowTimestamps: showTimestamps,
				// Piped output gets no color regardless of the flag.
				NoColor: noColor || !term.IsTerminal(int(os.Stdout.Fd())),
			}

			return runTail(ctx, address, token, spec, opts, jsonOut)
		},
	}

	cmd.Flags().StringVarP(&address, "address", "a", "", "Gateway address (host:port, defaults to the configured server)")
	cmd.Flags().StringVar(&token, "token", "", "Bearer token (defaults to $LOGGATE_TOKEN)")
	cmd.Flags().StringVar(&level, "level", "", "Only entries with this level (debug, info, warning, error, critical)")
	cmd.Flags().StringVar(&service, "service", "", "Only entries from this service")
	cmd.Flags().StringVar(&pattern, "pattern", "", "Only entries whose message matches this regex")
	cmd.Flags().StringVar(&userID, "user", "", "Only entries tagged with this user id")
	cmd.Flags().StringVar(&requestID, "request", "", "Only entries tagged with this request id")
	cmd.Flags().StringVar(&since, "since", "", "Only entries since duration or timestamp (e.g., 5m, 1h, 2026-01-01T00:00:00Z)")
	cmd.Flags().BoolVar(&showTimestamps, "timestamps", false, "Show timestamps")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored prefixes")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print raw protocol frames instead of formatted lines")

	_ = cmd.RegisterFlagCompletionFunc("level", completeLevels)
	_ = cmd.RegisterFlagCompletionFunc("service", completeServiceNames)

	return cmd
}

// tailEvent is the subset of server frames the tail command renders.
type tailEvent struct {
	Type    gateway.MessageType `json:"type"`
	Logs    []logs.Entry        `json:"logs"`
	Log     *logs.Entry         `json:"log"`
	Message string              `json:"message"`
	Hint    string              `json:"hint"`
}

func runTail(ctx context.Context, address, token string, spec logs.FilterSpec, opts logs.FormatOptions, jsonOut bool) error {
	u := url.URL{Scheme: "ws", Host: address, Path: "/ws/logs"}

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", u.String(), err)
	}
	defer ws.Close()

	// Unblock the read loop on Ctrl+C, asking the server for a clean close
	// first.
	go func() {
		<-ctx.Done()
		deadline := time.Now().Add(time.Second)
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		ws.Close()
	}()

	if spec != (logs.FilterSpec{}) {
		if err := sendFilters(ws, spec); err != nil {
			return fmt.Errorf("failed to apply filters: %w", err)
		}
	}

	entries := make(chan logs.Entry, 64)
	errs := make(chan error, 1)
	stream := logs.NewStream(entries, errs, func() {})

	go func() {
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				// Interrupts and server-side closes end the stream; anything
				// else is a real connection failure.
				if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					close(entries)
				} else {
					errs <- fmt.Errorf("connection lost: %w", err)
				}
				return
			}

			if jsonOut {
				fmt.Println(string(data))
				continue
			}

			var ev tailEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				fmt.Fprintf(os.Stderr, "unreadable frame: %v\n", err)
				continue
			}

			switch ev.Type {
			case gateway.MessageHistory:
				// History always precedes live entries, so printing it
				// directly keeps ordering.
				logs.FormatEntries(os.Stdout, ev.Logs, opts)
			case gateway.MessageLog:
				if ev.Log != nil {
					entries <- *ev.Log
				}
			case gateway.MessageError:
				if ev.Hint != "" {
					fmt.Fprintf(os.Stderr, "server error: %s (%s)\n", ev.Message, ev.Hint)
				} else {
					fmt.Fprintf(os.Stderr, "server error: %s\n", ev.Message)
				}
			}
		}
	}()

	if !jsonOut {
		fmt.Fprintf(os.Stderr, "Streaming logs from %s (Ctrl+C to stop)...\n", address)
	}

	return logs.FormatStream(os.Stdout, stream, opts)
}

func sendFilters(ws *websocket.Conn, spec logs.FilterSpec) error {
	raw, err := json.Marshal(spec)
	if err != nil {
		return err
	}
	return ws.WriteJSON(gateway.Envelope{Type: gateway.MessageUpdateFilters, Filters: raw})
}

// parseSince parses a duration string (e.g., "5m", "1h") or an RFC3339
// timestamp.
func parseSince(s string) (time.Time, error) {
	// Try as a duration first
	d, err := time.ParseDuration(s)
	if err == nil {
		return time.Now().Add(-d), nil
	}

	// Try as RFC3339 timestamp
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}

	return time.Time{}, fmt.Errorf("must be a duration (e.g., 5m, 1h) or RFC3339 timestamp")
}
