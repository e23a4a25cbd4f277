package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/loggate-io/loggate/pkg/auth"
	"github.com/loggate-io/loggate/pkg/config"
	"github.com/loggate-io/loggate/pkg/gateway"
	"github.com/loggate-io/loggate/pkg/logger"
	"github.com/loggate-io/loggate/pkg/logs"
)

// shutdownGrace is how long write pumps get to flush the shutdown notice
// before sockets are torn down.
const shutdownGrace = 200 * time.Millisecond

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the log streaming gateway",
		Long: `Run the websocket gateway the admin dashboard connects to.

The gateway tails every configured service through the environment's log
source (the local Docker daemon, or CloudWatch Logs for deployed
environments) and multiplexes the merged stream to connected dashboards.

Examples:
  loggate serve                                 # loggate.yaml from the working directory
  loggate serve --config /etc/loggate/staging.yaml
  LOGGATE_SERVER_PORT=9000 loggate serve

Endpoints:
  /ws/logs   websocket log stream (token required)
  /healthz   liveness and connection count`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			// Optional .env for local development credentials.
			_ = godotenv.Load()

			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if err := cfg.ValidateServe(); err != nil {
				return err
			}

			log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
			log.Info().
				Str("version", config.Version).
				Str("environment", cfg.Environment).
				Int("services", len(cfg.ServiceOrder)).
				Msg("starting loggate")

			verifier, err := auth.NewVerifier(ctx, cfg, log)
			if err != nil {
				return err
			}

			gw := gateway.New(cfg, log, logs.NewSelector(cfg, log), verifier)

			// The hub outlives the signal context so the shutdown notice
			// can still be broadcast after Ctrl+C.
			hubCtx, stopHub := context.WithCancel(context.Background())
			defer stopHub()
			go gw.Run(hubCtx)

			mux := http.NewServeMux()
			gw.Register(mux)

			addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
			srv := &http.Server{
				Addr:              addr,
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			}

			serveErr := make(chan error, 1)
			go func() {
				log.Info().Str("addr", addr).Msg("listening")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					serveErr <- err
				}
			}()

			select {
			case err := <-serveErr:
				return err
			case <-ctx.Done():
			}

			log.Info().Int("connections", gw.Connections()).Msg("shutting down")
			gw.Broadcast(gateway.ErrorEvent{Type: gateway.MessageError, Message: "server shutting down"})
			time.Sleep(shutdownGrace)
			stopHub()

			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), config.DefaultShutdownTimeout)
			defer cancelShutdown()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("forcing server close")
				_ = srv.Close()
			}

			return nil
		},
	}

	return cmd
}
