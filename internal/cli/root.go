// Package cli implements the loggate CLI commands.
package cli

import (
	"github.com/spf13/cobra"

	// Import log sources to register them via init()
	_ "github.com/loggate-io/loggate/pkg/logs/cloudwatch"
	_ "github.com/loggate-io/loggate/pkg/logs/docker"
)

var (
	cfgFile string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "loggate",
	Short: "Real-time log streaming for the admin dashboard",
	Long: `loggate unifies service logs from every environment behind one
websocket gateway.

Locally it follows container logs straight from the Docker daemon; in
deployed environments it polls the services' CloudWatch log groups. The
admin dashboard (or the tail command) connects to the same endpoint
either way.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is loggate.yaml in the working directory)")

	// Add subcommands
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newTailCmd())
	rootCmd.AddCommand(newVersionCmd())
}
