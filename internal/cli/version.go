package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loggate-io/loggate/pkg/config"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the loggate version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("loggate " + config.Version)
		},
	}
}
