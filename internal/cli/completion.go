package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/loggate-io/loggate/pkg/config"
)

func init() {
	rootCmd.AddCommand(newCompletionCmd())
}

func newCompletionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for loggate.

To load completions:

Bash:
  $ source <(loggate completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ loggate completion bash > /etc/bash_completion.d/loggate
  # macOS:
  $ loggate completion bash > $(brew --prefix)/etc/bash_completion.d/loggate

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. You can execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ loggate completion zsh > "${fpath[1]}/_loggate"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ loggate completion fish | source

  # To load completions for each session, execute once:
  $ loggate completion fish > ~/.config/fish/completions/loggate.fish

PowerShell:
  PS> loggate completion powershell | Out-String | Invoke-Expression

  # To load completions for every new session, run:
  PS> loggate completion powershell > loggate.ps1
  # and source this file from your PowerShell profile.
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return rootCmd.GenBashCompletionV2(os.Stdout, true)
			case "zsh":
				return rootCmd.GenZshCompletion(os.Stdout)
			case "fish":
				return rootCmd.GenFishCompletion(os.Stdout, true)
			case "powershell":
				return rootCmd.GenPowerShellCompletionWithDesc(os.Stdout)
			default:
				return fmt.Errorf("unknown shell: %s", args[0])
			}
		},
	}

	return cmd
}

// completeLevels returns the log severity values for completion.
func completeLevels(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return []string{"debug", "info", "warning", "error", "critical"}, cobra.ShellCompDirectiveNoFileComp
}

// completeServiceNames returns the configured service names for completion.
func completeServiceNames(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return cfg.ServiceOrder, cobra.ShellCompDirectiveNoFileComp
}
