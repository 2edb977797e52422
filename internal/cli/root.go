package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/crypdick/pynchy-gate/internal/logging"
)

var (
	configPath string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "pynchy-gate",
	Short: "Trust policy and taint-tracking gate for agent actions",
	Long: "Decides whether an agent action may proceed based on each service's declared trust\n" +
		"properties and what the agent's session has already read. Risky writes go to a\n" +
		"content reviewer or a human approver; every decision is audited.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Configure(logLevel, logFormat, os.Stderr)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to gate config (default ~/.pynchy/gate.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text|json)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
