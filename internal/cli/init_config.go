package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crypdick/pynchy-gate/internal/config"
)

var initForce bool

func init() {
	rootCmd.AddCommand(initConfigCmd)
	initConfigCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
}

var initConfigCmd = &cobra.Command{
	Use:   "init-config",
	Short: "Write a commented default config file",
	Long:  "Writes the default gate config to --config (default ~/.pynchy/gate.yaml).",
	RunE:  runInitConfig,
}

func runInitConfig(cmd *cobra.Command, args []string) error {
	path := resolvedConfigPath()
	if err := config.WriteDefault(path, initForce); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Wrote %s\n\n", path)
	fmt.Fprintln(out, "Check it:")
	fmt.Fprintln(out, "  pynchy-gate trust list")
	fmt.Fprintln(out, "Start the gate:")
	fmt.Fprintln(out, "  pynchy-gate serve")
	return nil
}
