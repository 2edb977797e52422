package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crypdick/pynchy-gate/internal/scenario"
)

var (
	checkScenario string
	checkFormat   string
)

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&checkScenario, "scenario", "", "Glob pattern for scenario YAML files (required)")
	checkCmd.Flags().StringVarP(&checkFormat, "format", "f", "text", "Output format (text|json)")
	_ = checkCmd.MarkFlagRequired("scenario")
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Assert gate decisions from scenario files",
	Long: "Loads scenario YAML files matching a glob pattern, runs each file's steps in one\n" +
		"fresh session through the gate, taint tracker and command classifier, and reports\n" +
		"pass/fail per step. No reviewer or human is consulted.\n\n" +
		"Exit code 0 if all steps pass, 1 if any fail.",
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	results, err := scenario.LoadAndRunGlob(checkScenario, configPath)
	if err != nil {
		return err
	}

	switch checkFormat {
	case "json":
		out, err := scenario.FormatJSON(results)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
	default:
		fmt.Fprint(cmd.OutOrStdout(), scenario.FormatText(results))
	}

	if scenario.AnyFailed(results) {
		os.Exit(1)
	}
	return nil
}
