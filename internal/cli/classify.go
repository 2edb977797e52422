package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/crypdick/pynchy-gate/internal/bashgate"
	"github.com/crypdick/pynchy-gate/internal/config"
)

var (
	classifyRemote bool
	classifyFormat string
)

func init() {
	rootCmd.AddCommand(classifyCmd)
	classifyCmd.Flags().BoolVar(&classifyRemote, "remote", false, "Classify on a running server")
	classifyCmd.Flags().StringVarP(&classifyFormat, "format", "f", "text", "Output format (text|json)")
	classifyCmd.Flags().StringVar(&serverAddr, "addr", "", "Gate server address (default from config)")
}

var classifyCmd = &cobra.Command{
	Use:   "classify <command>...",
	Short: "Classify a shell command as local-safe, network-capable or unknown",
	Long: "Splits the command into segments and classifies each one with the configured\n" +
		"extra_safe and extra_network lists. The worst segment wins.",
	Args: cobra.MinimumNArgs(1),
	RunE: runClassify,
}

func runClassify(cmd *cobra.Command, args []string) error {
	command := strings.Join(args, " ")

	var res bashgate.Result
	if classifyRemote {
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()
		if res, err = c.Classify(context.Background(), command); err != nil {
			return err
		}
	} else {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		res = bashgate.New(bashgate.Options{
			ExtraSafe:    cfg.Shell.ExtraSafe,
			ExtraNetwork: cfg.Shell.ExtraNetwork,
		}).Classify(command)
	}

	out := cmd.OutOrStdout()
	if classifyFormat == "json" {
		return writeJSON(out, res)
	}
	fmt.Fprintf(out, "%s: %s\n", res.Class, res.Reason)
	if len(res.Segments) > 1 {
		for _, s := range res.Segments {
			fmt.Fprintf(out, "  %-16s %s\n", s.Class, s.Text)
		}
	}
	return nil
}
