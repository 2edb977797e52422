package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crypdick/pynchy-gate/internal/config"
)

func init() {
	rootCmd.AddCommand(trustCmd)
	trustCmd.AddCommand(trustResolveCmd, trustListCmd)
}

var trustCmd = &cobra.Command{
	Use:   "trust",
	Short: "Inspect service trust declarations",
}

var trustResolveCmd = &cobra.Command{
	Use:   "resolve <name>",
	Short: "Show the declaration the gate uses for a capability",
	Long:  "Undeclared capabilities resolve to the cautious default: every attribute risky.",
	Args:  cobra.ExactArgs(1),
	RunE:  runTrustResolve,
}

var trustListCmd = &cobra.Command{
	Use:   "list",
	Short: "List declared capabilities",
	RunE:  runTrustList,
}

func runTrustResolve(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	d, declared := cfg.Registry().Lookup(args[0])

	out := cmd.OutOrStdout()
	source := "declared"
	if !declared {
		source = "undeclared, cautious default"
	}
	fmt.Fprintf(out, "%s (%s)\n", args[0], source)
	fmt.Fprintf(out, "  public_source:    %s\n", d.PublicSource)
	fmt.Fprintf(out, "  secret_data:      %s\n", d.SecretData)
	fmt.Fprintf(out, "  public_sink:      %s\n", d.PublicSink)
	fmt.Fprintf(out, "  dangerous_writes: %s\n", d.DangerousWrites)
	if attr := d.FirstForbidden(); attr != "" {
		fmt.Fprintf(out, "  every operation is blocked: %s is forbidden\n", attr)
	}
	return nil
}

func runTrustList(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	reg := cfg.Registry()
	out := cmd.OutOrStdout()
	names := reg.Names()
	if len(names) == 0 {
		fmt.Fprintln(out, "No services declared; every capability resolves to the cautious default.")
		return nil
	}
	fmt.Fprintf(out, "%-24s %-10s %-10s %-10s %s\n", "NAME", "SOURCE", "SECRET", "SINK", "WRITES")
	for _, n := range names {
		d := reg.Resolve(n)
		fmt.Fprintf(out, "%-24s %-10s %-10s %-10s %s\n", n, d.PublicSource, d.SecretData, d.PublicSink, d.DangerousWrites)
	}
	return nil
}
