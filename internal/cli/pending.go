package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var pendingFormat string

func init() {
	rootCmd.AddCommand(pendingCmd)
	pendingCmd.Flags().StringVarP(&pendingFormat, "format", "f", "text", "Output format (text|json)")
	pendingCmd.Flags().StringVar(&serverAddr, "addr", "", "Gate server address (default from config)")
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List approvals waiting for a human",
	RunE:  runPending,
}

func runPending(cmd *cobra.Command, args []string) error {
	c, err := dial()
	if err != nil {
		return err
	}
	defer c.Close()

	list, err := c.ListPending(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list approvals: %w", err)
	}

	out := cmd.OutOrStdout()
	if pendingFormat == "json" {
		return writeJSON(out, list)
	}
	if len(list) == 0 {
		fmt.Fprintln(out, "No pending approvals.")
		return nil
	}

	now := time.Now()
	fmt.Fprintf(out, "%-8s %-16s %-20s %-10s %s\n", "CODE", "WORKSPACE", "CAPABILITY", "EXPIRES", "SUMMARY")
	for _, a := range list {
		fmt.Fprintf(out, "%-8s %-16s %-20s %-10s %s\n",
			a.Code,
			truncate(a.WorkspaceID, 16),
			truncate(a.Capability, 20),
			a.ExpiresAt.Sub(now).Round(time.Second),
			truncate(a.Summary, 60),
		)
	}
	return nil
}
