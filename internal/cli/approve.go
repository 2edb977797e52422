package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/crypdick/pynchy-gate/internal/approval"
	"github.com/crypdick/pynchy-gate/internal/client"
)

var replyWorkspace string

func init() {
	for _, c := range []*cobra.Command{approveCmd, denyCmd} {
		rootCmd.AddCommand(c)
		c.Flags().StringVarP(&replyWorkspace, "workspace", "w", "", "Workspace the code was issued for (default: looked up from pending approvals)")
		c.Flags().StringVar(&serverAddr, "addr", "", "Gate server address (default from config)")
	}
}

var approveCmd = &cobra.Command{
	Use:   "approve <code>",
	Short: "Approve a pending action",
	Long:  "Sends 'approve <code>' to the gate server as a reply from the code's workspace.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReply(cmd, "approve", args[0])
	},
}

var denyCmd = &cobra.Command{
	Use:   "deny <code>",
	Short: "Deny a pending action",
	Long:  "Sends 'deny <code>' to the gate server as a reply from the code's workspace.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReply(cmd, "deny", args[0])
	},
}

func runReply(cmd *cobra.Command, verb, code string) error {
	code = strings.ToLower(strings.TrimSpace(code))

	c, err := dial()
	if err != nil {
		return err
	}
	defer c.Close()

	ctx := context.Background()
	ws := replyWorkspace
	if ws == "" {
		if ws, err = workspaceOf(ctx, c, code); err != nil {
			return err
		}
	}

	resp, err := c.Reply(ctx, ws, verb+" "+code)
	if err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	if !resp.Handled {
		return fmt.Errorf("no pending approval %q in workspace %s", code, ws)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%s)\n", code, resp.Status, resp.Reason)
	return nil
}

func workspaceOf(ctx context.Context, c *client.Client, code string) (string, error) {
	pending, err := c.ListPending(ctx)
	if err != nil {
		return "", fmt.Errorf("list pending approvals: %w", err)
	}
	if a, ok := findApproval(pending, code); ok {
		return a.WorkspaceID, nil
	}
	return "", fmt.Errorf("no pending approval %q", code)
}

func findApproval(list []approval.Approval, code string) (approval.Approval, bool) {
	for _, a := range list {
		if a.Code == code {
			return a, true
		}
	}
	return approval.Approval{}, false
}
