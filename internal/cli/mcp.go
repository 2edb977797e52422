package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/crypdick/pynchy-gate/internal/logging"
	gatemcp "github.com/crypdick/pynchy-gate/internal/mcp"
)

var (
	mcpWorkspace string
	mcpSession   string
)

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringVar(&mcpWorkspace, "workspace", "default", "Workspace for calls that do not name one")
	mcpCmd.Flags().StringVar(&mcpSession, "session", "", "Session id (default: a new random id)")
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the gate as MCP tools over stdio",
	Long: "Runs an MCP server over stdio exposing gate_evaluate, gate_classify, gate_reply,\n" +
		"gate_pending and gate_taint. The engine runs in-process with the configured\n" +
		"reviewer, human channels and audit store.",
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	st, err := buildStack(configPath)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	if err := st.start(gctx, g); err != nil {
		return err
	}

	srv := gatemcp.New(st.engine, gatemcp.Config{
		WorkspaceID: mcpWorkspace,
		SessionID:   mcpSession,
		Version:     version,
	}, logging.Component("mcp"))

	g.Go(func() error {
		defer stop()
		return srv.Run(gctx)
	})
	return g.Wait()
}
