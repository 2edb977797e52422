package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/crypdick/pynchy-gate/internal/logging"
	"github.com/crypdick/pynchy-gate/internal/server"
)

var (
	serveListen   string
	serveNoReload bool
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "gRPC listen address (default from config, 127.0.0.1:7433)")
	serveCmd.Flags().BoolVar(&serveNoReload, "no-reload", false, "Disable hot reload of the config file")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gRPC gate server",
	Long: "Runs the gate as a gRPC service. Agents evaluate actions against it and humans\n" +
		"answer approval prompts through the configured channels or 'pynchy-gate approve'.\n" +
		"Trust declarations, secret workspaces and rate limits are reloaded when the\n" +
		"config file changes.",
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logging.Component("serve")

	st, err := buildStack(configPath)
	if err != nil {
		return err
	}
	defer st.Close()

	listen := serveListen
	if listen == "" {
		listen = st.cfg.Server.Listen
	}
	srv := server.New(st.engine, server.Config{Listen: listen, ConfigPath: configPath}, logging.Component("server"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st.recoverApprovals(ctx)

	g, gctx := errgroup.WithContext(ctx)
	if err := st.start(gctx, g); err != nil {
		return err
	}

	if !serveNoReload {
		reloader, err := server.NewReloader(resolvedConfigPath(), srv.Reload, logging.Component("reload"))
		if err != nil {
			log.WithError(err).Warn("hot reload disabled")
		} else {
			g.Go(func() error { return reloader.Run(gctx) })
		}
	}

	g.Go(srv.Serve)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		srv.GracefulStop()
		return nil
	})

	log.WithFields(logging.Fields{
		"listen":      listen,
		"config_hash": st.hash,
		"audit":       auditPath(st.cfg),
	}).Info("gate server listening")

	return g.Wait()
}
