package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/deechat/mcp-core/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Connect every enabled server and block until interrupted",
	Long: `serve loads the config registry, connects every enabled server (retrying
per its own policy), and then blocks, logging lifecycle events, until SIGINT/SIGTERM.`,
	RunE: serveCmdFunc,
}

func serveCmdFunc(cmd *cobra.Command, _ []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	unsubscribe := rt.logEvents()
	defer unsubscribe()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rt.orchestrator.Initialize(ctx); err != nil {
		return err
	}
	logger.Infof("mcpcored serving %d configured server(s), press ctrl-c to stop", len(rt.registry.List("")))

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	rt.orchestrator.Shutdown(shutdownCtx)
	return nil
}
