package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	cancel()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "pi-monitor",
		Short:        "Metrics, health and alerting for pi-builder processes",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (defaults and PI_MONITOR_* env only when empty)")

	root.AddCommand(
		newRunCmd(&configPath),
		newReportCmd(&configPath),
		newExportCmd(&configPath),
	)
	return root
}
