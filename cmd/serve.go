package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/ethpandaops/crashpull/pkg/engine"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra commands are typically global
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, metrics and the background cache refresh",
	Long: `Run crashpull as a long-lived service: the JSON API over dataset summaries and cache
status, the Prometheus metrics server and, when enabled, the scheduled cache refresh.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	// Silence usage on error
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	cfg, err := LoadConfig(cfgFile)
	if err != nil {
		return err
	}

	levelFromConfig(cmd, cfg.Logging)

	logger.WithField("config", cfgFile).Info("Configuration loaded")

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := engine.NewService(ctx, logger, cfg)
	if err != nil {
		return err
	}

	return svc.Run(ctx)
}
