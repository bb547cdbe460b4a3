package cmd

import (
	"context"

	"github.com/ethpandaops/crashpull/pkg/acquire"
	"github.com/ethpandaops/crashpull/pkg/dataset"
	"github.com/ethpandaops/crashpull/pkg/engine"
	"github.com/ethpandaops/crashpull/pkg/probe"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Command flags need to be global for cobra
var (
	pullStart   string
	pullEnd     string
	pullPreview int
	pullFormat  string
	pullOffline bool
)

// pullCmd acquires a dataset and prints its summary
//
//nolint:gochecknoglobals // Cobra commands are typically global
var pullCmd = &cobra.Command{
	Use:   "pull [source]",
	Short: "Acquire the collisions dataset and print a summary",
	Long: `Acquire the collisions dataset and print a summary.

The source defaults to nyc, which serves a fresh cache and otherwise refreshes from the
remote, falling back to a stale cache when offline. Other sources:

  nyc:latest   same as nyc
  nyc:cached   cache only, never touches the network
  nyc:update   refresh even when the cache is fresh
  sample       bundled sample rows
  http(s)://, s3://   an explicit remote file (not cached)
  anything else       a local CSV file

Examples:
  crashpull pull
  crashpull pull nyc:cached --start 2024-01-01 --end 2024-03-31
  crashpull pull ./crashes.csv --preview 10 --format json
  crashpull pull --offline`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPull,
}

func init() {
	rootCmd.AddCommand(pullCmd)

	pullCmd.Flags().StringVar(&pullStart, "start", "", "first crash day to keep (YYYY-MM-DD)")
	pullCmd.Flags().StringVar(&pullEnd, "end", "", "last crash day to keep (YYYY-MM-DD)")
	pullCmd.Flags().IntVar(&pullPreview, "preview", -1, "number of records to preview (default from config)")
	pullCmd.Flags().StringVar(&pullFormat, "format", FormatText, "output format (text, json)")
	pullCmd.Flags().BoolVar(&pullOffline, "offline", false, "treat the network as unreachable")
}

func runPull(cmd *cobra.Command, args []string) error {
	// Silence usage on error
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	if err := validateFormat(pullFormat); err != nil {
		return err
	}

	source := acquire.ShortcutNYC
	if len(args) == 1 {
		source = args[0]
	}

	dr, err := dataset.ParseDateRange(pullStart, pullEnd)
	if err != nil {
		return err
	}

	cfg, err := LoadConfig(cfgFile)
	if err != nil {
		return err
	}

	levelFromConfig(cmd, cfg.Logging)

	if pullOffline {
		cfg.Probe.Mode = probe.ModeOffline
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	svc, err := engine.NewService(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := svc.Close(); closeErr != nil {
			logger.WithError(closeErr).Warn("Failed to close engine")
		}
	}()

	_, summary, err := svc.LoadAndPreview(ctx, source, pullPreview, dr)
	if err != nil {
		return err
	}

	return render(cmd.OutOrStdout(), pullFormat, summaryTmpl, summary)
}
