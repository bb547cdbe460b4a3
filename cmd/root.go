// Package cmd contains the CLI commands for crashpull
package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Global vars needed for cobra CLI
var (
	cfgFile string
	logger  *logrus.Logger
)

// rootCmd represents the base command
//
//nolint:gochecknoglobals // Cobra commands are typically global
var rootCmd = &cobra.Command{
	Use:   "crashpull",
	Short: "Cached, offline-tolerant acquisition of the NYC motor vehicle collisions dataset",
	Long: `crashpull downloads the NYC Open Data motor vehicle collisions CSV, keeps a local
cache with provenance metadata and serves the cache when the network is unavailable.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error, fatal, panic)")

	// Initialize logger
	logger = logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

func initConfig() {
	// godotenv never overrides variables that are already set
	_ = godotenv.Load()

	if cfgFile == "" {
		cfgFile = "./config.yaml"
	}

	applyLogLevel(rootCmd.PersistentFlags().Lookup("log-level").Value.String())
}

// applyLogLevel sets the logger level, keeping the current level for an invalid name
func applyLogLevel(name string) {
	level, err := logrus.ParseLevel(name)
	if err != nil {
		logger.WithError(err).Warn("Invalid log level, keeping current level")
		return
	}

	logger.SetLevel(level)
}

// levelFromConfig applies the config file's logging level unless --log-level was given
func levelFromConfig(cmd *cobra.Command, configured string) {
	if cmd.Flags().Changed("log-level") || configured == "" {
		return
	}

	applyLogLevel(configured)
}
