package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"PharmacyScanner/internal/app"
	"PharmacyScanner/pkg/config"
	"PharmacyScanner/utils"
)

var version = "dev"

var (
	configPath  string
	once        bool
	profilesDir string
	logLevel    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "scanner",
		Short:   "Scan pharmacy sites and forward availability changes",
		Version: version,
		Long: `scanner drives a headless browser through each site profile, extracts
product rows, and forwards only observations that changed since the last pass.`,
		Example: `  # Run continuously with config.yml
  scanner --config config.yml

  # Single pass with debug logs
  scanner --once --log-level debug`,
		Args:         cobra.NoArgs,
		RunE:         run,
		SilenceUsage: true,
	}

	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config.yml", "Path to the YAML config file")
	rootCmd.Flags().BoolVar(&once, "once", false, "Run a single pass and exit")
	rootCmd.Flags().StringVarP(&profilesDir, "profiles", "p", "", "Directory of site profile JSON files (overrides config)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("once") {
		cfg.Scanner.RunOnce = once
	}
	if profilesDir != "" {
		cfg.Scanner.ProfilesDir = profilesDir
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	logger := utils.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if len(cfg.Scanner.Products) == 0 {
		return fmt.Errorf("no products configured in %s", configPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application := app.New(cfg, logger)
	defer application.Close()

	logger.Info("scanner: starting", "version", version, "profiles", cfg.Scanner.ProfilesDir, "sink", cfg.Sink.BaseURL)
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("scanner: stopped")
	return nil
}
