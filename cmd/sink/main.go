package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"PharmacyScanner/internal/database"
	"PharmacyScanner/internal/server"
	"PharmacyScanner/utils"
)

var (
	addr     string
	dbPath   string
	logLevel string
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "sink",
		Short:        "Reference availability sink backed by SQLite",
		Args:         cobra.NoArgs,
		RunE:         run,
		SilenceUsage: true,
	}

	rootCmd.Flags().StringVarP(&addr, "addr", "a", ":8080", "Listen address")
	rootCmd.Flags().StringVar(&dbPath, "db", "availability.db", "SQLite database file")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(_ *cobra.Command, _ []string) error {
	logger := utils.NewLogger(os.Stderr, logLevel, "json")

	repo, err := database.Open(dbPath)
	if err != nil {
		return err
	}
	defer repo.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return server.New(repo, logger).ListenAndServe(ctx, addr)
}
