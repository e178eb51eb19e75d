package app

import (
	"context"
	"log/slog"

	"PharmacyScanner/internal/delivery"
	"PharmacyScanner/internal/detector"
	"PharmacyScanner/internal/journal"
	"PharmacyScanner/internal/profiles"
	"PharmacyScanner/internal/scraper"
	"PharmacyScanner/internal/scraper/browser"
	"PharmacyScanner/pkg/config"
)

// App is the scanner process: configuration plus every wired dependency.
type App struct {
	Config *config.Config
	Worker *Worker

	browser *browser.Launcher
	logger  *slog.Logger
}

// New wires the scanner from cfg. Chrome is not started until the first scan.
func New(cfg *config.Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}

	launcher := browser.NewLauncher(browser.Config{
		Headless:  cfg.Browser.Headless,
		RemoteURL: cfg.Browser.RemoteURL,
		Proxy:     cfg.Browser.Proxy,
		Logger:    logger,
	})
	interpreter := scraper.NewInterpreter(launcher, scraper.WithLogger(logger))

	var sink Deliverer
	if cfg.Sink.BaseURL != "" {
		sink = delivery.NewClient(cfg.Sink.BaseURL, cfg.SinkTimeout(), logger).
			WithBasicAuth(cfg.Sink.Username, cfg.Sink.Password)
	} else {
		logger.Warn("app: sink.base_url is empty, changes are only journaled")
	}

	worker := NewWorker(
		WorkerConfig{
			Products:     cfg.Scanner.Products,
			PollInterval: cfg.PollInterval(),
			RunOnce:      cfg.Scanner.RunOnce,
			Workers:      cfg.Scanner.Workers,
			MaxRetries:   cfg.Scanner.MaxRetries,
			RetryDelay:   cfg.RetryDelay(),
			Logger:       logger,
		},
		profiles.NewStore(cfg.Scanner.ProfilesDir, logger),
		interpreter,
		detector.NewStore(),
		journal.New(cfg.Journal.Path),
		sink,
	)

	return &App{Config: cfg, Worker: worker, browser: launcher, logger: logger}
}

// Run blocks until ctx is cancelled, or after one pass in single-shot mode.
func (a *App) Run(ctx context.Context) error {
	return a.Worker.Run(ctx)
}

// Close shuts Chrome down.
func (a *App) Close() error {
	if err := a.browser.Close(); err != nil {
		a.logger.Warn("app: close browser", "error", err)
		return err
	}
	return nil
}
