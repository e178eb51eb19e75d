package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"PharmacyScanner/internal/detector"
	"PharmacyScanner/internal/extractor"
	"PharmacyScanner/internal/models"
	"PharmacyScanner/internal/scraper"
	"PharmacyScanner/utils"
)

// ProfileSource yields the site profiles for a pass.
type ProfileSource interface {
	Reload() ([]models.SiteProfile, error)
}

// Navigator runs a profile's navigation flow for one query.
type Navigator interface {
	Run(ctx context.Context, profile models.SiteProfile, query string) (*scraper.Outcome, error)
}

// Recorder persists forwarded payloads before delivery.
type Recorder interface {
	Append(payload models.AvailabilityPayload) (string, error)
}

// Deliverer sends a payload downstream.
type Deliverer interface {
	Deliver(ctx context.Context, payload models.AvailabilityPayload) error
}

// WorkerConfig holds the scan loop settings.
type WorkerConfig struct {
	Products     []models.Product
	PollInterval time.Duration
	RunOnce      bool
	// Workers is the site-lane setting: "1", a number, or "auto".
	Workers string
	// MaxRetries bounds extra navigation attempts after a transient failure.
	MaxRetries int
	RetryDelay time.Duration
	Logger     *slog.Logger
}

const defaultRetryDelay = time.Second

// Stats summarizes one pass.
type Stats struct {
	Scanned    int64
	Changed    int64
	Suppressed int64
	Failed     int64
	Delivered  int64
	Retried    int64
}

type passStats struct {
	scanned, changed, suppressed, failed, delivered, retried atomic.Int64
}

func (s *passStats) snapshot() Stats {
	return Stats{
		Scanned:    s.scanned.Load(),
		Changed:    s.changed.Load(),
		Suppressed: s.suppressed.Load(),
		Failed:     s.failed.Load(),
		Delivered:  s.delivered.Load(),
		Retried:    s.retried.Load(),
	}
}

// Worker scans every (site, product) pair, forwards changed observations
// and sleeps between passes.
type Worker struct {
	cfg       WorkerConfig
	profiles  ProfileSource
	navigator Navigator
	changes   *detector.Store
	journal   Recorder
	sink      Deliverer
	logger    *slog.Logger
	now       func() time.Time
}

// NewWorker wires a Worker. changes may be shared between workers.
func NewWorker(cfg WorkerConfig, profiles ProfileSource, navigator Navigator, changes *detector.Store, journal Recorder, sink Deliverer) *Worker {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if changes == nil {
		changes = detector.NewStore()
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	return &Worker{
		cfg:       cfg,
		profiles:  profiles,
		navigator: navigator,
		changes:   changes,
		journal:   journal,
		sink:      sink,
		logger:    cfg.Logger,
		now:       time.Now,
	}
}

// Run loops passes until ctx is cancelled. In single-shot mode it returns
// after the first pass without waiting.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker: started", "products", len(w.cfg.Products), "interval", w.cfg.PollInterval, "once", w.cfg.RunOnce)
	for {
		if _, err := w.RunPass(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error("worker: pass failed", "error", err)
		}
		if err := ctx.Err(); err != nil {
			w.logger.Info("worker: stopped")
			return err
		}
		if w.cfg.RunOnce {
			return nil
		}
		if err := wait(ctx, w.cfg.PollInterval); err != nil {
			w.logger.Info("worker: stopped")
			return err
		}
	}
}

// RunPass scans every site once, in load order. Sites are visited by
// parallel lanes when more than one worker is configured; each site is
// still scanned sequentially.
func (w *Worker) RunPass(ctx context.Context) (Stats, error) {
	var stats passStats
	start := w.now()
	log := w.logger.With("pass", uuid.NewString()[:8])

	sites, err := w.profiles.Reload()
	if err != nil && len(sites) == 0 {
		return stats.snapshot(), fmt.Errorf("load profiles: %w", err)
	}

	lanes := utils.GetOptimalWorkerCount(w.cfg.Workers, len(sites), w.logger)
	log.Info("worker: pass started", "sites", len(sites), "lanes", lanes)
	if lanes <= 1 {
		for i, site := range sites {
			if ctx.Err() != nil {
				break
			}
			w.scanSite(ctx, site, &stats)
			if i < len(sites)-1 {
				if err := wait(ctx, site.MinDelay()); err != nil {
					break
				}
			}
		}
	} else {
		w.runLanes(ctx, sites, lanes, &stats)
	}

	s := stats.snapshot()
	log.Info("worker: pass finished",
		"sites", len(sites),
		"scanned", s.Scanned,
		"changed", s.Changed,
		"suppressed", s.Suppressed,
		"failed", s.Failed,
		"delivered", s.Delivered,
		"retried", s.Retried,
		"elapsed", w.now().Sub(start),
	)
	return s, ctx.Err()
}

func (w *Worker) runLanes(ctx context.Context, sites []models.SiteProfile, lanes int, stats *passStats) {
	jobs := make(chan models.SiteProfile)
	var wg sync.WaitGroup
	for lane := 1; lane <= lanes; lane++ {
		wg.Add(1)
		go func(lane int) {
			defer wg.Done()
			for site := range jobs {
				w.logger.Debug("worker: lane picked site", "lane", lane, "site", site.ID)
				w.scanSite(ctx, site, stats)
				if err := wait(ctx, site.MinDelay()); err != nil {
					return
				}
			}
		}(lane)
	}

dispatch:
	for _, site := range sites {
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- site:
		}
	}
	close(jobs)
	wg.Wait()
}

func (w *Worker) scanSite(ctx context.Context, site models.SiteProfile, stats *passStats) {
	for _, product := range w.cfg.Products {
		if ctx.Err() != nil {
			return
		}
		w.scanUnit(ctx, site, product, stats)
	}
}

// scanUnit scans one (site, product) pair. Nothing escapes it: errors are
// turned into observations and panics are logged.
func (w *Worker) scanUnit(ctx context.Context, site models.SiteProfile, product models.Product, stats *passStats) {
	defer func() {
		if r := recover(); r != nil {
			stats.failed.Add(1)
			w.logger.Error("worker: scan panicked", "site", site.ID, "product", product.ID, "panic", r, "stack", string(debug.Stack()))
		}
	}()

	stats.scanned.Add(1)
	result, ok := w.scan(ctx, site, product, stats)
	if !ok {
		return
	}
	if result.Status == models.StatusError {
		stats.failed.Add(1)
	}

	for _, obs := range observe(site.ID, product, result) {
		if ctx.Err() != nil {
			return
		}
		w.forward(ctx, obs, stats)
	}
}

func (w *Worker) scan(ctx context.Context, site models.SiteProfile, product models.Product, stats *passStats) (models.ScanResult, bool) {
	log := w.logger.With("site", site.ID, "product", product.ID)
	log.Info("worker: scanning", "query", product.Query)

	outcome, err := w.navigate(ctx, log, site, product, stats)
	if err != nil {
		if ctx.Err() != nil {
			return models.ScanResult{}, false
		}
		log.Warn("worker: navigation failed", "error", err)
		return models.ScanResult{
			Status: models.StatusError,
			Raw:    models.SingleResult{Fields: map[string]string{}},
			Err:    err,
		}, true
	}
	defer func() {
		if cerr := outcome.Close(); cerr != nil {
			log.Debug("worker: close session", "error", cerr)
		}
	}()

	result := extractor.FromSession(ctx, outcome.Session, site.Extraction)
	result.Captures = outcome.Captures
	if fields := result.Fields(); fields != nil && result.Err == nil {
		result.Price = utils.ParsePrice(fields[models.FieldPrice])
	}
	if result.Err != nil {
		if ctx.Err() != nil {
			return models.ScanResult{}, false
		}
		log.Warn("worker: extraction failed", "error", result.Err)
	} else {
		log.Debug("worker: extracted", "rows", len(result.Rows()))
	}
	return result, true
}

// navigate runs the navigation flow, retrying transient failures up to
// MaxRetries times with a pause between attempts.
func (w *Worker) navigate(ctx context.Context, log *slog.Logger, site models.SiteProfile, product models.Product, stats *passStats) (*scraper.Outcome, error) {
	for attempt := 1; ; attempt++ {
		outcome, err := w.navigator.Run(ctx, site, product.Query)
		if err == nil {
			return outcome, nil
		}
		if attempt > w.cfg.MaxRetries || !retryable(err) || ctx.Err() != nil {
			return nil, err
		}
		log.Warn("worker: navigation attempt failed, retrying", "attempt", attempt, "error", err)
		stats.retried.Add(1)
		if werr := wait(ctx, w.cfg.RetryDelay); werr != nil {
			return nil, err
		}
	}
}

// retryable reports whether a navigation failure may go away on its own.
// A missing selector usually means the profile no longer fits the site.
func retryable(err error) bool {
	return errors.Is(err, scraper.ErrNavigationTimeout) ||
		errors.Is(err, scraper.ErrNetworkWaitTimeout) ||
		errors.Is(err, scraper.ErrSession)
}

func (w *Worker) forward(ctx context.Context, obs observation, stats *passStats) {
	log := w.logger.With("key", obs.key, "status", obs.status)

	digest := detector.ComputeHash(obs.status, obs.price, obs.details)
	if !w.changes.IsChangedAndUpdate(obs.key, digest) {
		stats.suppressed.Add(1)
		log.Debug("worker: unchanged, suppressed")
		return
	}
	stats.changed.Add(1)
	log.Info("worker: change detected", "digest", digest[:12])

	payload := models.NewAvailabilityPayload(obs.siteID, obs.productID, obs.status, obs.price, obs.details, w.now())

	if w.journal != nil {
		if id, err := w.journal.Append(payload); err != nil {
			log.Warn("worker: journal append failed", "error", err)
		} else {
			log.Debug("worker: journaled", "deliveryId", id)
		}
	}

	if w.sink == nil {
		return
	}
	if err := w.sink.Deliver(ctx, payload); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		log.Warn("worker: delivery failed", "error", err)
		return
	}
	stats.delivered.Add(1)
	log.Info("worker: delivered")
}

// wait sleeps for d or until ctx is done.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
