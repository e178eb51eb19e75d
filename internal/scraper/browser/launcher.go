// Package browser drives headless Chrome through rod and implements
// scraper.Session on top of it.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"PharmacyScanner/internal/models"
	"PharmacyScanner/internal/scraper"
)

// Config configures the Chrome launcher.
type Config struct {
	Headless bool
	// RemoteURL is the DevTools WebSocket of an external Chrome. Empty
	// launches a local one.
	RemoteURL string
	Proxy     string
	// StableFor is how long a single-page app must stay quiet after load.
	StableFor time.Duration
	Logger    *slog.Logger
}

func (c *Config) defaults() {
	if c.StableFor <= 0 {
		c.StableFor = time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Launcher owns one Chrome process and opens an isolated incognito session
// per scan. Chrome is started on first use.
type Launcher struct {
	cfg Config

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	closed  bool
}

var _ scraper.SessionFactory = (*Launcher)(nil)

// NewLauncher creates a Launcher. Nothing is started until Open.
func NewLauncher(cfg Config) *Launcher {
	cfg.defaults()
	return &Launcher{cfg: cfg}
}

func (l *Launcher) connect() (*rod.Browser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, errors.New("browser: launcher is closed")
	}
	if l.browser != nil {
		return l.browser, nil
	}

	wsURL := l.cfg.RemoteURL
	if wsURL == "" {
		ln := launcher.New().Headless(l.cfg.Headless)
		if l.cfg.Proxy != "" {
			ln = ln.Proxy(l.cfg.Proxy)
		}
		ln = ln.Set("disable-blink-features", "AutomationControlled")

		u, err := ln.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		l.lnch = ln
		l.cfg.Logger.Info("browser: launched local chrome", "headless", l.cfg.Headless)
	} else {
		l.cfg.Logger.Info("browser: connecting to remote", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		if l.lnch != nil {
			l.lnch.Cleanup()
			l.lnch = nil
		}
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	l.browser = b
	return b, nil
}

// Open starts a fresh incognito page configured for profile.
func (l *Launcher) Open(ctx context.Context, profile models.SiteProfile) (scraper.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := l.connect()
	if err != nil {
		return nil, err
	}

	inc, err := b.Incognito()
	if err != nil {
		return nil, fmt.Errorf("browser: incognito context: %w", err)
	}
	page, err := stealth.Page(inc)
	if err != nil {
		_ = inc.Close()
		return nil, fmt.Errorf("browser: stealth page: %w", err)
	}

	s := &Session{
		profile:   profile,
		incognito: inc,
		page:      page,
		responses: newResponseLog(),
		stableFor: l.cfg.StableFor,
		logger:    l.cfg.Logger.With("site", profile.ID),
	}

	if err := s.setup(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Close shuts Chrome down. Sessions still open become unusable.
func (l *Launcher) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closed = true
	var err error
	if l.browser != nil {
		err = l.browser.Close()
		l.browser = nil
	}
	if l.lnch != nil {
		l.lnch.Cleanup()
		l.lnch = nil
	}
	return err
}

func grantGeolocation(inc *rod.Browser, page *rod.Page, g models.Geolocation) error {
	err := proto.BrowserGrantPermissions{
		Permissions:      []proto.BrowserPermissionType{proto.BrowserPermissionTypeGeolocation},
		BrowserContextID: inc.BrowserContextID,
	}.Call(inc)
	if err != nil {
		return fmt.Errorf("grant geolocation: %w", err)
	}

	lat, lon, acc := g.Latitude, g.Longitude, g.Accuracy
	if acc <= 0 {
		acc = 100
	}
	err = proto.EmulationSetGeolocationOverride{
		Latitude:  &lat,
		Longitude: &lon,
		Accuracy:  &acc,
	}.Call(page)
	if err != nil {
		return fmt.Errorf("override geolocation: %w", err)
	}
	return nil
}
