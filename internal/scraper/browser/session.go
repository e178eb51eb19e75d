package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"PharmacyScanner/internal/models"
	"PharmacyScanner/internal/scraper"
)

// Session is one incognito Chrome tab.
type Session struct {
	profile   models.SiteProfile
	incognito *rod.Browser
	page      *rod.Page
	router    *rod.HijackRouter
	responses *responseLog
	stableFor time.Duration
	logger    *slog.Logger

	stopEvents context.CancelFunc
	closeOnce  sync.Once
	closeErr   error
}

var _ scraper.Session = (*Session)(nil)

func (s *Session) setup() error {
	if g := s.profile.Geolocation; g != nil {
		if err := grantGeolocation(s.incognito, s.page, *g); err != nil {
			return fmt.Errorf("browser: %w", err)
		}
	}

	if s.profile.Network != nil && len(s.profile.Network.BlockResources) > 0 {
		router, err := blockResources(s.page, s.profile.Network.BlockResources)
		if err != nil {
			return fmt.Errorf("browser: resource blocking: %w", err)
		}
		s.router = router
	}

	evCtx, cancel := context.WithCancel(context.Background())
	s.stopEvents = cancel
	wait := s.page.Context(evCtx).EachEvent(func(e *proto.NetworkResponseReceived) {
		if e.Response != nil {
			s.responses.add(e.Response.URL)
		}
	})
	go wait()
	return nil
}

// Navigate loads url and waits for the load event. Single-page apps also
// wait for the DOM to settle.
func (s *Session) Navigate(ctx context.Context, url string) error {
	p := s.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return navErr(ctx, url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return navErr(ctx, url, err)
	}
	if s.profile.SinglePageApp {
		if err := p.WaitStable(s.stableFor); err != nil {
			return navErr(ctx, url, err)
		}
	}
	return nil
}

func navErr(ctx context.Context, url string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", scraper.ErrNavigationTimeout, url, err)
	}
	return fmt.Errorf("navigate %s: %w", url, err)
}

func (s *Session) element(ctx context.Context, selector string) (*rod.Element, error) {
	el, err := s.page.Context(ctx).Element(selector)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", scraper.ErrSelectorNotFound, selector)
		}
		return nil, err
	}
	return el, nil
}

func (s *Session) Fill(ctx context.Context, selector, value string, clearFirst bool) error {
	el, err := s.element(ctx, selector)
	if err != nil {
		return err
	}
	if clearFirst {
		if err := el.SelectAllText(); err != nil {
			return fmt.Errorf("clear %s: %w", selector, err)
		}
		if err := el.Input(""); err != nil {
			return fmt.Errorf("clear %s: %w", selector, err)
		}
	}
	if err := el.Input(value); err != nil {
		return fmt.Errorf("fill %s: %w", selector, err)
	}
	return nil
}

func (s *Session) Click(ctx context.Context, selector string) error {
	el, err := s.element(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

// WaitSelector blocks until selector matches or timeout elapses.
func (s *Session) WaitSelector(ctx context.Context, selector string, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err := s.element(waitCtx, selector)
	return err
}

// WaitResponse blocks until a response URL matching pattern has been seen
// since the previous matching wait.
func (s *Session) WaitResponse(ctx context.Context, pattern *regexp.Regexp, timeout time.Duration) error {
	err := s.responses.wait(ctx, pattern, timeout)
	if errors.Is(err, scraper.ErrNetworkWaitTimeout) {
		s.logger.Debug("browser: responses seen", "urls", len(s.responses.seen()))
	}
	return err
}

// Attribute returns the attribute value, or "" when it is absent.
func (s *Session) Attribute(ctx context.Context, selector, name string) (string, error) {
	el, err := s.element(ctx, selector)
	if err != nil {
		return "", err
	}
	v, err := el.Attribute(name)
	if err != nil {
		return "", fmt.Errorf("attribute %s@%s: %w", selector, name, err)
	}
	if v == nil {
		return "", nil
	}
	return *v, nil
}

// HTML returns the current document markup.
func (s *Session) HTML(ctx context.Context) (string, error) {
	return s.page.Context(ctx).HTML()
}

// Close releases the tab and its incognito context. Safe to call twice.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if s.stopEvents != nil {
			s.stopEvents()
		}
		if s.router != nil {
			if err := s.router.Stop(); err != nil {
				s.logger.Debug("browser: stop router", "error", err)
			}
		}
		if err := s.page.Close(); err != nil {
			s.closeErr = err
		}
		if err := s.incognito.Close(); err != nil && s.closeErr == nil {
			s.closeErr = err
		}
	})
	return s.closeErr
}
