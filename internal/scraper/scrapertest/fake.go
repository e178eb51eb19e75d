// Package scrapertest provides an in-memory scraper.Session for tests.
package scrapertest

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"PharmacyScanner/internal/models"
	"PharmacyScanner/internal/scraper"
)

// Session is a scripted scraper.Session. Selectors listed in Present exist;
// any other selector times out with scraper.ErrSelectorNotFound. Responses
// lists URLs the fake network has already delivered.
type Session struct {
	mu sync.Mutex

	Page       string
	Present    map[string]bool
	Attributes map[string]string // "selector@attr" -> value
	Responses  []string
	// Errors forces a method ("navigate", "fill", ...) to fail.
	Errors map[string]error
	// Block makes waits block until ctx is done.
	Block bool

	Calls  []string
	Closed int
	cursor int
}

// NewSession returns a session serving page, where every selector in
// present exists.
func NewSession(page string, present ...string) *Session {
	s := &Session{Page: page, Present: map[string]bool{}, Attributes: map[string]string{}, Errors: map[string]error{}}
	for _, sel := range present {
		s.Present[sel] = true
	}
	return s
}

func (s *Session) record(call string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, call)
	for method, err := range s.Errors {
		if len(call) >= len(method) && call[:len(method)] == method {
			return err
		}
	}
	return nil
}

func (s *Session) lookup(ctx context.Context, selector string) error {
	s.mu.Lock()
	ok := s.Present[selector]
	s.mu.Unlock()
	if ok {
		return nil
	}
	if s.Block {
		<-ctx.Done()
		return ctx.Err()
	}
	return fmt.Errorf("%w: %s", scraper.ErrSelectorNotFound, selector)
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.record("navigate " + url); err != nil {
		return err
	}
	return ctx.Err()
}

func (s *Session) Fill(ctx context.Context, selector, value string, clearFirst bool) error {
	call := fmt.Sprintf("fill %s=%s", selector, value)
	if clearFirst {
		call += " (clear)"
	}
	if err := s.record(call); err != nil {
		return err
	}
	return s.lookup(ctx, selector)
}

func (s *Session) Click(ctx context.Context, selector string) error {
	if err := s.record("click " + selector); err != nil {
		return err
	}
	return s.lookup(ctx, selector)
}

func (s *Session) WaitSelector(ctx context.Context, selector string, timeout time.Duration) error {
	if err := s.record("waitSelector " + selector); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.lookup(ctx, selector)
}

func (s *Session) WaitResponse(ctx context.Context, pattern *regexp.Regexp, timeout time.Duration) error {
	if err := s.record("waitResponse " + pattern.String()); err != nil {
		return err
	}
	s.mu.Lock()
	for i := s.cursor; i < len(s.Responses); i++ {
		if pattern.MatchString(s.Responses[i]) {
			s.cursor = i + 1
			s.mu.Unlock()
			return nil
		}
	}
	s.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%w: %s", scraper.ErrNetworkWaitTimeout, pattern)
	}
}

func (s *Session) Attribute(ctx context.Context, selector, name string) (string, error) {
	if err := s.record("attribute " + selector + "@" + name); err != nil {
		return "", err
	}
	if err := s.lookup(ctx, selector); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Attributes[selector+"@"+name], nil
}

func (s *Session) HTML(ctx context.Context) (string, error) {
	if err := s.record("html"); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Page, nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed++
	return nil
}

// SetPage swaps the served document.
func (s *Session) SetPage(page string) {
	s.mu.Lock()
	s.Page = page
	s.mu.Unlock()
}

// Factory hands out sessions built by New and remembers them.
type Factory struct {
	mu       sync.Mutex
	New      func(profile models.SiteProfile) (*Session, error)
	Sessions []*Session
}

// Open implements scraper.SessionFactory.
func (f *Factory) Open(ctx context.Context, profile models.SiteProfile) (scraper.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, err := f.New(profile)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.Sessions = append(f.Sessions, s)
	f.mu.Unlock()
	return s, nil
}

// Opened returns how many sessions were opened.
func (f *Factory) Opened() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Sessions)
}

// AllClosed reports whether every opened session was closed at least once.
func (f *Factory) AllClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.Sessions {
		s.mu.Lock()
		closed := s.Closed
		s.mu.Unlock()
		if closed == 0 {
			return false
		}
	}
	return true
}
