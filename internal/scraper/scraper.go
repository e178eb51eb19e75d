// Package scraper runs a site profile's navigation flow against a browsing
// session.
package scraper

import (
	"context"
	"regexp"
	"time"

	"PharmacyScanner/internal/models"
)

// Session is one live browsing session. Every blocking method observes ctx
// and returns promptly once it is done.
type Session interface {
	// Navigate loads url and waits for the page load event.
	Navigate(ctx context.Context, url string) error

	// Fill types value into the first element matching selector, clearing
	// its current value first when clearFirst is set.
	Fill(ctx context.Context, selector, value string, clearFirst bool) error

	// Click clicks the first element matching selector.
	Click(ctx context.Context, selector string) error

	// WaitSelector blocks until selector matches or timeout elapses.
	WaitSelector(ctx context.Context, selector string, timeout time.Duration) error

	// WaitResponse blocks until a network response whose URL matches
	// pattern has been observed, or timeout elapses. Responses observed
	// earlier in the session and not yet consumed by a previous wait count.
	WaitResponse(ctx context.Context, pattern *regexp.Regexp, timeout time.Duration) error

	// Attribute reads attribute name of the first element matching selector.
	Attribute(ctx context.Context, selector, name string) (string, error)

	// HTML returns the current document markup.
	HTML(ctx context.Context) (string, error)

	// Close releases the session. It is safe to call more than once.
	Close() error
}

// SessionFactory opens one session per scan, configured for the profile
// (geolocation, resource blocking).
type SessionFactory interface {
	Open(ctx context.Context, profile models.SiteProfile) (Session, error)
}

// SessionFactoryFunc adapts a function to SessionFactory.
type SessionFactoryFunc func(ctx context.Context, profile models.SiteProfile) (Session, error)

func (f SessionFactoryFunc) Open(ctx context.Context, profile models.SiteProfile) (Session, error) {
	return f(ctx, profile)
}
