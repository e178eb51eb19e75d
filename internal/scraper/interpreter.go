package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"PharmacyScanner/internal/models"
)

const (
	defaultNavigationTimeout = 30 * time.Second
	defaultWaitTimeout       = 15 * time.Second
)

// Outcome is a session positioned on the result page, plus the values
// captured by extractAttribute steps. The caller owns the session and must
// Close the outcome.
type Outcome struct {
	Session  Session
	Captures map[string]string
}

// Close releases the session.
func (o *Outcome) Close() error {
	if o == nil || o.Session == nil {
		return nil
	}
	return o.Session.Close()
}

// Interpreter executes navigation flows step by step.
type Interpreter struct {
	factory           SessionFactory
	logger            *slog.Logger
	navigationTimeout time.Duration
	waitTimeout       time.Duration
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(in *Interpreter) { in.logger = l }
}

// WithTimeouts overrides the navigation timeout and the default timeout of
// waits that do not declare one.
func WithTimeouts(navigation, wait time.Duration) Option {
	return func(in *Interpreter) {
		if navigation > 0 {
			in.navigationTimeout = navigation
		}
		if wait > 0 {
			in.waitTimeout = wait
		}
	}
}

// NewInterpreter creates an Interpreter opening sessions from factory.
func NewInterpreter(factory SessionFactory, opts ...Option) *Interpreter {
	in := &Interpreter{
		factory:           factory,
		logger:            slog.Default(),
		navigationTimeout: defaultNavigationTimeout,
		waitTimeout:       defaultWaitTimeout,
	}
	for _, o := range opts {
		o(in)
	}
	return in
}

// Run opens a session and executes the profile's steps in order for query.
// The first failing step aborts the run; the session is then closed and a
// *NavigationError returned. Steps are never retried here.
func (in *Interpreter) Run(ctx context.Context, profile models.SiteProfile, query string) (*Outcome, error) {
	steps, err := PlanSteps(profile)
	if err != nil {
		return nil, &NavigationError{Kind: ErrSession, Step: -1, Err: err}
	}

	sess, err := in.factory.Open(ctx, profile)
	if err != nil {
		return nil, &NavigationError{Kind: ErrSession, Step: -1, Err: fmt.Errorf("open session: %w", err)}
	}

	handedOver := false
	defer func() {
		if handedOver {
			return
		}
		if cerr := sess.Close(); cerr != nil {
			in.logger.Warn("interpreter: close session", "site", profile.ID, "error", cerr)
		}
	}()

	captures := make(map[string]string)
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, &NavigationError{Kind: ErrSession, Step: i, Action: step.Kind(), Err: err}
		}
		in.logger.Debug("interpreter: step", "site", profile.ID, "index", i, "step", step.String())

		if err := in.exec(ctx, sess, profile, i, step, query, captures); err != nil {
			ne := classify(ctx, i, step, err)
			in.logger.Warn("interpreter: step failed", "site", profile.ID, "index", i, "step", step.String(), "kind", ne.Kind.Error(), "error", err)
			return nil, ne
		}
	}

	handedOver = true
	return &Outcome{Session: sess, Captures: captures}, nil
}

func (in *Interpreter) exec(ctx context.Context, sess Session, profile models.SiteProfile, index int, step models.NavigationStep, query string, captures map[string]string) error {
	switch a := step.Action.(type) {
	case models.Navigate:
		navCtx, cancel := context.WithTimeout(ctx, in.navigationTimeout)
		defer cancel()
		return sess.Navigate(navCtx, models.ExpandQuery(a.URL, query))

	case models.Fill:
		fillCtx, cancel := context.WithTimeout(ctx, in.waitTimeout)
		defer cancel()
		return sess.Fill(fillCtx, a.Selector, a.Value.Resolve(query), a.ClearFirst)

	case models.Click:
		clickCtx, cancel := context.WithTimeout(ctx, in.waitTimeout)
		defer cancel()
		return sess.Click(clickCtx, a.Selector)

	case models.WaitForSelector:
		return sess.WaitSelector(ctx, a.Selector, in.timeout(a.Timeout))

	case models.WaitForResponse:
		return sess.WaitResponse(ctx, a.Pattern, in.timeout(a.Timeout))

	case models.ExtractAttribute:
		attrCtx, cancel := context.WithTimeout(ctx, in.waitTimeout)
		defer cancel()
		v, err := sess.Attribute(attrCtx, a.Selector, a.Attribute)
		if err != nil {
			return err
		}
		captures[a.CaptureAs] = v
		return nil

	case models.RunPrompt:
		in.logger.Info("interpreter: automation hint", "site", profile.ID, "prompt", a.Text)
		captures[fmt.Sprintf("prompt:%d", index)] = a.Text
		return nil
	}
	return fmt.Errorf("unsupported step %T", step.Action)
}

func (in *Interpreter) timeout(d time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return in.waitTimeout
}

// PlanSteps returns the steps to execute for a profile. A profile without a
// navigation flow navigates to its search URL. Network wait hints become
// waitForResponse steps after the last navigate, unless the flow already
// waits for a response itself.
func PlanSteps(profile models.SiteProfile) ([]models.NavigationStep, error) {
	steps := profile.Navigation
	if len(steps) == 0 {
		if profile.SearchURL == "" {
			return nil, fmt.Errorf("profile %s: nothing to navigate", profile.ID)
		}
		steps = []models.NavigationStep{{
			Action:  models.Navigate{URL: profile.SearchURL},
			Comment: "search url",
		}}
	}

	patterns, err := profile.ResponsePatterns()
	if err != nil {
		return nil, err
	}
	if len(patterns) == 0 {
		return steps, nil
	}

	lastNavigate := -1
	for i, s := range steps {
		switch s.Kind() {
		case models.StepWaitForResponse:
			return steps, nil
		case models.StepNavigate:
			lastNavigate = i
		}
	}
	if lastNavigate < 0 {
		return steps, nil
	}

	var timeout time.Duration
	if profile.Network.ResponseTimeoutMs > 0 {
		timeout = time.Duration(profile.Network.ResponseTimeoutMs) * time.Millisecond
	}
	hints := make([]models.NavigationStep, 0, len(patterns))
	for _, re := range patterns {
		hints = append(hints, models.NavigationStep{
			Action:  models.WaitForResponse{Pattern: re, Timeout: timeout},
			Comment: "network hint",
		})
	}

	planned := make([]models.NavigationStep, 0, len(steps)+len(hints))
	planned = append(planned, steps[:lastNavigate+1]...)
	planned = append(planned, hints...)
	planned = append(planned, steps[lastNavigate+1:]...)
	return planned, nil
}
