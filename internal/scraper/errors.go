package scraper

import (
	"context"
	"errors"
	"fmt"

	"PharmacyScanner/internal/models"
)

// Failure kinds of a navigation run. Match with errors.Is.
var (
	ErrNavigationTimeout  = errors.New("navigation timeout")
	ErrSelectorNotFound   = errors.New("selector not found")
	ErrNetworkWaitTimeout = errors.New("network wait timeout")
	ErrSession            = errors.New("session error")
)

// NavigationError is the typed failure of Interpreter.Run. Step is the index
// of the failing step, or -1 when the session could not be opened.
type NavigationError struct {
	Kind   error
	Step   int
	Action models.StepKind
	Err    error
}

func (e *NavigationError) Error() string {
	if e.Step < 0 {
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%v at step %d (%s): %v", e.Kind, e.Step, e.Action, e.Err)
}

func (e *NavigationError) Unwrap() []error { return []error{e.Kind, e.Err} }

// classify maps a step failure to its kind. Sessions may already wrap one of
// the sentinel kinds; bare deadline errors are attributed by step type.
func classify(ctx context.Context, index int, step models.NavigationStep, err error) *NavigationError {
	ne := &NavigationError{Step: index, Action: step.Kind(), Err: err}
	switch {
	case ctx.Err() != nil:
		ne.Kind = ErrSession
	case errors.Is(err, ErrNavigationTimeout):
		ne.Kind = ErrNavigationTimeout
	case errors.Is(err, ErrSelectorNotFound):
		ne.Kind = ErrSelectorNotFound
	case errors.Is(err, ErrNetworkWaitTimeout):
		ne.Kind = ErrNetworkWaitTimeout
	case errors.Is(err, context.DeadlineExceeded):
		switch step.Kind() {
		case models.StepNavigate:
			ne.Kind = ErrNavigationTimeout
		case models.StepWaitForResponse:
			ne.Kind = ErrNetworkWaitTimeout
		default:
			ne.Kind = ErrSelectorNotFound
		}
	default:
		ne.Kind = ErrSession
	}
	return ne
}
