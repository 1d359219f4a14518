// Package validate decides whether an extraction unit is accepted, retried
// or failed, and drives retries through a bounded policy.
package validate

import (
	"context"
	"errors"

	"github.com/maltedev/review-scraper/internal/page"
)

type Kind int

const (
	Ok Kind = iota
	Warn
	Retry
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Ok:
		return "ok"
	case Warn:
		return "warn"
	case Retry:
		return "retry"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Verdict is the outcome of validating one unit.
type Verdict struct {
	Kind   Kind
	Reason string
	Err    error
}

func Accept() Verdict {
	return Verdict{Kind: Ok}
}

func Warning(reason string) Verdict {
	return Verdict{Kind: Warn, Reason: reason}
}

func Retryable(reason string, err error) Verdict {
	return Verdict{Kind: Retry, Reason: reason, Err: err}
}

func Failure(reason string, err error) Verdict {
	return Verdict{Kind: Fatal, Reason: reason, Err: err}
}

// Error returns the verdict as an error, or nil for Ok and Warn.
func (v Verdict) Error() error {
	if v.Kind == Ok || v.Kind == Warn {
		return nil
	}
	if v.Err != nil {
		return v.Err
	}
	return errors.New(v.Reason)
}

// Classify maps an interaction error onto a verdict. Element lookups,
// timeouts, detached references and navigation failures are transient.
func Classify(err error) Verdict {
	if err == nil {
		return Accept()
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Failure("cancelled", err)
	}

	var notFound *page.ElementNotFoundError
	if errors.As(err, &notFound) {
		return Retryable("element not found: "+notFound.Selector, err)
	}
	if errors.Is(err, page.ErrDetached) {
		return Retryable("element detached", err)
	}
	if errors.Is(err, page.ErrTimeout) {
		return Retryable("timeout", err)
	}
	var nav *page.NavigationError
	if errors.As(err, &nav) {
		return Retryable("navigation failed", err)
	}

	return Failure(err.Error(), err)
}

// ErrorType returns a metrics label for err.
func ErrorType(err error) string {
	if err == nil {
		return "unknown"
	}
	var notFound *page.ElementNotFoundError
	var nav *page.NavigationError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.As(err, &nav):
		return "navigation"
	case errors.As(err, &notFound):
		return "element_not_found"
	case errors.Is(err, page.ErrDetached):
		return "detached"
	case errors.Is(err, page.ErrTimeout):
		return "timeout"
	default:
		return "other"
	}
}
