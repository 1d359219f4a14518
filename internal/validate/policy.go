package validate

import (
	"context"
	"fmt"
	"time"
)

type Action int

const (
	ActionAccept Action = iota
	ActionRetry
	ActionReload
	ActionExhausted
	ActionFail
)

func (a Action) String() string {
	switch a {
	case ActionAccept:
		return "accept"
	case ActionRetry:
		return "retry"
	case ActionReload:
		return "reload"
	case ActionExhausted:
		return "exhausted"
	case ActionFail:
		return "fail"
	default:
		return "unknown"
	}
}

// State tracks one unit's progress through the policy. Attempt is the
// 1-based number of the attempt that produced the current verdict.
type State struct {
	Attempt  int
	Reloaded bool
}

// Step is what the caller does next.
type Step struct {
	Action Action
	Delay  time.Duration
}

// Policy bounds retries of one extraction unit.
type Policy struct {
	MaxAttempts     int
	Backoff         time.Duration
	MaxBackoff      time.Duration
	ReloadOnExhaust bool
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		Backoff:     500 * time.Millisecond,
		MaxBackoff:  5 * time.Second,
	}
}

// Next maps the verdict of the attempt in s onto the next step.
func (p Policy) Next(s State, v Verdict) (State, Step) {
	switch v.Kind {
	case Ok, Warn:
		return s, Step{Action: ActionAccept}
	case Fatal:
		return s, Step{Action: ActionFail}
	}

	limit := p.MaxAttempts
	if limit < 1 {
		limit = 1
	}

	if s.Attempt < limit {
		return State{Attempt: s.Attempt + 1, Reloaded: s.Reloaded}, Step{Action: ActionRetry, Delay: p.backoff(s.Attempt)}
	}
	if p.ReloadOnExhaust && !s.Reloaded {
		return State{Attempt: 1, Reloaded: true}, Step{Action: ActionReload}
	}
	return s, Step{Action: ActionExhausted}
}

// backoff returns Backoff*2^(n-1) capped at MaxBackoff.
func (p Policy) backoff(n int) time.Duration {
	if p.Backoff <= 0 {
		return 0
	}
	d := p.Backoff
	for i := 1; i < n; i++ {
		d *= 2
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// ExhaustedError is returned when the retry budget ran out.
type ExhaustedError struct {
	Attempts int
	Last     Verdict
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %s", e.Attempts, e.Last.Reason)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last.Err
}

// AttemptFunc performs and validates one attempt.
type AttemptFunc func(ctx context.Context, s State) Verdict

// ReloadFunc restores the page before the attempts start over.
type ReloadFunc func(ctx context.Context) error

// Run drives attempt through p until it is accepted, fails or exhausts
// the budget. The verdict of the final attempt is returned with an error
// for anything but acceptance.
func Run(ctx context.Context, p Policy, attempt AttemptFunc, reload ReloadFunc) (Verdict, error) {
	s := State{Attempt: 1}
	total := 0

	for {
		if err := ctx.Err(); err != nil {
			return Failure("cancelled", err), err
		}

		v := attempt(ctx, s)
		total++

		next, step := p.Next(s, v)
		switch step.Action {
		case ActionAccept:
			return v, nil
		case ActionFail:
			return v, v.Error()
		case ActionExhausted:
			return v, &ExhaustedError{Attempts: total, Last: v}
		case ActionReload:
			if reload != nil {
				if err := reload(ctx); err != nil {
					rv := Classify(err)
					if rv.Kind == Fatal {
						return rv, err
					}
					return rv, &ExhaustedError{Attempts: total, Last: rv}
				}
			}
		case ActionRetry:
			if err := Sleep(ctx, step.Delay); err != nil {
				return Failure("cancelled", err), err
			}
		}
		s = next
	}
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
