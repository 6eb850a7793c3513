// Package guardrails bounds each solve phase in time and keeps waits cooperative
package guardrails

import (
	"context"
	"errors"
	"time"
)

// Budgets caps each phase of one orchestration. Zero values add no limit at that level
type Budgets struct {
	// Solve is the overall budget for one page
	Solve time.Duration

	// Detect caps content capture and both detection engines
	Detect time.Duration

	// Click caps the whole click strategy including response polling
	Click time.Duration

	// Provider caps one provider solve
	Provider time.Duration

	// Relay caps session creation and status polling
	Relay time.Duration
}

// ForSolve limits a whole run without extending any parent deadline
func ForSolve(parent context.Context, b Budgets) (context.Context, context.CancelFunc) {
	return withChildTimeout(parent, b.Solve)
}

// ForDetect returns the detection phase context
func ForDetect(parent context.Context, b Budgets) (context.Context, context.CancelFunc) {
	return withChildTimeout(parent, b.Detect)
}

// ForClick returns the click strategy context
func ForClick(parent context.Context, b Budgets) (context.Context, context.CancelFunc) {
	return withChildTimeout(parent, b.Click)
}

// ForProvider returns the provider strategy context
func ForProvider(parent context.Context, b Budgets) (context.Context, context.CancelFunc) {
	return withChildTimeout(parent, b.Provider)
}

// ForRelay returns the relay strategy context
func ForRelay(parent context.Context, b Budgets) (context.Context, context.CancelFunc) {
	return withChildTimeout(parent, b.Relay)
}

// Remaining returns the time until the deadline on ctx, or zero when none is set or it passed
func Remaining(ctx context.Context) time.Duration {
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 {
			return d
		}
	}
	return 0
}

// withChildTimeout picks the tighter of d and the parent remainder. d <= 0 inherits the parent
func withChildTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(parent)
	}
	if rem := Remaining(parent); rem > 0 && rem < d {
		return context.WithTimeout(parent, rem)
	}
	return context.WithTimeout(parent, d)
}

// ErrPageClosed reports that the page handle went away mid run
var ErrPageClosed = errors.New("page closed")

// Alive is polled between waits; returning false aborts the wait
type Alive func() bool

// Wait sleeps d unless ctx ends or alive turns false first
func Wait(ctx context.Context, d time.Duration, alive Alive) error {
	if alive != nil && !alive() {
		return ErrPageClosed
	}
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}
	if alive != nil && !alive() {
		return ErrPageClosed
	}
	return nil
}

// Poll calls fn every interval until it reports done, returns an error, ctx ends or alive
// turns false. fn runs once immediately
func Poll(ctx context.Context, every time.Duration, alive Alive, fn func(ctx context.Context) (bool, error)) error {
	for {
		if alive != nil && !alive() {
			return ErrPageClosed
		}
		done, err := fn(ctx)
		if err != nil || done {
			return err
		}
		if err := Wait(ctx, every, alive); err != nil {
			return err
		}
	}
}

// Expired reports whether err is a budget running out rather than a caller cancel
func Expired(err error) bool { return errors.Is(err, context.DeadlineExceeded) }
