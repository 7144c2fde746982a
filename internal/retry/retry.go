// Package retry runs fallible remote calls with bounded attempts and
// exponential backoff. After failure i (counting from zero) it waits
// 3^i units before trying again; the final failure is returned unchanged.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Default attempt budgets.
const (
	DefaultAttempts = 3
	DataAttempts    = 5
)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy configures a retry loop.
type Policy struct {
	Attempts int
	Unit     time.Duration
	// Sleep defaults to a context-aware timer.
	Sleep  SleepFunc
	Logger *slog.Logger
}

// Default returns the 3-attempt policy with one-second units.
func Default() Policy {
	return Policy{Attempts: DefaultAttempts, Unit: time.Second}
}

// WithAttempts returns a copy of p with a different attempt budget.
func (p Policy) WithAttempts(n int) Policy {
	p.Attempts = n
	return p
}

// Backoff returns the wait after the given zero-based failed attempt.
func (p Policy) Backoff(attempt int) time.Duration {
	d := p.Unit
	for range attempt {
		d *= 3
	}
	return d
}

// Do calls op until it succeeds or the attempt budget is spent.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	_, err := DoValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var zero T
	var lastErr error
	for attempt := range attempts {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if attempt == attempts-1 {
			break
		}
		wait := p.Backoff(attempt)
		if p.Logger != nil {
			p.Logger.Warn("call failed, retrying",
				slog.Int("attempt", attempt+1),
				slog.Int("max_attempts", attempts),
				slog.Duration("backoff", wait),
				slog.String("error", err.Error()),
			)
		}
		if serr := sleep(ctx, wait); serr != nil {
			return zero, errors.Join(serr, lastErr)
		}
	}

	if p.Logger != nil {
		p.Logger.Error("call failed, attempts exhausted",
			slog.Int("max_attempts", attempts),
			slog.String("error", lastErr.Error()),
		)
	}
	return zero, lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
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
