// Package report runs the post-purchase report delivery pipeline: full
// zoning data fetch, HTML to PDF rendering, and email delivery, tracked
// through an explicit purchase state machine so redelivered events
// resume instead of repeating completed steps.
package report

import (
	"context"
	"fmt"
	"time"
)

// Policy is a fixed-attempt, fixed-spacing retry policy for one
// pipeline step. No jitter and no backoff growth: the upstream payment
// provider supplies the coarse redelivery schedule, this only smooths
// over momentary blips.
type Policy struct {
	Attempts int
	Delay    time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

// NewPolicy creates a retry policy with the given attempt count and
// inter-attempt delay. attempts < 1 is treated as a single attempt.
func NewPolicy(attempts int, delay time.Duration) Policy {
	if attempts < 1 {
		attempts = 1
	}
	return Policy{
		Attempts: attempts,
		Delay:    delay,
		sleep:    sleepContext,
	}
}

// WithSleepFunc returns a copy of the policy using the given sleep
// function. Tests inject an instant sleep to avoid real delays.
func (p Policy) WithSleepFunc(sleep func(ctx context.Context, d time.Duration) error) Policy {
	p.sleep = sleep
	return p
}

// Run executes fn up to p.Attempts times, sleeping p.Delay between
// attempts. It returns nil on the first success. On exhaustion it
// returns the last error annotated with the attempt count. Context
// cancellation aborts between attempts.
func (p Policy) Run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if attempt < p.Attempts {
			if err := p.sleep(ctx, p.Delay); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, p.Attempts, lastErr)
}

// sleepContext sleeps for d or until the context is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
