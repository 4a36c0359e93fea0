// Package retry runs idempotent actions repeatedly at a fixed cadence until
// they succeed or a retry budget is exhausted.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy governs a retry loop. MaxAttempts of zero means the loop is
// unbounded and runs until success or cancellation; infra dependency waits
// rely on that, while one-time setup actions always carry a bound.
type Policy struct {
	MaxAttempts int
	Interval    time.Duration
	// Timeout bounds the whole loop when positive. When both MaxAttempts and
	// Timeout are set, whichever is hit first terminates the loop.
	Timeout time.Duration
}

// Validate rejects policies that cannot drive a loop.
func (p Policy) Validate() error {
	if p.MaxAttempts < 0 {
		return fmt.Errorf("max attempts must not be negative, got %d", p.MaxAttempts)
	}
	if p.Interval <= 0 {
		return fmt.Errorf("interval must be greater than zero, got %s", p.Interval)
	}
	return nil
}

// ExhaustedError reports that every attempt failed.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Do invokes op until it succeeds, the policy is exhausted, or ctx is
// canceled. The first success returns immediately with no further attempts.
// Exhaustion returns an ExhaustedError wrapping the last observed error after
// exactly MaxAttempts invocations. Cancellation is checked before every
// attempt and during every sleep, and surfaces as ctx.Err().
func Do(ctx context.Context, policy Policy, op func(context.Context) error) error {
	if err := policy.Validate(); err != nil {
		return err
	}

	if policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, policy.Timeout)
		defer cancel()
	}

	interval := backoff.NewConstantBackOff(policy.Interval)
	interval.Reset()

	var last error
	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		attempts++
		if last = op(ctx); last == nil {
			return nil
		}

		if policy.MaxAttempts > 0 && attempts >= policy.MaxAttempts {
			return &ExhaustedError{Attempts: attempts, Last: last}
		}
		if !sleepWithContext(ctx, interval.NextBackOff()) {
			return ctx.Err()
		}
	}
}

func sleepWithContext(ctx context.Context, wait time.Duration) bool {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
