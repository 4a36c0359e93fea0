// Package wait blocks until a declared dependency is observably ready.
package wait

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nholik/stackboot/internal/probe"
	"github.com/nholik/stackboot/internal/retry"
)

// DefaultPolicy is the infra dependency wait: poll every 2 seconds with no
// attempt cap. Backing services are expected to eventually come up, so the
// loop only ends on readiness or cancellation unless a caller supplies a
// bound of its own.
var DefaultPolicy = retry.Policy{MaxAttempts: 0, Interval: 2 * time.Second}

var errNotReady = errors.New("dependency not ready")

// DependencyTimeoutError reports that a dependency never became reachable
// within its wait budget.
type DependencyTimeoutError struct {
	Name string
	Err  error
}

func (e *DependencyTimeoutError) Error() string {
	return fmt.Sprintf("dependency %q did not become ready: %v", e.Name, e.Err)
}

func (e *DependencyTimeoutError) Unwrap() error {
	return e.Err
}

// Recorder counts probe attempts. Satisfied by *metrics.Metrics.
type Recorder interface {
	IncProbeAttempt(dependency string)
}

// Waiter polls a Prober until an endpoint reports ready.
type Waiter struct {
	logger   zerolog.Logger
	prober   probe.Prober
	recorder Recorder
}

// Option customizes Waiter behavior.
type Option func(*Waiter)

// WithRecorder enables probe attempt accounting.
func WithRecorder(recorder Recorder) Option {
	return func(w *Waiter) {
		w.recorder = recorder
	}
}

// New constructs a Waiter.
func New(logger zerolog.Logger, prober probe.Prober, opts ...Option) *Waiter {
	w := &Waiter{logger: logger, prober: prober}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WaitFor blocks until the endpoint is ready or the policy's bound is hit.
// Exhaustion of either the attempt cap or the overall timeout surfaces as a
// DependencyTimeoutError carrying the endpoint name; cancellation surfaces
// as ctx.Err() so the caller can distinguish operator interrupts from
// dependencies that never came up.
func (w *Waiter) WaitFor(ctx context.Context, endpoint probe.Endpoint, policy retry.Policy) error {
	if err := endpoint.Validate(); err != nil {
		return err
	}

	w.logger.Info().
		Str("dependency", endpoint.Name).
		Str("addr", endpoint.Addr()).
		Str("protocol", string(endpoint.Protocol)).
		Msg("waiting for dependency")

	attempt := 0
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		attempt++
		if w.recorder != nil {
			w.recorder.IncProbeAttempt(endpoint.Name)
		}
		if w.prober.Probe(ctx, endpoint) {
			return nil
		}
		w.logger.Debug().
			Str("dependency", endpoint.Name).
			Int("attempt", attempt).
			Msg("dependency not ready yet")
		return errNotReady
	})
	if err == nil {
		w.logger.Info().
			Str("dependency", endpoint.Name).
			Int("attempts", attempt).
			Msg("dependency ready")
		return nil
	}

	// Operator interrupts unwind as-is; only budget exhaustion becomes a
	// dependency timeout.
	if errors.Is(err, context.Canceled) {
		return err
	}

	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) || errors.Is(err, context.DeadlineExceeded) {
		w.logger.Error().
			Str("dependency", endpoint.Name).
			Int("attempts", attempt).
			Err(err).
			Msg("dependency wait exhausted")
		return &DependencyTimeoutError{Name: endpoint.Name, Err: err}
	}
	return err
}
