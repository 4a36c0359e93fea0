// Package pipeline executes one-time setup steps in declared order, each
// gated on a dependency that has already been confirmed ready.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nholik/stackboot/internal/retry"
)

// DefaultStepPolicy is the bounded retry budget for setup actions. Unlike
// infra waits, a setup action that keeps failing indicates real
// misconfiguration and must fail fast.
var DefaultStepPolicy = retry.Policy{MaxAttempts: 5, Interval: 5 * time.Second}

// Action is a single idempotent setup operation.
type Action func(ctx context.Context) error

// Step is one ordered initialization step. DependsOn names the endpoint that
// must have been confirmed ready before the step may run.
type Step struct {
	Name      string
	DependsOn string
	Policy    retry.Policy
	// Optional steps log a warning instead of aborting the pipeline when
	// their retries are exhausted.
	Optional bool
	Action   Action
}

// StepError reports the step that exhausted its retries and the last
// underlying error.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("init step %q failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Recorder counts step attempts. Satisfied by *metrics.Metrics.
type Recorder interface {
	IncInitStepAttempt(step string)
}

// Pipeline runs initialization steps strictly in order.
type Pipeline struct {
	logger   zerolog.Logger
	ready    map[string]bool
	recorder Recorder
}

// Option customizes Pipeline behavior.
type Option func(*Pipeline)

// WithRecorder enables per-step attempt accounting.
func WithRecorder(recorder Recorder) Option {
	return func(p *Pipeline) {
		p.recorder = recorder
	}
}

// New constructs a Pipeline. readyEndpoints is the set of dependency names
// already confirmed ready; a step whose DependsOn is not in the set never
// runs.
func New(logger zerolog.Logger, readyEndpoints []string, opts ...Option) *Pipeline {
	ready := make(map[string]bool, len(readyEndpoints))
	for _, name := range readyEndpoints {
		ready[name] = true
	}
	p := &Pipeline{logger: logger, ready: ready}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes the steps in declared order. The first step to exhaust its
// retries aborts the pipeline; later steps do not run. Cancellation between
// steps unwinds as ctx.Err().
func (p *Pipeline) Run(ctx context.Context, steps []Step) error {
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.runStep(ctx, step); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) runStep(ctx context.Context, step Step) error {
	if step.Name == "" {
		return errors.New("init step missing name")
	}
	if step.Action == nil {
		return &StepError{Step: step.Name, Err: errors.New("step has no action")}
	}
	if step.DependsOn != "" && !p.ready[step.DependsOn] {
		return &StepError{
			Step: step.Name,
			Err:  fmt.Errorf("dependency %q has not been confirmed ready", step.DependsOn),
		}
	}

	policy := step.Policy
	if policy.MaxAttempts <= 0 || policy.Interval <= 0 {
		policy = DefaultStepPolicy
	}

	p.logger.Info().
		Str("step", step.Name).
		Str("depends_on", step.DependsOn).
		Int("max_attempts", policy.MaxAttempts).
		Msg("running init step")

	attempt := 0
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		attempt++
		if p.recorder != nil {
			p.recorder.IncInitStepAttempt(step.Name)
		}
		if err := step.Action(ctx); err != nil {
			p.logger.Warn().
				Str("step", step.Name).
				Int("attempt", attempt).
				Err(err).
				Msg("init step attempt failed")
			return err
		}
		return nil
	})
	if err == nil {
		p.logger.Info().
			Str("step", step.Name).
			Int("attempts", attempt).
			Msg("init step complete")
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) && step.Optional {
		p.logger.Warn().
			Str("step", step.Name).
			Err(exhausted.Last).
			Msg("optional init step failed, continuing")
		return nil
	}
	if errors.As(err, &exhausted) {
		return &StepError{Step: step.Name, Err: exhausted.Last}
	}
	return &StepError{Step: step.Name, Err: err}
}
