// Package bootstrap sequences dependency waits, one-time initialization, and
// the launch of the dependent application.
package bootstrap

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nholik/stackboot/internal/pipeline"
	"github.com/nholik/stackboot/internal/probe"
	"github.com/nholik/stackboot/internal/retry"
	"github.com/nholik/stackboot/internal/wait"
)

const defaultLaunchWait = 10 * time.Second

// DefaultLaunchPolicy is the final bounded readiness check after the flat
// launch wait. One strict probe, matching the observed launch behavior.
var DefaultLaunchPolicy = retry.Policy{MaxAttempts: 1, Interval: time.Second}

// Waiter blocks until a dependency is ready. Satisfied by *wait.Waiter.
type Waiter interface {
	WaitFor(ctx context.Context, endpoint probe.Endpoint, policy retry.Policy) error
}

// Supervisor starts the dependent application process. The broader process
// supervisor also stops and execs; the orchestrator only ever starts.
type Supervisor interface {
	Start(ctx context.Context, service string) error
}

// StageListener observes stage transitions, e.g. for health endpoints.
type StageListener interface {
	SetStage(stage string)
}

// Recorder captures run-level metrics. Satisfied by *metrics.Metrics.
type Recorder interface {
	ObserveDependencyWait(dependency string, duration time.Duration)
	ObserveAppLaunch(duration time.Duration)
	SetRunOutcome(outcome string)
	SetLastRunFinished(t time.Time)
}

// App describes the dependent application: the supervised service to start
// and the health endpoint that must answer with a success status.
type App struct {
	Service    string
	Readiness  probe.Endpoint
	LaunchWait time.Duration
}

// Orchestrator runs the bootstrap sequence. It has no internal parallelism:
// dependency waits and init steps execute strictly in declared order.
type Orchestrator struct {
	logger       zerolog.Logger
	waiter       Waiter
	prober       probe.HealthProber
	supervisor   Supervisor
	endpoints    []probe.Endpoint
	waitPolicy   retry.Policy
	steps        []pipeline.Step
	app          App
	launchPolicy retry.Policy
	listener     StageListener
	recorder     Recorder
	pipelineOpts []pipeline.Option
	stage        Stage
}

// Option customizes orchestrator behavior.
type Option func(*Orchestrator)

// WithWaitPolicy overrides the infra dependency wait policy.
func WithWaitPolicy(policy retry.Policy) Option {
	return func(o *Orchestrator) {
		o.waitPolicy = policy
	}
}

// WithLaunchPolicy overrides the post-launch readiness policy.
func WithLaunchPolicy(policy retry.Policy) Option {
	return func(o *Orchestrator) {
		o.launchPolicy = policy
	}
}

// WithStageListener registers a stage transition observer.
func WithStageListener(listener StageListener) Option {
	return func(o *Orchestrator) {
		o.listener = listener
	}
}

// WithRecorder enables run metrics.
func WithRecorder(recorder Recorder) Option {
	return func(o *Orchestrator) {
		o.recorder = recorder
	}
}

// WithPipelineOptions forwards options to the init pipeline.
func WithPipelineOptions(opts ...pipeline.Option) Option {
	return func(o *Orchestrator) {
		o.pipelineOpts = opts
	}
}

// New constructs an Orchestrator over the declared endpoints, init steps,
// and application.
func New(logger zerolog.Logger, waiter Waiter, prober probe.HealthProber, supervisor Supervisor,
	endpoints []probe.Endpoint, steps []pipeline.Step, app App, opts ...Option) *Orchestrator {

	o := &Orchestrator{
		logger:       logger,
		waiter:       waiter,
		prober:       prober,
		supervisor:   supervisor,
		endpoints:    endpoints,
		waitPolicy:   wait.DefaultPolicy,
		steps:        steps,
		app:          app,
		launchPolicy: DefaultLaunchPolicy,
		stage:        StageIdle,
	}
	if o.app.LaunchWait <= 0 {
		o.app.LaunchWait = defaultLaunchWait
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Stage returns the current orchestration stage.
func (o *Orchestrator) Stage() Stage {
	return o.stage
}

// Run executes the bootstrap sequence and produces its single terminal
// Result. On any abort the application is never started, and the result
// names the failed dependency or step so an operator can remediate.
func (o *Orchestrator) Run(ctx context.Context) Result {
	result := Result{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	logger := o.logger.With().Str("run_id", result.RunID).Logger()

	if l, ok := o.listener.(interface{ BeginRun(runID string) }); ok {
		l.BeginRun(result.RunID)
	}

	logger.Info().
		Int("dependencies", len(o.endpoints)).
		Int("init_steps", len(o.steps)).
		Str("app", o.app.Service).
		Msg("bootstrap starting")

	ready := make([]string, 0, len(o.endpoints))

	o.setStage(StageWaitingDependencies)
	for _, endpoint := range o.endpoints {
		started := time.Now()
		err := o.waiter.WaitFor(ctx, endpoint, o.waitPolicy)
		if o.recorder != nil {
			o.recorder.ObserveDependencyWait(endpoint.Name, time.Since(started))
		}
		if err != nil {
			return o.finish(logger, result, classifyWaitFailure(endpoint.Name, err))
		}
		ready = append(ready, endpoint.Name)
	}

	o.setStage(StageInitializing)
	pipe := pipeline.New(logger, ready, o.pipelineOpts...)
	if err := pipe.Run(ctx, o.steps); err != nil {
		return o.finish(logger, result, classifyPipelineFailure(err))
	}

	o.setStage(StageLaunchingApp)
	if err := o.launchApp(ctx, logger); err != nil {
		if errors.Is(err, context.Canceled) {
			return o.finish(logger, result, terminal{OutcomeCanceled, o.app.Service, err})
		}
		return o.finish(logger, result, terminal{OutcomeLaunchFailed, o.app.Service, err})
	}

	return o.finish(logger, result, terminal{Outcome: OutcomeSuccess})
}

// terminal pairs an outcome with the failing dependency/step name.
type terminal struct {
	Outcome Outcome
	Name    string
	Err     error
}

func (o *Orchestrator) launchApp(ctx context.Context, logger zerolog.Logger) error {
	if o.app.Service == "" {
		logger.Info().Msg("no application declared, skipping launch")
		return nil
	}

	started := time.Now()
	logger.Info().Str("service", o.app.Service).Msg("starting application")
	if err := o.supervisor.Start(ctx, o.app.Service); err != nil {
		return err
	}

	// Flat settle time before the readiness check; the application needs a
	// moment to bind its port and run its own startup hooks.
	if !sleepWithContext(ctx, o.app.LaunchWait) {
		return ctx.Err()
	}

	err := retry.Do(ctx, o.launchPolicy, func(ctx context.Context) error {
		if o.prober.ProbeHealthy(ctx, o.app.Readiness) {
			return nil
		}
		return errors.New("application readiness probe failed")
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		var exhausted *retry.ExhaustedError
		if errors.As(err, &exhausted) {
			return exhausted.Last
		}
		return err
	}

	if o.recorder != nil {
		o.recorder.ObserveAppLaunch(time.Since(started))
	}
	logger.Info().
		Str("service", o.app.Service).
		Dur("elapsed", time.Since(started)).
		Msg("application healthy")
	return nil
}

func (o *Orchestrator) finish(logger zerolog.Logger, result Result, t terminal) Result {
	result.Outcome = t.Outcome
	result.Name = t.Name
	result.Err = t.Err
	result.FinishedAt = time.Now().UTC()

	if t.Outcome == OutcomeSuccess {
		o.setStage(StageRunning)
		logger.Info().
			Dur("elapsed", result.FinishedAt.Sub(result.StartedAt)).
			Msg("bootstrap complete")
	} else {
		o.setStage(StageFailed)
		logger.Error().
			Str("outcome", string(t.Outcome)).
			Str("name", t.Name).
			Err(t.Err).
			Msg("bootstrap failed")
	}

	if l, ok := o.listener.(interface{ SetOutcome(outcome, errText string) }); ok {
		l.SetOutcome(string(t.Outcome), result.ErrorText())
	}
	if o.recorder != nil {
		o.recorder.SetRunOutcome(string(t.Outcome))
		o.recorder.SetLastRunFinished(result.FinishedAt)
	}
	return result
}

func (o *Orchestrator) setStage(stage Stage) {
	o.stage = stage
	if o.listener != nil {
		o.listener.SetStage(string(stage))
	}
}

func classifyWaitFailure(name string, err error) terminal {
	if errors.Is(err, context.Canceled) {
		return terminal{OutcomeCanceled, name, err}
	}
	var timeout *wait.DependencyTimeoutError
	if errors.As(err, &timeout) {
		return terminal{OutcomeDependencyTimeout, timeout.Name, timeout.Err}
	}
	return terminal{OutcomeDependencyTimeout, name, err}
}

func classifyPipelineFailure(err error) terminal {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return terminal{OutcomeCanceled, "", err}
	}
	var stepErr *pipeline.StepError
	if errors.As(err, &stepErr) {
		return terminal{OutcomeInitStepFailed, stepErr.Step, stepErr.Err}
	}
	return terminal{OutcomeInitStepFailed, "", err}
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
