package bootstrap

import "time"

// Stage is the orchestrator's current position in the bootstrap sequence.
type Stage string

const (
	StageIdle                Stage = "idle"
	StageWaitingDependencies Stage = "waiting_dependencies"
	StageInitializing        Stage = "initializing"
	StageLaunchingApp        Stage = "launching_app"
	StageRunning             Stage = "running"
	StageFailed              Stage = "failed"
)

// Outcome is the terminal classification of a bootstrap run.
type Outcome string

const (
	OutcomeSuccess           Outcome = "success"
	OutcomeDependencyTimeout Outcome = "dependency_timeout"
	OutcomeInitStepFailed    Outcome = "init_step_failed"
	OutcomeLaunchFailed      Outcome = "launch_failed"
	OutcomeCanceled          Outcome = "canceled"
)

// Result is the single terminal outcome of a bootstrap run. Name carries the
// dependency or step the run failed on, when one applies.
type Result struct {
	RunID      string
	Outcome    Outcome
	Name       string
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Failed reports whether the run ended in any non-success outcome.
func (r Result) Failed() bool {
	return r.Outcome != OutcomeSuccess
}

// ErrorText returns the last underlying error message, if any.
func (r Result) ErrorText() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}
