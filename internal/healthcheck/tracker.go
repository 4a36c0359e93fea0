package healthcheck

import (
	"sync"
	"time"
)

// Snapshot describes the current bootstrap progress.
type Snapshot struct {
	RunID     string     `json:"run_id"`
	Stage     string     `json:"stage"`
	Outcome   string     `json:"outcome,omitempty"`
	Error     string     `json:"error,omitempty"`
	StartedAt *time.Time `json:"started_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}

// Tracker records bootstrap progress for the health endpoints.
type Tracker struct {
	mu        sync.RWMutex
	runID     string
	stage     string
	outcome   string
	errText   string
	startedAt time.Time
	updatedAt time.Time
}

// NewTracker constructs a new Tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// BeginRun resets the tracker for a new bootstrap run.
func (t *Tracker) BeginRun(runID string) {
	if t == nil {
		return
	}
	now := time.Now().UTC()
	t.mu.Lock()
	t.runID = runID
	t.stage = ""
	t.outcome = ""
	t.errText = ""
	t.startedAt = now
	t.updatedAt = now
	t.mu.Unlock()
}

// SetStage records the stage the orchestrator just entered.
func (t *Tracker) SetStage(stage string) {
	if t == nil {
		return
	}
	now := time.Now().UTC()
	t.mu.Lock()
	t.stage = stage
	t.updatedAt = now
	t.mu.Unlock()
}

// SetOutcome records the terminal outcome of the run.
func (t *Tracker) SetOutcome(outcome, errText string) {
	if t == nil {
		return
	}
	now := time.Now().UTC()
	t.mu.Lock()
	t.outcome = outcome
	t.errText = errText
	t.updatedAt = now
	t.mu.Unlock()
}

// Snapshot returns the current tracker snapshot.
func (t *Tracker) Snapshot() Snapshot {
	if t == nil {
		return Snapshot{}
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	snapshot := Snapshot{
		RunID:   t.runID,
		Stage:   t.stage,
		Outcome: t.outcome,
		Error:   t.errText,
	}
	if !t.startedAt.IsZero() {
		value := t.startedAt
		snapshot.StartedAt = &value
	}
	if !t.updatedAt.IsZero() {
		value := t.updatedAt
		snapshot.UpdatedAt = &value
	}
	return snapshot
}

// Ready reports whether the application stack is up and serving.
func (t *Tracker) Ready(runningStage string) bool {
	if t == nil {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stage == runningStage
}

// Healthy reports whether the bootstrap process has not failed. In-progress
// stages are healthy: a slow dependency is a liveness concern for the
// dependency, not for the orchestrator.
func (t *Tracker) Healthy(failedStage string) bool {
	if t == nil {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stage != failedStage
}
