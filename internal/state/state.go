// Package state persists bootstrap run records so operators can inspect
// what the last runs did after the process has exited.
package state

import (
	"time"

	"github.com/nholik/stackboot/internal/bootstrap"
)

// maxRuns bounds the history kept on disk.
const maxRuns = 20

// RunRecord is the durable form of a bootstrap result.
type RunRecord struct {
	RunID      string    `json:"run_id"`
	Outcome    string    `json:"outcome"`
	Name       string    `json:"name,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// State holds the recent run history, newest first.
type State struct {
	Runs []RunRecord `json:"runs"`
}

// RecordOf converts a bootstrap result into its durable form.
func RecordOf(result bootstrap.Result) RunRecord {
	return RunRecord{
		RunID:      result.RunID,
		Outcome:    string(result.Outcome),
		Name:       result.Name,
		Error:      result.ErrorText(),
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
	}
}

// Append prepends a record and trims the history to maxRuns entries.
func (s *State) Append(record RunRecord) {
	runs := make([]RunRecord, 0, len(s.Runs)+1)
	runs = append(runs, record)
	runs = append(runs, s.Runs...)
	if len(runs) > maxRuns {
		runs = runs[:maxRuns]
	}
	s.Runs = runs
}

// Latest returns the most recent record, if any.
func (s State) Latest() (RunRecord, bool) {
	if len(s.Runs) == 0 {
		return RunRecord{}, false
	}
	return s.Runs[0], true
}
