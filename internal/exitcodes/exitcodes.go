// Package exitcodes defines the process exit codes for stackboot.
// These codes form the operational contract with CI/CD and operators.
package exitcodes

import "github.com/nholik/stackboot/internal/bootstrap"

const (
	Success           = 0 // Application stack launched and confirmed healthy
	InvalidConfig     = 2 // Configuration or plan file invalid or missing
	DependencyTimeout = 3 // A dependency never became ready within its bound
	InitStepFailed    = 4 // An initialization step exhausted its retry budget
	LaunchFailed      = 5 // The application failed to start or report healthy
	Canceled          = 6 // Bootstrap interrupted by signal or cancellation
)

// FromOutcome maps a terminal bootstrap outcome to its exit code.
func FromOutcome(outcome bootstrap.Outcome) int {
	switch outcome {
	case bootstrap.OutcomeSuccess:
		return Success
	case bootstrap.OutcomeDependencyTimeout:
		return DependencyTimeout
	case bootstrap.OutcomeInitStepFailed:
		return InitStepFailed
	case bootstrap.OutcomeLaunchFailed:
		return LaunchFailed
	case bootstrap.OutcomeCanceled:
		return Canceled
	default:
		return LaunchFailed
	}
}
