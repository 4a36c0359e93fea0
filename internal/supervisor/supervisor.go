// Package supervisor talks to the external process supervisor that owns the
// backing services and the application. The orchestration core only starts
// services and observes readiness; lifecycle beyond that stays external.
package supervisor

import "context"

// Supervisor manages named services in the external runtime.
type Supervisor interface {
	// Start brings up a named service. Idempotent: starting a running
	// service is not an error.
	Start(ctx context.Context, service string) error

	// Stop halts a named service.
	Stop(ctx context.Context, service string) error

	// ExecIn runs a command inside a running service and returns its exit
	// code.
	ExecIn(ctx context.Context, service string, cmd []string) (int, error)

	// Reset stops a service and removes its container together with its
	// anonymous volumes. Destructive: callers must pass force explicitly;
	// there is no interactive confirmation.
	Reset(ctx context.Context, service string, force bool) error

	// Ping validates connectivity to the runtime.
	Ping(ctx context.Context) error

	// Close releases resources associated with the supervisor.
	Close() error
}
