package notify

import (
	"context"

	"github.com/nholik/stackboot/internal/bootstrap"
)

// Notifier delivers bootstrap outcome reports to external systems.
type Notifier interface {
	Notify(ctx context.Context, result bootstrap.Result) error
}
