package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/nholik/stackboot/internal/bootstrap"
)

// DryRunNotifier logs outcomes without sending notifications.
type DryRunNotifier struct {
	logger zerolog.Logger
	inner  Notifier
}

// NewDryRunNotifier returns a notifier that suppresses delivery and logs instead.
func NewDryRunNotifier(logger zerolog.Logger, inner Notifier) *DryRunNotifier {
	return &DryRunNotifier{logger: logger, inner: inner}
}

// Notify implements Notifier.
func (n *DryRunNotifier) Notify(_ context.Context, result bootstrap.Result) error {
	n.logger.Info().
		Str("run_id", result.RunID).
		Str("outcome", string(result.Outcome)).
		Str("name", result.Name).
		Str("error", result.ErrorText()).
		Msg("[DRY-RUN] Would notify")
	return nil
}
