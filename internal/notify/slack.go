package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	"github.com/nholik/stackboot/internal/bootstrap"
)

type SlackNotifier struct {
	logger     zerolog.Logger
	webhookURL string
	timing     timingConfig
	poster     *httpPoster
}

// SlackOption customizes SlackNotifier behavior.
type SlackOption func(*SlackNotifier)

// WithSlackTiming overrides timing parameters (primarily for testing).
func WithSlackTiming(rateInterval time.Duration, rateBurst int, backoffInitial, backoffMax, backoffMaxElapsed time.Duration) SlackOption {
	return func(s *SlackNotifier) {
		s.timing.rateInterval = rateInterval
		s.timing.rateBurst = rateBurst
		s.timing.backoffInitial = backoffInitial
		s.timing.backoffMax = backoffMax
		s.timing.backoffMaxElapsed = backoffMaxElapsed
	}
}

// NewSlackNotifier creates a Slack notifier or a noop notifier when the webhook is empty.
func NewSlackNotifier(logger zerolog.Logger, webhookURL string, opts ...SlackOption) Notifier {
	if webhookURL == "" {
		return NewNoop(logger, "slack webhook not configured; notifications disabled")
	}

	notifier := &SlackNotifier{
		logger:     logger,
		webhookURL: webhookURL,
		timing:     defaultTiming,
	}

	for _, opt := range opts {
		opt(notifier)
	}

	notifier.poster = newHTTPPoster(logger, "slack", webhookURL, "application/json", notifier.timing)

	return notifier
}

// Notify implements Notifier.
func (n *SlackNotifier) Notify(ctx context.Context, result bootstrap.Result) error {
	if err := n.poster.waitForRateLimit(ctx); err != nil {
		return err
	}

	message := buildSlackMessage(result)
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}
	if err := n.poster.postWithRetry(ctx, payload); err != nil {
		return err
	}

	n.logger.Debug().
		Str("run_id", result.RunID).
		Str("outcome", string(result.Outcome)).
		Msg("slack notification sent")

	return nil
}

func buildSlackMessage(result bootstrap.Result) slack.WebhookMessage {
	summary := fmt.Sprintf("Bootstrap %s: %s", result.RunID, outcomeLabel(result.Outcome))

	header := slack.NewHeaderBlock(slack.NewTextBlockObject("plain_text", summary, false, false))
	contextElements := []slack.MixedElement{
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("Run: *%s*", result.RunID), false, false),
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("Duration: %s", result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond)), false, false),
	}
	contextBlock := slack.NewContextBlock("", contextElements...)

	title := fmt.Sprintf("*Outcome:* `%s`", outcomeLabel(result.Outcome))
	text := slack.NewTextBlockObject("mrkdwn", title, false, false)

	fields := make([]*slack.TextBlockObject, 0, 2)
	if result.Name != "" {
		fields = append(fields, slack.NewTextBlockObject("mrkdwn", "*Failed on:*\n"+result.Name, false, false))
	}
	if result.Err != nil {
		fields = append(fields, slack.NewTextBlockObject("mrkdwn", "*Error:*\n```"+result.ErrorText()+"```", false, false))
	}
	section := slack.NewSectionBlock(text, fields, nil)

	blockSet := slack.Blocks{BlockSet: []slack.Block{header, contextBlock, section}}
	return slack.WebhookMessage{
		Text:   summary,
		Blocks: &blockSet,
	}
}

func outcomeLabel(outcome bootstrap.Outcome) string {
	if outcome == "" {
		return "unknown"
	}
	return string(outcome)
}
