package usecase

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"coinsnap/internal/domain"
)

// PushSender delivers a notification to device tokens. Implemented by *fcm.Client.
type PushSender interface {
	IsEnabled() bool
	SendMulticast(ctx context.Context, tokens []string, title, body string, data map[string]string) error
}

// TokenSource lists the devices to notify.
type TokenSource interface {
	GetAllTokens() []string
}

// RunNotifier pushes the outcome of every run to the registered devices.
// A failed notification is logged and never changes the run outcome.
type RunNotifier struct {
	sender PushSender
	tokens TokenSource
}

func NewRunNotifier(sender PushSender, tokens TokenSource) *RunNotifier {
	return &RunNotifier{sender: sender, tokens: tokens}
}

func (n *RunNotifier) ObserveRun(ctx context.Context, report *domain.RunReport) {
	if n.sender == nil || !n.sender.IsEnabled() {
		return // FCM not configured
	}

	tokens := n.tokens.GetAllTokens()
	if len(tokens) == 0 {
		return // No registered devices
	}

	title, body, data := runMessage(report)
	logger := zerolog.Ctx(ctx)
	if err := n.sender.SendMulticast(ctx, tokens, title, body, data); err != nil {
		logger.Error().Err(err).Msg("Error sending run notification")
		return
	}
	logger.Info().Int("devices", len(tokens)).Msg("Sent run notification")
}

func runMessage(r *domain.RunReport) (title, body string, data map[string]string) {
	switch r.Outcome {
	case domain.OutcomeSuccess:
		title = "Snapshot updated"
	case domain.OutcomePartial:
		title = "Snapshot partially updated"
	case domain.OutcomeEmpty:
		title = "Snapshot skipped: no data"
	default:
		title = "Snapshot run failed"
	}

	body = fmt.Sprintf("%d assets | top %d | others %d", r.Valid(), len(r.Partition.TopTier), len(r.Partition.Remainder))
	if r.Err != nil {
		body = r.Err.Error()
	} else if len(r.SinkErrors) > 0 {
		failed := make([]string, 0, len(r.SinkErrors))
		for _, name := range r.SinksAttempted {
			if _, ok := r.SinkErrors[name]; ok {
				failed = append(failed, name)
			}
		}
		body += " | failed: " + strings.Join(failed, ", ")
	}

	data = map[string]string{
		"runId":   r.RunID,
		"outcome": string(r.Outcome),
		"state":   string(r.State),
		"valid":   strconv.Itoa(r.Valid()),
	}
	return title, body, data
}
