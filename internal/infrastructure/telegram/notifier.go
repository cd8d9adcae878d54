package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"resty.dev/v3"

	"ContentSync/internal/domain"
	"ContentSync/internal/metrics"
	"ContentSync/internal/ports"
)

const defaultAPIBase = "https://api.telegram.org"

// Notifier sends run summaries to a Telegram chat via bot API.
type Notifier struct {
	botToken string
	chatID   string
	apiBase  string
	client   *resty.Client
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier.
func NewNotifier(botToken, chatID string) *Notifier {
	client := resty.New().SetTimeout(5 * time.Second)
	client.AddResponseMiddleware(metrics.LatencyMiddleware("telegram"))

	return &Notifier{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  defaultAPIBase,
		client:   client,
	}
}

// PublishSummary posts a plain-text run summary to the chat.
func (n *Notifier) PublishSummary(ctx context.Context, summary domain.RunSummary) error {
	if n.botToken == "" || n.chatID == "" || n.client == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(n.apiBase, "/"), n.botToken)
	res, err := n.client.R().
		WithContext(metrics.WithRoute(ctx, "sendMessage")).
		SetFormData(map[string]string{
			"chat_id": n.chatID,
			"text":    FormatSummary(summary),
		}).
		Post(endpoint)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	if res.IsError() {
		return fmt.Errorf("telegram error: %s", res.Status())
	}

	return nil
}

// FormatSummary renders the message body sent to the chat.
func FormatSummary(s domain.RunSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sync %s: %s (%s)\n", s.Source, s.State, s.Duration().Round(time.Second))
	fmt.Fprintf(&b, "New: %d publications, %d comments\n", s.NewPublications, s.NewComments)
	fmt.Fprintf(&b, "Skipped: %d publications, %d comments\n", s.SkippedPublications, s.SkippedComments)
	if s.CommentFetchFailures > 0 {
		fmt.Fprintf(&b, "Comment fetch failures: %d\n", s.CommentFetchFailures)
	}
	if s.TranslationFallbacks > 0 || s.SentimentFallbacks > 0 {
		fmt.Fprintf(&b, "Fallbacks: %d translation, %d sentiment\n", s.TranslationFallbacks, s.SentimentFallbacks)
	}
	if len(s.FailedUnits) > 0 {
		fmt.Fprintf(&b, "Rolled back units: %d\n", len(s.FailedUnits))
	}
	if s.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", s.Error)
	}
	return strings.TrimRight(b.String(), "\n")
}
