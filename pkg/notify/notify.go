// Package notify implements the human-review escalation notifier (A5):
// when a project requires human review (C1's amount/risk/typology/EFOS
// triggers, or C7 exhausting its iterative-review cap) a message is
// posted to a Slack channel so a reviewer picks it up.
//
// Grounded on the teacher's pkg/slack package: NewClient wraps
// goslack.New(token) the same way, and the Block Kit section/button
// layout in BuildEscalationMessage follows pkg/slack/message.go's
// BuildTerminalMessage shape (status line, optional detail, a "View"
// button linking back to the dashboard).
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goslack "github.com/slack-go/slack"

	"github.com/revisoria/poe-engine/pkg/model"
)

const maxBlockTextLength = 2900

// Event is what triggers a notification.
type Event struct {
	ProjectID  string
	Reason     string // e.g. "amount_threshold", "risk_score", "typology", "efos_flag", "review_cap_exceeded"
	RiskLevel  model.RiskLevel
	Amount     model.Cents
	DashboardURL string
}

// Notifier is the human-review escalation boundary. Implementations must
// not block the caller for long — Slack/webhook calls get their own
// timeout internally.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// NoopNotifier discards every event; the default when no channel is
// configured, so A5 behaves as a true no-op rather than an error source.
type NoopNotifier struct{}

func (NoopNotifier) Notify(context.Context, Event) error { return nil }

// SlackNotifier posts Block Kit messages to a fixed channel.
type SlackNotifier struct {
	api       *goslack.Client
	channelID string
	timeout   time.Duration
}

// NewSlackNotifier builds a SlackNotifier. timeout<=0 defaults to 10s.
func NewSlackNotifier(token, channelID string, timeout time.Duration) *SlackNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SlackNotifier{api: goslack.New(token), channelID: channelID, timeout: timeout}
}

// Notify posts the escalation. Failures are logged and returned but
// never retried — the defense file already holds the authoritative
// record of why review was required; this is a best-effort page, not a
// system of record.
func (n *SlackNotifier) Notify(ctx context.Context, event Event) error {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	blocks := buildEscalationMessage(event)
	_, _, err := n.api.PostMessageContext(ctx, n.channelID, goslack.MsgOptionBlocks(blocks...))
	if err != nil {
		slog.Error("notify: failed to post escalation message", "project_id", event.ProjectID, "error", err)
		return fmt.Errorf("chat.postMessage: %w", err)
	}
	return nil
}

func buildEscalationMessage(event Event) []goslack.Block {
	headerText := fmt.Sprintf(":rotating_light: *Human review required* — project `%s`\n*Reason:* %s",
		event.ProjectID, reasonLabel(event.Reason))

	var blocks []goslack.Block
	blocks = append(blocks, goslack.NewSectionBlock(
		goslack.NewTextBlockObject(goslack.MarkdownType, truncate(headerText), false, false),
		nil, nil,
	))

	detail := fmt.Sprintf("Amount: %s · Risk level: %s", event.Amount, event.RiskLevel)
	blocks = append(blocks, goslack.NewSectionBlock(
		goslack.NewTextBlockObject(goslack.MarkdownType, detail, false, false),
		nil, nil,
	))

	if event.DashboardURL != "" {
		btn := goslack.NewButtonBlockElement("", "",
			goslack.NewTextBlockObject(goslack.PlainTextType, "Review project", false, false))
		btn.URL = event.DashboardURL
		blocks = append(blocks, goslack.NewActionBlock("", btn))
	}

	return blocks
}

func reasonLabel(reason string) string {
	switch reason {
	case "amount_threshold":
		return "amount exceeds the human-review threshold"
	case "risk_score":
		return "risk score at or above the human-review threshold"
	case "typology":
		return "typology always requires human review"
	case "efos_flag":
		return "supplier is flagged on the EFOS list"
	case "related_party":
		return "related-party transaction"
	case "review_cap_exceeded":
		return "iterative review cycles exhausted"
	default:
		return reason
	}
}

func truncate(text string) string {
	if len(text) <= maxBlockTextLength {
		return text
	}
	return text[:maxBlockTextLength] + "\n\n_...(truncated)_"
}
