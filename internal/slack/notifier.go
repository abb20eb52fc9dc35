package slack

import (
	"context"
	"fmt"

	"github.com/guardpost/guardpost/internal/classify"
	"github.com/guardpost/guardpost/internal/violation"
)

// Notifier posts admin alerts and threaded advisory replies. It is the
// outbound half of both the ingestion and dispatch flows.
type Notifier struct {
	Client       *Client
	AdminChannel string
}

func NewNotifier(client *Client, adminChannel string) *Notifier {
	return &Notifier{Client: client, AdminChannel: adminChannel}
}

// NotifyViolation posts the alert with both action buttons to the admin
// channel. encodedToken is embedded in each button value.
func (n *Notifier) NotifyViolation(ctx context.Context, rec violation.Record, encodedToken string) error {
	if n.AdminChannel == "" {
		return fmt.Errorf("no admin channel configured")
	}

	reason := ""
	if len(rec.Classification.Reasons) > 0 {
		reason = rec.Classification.Reasons[0]
	}

	blocks := BuildAlertBlocks(AlertInput{
		UserID:     rec.OriginUser,
		Channel:    rec.OriginChannel,
		Severity:   classify.SeverityFor(rec.Classification.Confidence),
		Category:   rec.Classification.Category,
		Confidence: rec.Classification.Confidence,
		Reason:     reason,
		Text:       rec.Text,
		Permalink:  Permalink(rec.OriginChannel, rec.OriginTS),
	}, encodedToken)

	_, err := n.Client.PostMessage(ctx, n.AdminChannel, "Possible guideline violation detected", "", blocks)
	if err != nil {
		return fmt.Errorf("post alert: %w", err)
	}
	return nil
}

// PostThreadReply posts a confirmation into the thread of the original post.
func (n *Notifier) PostThreadReply(ctx context.Context, channel, ts, text string) error {
	_, err := n.Client.PostMessage(ctx, channel, text, ts, nil)
	if err != nil {
		return fmt.Errorf("post thread reply: %w", err)
	}
	return nil
}
