package slack

import (
	"fmt"
	"strings"
)

// Action ids carried on the alert buttons. The interactions handler
// recognizes exactly these two.
const (
	ActionApprove = "approve_violation"
	ActionDismiss = "dismiss_violation"
)

// AlertInput describes one detected violation for the admin channel.
type AlertInput struct {
	UserID     string
	UserName   string
	Channel    string
	Severity   string
	Category   string
	Confidence float64
	Reason     string
	Text       string
	Permalink  string
}

// BuildAlertBlocks renders the admin notification. encodedToken is
// attached as the value of both action buttons; it is the only state
// the responder side ever receives.
func BuildAlertBlocks(input AlertInput, encodedToken string) []map[string]any {
	who := input.UserName
	if who == "" {
		who = input.UserID
	}

	excerpt := input.Text
	if len(excerpt) > 300 {
		excerpt = excerpt[:300] + "…"
	}

	blocks := []map[string]any{
		{
			"type": "section",
			"text": map[string]any{
				"type": "mrkdwn",
				"text": ":rotating_light: *Possible guideline violation detected*",
			},
		},
		{
			"type": "section",
			"fields": []map[string]any{
				{"type": "mrkdwn", "text": "*User*\n" + who},
				{"type": "mrkdwn", "text": "*Channel*\n" + input.Channel},
				{"type": "mrkdwn", "text": "*Severity*\n" + input.Severity},
				{"type": "mrkdwn", "text": fmt.Sprintf("*Confidence*\n%.2f", input.Confidence)},
			},
		},
	}

	if input.Category != "" || input.Reason != "" {
		detail := strings.TrimSpace(strings.Join([]string{input.Category, input.Reason}, ": "))
		detail = strings.Trim(detail, ": ")
		blocks = append(blocks, map[string]any{
			"type": "section",
			"text": map[string]any{"type": "mrkdwn", "text": "*Why*\n" + detail},
		})
	}

	if excerpt != "" {
		blocks = append(blocks, map[string]any{
			"type": "section",
			"text": map[string]any{"type": "mrkdwn", "text": "*Post*\n> " + excerpt},
		})
	}

	if input.Permalink != "" {
		blocks = append(blocks, map[string]any{
			"type": "section",
			"text": map[string]any{"type": "mrkdwn", "text": "<" + input.Permalink + "|Open post>"},
		})
	}

	blocks = append(blocks, map[string]any{
		"type": "actions",
		"elements": []map[string]any{
			{
				"type":      "button",
				"text":      map[string]any{"type": "plain_text", "text": "Send warning"},
				"style":     "primary",
				"action_id": ActionApprove,
				"value":     encodedToken,
			},
			{
				"type":      "button",
				"text":      map[string]any{"type": "plain_text", "text": "Dismiss"},
				"style":     "danger",
				"action_id": ActionDismiss,
				"value":     encodedToken,
			},
		},
	})

	return blocks
}

// AdvisoryReply renders the fixed warning posted as a threaded reply on
// the offending message once an admin approves.
func AdvisoryReply(policyRefs []string) string {
	refs := "the community guidelines"
	if len(policyRefs) > 0 {
		refs = strings.Join(policyRefs, ", ")
	}
	return ":warning: *Guideline notice*\n\n" +
		"This post may conflict with " + refs + ".\n" +
		"Please review it and remove or edit it if needed. " +
		"If anything is unclear, contact the moderators."
}

// Permalink builds the Slack archive URL for a message.
func Permalink(channelID, ts string) string {
	return "https://slack.com/archives/" + channelID + "/p" + strings.ReplaceAll(ts, ".", "")
}
