package ingest

import (
	"regexp"

	validatorv10 "github.com/go-playground/validator/v10"
)

// InboundEvent is a parsed Slack message event handed to Ingest, either
// directly from the events webhook or via the detection queue.
type InboundEvent struct {
	TeamID   string `json:"team_id" validate:"required"`
	EventID  string `json:"event_id" validate:"required"`
	Channel  string `json:"channel" validate:"required"`
	TS       string `json:"ts" validate:"required"`
	Text     string `json:"text"` // may be empty; empty posts are skipped, not rejected
	User     string `json:"user,omitempty"`
	ThreadTS string `json:"thread_ts,omitempty"`
	Subtype  string `json:"subtype,omitempty"`
	BotID    string `json:"bot_id,omitempty"`
}

var slackTSPattern = regexp.MustCompile(`^\d+\.\d+$`)

// NewValidator returns a validator with the inbound event struct-level
// validation registered.
func NewValidator() *validatorv10.Validate {
	v := validatorv10.New()
	v.RegisterStructValidation(inboundEventStructValidation, InboundEvent{})
	return v
}

// inboundEventStructValidation rejects timestamps that are not in the
// Slack "<seconds>.<suffix>" form; origin_ts keys the threaded reply
// later, so a mangled value would strand the confirmation.
func inboundEventStructValidation(sl validatorv10.StructLevel) {
	ev := sl.Current().Interface().(InboundEvent)
	if ev.TS != "" && !slackTSPattern.MatchString(ev.TS) {
		sl.ReportError(ev.TS, "ts", "TS", "slack_ts", "")
	}
}
