package violation

import "time"

// Status values for violation records.
const (
	StatusUnprocessed = "UNPROCESSED"
	StatusApproved    = "APPROVED"
	StatusDismissed   = "DISMISSED"
)

// Source prefixes trace ids; this deployment only ingests from Slack.
const Source = "slack"

// TraceID derives the record key from an inbound event id.
func TraceID(eventID string) string {
	return Source + ":" + eventID
}

// IsTerminal reports whether a status admits no further transitions.
func IsTerminal(status string) bool {
	return status == StatusApproved || status == StatusDismissed
}

// ValidTarget reports whether a status is a legal transition target.
// UNPROCESSED is the initial state only, never a target.
func ValidTarget(status string) bool {
	return status == StatusApproved || status == StatusDismissed
}

// Classification is the immutable verdict attached at record creation.
type Classification struct {
	Category   string   `dynamodbav:"category,omitempty"`
	Confidence float64  `dynamodbav:"confidence"`
	Reasons    []string `dynamodbav:"reasons,omitempty"`
	ArticleID  string   `dynamodbav:"article_id,omitempty"`
}

// Record is the item stored in the violations DynamoDB table.
type Record struct {
	TraceID        string         `dynamodbav:"trace_id"` // PK, "<source>:<event_id>"
	Status         string         `dynamodbav:"status"`   // UNPROCESSED | APPROVED | DISMISSED
	OriginChannel  string         `dynamodbav:"origin_channel"`
	OriginTS       string         `dynamodbav:"origin_ts"`
	OriginUser     string         `dynamodbav:"origin_user,omitempty"`
	Text           string         `dynamodbav:"text,omitempty"`
	Classification Classification `dynamodbav:"classification"`
	ResponderID    string         `dynamodbav:"responder_id,omitempty"`
	DecidedAt      *time.Time     `dynamodbav:"decided_at,omitempty"`
	CreatedAt      time.Time      `dynamodbav:"created_at"`
}

// TransitionResult is the outcome of a conditional status transition.
// Exactly one caller per trace id ever observes Applied=true.
type TransitionResult struct {
	Applied  bool
	Previous string // status found when not applied
}
