// Package classify defines the boundary to the external post classifier.
// The real detector (NG-word list, retrieval, LLM) lives outside this
// service; ingestion only depends on the interface.
package classify

import "context"

// Verdict values returned by a classifier.
const (
	VerdictViolation   = "violation"
	VerdictNeedsReview = "needs_review"
	VerdictSafe        = "safe"
)

// Severity buckets derived from classifier confidence.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// Result is the classifier's verdict for a single post.
type Result struct {
	Verdict    string
	Category   string
	Confidence float64
	Reasons    []string
	ArticleID  string
}

// Actionable reports whether the verdict warrants a violation record.
func (r Result) Actionable() bool {
	return r.Verdict == VerdictViolation || r.Verdict == VerdictNeedsReview
}

// SeverityFor maps a confidence score to a severity bucket for rendering.
func SeverityFor(confidence float64) string {
	if confidence >= 0.8 {
		return SeverityHigh
	}
	if confidence >= 0.5 {
		return SeverityMedium
	}
	return SeverityLow
}

// Classifier decides whether a post violates the guidelines.
type Classifier interface {
	Classify(ctx context.Context, text string) (Result, error)
}
