package classify

import (
	"context"
	"strings"
)

// Pattern is one banned-phrase rule.
type Pattern struct {
	Phrase    string
	Category  string
	ArticleID string
}

// PatternClassifier is the reference classifier: a case-insensitive
// banned-phrase scan, the first stage of the production detector. Used
// in local mode and tests.
type PatternClassifier struct {
	patterns []Pattern
}

func NewPatternClassifier(patterns []Pattern) *PatternClassifier {
	return &PatternClassifier{patterns: patterns}
}

func (c *PatternClassifier) Classify(ctx context.Context, text string) (Result, error) {
	lowered := strings.ToLower(text)
	for _, p := range c.patterns {
		if p.Phrase == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(p.Phrase)) {
			return Result{
				Verdict:    VerdictViolation,
				Category:   p.Category,
				Confidence: 0.9,
				Reasons:    []string{"matched banned phrase: " + p.Phrase},
				ArticleID:  p.ArticleID,
			}, nil
		}
	}
	return Result{Verdict: VerdictSafe}, nil
}
