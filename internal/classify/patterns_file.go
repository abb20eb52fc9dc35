package classify

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadPatterns reads banned-phrase rules from a JSON file:
// [{"phrase": "...", "category": "...", "article_id": "..."}, ...]
func LoadPatterns(path string) ([]Pattern, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read patterns: %w", err)
	}

	var raw []struct {
		Phrase    string `json:"phrase"`
		Category  string `json:"category"`
		ArticleID string `json:"article_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse patterns: %w", err)
	}

	patterns := make([]Pattern, 0, len(raw))
	for _, r := range raw {
		patterns = append(patterns, Pattern{Phrase: r.Phrase, Category: r.Category, ArticleID: r.ArticleID})
	}
	return patterns, nil
}
