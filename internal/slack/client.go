package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client is a minimal Slack Web API client over net/http.
type Client struct {
	Token   string
	BaseURL string
	HTTP    *http.Client
}

// PostMessage calls chat.postMessage and returns the posted message ts.
// A non-empty threadTS posts into the thread of that message. blocks may
// be nil for a text-only message.
func (c *Client) PostMessage(ctx context.Context, channel, text, threadTS string, blocks []map[string]any) (string, error) {
	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	baseURL := c.BaseURL
	if baseURL == "" {
		baseURL = "https://slack.com/api"
	}
	if c.Token == "" {
		return "", fmt.Errorf("missing slack token")
	}
	if channel == "" {
		return "", fmt.Errorf("missing slack channel")
	}

	payload := map[string]any{
		"channel": channel,
		"text":    text,
	}
	if threadTS != "" {
		payload["thread_ts"] = threadTS
	}
	if len(blocks) > 0 {
		payload["blocks"] = blocks
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/chat.postMessage", bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Content-Type", "application/json")

	res, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("slack request: %w", err)
	}
	defer res.Body.Close()

	var resp struct {
		OK    bool   `json:"ok"`
		Error string `json:"error,omitempty"`
		TS    string `json:"ts,omitempty"`
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return "", err
	}
	if !resp.OK {
		if resp.Error == "" {
			resp.Error = "slack api error"
		}
		return "", fmt.Errorf("chat.postMessage: %s", resp.Error)
	}
	if resp.TS == "" {
		return "", fmt.Errorf("missing slack message ts")
	}
	return resp.TS, nil
}
