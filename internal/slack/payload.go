package slack

import (
	"encoding/json"
	"errors"
	"net/url"
)

// Interaction is the distilled block_actions payload: the pressed button
// and who pressed it.
type Interaction struct {
	ActionID      string
	Value         string
	ResponderID   string
	ResponderName string
}

var ErrBadInteractionPayload = errors.New("malformed interaction payload")

// ParseInteraction extracts the first action from a form-encoded
// interactivity request body (payload=<JSON>).
func ParseInteraction(body []byte) (Interaction, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return Interaction{}, ErrBadInteractionPayload
	}
	payloadStr := values.Get("payload")
	if payloadStr == "" {
		return Interaction{}, ErrBadInteractionPayload
	}

	var payload struct {
		Type string `json:"type"`
		User struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"user"`
		Actions []struct {
			ActionID string `json:"action_id"`
			Value    string `json:"value"`
		} `json:"actions"`
	}
	if err := json.Unmarshal([]byte(payloadStr), &payload); err != nil {
		return Interaction{}, ErrBadInteractionPayload
	}
	if payload.Type != "block_actions" || len(payload.Actions) == 0 {
		return Interaction{}, ErrBadInteractionPayload
	}

	return Interaction{
		ActionID:      payload.Actions[0].ActionID,
		Value:         payload.Actions[0].Value,
		ResponderID:   payload.User.ID,
		ResponderName: payload.User.Name,
	}, nil
}
