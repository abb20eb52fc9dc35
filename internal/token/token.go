// Package token implements the versioned action token embedded in the
// value field of Slack alert buttons. The token is a self-contained
// capability: decoding it plus the pressed action id is everything the
// interactions handler needs to act, no session state involved.
package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Version is the only token version this deployment encodes or accepts.
const Version = "v1"

// maxEncodedLen matches the Slack limit on a button value field.
const maxEncodedLen = 2000

var (
	ErrMalformedToken     = errors.New("malformed action token")
	ErrUnsupportedVersion = errors.New("unsupported action token version")
	ErrMissingField       = errors.New("action token missing required field")
)

// Token is the wire shape carried in a button value.
type Token struct {
	Version       string   `json:"version"`
	TraceID       string   `json:"trace_id"`
	OriginChannel string   `json:"origin_channel"`
	OriginTS      string   `json:"origin_ts"`
	Reason        string   `json:"reason,omitempty"`
	PolicyRefs    []string `json:"policy_refs,omitempty"`
}

// New builds a v1 token for a violation record.
func New(traceID, originChannel, originTS, reason string, policyRefs []string) Token {
	return Token{
		Version:       Version,
		TraceID:       traceID,
		OriginChannel: originChannel,
		OriginTS:      originTS,
		Reason:        reason,
		PolicyRefs:    policyRefs,
	}
}

// Encode serializes the token to a compact JSON string suitable for a
// Slack button value. It refuses to produce a token that would be
// rejected on decode.
func (t Token) Encode() (string, error) {
	if t.Version == "" {
		t.Version = Version
	}
	if t.Version != Version {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedVersion, t.Version)
	}
	if err := t.checkRequired(); err != nil {
		return "", err
	}

	b, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("marshal token: %w", err)
	}
	if len(b) > maxEncodedLen {
		return "", fmt.Errorf("encoded token exceeds %d bytes", maxEncodedLen)
	}
	return string(b), nil
}

// Decode parses and validates a raw button value. Any failure yields a
// single classified error and no partial token.
func Decode(raw string) (Token, error) {
	if strings.ContainsFunc(raw, func(r rune) bool { return r < 0x20 }) {
		return Token{}, ErrMalformedToken
	}

	var t Token
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return Token{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if err := t.checkRequired(); err != nil {
		return Token{}, err
	}
	if t.Version != Version {
		return Token{}, fmt.Errorf("%w: %q", ErrUnsupportedVersion, t.Version)
	}
	return t, nil
}

func (t Token) checkRequired() error {
	if t.TraceID == "" {
		return fmt.Errorf("%w: trace_id", ErrMissingField)
	}
	if t.OriginChannel == "" {
		return fmt.Errorf("%w: origin_channel", ErrMissingField)
	}
	if t.OriginTS == "" {
		return fmt.Errorf("%w: origin_ts", ErrMissingField)
	}
	return nil
}
