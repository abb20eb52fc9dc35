package token

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tok := New("slack:Ev123", "C042", "1700000000.000100", "spam link", []string{"art-3"})

	raw, err := tok.Encode()
	require.NoError(t, err)
	assert.LessOrEqual(t, len(raw), 2000)

	got, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "v1", got.Version)
	assert.Equal(t, "slack:Ev123", got.TraceID)
	assert.Equal(t, "C042", got.OriginChannel)
	assert.Equal(t, "1700000000.000100", got.OriginTS)
	assert.Equal(t, "spam link", got.Reason)
	assert.Equal(t, []string{"art-3"}, got.PolicyRefs)
}

func TestDecodeNotJSON(t *testing.T) {
	_, err := Decode("not json")
	require.ErrorIs(t, err, ErrMalformedToken)
}

func TestDecodeEmptyObject(t *testing.T) {
	_, err := Decode("{}")
	require.ErrorIs(t, err, ErrMissingField)
}

func TestDecodeMissingFields(t *testing.T) {
	cases := map[string]string{
		"trace_id":       `{"version":"v1","origin_channel":"C1","origin_ts":"1.2"}`,
		"origin_channel": `{"version":"v1","trace_id":"slack:E1","origin_ts":"1.2"}`,
		"origin_ts":      `{"version":"v1","trace_id":"slack:E1","origin_channel":"C1"}`,
	}
	for field, raw := range cases {
		_, err := Decode(raw)
		require.ErrorIs(t, err, ErrMissingField, "field %s", field)
		assert.Contains(t, err.Error(), field)
	}
}

func TestDecodeUnsupportedVersion(t *testing.T) {
	_, err := Decode(`{"version":"v99","trace_id":"slack:E1","origin_channel":"C1","origin_ts":"1.2"}`)
	require.ErrorIs(t, err, ErrUnsupportedVersion)
	assert.Contains(t, err.Error(), "v99")
}

func TestDecodeRejectsControlCharacters(t *testing.T) {
	_, err := Decode("{\"version\":\"v1\",\n\"trace_id\":\"slack:E1\",\"origin_channel\":\"C1\",\"origin_ts\":\"1.2\"}")
	require.ErrorIs(t, err, ErrMalformedToken)
}

func TestEncodeRejectsMissingFields(t *testing.T) {
	_, err := Token{Version: Version, TraceID: "slack:E1", OriginTS: "1.2"}.Encode()
	require.ErrorIs(t, err, ErrMissingField)
}

func TestEncodeRejectsForeignVersion(t *testing.T) {
	_, err := Token{Version: "v2", TraceID: "slack:E1", OriginChannel: "C1", OriginTS: "1.2"}.Encode()
	require.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestEncodeRejectsOversizedToken(t *testing.T) {
	tok := New("slack:E1", "C1", "1.2", strings.Repeat("x", 3000), nil)
	_, err := tok.Encode()
	require.Error(t, err)
}

func TestEncodeFillsDefaultVersion(t *testing.T) {
	raw, err := Token{TraceID: "slack:E1", OriginChannel: "C1", OriginTS: "1.2"}.Encode()
	require.NoError(t, err)
	got, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, Version, got.Version)
}
