package protocol_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FOCUS_TRACKER/go-backend/internal/protocol"
)

func TestDecodeValidMessages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want func(t *testing.T, msg protocol.Inbound)
	}{
		{
			name: "session start",
			raw:  `{"type":"session_start","user_id":"user1","timestamp":1700000000.5}`,
			want: func(t *testing.T, msg protocol.Inbound) {
				assert.Equal(t, "user1", msg.UserID)
				require.NotNil(t, msg.Timestamp)
				assert.Equal(t, time.Unix(1700000000, 500_000_000).UTC(), msg.Timestamp.Time)
			},
		},
		{
			name: "status update",
			raw:  `{"type":"status_update","is_focused":false,"duration":12.34}`,
			want: func(t *testing.T, msg protocol.Inbound) {
				require.NotNil(t, msg.IsFocused)
				assert.False(t, *msg.IsFocused)
				assert.InDelta(t, 12.34, msg.DurationOrZero(), 1e-9)
				assert.Nil(t, msg.Timestamp)
			},
		},
		{
			name: "session end without trailing interval",
			raw:  `{"type":"session_end","timestamp":"2025-03-01T09:30:00"}`,
			want: func(t *testing.T, msg protocol.Inbound) {
				assert.Nil(t, msg.Duration)
				assert.Zero(t, msg.DurationOrZero())
				require.NotNil(t, msg.Timestamp)
				assert.Equal(t, time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC), msg.Timestamp.Time)
			},
		},
		{
			name: "ping",
			raw:  `{"type":"ping"}`,
			want: func(t *testing.T, msg protocol.Inbound) {
				assert.Equal(t, protocol.TypePing, msg.Type)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			msg, err := protocol.Decode([]byte(tt.raw))
			require.NoError(t, err)
			tt.want(t, msg)
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{
		`not json`,
		`{}`,
		`{"user_id":"x"}`,
		`{"type":"session_start"}`,
		`{"type":"session_start","user_id":""}`,
		`{"type":"status_update","duration":1}`,
		`{"type":"status_update","is_focused":true}`,
		`{"type":"status_update","is_focused":"yes","duration":1}`,
		`{"type":"status_update","is_focused":true,"duration":-1}`,
		`{"type":"session_end","duration":-0.5}`,
		`{"type":"ping","timestamp":"yesterday"}`,
	} {
		_, err := protocol.Decode([]byte(raw))
		assert.ErrorIs(t, err, protocol.ErrMalformed, raw)
	}
}

func TestDecodeUnknownType(t *testing.T) {
	t.Parallel()

	msg, err := protocol.Decode([]byte(`{"type":"calibrate","gain":3}`))
	require.ErrorIs(t, err, protocol.ErrUnknownType)
	assert.NotErrorIs(t, err, protocol.ErrMalformed)
	assert.Equal(t, "calibrate", msg.Type)
}

func TestInstantRepresentations(t *testing.T) {
	t.Parallel()

	want := time.Date(2024, 5, 6, 7, 8, 9, 250_000_000, time.UTC)
	for _, raw := range []string{
		`1714979289.25`,
		`"2024-05-06T07:08:09.25Z"`,
		`"2024-05-06T09:08:09.25+02:00"`,
		`"2024-05-06T07:08:09.250000"`,
		`"2024-05-06 07:08:09.25"`,
	} {
		var in protocol.Instant
		require.NoError(t, json.Unmarshal([]byte(raw), &in), raw)
		assert.True(t, want.Equal(in.Time), "%s decoded to %s", raw, in.Time)
		assert.Equal(t, time.UTC, in.Location(), raw)
	}
}

func TestOutboundEncoding(t *testing.T) {
	t.Parallel()

	at := time.Unix(1700000000, 0)
	data, err := json.Marshal(protocol.SessionEnded(protocol.SessionData{
		TotalTime:     15,
		FocusedTime:   10,
		UnfocusedTime: 5,
	}, at))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "session_ended", decoded["type"])
	assert.Equal(t, float64(1700000000), decoded["timestamp"])
	sessionData, ok := decoded["session_data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 15.0, sessionData["total_time"])
	assert.NotContains(t, decoded, "code")
}

func TestClientConstructorsValidate(t *testing.T) {
	t.Parallel()

	at := time.Now()
	for _, msg := range []protocol.Inbound{
		protocol.SessionStart("u", at),
		protocol.StatusUpdate(true, 0, at),
		protocol.SessionEnd(false, 3.2, at),
		protocol.Ping(at),
	} {
		data, err := json.Marshal(msg)
		require.NoError(t, err)
		_, err = protocol.Decode(data)
		assert.NoError(t, err, string(data))
	}
}
