// Package protocol defines the JSON messages exchanged between the focus
// client and the session server over the websocket.
package protocol

import (
	"encoding/json"
	"errors"
	"time"

	"golang.org/x/xerrors"
)

// Client to server.
const (
	TypeSessionStart = "session_start"
	TypeStatusUpdate = "status_update"
	TypeSessionEnd   = "session_end"
	TypePing         = "ping"
)

// Server to client.
const (
	TypeSessionStarted = "session_started"
	TypeSessionEnded   = "session_ended"
	TypePong           = "pong"
	TypeNotice         = "notice"
)

const (
	NoticeLevelWarning = "warning"
	NoticeLevelInfo    = "info"

	NoticePersistenceFailed = "persistence_failed"
	NoticeServerShutdown    = "server_shutdown"
)

var (
	// ErrMalformed marks a message that must be dropped without closing the
	// connection.
	ErrMalformed = errors.New("malformed message")
	// ErrUnknownType is returned for well-formed messages with a type this
	// version does not know. Callers ignore them.
	ErrUnknownType = errors.New("unknown message type")
)

// Inbound is a decoded client message. Optional fields stay nil when absent.
type Inbound struct {
	Type      string   `json:"type"`
	UserID    string   `json:"user_id,omitempty"`
	IsFocused *bool    `json:"is_focused,omitempty"`
	Duration  *float64 `json:"duration,omitempty"`
	Timestamp *Instant `json:"timestamp,omitempty"`
}

// Decode parses and validates a single client message.
func Decode(data []byte) (Inbound, error) {
	var msg Inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		return Inbound{}, xerrors.Errorf("decode %q: %v: %w", truncate(data, 64), err, ErrMalformed)
	}
	if msg.Type == "" {
		return Inbound{}, xerrors.Errorf("missing type: %w", ErrMalformed)
	}
	if err := msg.Validate(); err != nil {
		return msg, err
	}
	return msg, nil
}

func (m Inbound) Validate() error {
	switch m.Type {
	case TypeSessionStart:
		if m.UserID == "" {
			return xerrors.Errorf("session_start requires user_id: %w", ErrMalformed)
		}
	case TypeStatusUpdate:
		if m.IsFocused == nil {
			return xerrors.Errorf("status_update requires is_focused: %w", ErrMalformed)
		}
		if m.Duration == nil {
			return xerrors.Errorf("status_update requires duration: %w", ErrMalformed)
		}
		if *m.Duration < 0 {
			return xerrors.Errorf("negative duration %v: %w", *m.Duration, ErrMalformed)
		}
	case TypeSessionEnd:
		if m.Duration != nil && *m.Duration < 0 {
			return xerrors.Errorf("negative duration %v: %w", *m.Duration, ErrMalformed)
		}
	case TypePing:
	default:
		return xerrors.Errorf("type %q: %w", m.Type, ErrUnknownType)
	}
	return nil
}

func truncate(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return string(data[:n]) + "..."
}

// DurationOrZero returns the reported duration, 0 when absent.
func (m Inbound) DurationOrZero() float64 {
	if m.Duration == nil {
		return 0
	}
	return *m.Duration
}

func SessionStart(userID string, at time.Time) Inbound {
	ts := NewInstant(at)
	return Inbound{Type: TypeSessionStart, UserID: userID, Timestamp: &ts}
}

func StatusUpdate(isFocused bool, duration float64, at time.Time) Inbound {
	ts := NewInstant(at)
	return Inbound{Type: TypeStatusUpdate, IsFocused: &isFocused, Duration: &duration, Timestamp: &ts}
}

func SessionEnd(isFocused bool, duration float64, at time.Time) Inbound {
	ts := NewInstant(at)
	return Inbound{Type: TypeSessionEnd, IsFocused: &isFocused, Duration: &duration, Timestamp: &ts}
}

func Ping(at time.Time) Inbound {
	ts := NewInstant(at)
	return Inbound{Type: TypePing, Timestamp: &ts}
}

// SessionData is the rounded summary carried by session_ended.
type SessionData struct {
	TotalTime     float64 `json:"total_time"`
	FocusedTime   float64 `json:"focused_time"`
	UnfocusedTime float64 `json:"unfocused_time"`
}

// Outbound is any server message. Fields not used by a type are omitted.
type Outbound struct {
	Type        string       `json:"type"`
	Message     string       `json:"message,omitempty"`
	UserID      string       `json:"user_id,omitempty"`
	SessionData *SessionData `json:"session_data,omitempty"`
	Level       string       `json:"level,omitempty"`
	Code        string       `json:"code,omitempty"`
	Timestamp   float64      `json:"timestamp"`
}

func SessionStarted(userID string, at time.Time) Outbound {
	return Outbound{
		Type:      TypeSessionStarted,
		Message:   "session started",
		UserID:    userID,
		Timestamp: Epoch(at),
	}
}

func SessionEnded(data SessionData, at time.Time) Outbound {
	return Outbound{
		Type:        TypeSessionEnded,
		Message:     "session ended",
		SessionData: &data,
		Timestamp:   Epoch(at),
	}
}

func Pong(at time.Time) Outbound {
	return Outbound{Type: TypePong, Timestamp: Epoch(at)}
}

func Notice(level, code, message string, at time.Time) Outbound {
	return Outbound{
		Type:      TypeNotice,
		Level:     level,
		Code:      code,
		Message:   message,
		Timestamp: Epoch(at),
	}
}
