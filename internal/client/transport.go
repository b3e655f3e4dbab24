package client

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/xerrors"

	"FOCUS_TRACKER/go-backend/internal/protocol"
)

const writeWait = 10 * time.Second

// Transport carries protocol messages to and from the session server.
type Transport interface {
	Send(ctx context.Context, msg protocol.Inbound) error
	Receive(ctx context.Context) (protocol.Outbound, error)
	Close() error
}

// WSTransport is a Transport over a gorilla websocket. Send is safe for
// concurrent use; Receive must only be called from one goroutine.
type WSTransport struct {
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

// Dial connects to server, a ws:// or wss:// URL. clientID is optional.
func Dial(ctx context.Context, server, clientID string) (*WSTransport, error) {
	u, err := url.Parse(server)
	if err != nil {
		return nil, xerrors.Errorf("parse server url %q: %w", server, err)
	}
	if clientID != "" {
		q := u.Query()
		q.Set("clientId", clientID)
		u.RawQuery = q.Encode()
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, xerrors.Errorf("dial %s: %w", u.Redacted(), err)
	}
	return &WSTransport{conn: conn}, nil
}

func (t *WSTransport) Send(ctx context.Context, msg protocol.Inbound) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return xerrors.New("transport closed")
	}
	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = t.conn.SetWriteDeadline(deadline)
	if err := t.conn.WriteJSON(msg); err != nil {
		return xerrors.Errorf("send %s: %w", msg.Type, err)
	}
	return nil
}

func (t *WSTransport) Receive(ctx context.Context) (protocol.Outbound, error) {
	if d, ok := ctx.Deadline(); ok {
		_ = t.conn.SetReadDeadline(d)
	} else {
		_ = t.conn.SetReadDeadline(time.Time{})
	}
	var msg protocol.Outbound
	if err := t.conn.ReadJSON(&msg); err != nil {
		return protocol.Outbound{}, xerrors.Errorf("receive: %w", err)
	}
	return msg, nil
}

// Close sends a normal close frame and closes the connection. It is safe to
// call more than once.
func (t *WSTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	return t.conn.Close()
}
