package handlers

import (
	"context"
	"net/http"
	"time"

	"cdr.dev/slog"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/xerrors"

	"FOCUS_TRACKER/go-backend/internal/services"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// WebSocketHandler serves /ws. Each connection gets one reader (the handler
// goroutine) and one writer.
type WebSocketHandler struct {
	log             slog.Logger
	registry        *services.Registry
	upgrader        websocket.Upgrader
	maxMessageBytes int64
}

func NewWebSocketHandler(log slog.Logger, registry *services.Registry, maxMessageBytes int64, origins []string) *WebSocketHandler {
	return &WebSocketHandler{
		log:             log.Named("websocket"),
		registry:        registry,
		maxMessageBytes: maxMessageBytes,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(origins),
		},
	}
}

func originChecker(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn(ctx, "websocket upgrade failed", slog.Error(err))
		return
	}

	clientID := r.URL.Query().Get("clientId")
	if clientID == "" {
		clientID = generateClientID()
	}

	client := h.registry.NewClient(clientID)
	if err := h.registry.Register(client); err != nil {
		h.refuse(ctx, conn, clientID, err)
		return
	}
	h.log.Info(ctx, "websocket client connected", slog.F("client_id", clientID), slog.F("remote_addr", r.RemoteAddr))

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writePump(ctx, conn, client)
	}()

	h.readPump(ctx, conn, client)
	h.registry.Unregister(clientID)
	<-writerDone
	h.log.Info(ctx, "websocket client disconnected", slog.F("client_id", clientID))
}

func (h *WebSocketHandler) refuse(ctx context.Context, conn *websocket.Conn, clientID string, err error) {
	code := websocket.CloseInternalServerErr
	switch {
	case xerrors.Is(err, services.ErrTooManyConnections):
		code = websocket.CloseTryAgainLater
	case xerrors.Is(err, services.ErrShuttingDown):
		code = websocket.CloseGoingAway
	case xerrors.Is(err, services.ErrDuplicateClient):
		code = websocket.ClosePolicyViolation
	}
	h.log.Warn(ctx, "refusing websocket client", slog.F("client_id", clientID), slog.Error(err))
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, err.Error()), time.Now().Add(writeWait))
	_ = conn.Close()
}

// readPump feeds every text frame to the registry in arrival order. It
// returns when the connection fails or is closed by the writer.
func (h *WebSocketHandler) readPump(ctx context.Context, conn *websocket.Conn, client *services.Client) {
	conn.SetReadLimit(h.maxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug(ctx, "websocket read error", slog.F("client_id", client.ID), slog.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		if msgType != websocket.TextMessage {
			continue
		}
		// Dispatch logs and counts bad messages; the connection stays open.
		_ = h.registry.Dispatch(client.ID, data)
	}
}

// writePump is the only writer on conn. Once the client is closed it flushes
// what is still queued, sends a close frame and closes the connection.
func (h *WebSocketHandler) writePump(ctx context.Context, conn *websocket.Conn, client *services.Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case msg := <-client.Outbound():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug(ctx, "websocket write failed", slog.F("client_id", client.ID), slog.Error(err))
				return
			}

		case <-client.Done():
			h.flush(conn, client)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// flush writes whatever is still queued without waiting for more.
func (h *WebSocketHandler) flush(conn *websocket.Conn, client *services.Client) {
	for {
		select {
		case msg := <-client.Outbound():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func generateClientID() string {
	return "client-" + uuid.NewString()
}
