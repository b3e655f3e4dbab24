package services

import (
	"context"
	"sync"
	"time"

	"cdr.dev/slog"
	"github.com/coder/quartz"
	"golang.org/x/xerrors"

	"FOCUS_TRACKER/go-backend/internal/models"
	"FOCUS_TRACKER/go-backend/internal/protocol"
	"FOCUS_TRACKER/go-backend/internal/session"
)

var (
	ErrTooManyConnections = xerrors.New("too many connections")
	ErrDuplicateClient    = xerrors.New("client id already registered")
	ErrShuttingDown       = xerrors.New("registry is shutting down")
)

// Saver persists a finalized session record.
type Saver interface {
	Save(ctx context.Context, rec models.SessionRecord) (string, error)
}

type RegistryOptions struct {
	MaxConnections int
	SaveTimeout    time.Duration
	SendBuffer     int
	Clock          quartz.Clock
}

// Registry owns the live connections and routes each connection's messages
// to its session machine. Finalized records are saved off the read path.
type Registry struct {
	log     slog.Logger
	store   Saver
	metrics *Metrics
	clock   quartz.Clock
	opts    RegistryOptions

	mu       sync.RWMutex
	clients  map[string]*Client
	draining bool

	saves sync.WaitGroup
}

func NewRegistry(log slog.Logger, store Saver, metrics *Metrics, opts RegistryOptions) *Registry {
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = 10 * time.Second
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Registry{
		log:     log.Named("registry"),
		store:   store,
		metrics: metrics,
		clock:   opts.Clock,
		opts:    opts,
		clients: make(map[string]*Client),
	}
}

// NewClient builds a client that shares the registry's clock.
func (r *Registry) NewClient(id string) *Client {
	return NewClient(id, r.clock, r.opts.SendBuffer)
}

func (r *Registry) Register(c *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.draining {
		return ErrShuttingDown
	}
	if r.opts.MaxConnections > 0 && len(r.clients) >= r.opts.MaxConnections {
		return ErrTooManyConnections
	}
	if _, ok := r.clients[c.ID]; ok {
		return ErrDuplicateClient
	}
	r.clients[c.ID] = c
	r.metrics.IncrementWebSocketConnections()
	r.log.Debug(context.Background(), "client registered", slog.F("client_id", c.ID), slog.F("clients", len(r.clients)))
	return nil
}

// Dispatch applies one raw message from the connection id. It must only be
// called from that connection's reader. Malformed messages are dropped and
// returned for logging; the connection stays open.
func (r *Registry) Dispatch(id string, raw []byte) error {
	r.mu.RLock()
	c, ok := r.clients[id]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	msg, err := protocol.Decode(raw)
	if err != nil {
		if xerrors.Is(err, protocol.ErrUnknownType) {
			r.metrics.IncrementWebSocketErrors("unknown_type")
			r.log.Debug(context.Background(), "ignoring unknown message type",
				slog.F("client_id", id), slog.F("type", msg.Type))
			return err
		}
		r.metrics.IncrementWebSocketErrors("malformed")
		r.log.Warn(context.Background(), "dropping malformed message", slog.F("client_id", id), slog.Error(err))
		return err
	}
	r.metrics.IncrementWebSocketMessages(msg.Type)

	m := c.Session()
	switch msg.Type {
	case protocol.TypeSessionStart:
		if !m.Start(msg.UserID) {
			r.log.Debug(context.Background(), "session_start ignored", slog.F("client_id", id), slog.F("state", m.State()))
			return nil
		}
		r.metrics.SessionStarted()
		r.log.Info(context.Background(), "session started", slog.F("client_id", id), slog.F("user_id", msg.UserID))
		r.send(c, protocol.SessionStarted(msg.UserID, r.clock.Now()))

	case protocol.TypeStatusUpdate:
		m.Update(*msg.IsFocused, *msg.Duration)

	case protocol.TypeSessionEnd:
		rec, ok := m.End(msg.DurationOrZero(), msg.IsFocused)
		if !ok {
			return nil
		}
		r.send(c, protocol.SessionEnded(protocol.SessionData{
			TotalTime:     rec.TotalTime,
			FocusedTime:   rec.FocusedTime,
			UnfocusedTime: rec.UnfocusedTime,
		}, r.clock.Now()))
		r.finalized(c, rec, "end")

	case protocol.TypePing:
		r.send(c, protocol.Pong(r.clock.Now()))
	}
	return nil
}

// send drops a client whose buffer is full or that is already closed.
func (r *Registry) send(c *Client, msg protocol.Outbound) {
	if c.Send(msg) {
		return
	}
	r.dropFailed(c, msg.Type)
}

func (r *Registry) dropFailed(c *Client, msgType string) {
	r.metrics.IncrementWebSocketErrors("send")
	r.log.Warn(context.Background(), "send failed, dropping client", slog.F("client_id", c.ID), slog.F("type", msgType))
	r.Unregister(c.ID)
}

// Unregister removes the client and finalizes its session if one was open.
// It is safe to call more than once.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	c, ok := r.clients[id]
	if ok {
		delete(r.clients, id)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	r.metrics.DecrementWebSocketConnections()
	c.Close()
	if rec, ok := c.Session().Disconnect(); ok {
		r.finalized(c, rec, "disconnect")
	}
	r.log.Debug(context.Background(), "client unregistered", slog.F("client_id", id))
}

func (r *Registry) finalized(c *Client, rec models.SessionRecord, reason string) {
	r.metrics.SessionFinalized(reason)
	r.log.Info(context.Background(), "session finalized",
		slog.F("client_id", c.ID),
		slog.F("user_id", rec.UserID),
		slog.F("reason", reason),
		slog.F("total_time", rec.TotalTime),
		slog.F("focused_time", rec.FocusedTime),
		slog.F("unfocused_time", rec.UnfocusedTime),
	)
	r.persist(c, rec)
}

// persist makes exactly one save attempt in the background. A failure is
// logged and, if the client is still connected, reported to it.
func (r *Registry) persist(c *Client, rec models.SessionRecord) {
	if r.store == nil {
		return
	}
	r.saves.Add(1)
	go func() {
		defer r.saves.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.opts.SaveTimeout)
		defer cancel()

		start := r.clock.Now()
		id, err := r.store.Save(ctx, rec)
		r.metrics.RecordSave(r.clock.Since(start), err)
		if err != nil {
			r.log.Error(ctx, "failed to persist session",
				slog.F("client_id", c.ID), slog.F("user_id", rec.UserID), slog.Error(err))
			c.Send(protocol.Notice(protocol.NoticeLevelWarning, protocol.NoticePersistenceFailed,
				"session could not be saved", r.clock.Now()))
			return
		}
		r.log.Info(ctx, "session saved", slog.F("session_id", id), slog.F("user_id", rec.UserID))
	}()
}

// Broadcast queues msg on every client and returns how many accepted it.
// Clients that could not accept it are unregistered once every client has
// been tried.
func (r *Registry) Broadcast(msg protocol.Outbound) int {
	r.mu.RLock()
	clients := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	r.mu.RUnlock()

	sent := 0
	var failed []*Client
	for _, c := range clients {
		if c.Send(msg) {
			sent++
			continue
		}
		failed = append(failed, c)
	}
	for _, c := range failed {
		r.dropFailed(c, msg.Type)
	}
	return sent
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// ActiveSessions counts registered clients with an open session.
func (r *Registry) ActiveSessions() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, c := range r.clients {
		if c.Session().State() == session.Active {
			n++
		}
	}
	return n
}

// Shutdown refuses new clients, notifies and closes every client, then
// waits for in-flight saves or ctx.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.draining = true
	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	r.Broadcast(protocol.Notice(protocol.NoticeLevelInfo, protocol.NoticeServerShutdown,
		"server is shutting down", r.clock.Now()))
	for _, id := range ids {
		r.Unregister(id)
	}
	r.log.Info(ctx, "closed websocket connections", slog.F("count", len(ids)))

	done := make(chan struct{})
	go func() {
		r.saves.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return xerrors.Errorf("waiting for pending saves: %w", ctx.Err())
	}
}
