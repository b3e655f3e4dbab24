// Package client is the focus tracking client: it classifies detector frames,
// debounces the result and reports confirmed intervals to the session server.
package client

import (
	"context"
	"io"
	"sync"
	"time"

	"cdr.dev/slog"
	"github.com/coder/quartz"
	"golang.org/x/xerrors"

	"FOCUS_TRACKER/go-backend/internal/focus"
	"FOCUS_TRACKER/go-backend/internal/protocol"
)

// DefaultAckTimeout bounds the wait for session_ended after session_end.
const DefaultAckTimeout = 5 * time.Second

var ErrNoAck = xerrors.New("server did not acknowledge session end")

type Options struct {
	UserID     string
	Debounce   time.Duration
	Heartbeat  time.Duration
	Thresholds focus.Thresholds
	AckTimeout time.Duration
}

// Tracker drives one session. It is not reusable.
type Tracker struct {
	log        slog.Logger
	transport  Transport
	clock      quartz.Clock
	opts       Options
	classifier *focus.Classifier
	engine     *focus.Engine

	mu       sync.Mutex
	started  bool
	finished bool
	last     time.Time
	sent     int
}

func NewTracker(log slog.Logger, transport Transport, clock quartz.Clock, opts Options) *Tracker {
	if clock == nil {
		clock = quartz.NewReal()
	}
	if opts.Thresholds == (focus.Thresholds{}) {
		opts.Thresholds = focus.DefaultThresholds()
	}
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = DefaultAckTimeout
	}
	return &Tracker{
		log:        log.Named("tracker"),
		transport:  transport,
		clock:      clock,
		opts:       opts,
		classifier: focus.NewClassifier(nil, opts.Thresholds),
		engine:     focus.NewEngine(opts.Debounce, opts.Heartbeat),
	}
}

// Start announces the session.
func (t *Tracker) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return xerrors.New("session already started")
	}
	t.started = true
	t.mu.Unlock()

	if err := t.send(ctx, protocol.SessionStart(t.opts.UserID, t.clock.Now())); err != nil {
		return err
	}
	t.log.Info(ctx, "session started", slog.F("user_id", t.opts.UserID))
	return nil
}

// HandleFrame classifies one frame and reports whatever the debounce engine
// produced for it. A frame without a face only advances the heartbeat.
func (t *Tracker) HandleFrame(ctx context.Context, frame focus.Frame) error {
	t.mu.Lock()
	if t.finished {
		t.mu.Unlock()
		return nil
	}
	if frame.Timestamp.After(t.last) {
		t.last = frame.Timestamp
	}
	t.mu.Unlock()

	focused, observed := t.classifier.Classify(frame)
	if !observed {
		if ev, ok := t.engine.Tick(frame.Timestamp); ok {
			return t.report(ctx, ev)
		}
		return nil
	}
	for _, ev := range t.engine.Observe(focused, frame.Timestamp) {
		if err := t.report(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tracker) report(ctx context.Context, ev focus.Event) error {
	if ev.Kind == focus.EventTransition {
		t.log.Info(ctx, "focus changed",
			slog.F("focused", ev.Current),
			slog.F("previous_seconds", ev.Seconds()))
	} else {
		t.log.Debug(ctx, "status", slog.F("kind", ev.Kind.String()), slog.F("focused", ev.Current))
	}
	return t.send(ctx, protocol.StatusUpdate(ev.Current, ev.Seconds(), ev.At))
}

// Finish flushes the open interval up to now and sends session_end. A session
// in which no face was ever seen ends with a zero duration.
func (t *Tracker) Finish(ctx context.Context, now time.Time) error {
	t.mu.Lock()
	if t.finished {
		t.mu.Unlock()
		return nil
	}
	t.finished = true
	t.mu.Unlock()

	focused, duration := true, 0.0
	if ev, ok := t.engine.Flush(now); ok {
		focused, duration = ev.Current, ev.Seconds()
	}
	return t.send(ctx, protocol.SessionEnd(focused, duration, now))
}

func (t *Tracker) send(ctx context.Context, msg protocol.Inbound) error {
	if err := t.transport.Send(ctx, msg); err != nil {
		return xerrors.Errorf("send %s: %w", msg.Type, err)
	}
	t.mu.Lock()
	t.sent++
	t.mu.Unlock()
	return nil
}

// Focused returns the debounced state and whether any face has been seen.
func (t *Tracker) Focused() (focused bool, seen bool) {
	return t.engine.Confirmed()
}

// Sent is the number of messages delivered to the transport.
func (t *Tracker) Sent() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sent
}

// Run starts the session, feeds every frame from src until it is exhausted
// or ctx is canceled, then ends the session and waits for the server's
// summary. The trailing interval ends at the last frame seen.
func (t *Tracker) Run(ctx context.Context, src FrameSource) (protocol.SessionData, error) {
	ended := make(chan protocol.SessionData, 1)
	recvDone := make(chan struct{})
	go func() {
		defer close(recvDone)
		t.receive(ended)
	}()
	defer func() {
		_ = t.transport.Close()
		<-recvDone
	}()

	if err := t.Start(ctx); err != nil {
		return protocol.SessionData{}, err
	}

	for {
		frame, err := src.Next(ctx)
		if err != nil {
			if xerrors.Is(err, ErrBadFrame) {
				t.log.Warn(ctx, "skipping frame", slog.Error(err))
				continue
			}
			if !xerrors.Is(err, io.EOF) && ctx.Err() == nil {
				return protocol.SessionData{}, err
			}
			break
		}
		if err := t.HandleFrame(ctx, frame); err != nil {
			return protocol.SessionData{}, err
		}
	}

	// ctx may already be canceled by an interrupt; the session still ends.
	endCtx, cancel := context.WithTimeout(context.Background(), t.opts.AckTimeout)
	defer cancel()

	t.mu.Lock()
	end := t.last
	t.mu.Unlock()
	if end.IsZero() {
		end = t.clock.Now()
	}
	if err := t.Finish(endCtx, end); err != nil {
		return protocol.SessionData{}, err
	}

	select {
	case data := <-ended:
		return data, nil
	case <-endCtx.Done():
		return protocol.SessionData{}, ErrNoAck
	}
}

func (t *Tracker) receive(ended chan<- protocol.SessionData) {
	ctx := context.Background()
	for {
		msg, err := t.transport.Receive(ctx)
		if err != nil {
			t.log.Debug(ctx, "receive loop stopped", slog.Error(err))
			return
		}
		switch msg.Type {
		case protocol.TypeSessionStarted:
			t.log.Debug(ctx, "server confirmed session", slog.F("user_id", msg.UserID))
		case protocol.TypeSessionEnded:
			if msg.SessionData != nil {
				select {
				case ended <- *msg.SessionData:
				default:
				}
			}
		case protocol.TypeNotice:
			t.log.Warn(ctx, "server notice",
				slog.F("level", msg.Level), slog.F("code", msg.Code), slog.F("message", msg.Message))
		case protocol.TypePong:
		default:
			t.log.Debug(ctx, "ignoring server message", slog.F("type", msg.Type))
		}
	}
}
