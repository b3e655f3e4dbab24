package client_test

import (
	"context"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"cdr.dev/slog"
	"cdr.dev/slog/sloggers/slogtest"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"FOCUS_TRACKER/go-backend/internal/client"
	"FOCUS_TRACKER/go-backend/internal/focus"
	"FOCUS_TRACKER/go-backend/internal/handlers"
	"FOCUS_TRACKER/go-backend/internal/protocol"
	"FOCUS_TRACKER/go-backend/internal/services"
)

var base = time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC)

type fakeTransport struct {
	mu      sync.Mutex
	sent    []protocol.Inbound
	autoAck bool

	inbox     chan protocol.Outbound
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeTransport(autoAck bool) *fakeTransport {
	return &fakeTransport{
		autoAck: autoAck,
		inbox:   make(chan protocol.Outbound, 8),
		closed:  make(chan struct{}),
	}
}

func (f *fakeTransport) Send(_ context.Context, msg protocol.Inbound) error {
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	f.mu.Unlock()
	if f.autoAck && msg.Type == protocol.TypeSessionEnd {
		f.inbox <- protocol.SessionEnded(protocol.SessionData{TotalTime: msg.DurationOrZero()}, base)
	}
	return nil
}

func (f *fakeTransport) Receive(context.Context) (protocol.Outbound, error) {
	select {
	case msg := <-f.inbox:
		return msg, nil
	case <-f.closed:
		return protocol.Outbound{}, xerrors.New("closed")
	}
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) messages() []protocol.Inbound {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.Inbound(nil), f.sent...)
}

func featureFrame(i int, ear float64) focus.Frame {
	return focus.Frame{
		Timestamp: base.Add(time.Duration(i) * 100 * time.Millisecond),
		Features:  &focus.Features{LeftEAR: ear, RightEAR: ear, HeadOffset: 0.02},
	}
}

// focusThenDrowsy is 2s of open eyes followed by 2s of closed eyes, one frame
// every 100ms.
func focusThenDrowsy() []focus.Frame {
	frames := make([]focus.Frame, 0, 40)
	for i := 0; i < 40; i++ {
		ear := 0.3
		if i >= 20 {
			ear = 0.1
		}
		frames = append(frames, featureFrame(i, ear))
	}
	return frames
}

func newTracker(t *testing.T, tr client.Transport) *client.Tracker {
	mClock := quartz.NewMock(t)
	mClock.Set(base)
	return client.NewTracker(slogtest.Make(t, nil), tr, mClock, client.Options{
		UserID:     "alice",
		AckTimeout: time.Second,
	})
}

func TestTrackerReportsConfirmedIntervals(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tr := newFakeTransport(false)
	tracker := newTracker(t, tr)

	require.NoError(t, tracker.Start(ctx))
	_, seen := tracker.Focused()
	assert.False(t, seen)

	frames := focusThenDrowsy()
	for i, f := range frames {
		require.NoError(t, tracker.HandleFrame(ctx, f))
		if i == 26 {
			focused, _ := tracker.Focused()
			assert.True(t, focused, "change at 2.2s is still pending at 2.6s")
		}
	}
	focused, seen := tracker.Focused()
	assert.True(t, seen)
	assert.False(t, focused)
	require.NoError(t, tracker.Finish(ctx, frames[len(frames)-1].Timestamp))
	require.NoError(t, tracker.Finish(ctx, base.Add(time.Hour)), "finish is idempotent")

	msgs := tr.messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, protocol.TypeSessionStart, msgs[0].Type)
	assert.Equal(t, "alice", msgs[0].UserID)

	// The window average drops below the threshold at 2.2s and the change is
	// confirmed 500ms later; the reported interval ends where it began.
	assert.Equal(t, protocol.TypeStatusUpdate, msgs[1].Type)
	assert.True(t, *msgs[1].IsFocused)
	assert.Zero(t, *msgs[1].Duration)

	assert.False(t, *msgs[2].IsFocused)
	assert.InDelta(t, 2.2, *msgs[2].Duration, 1e-9)
	assert.Equal(t, base.Add(2700*time.Millisecond), msgs[2].Timestamp.Time)

	assert.Equal(t, protocol.TypeSessionEnd, msgs[3].Type)
	assert.False(t, *msgs[3].IsFocused)
	assert.InDelta(t, 1.7, *msgs[3].Duration, 1e-9)
}

func TestTrackerHeartbeatWithoutFace(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tr := newFakeTransport(false)
	tracker := newTracker(t, tr)
	require.NoError(t, tracker.Start(ctx))

	require.NoError(t, tracker.HandleFrame(ctx, featureFrame(0, 0.3)))
	for i := 5; i <= 60; i += 5 {
		require.NoError(t, tracker.HandleFrame(ctx, focus.Frame{Timestamp: base.Add(time.Duration(i) * 100 * time.Millisecond)}))
	}

	msgs := tr.messages()
	require.Len(t, msgs, 3, "start, initial state, one heartbeat")
	hb := msgs[2]
	assert.True(t, *hb.IsFocused)
	assert.Zero(t, *hb.Duration)
	assert.Equal(t, base.Add(5*time.Second), hb.Timestamp.Time)
}

func TestTrackerFinishWithoutFrames(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tr := newFakeTransport(false)
	tracker := newTracker(t, tr)
	require.NoError(t, tracker.Start(ctx))
	require.Error(t, tracker.Start(ctx))
	require.NoError(t, tracker.Finish(ctx, base))

	msgs := tr.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, protocol.TypeSessionEnd, msgs[1].Type)
	assert.Zero(t, *msgs[1].Duration)
}

type sliceSource struct {
	frames []focus.Frame
	err    error
}

func (s *sliceSource) Next(context.Context) (focus.Frame, error) {
	if len(s.frames) == 0 {
		return focus.Frame{}, s.err
	}
	f := s.frames[0]
	s.frames = s.frames[1:]
	return f, nil
}

func TestTrackerRunWaitsForAck(t *testing.T) {
	t.Parallel()
	tr := newFakeTransport(true)
	tracker := newTracker(t, tr)

	data, err := tracker.Run(context.Background(), &sliceSource{frames: focusThenDrowsy(), err: errEOF})
	require.NoError(t, err)
	assert.InDelta(t, 1.7, data.TotalTime, 1e-9)
	assert.Equal(t, 4, tracker.Sent())
}

func TestTrackerRunNoAck(t *testing.T) {
	t.Parallel()
	tr := newFakeTransport(false)
	mClock := quartz.NewMock(t)
	tracker := client.NewTracker(slogtest.Make(t, nil), tr, mClock, client.Options{
		UserID:     "alice",
		AckTimeout: 50 * time.Millisecond,
	})

	_, err := tracker.Run(context.Background(), &sliceSource{err: errEOF})
	assert.ErrorIs(t, err, client.ErrNoAck)
}

func TestTrackerRunAgainstServer(t *testing.T) {
	t.Parallel()
	log := slogtest.Make(t, nil)
	serverLog := slog.Make()
	registry := services.NewRegistry(serverLog, nil, nil, services.RegistryOptions{})
	srv := httptest.NewServer(handlers.NewRouter(handlers.RouterOptions{
		WebSocket: handlers.NewWebSocketHandler(serverLog, registry, 1<<20, []string{"*"}),
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { _ = registry.Shutdown(context.Background()) })

	var lines strings.Builder
	for _, f := range focusThenDrowsy() {
		fmt.Fprintf(&lines, `{"timestamp":%f,"features":{"left_ear":%g,"right_ear":%g,"head_offset":0.02}}`+"\n",
			protocol.Epoch(f.Timestamp), f.Features.LeftEAR, f.Features.RightEAR)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	tr, err := client.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", "tracker-test")
	require.NoError(t, err)

	tracker := client.NewTracker(log, tr, nil, client.Options{UserID: "alice"})
	data, err := tracker.Run(ctx, client.NewJSONLinesSource(strings.NewReader(lines.String()), nil))
	require.NoError(t, err)
	assert.Equal(t, 2.2, data.FocusedTime)
	assert.Equal(t, 1.7, data.UnfocusedTime)
	assert.Equal(t, 3.9, data.TotalTime)
}

var errEOF = io.EOF
