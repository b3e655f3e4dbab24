package focus_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"FOCUS_TRACKER/go-backend/internal/focus"
)

var t0 = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

type observation struct {
	focused bool
	at      time.Time
}

func run(e *focus.Engine, obs []observation) []focus.Event {
	var events []focus.Event
	for _, o := range obs {
		events = append(events, e.Observe(o.focused, o.at)...)
	}
	return events
}

func ofKind(events []focus.Event, kind focus.EventKind) []focus.Event {
	var out []focus.Event
	for _, ev := range events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func TestFlickerThenStable(t *testing.T) {
	t.Parallel()

	var obs []observation
	// Alternate every 100ms for 2s starting unfocused, then hold focused.
	for i := 0; i < 20; i++ {
		obs = append(obs, observation{focused: i%2 == 1, at: t0.Add(time.Duration(i) * 100 * time.Millisecond)})
	}
	for at := 2 * time.Second; at <= 5*time.Second; at += 100 * time.Millisecond {
		obs = append(obs, observation{focused: true, at: t0.Add(at)})
	}

	e := focus.NewEngine(focus.DefaultDebounce, focus.DefaultHeartbeat)
	events := run(e, obs)

	initial := ofKind(events, focus.EventInitial)
	require.Len(t, initial, 1)
	assert.False(t, initial[0].Current)
	assert.Zero(t, initial[0].Interval.Duration)

	transitions := ofKind(events, focus.EventTransition)
	require.Len(t, transitions, 1)
	tr := transitions[0]
	assert.False(t, tr.Interval.Focused)
	assert.True(t, tr.Current)
	assert.Equal(t, 1900*time.Millisecond, tr.Interval.Duration)
	assert.Equal(t, t0.Add(2400*time.Millisecond), tr.At)

	final, ok := e.Flush(t0.Add(5 * time.Second))
	require.True(t, ok)
	assert.True(t, final.Interval.Focused)
	assert.Equal(t, 3100*time.Millisecond, final.Interval.Duration)
	assert.InDelta(t, 5.0, tr.Seconds()+final.Seconds(), 1e-9)
}

func TestFlickerNeverConfirms(t *testing.T) {
	t.Parallel()

	e := focus.NewEngine(focus.DefaultDebounce, time.Hour)
	var obs []observation
	for i := 0; i < 50; i++ {
		obs = append(obs, observation{focused: i%2 == 0, at: t0.Add(time.Duration(i) * 200 * time.Millisecond)})
	}
	events := run(e, obs)
	assert.Empty(t, ofKind(events, focus.EventTransition))

	final, ok := e.Flush(t0.Add(10 * time.Second))
	require.True(t, ok)
	assert.True(t, final.Interval.Focused)
	assert.Equal(t, 10*time.Second, final.Interval.Duration)
}

func TestHeartbeats(t *testing.T) {
	t.Parallel()

	e := focus.NewEngine(focus.DefaultDebounce, focus.DefaultHeartbeat)
	require.Len(t, e.Observe(true, t0), 1)

	assert.Empty(t, e.Observe(true, t0.Add(4900*time.Millisecond)))
	events := e.Observe(true, t0.Add(5*time.Second))
	require.Len(t, events, 1)
	assert.Equal(t, focus.EventHeartbeat, events[0].Kind)
	assert.True(t, events[0].Current)
	assert.Zero(t, events[0].Seconds())

	// No face: Tick still keeps the heartbeat going.
	_, ok := e.Tick(t0.Add(9 * time.Second))
	assert.False(t, ok)
	hb, ok := e.Tick(t0.Add(10 * time.Second))
	require.True(t, ok)
	assert.Equal(t, focus.EventHeartbeat, hb.Kind)
}

func TestHeartbeatDoesNotResetDwell(t *testing.T) {
	t.Parallel()

	e := focus.NewEngine(focus.DefaultDebounce, focus.DefaultHeartbeat)
	e.Observe(true, t0)
	e.Observe(false, t0.Add(4800*time.Millisecond))
	// The heartbeat at 5s reports the still-confirmed focused state.
	events := e.Observe(false, t0.Add(5*time.Second))
	require.Len(t, events, 1)
	assert.Equal(t, focus.EventHeartbeat, events[0].Kind)
	assert.True(t, events[0].Current)

	// The candidate that began at 4.8s confirms at 5.3s regardless.
	events = e.Observe(false, t0.Add(5300*time.Millisecond))
	require.Len(t, events, 1)
	assert.Equal(t, focus.EventTransition, events[0].Kind)
	assert.Equal(t, 4800*time.Millisecond, events[0].Interval.Duration)
}

func TestFlushOnce(t *testing.T) {
	t.Parallel()

	e := focus.NewEngine(0, 0)
	_, ok := e.Flush(t0)
	assert.False(t, ok, "nothing observed yet")

	e.Observe(false, t0)
	_, ok = e.Flush(t0.Add(time.Second))
	require.True(t, ok)
	_, ok = e.Flush(t0.Add(2 * time.Second))
	assert.False(t, ok)
	assert.Nil(t, e.Observe(true, t0.Add(3*time.Second)))
	_, ok = e.Tick(t0.Add(time.Minute))
	assert.False(t, ok)
}

func drawObservations(t *rapid.T) []observation {
	n := rapid.IntRange(1, 200).Draw(t, "n")
	obs := make([]observation, 0, n)
	at := t0
	for i := 0; i < n; i++ {
		if i > 0 {
			step := rapid.IntRange(0, 900).Draw(t, "step_ms")
			at = at.Add(time.Duration(step) * time.Millisecond)
		}
		obs = append(obs, observation{focused: rapid.Bool().Draw(t, "focused"), at: at})
	}
	return obs
}

func TestPropertyTransitionsAlternateAndAreSustained(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		obs := drawObservations(t)
		e := focus.NewEngine(focus.DefaultDebounce, focus.DefaultHeartbeat)

		state := obs[0].focused
		for i, o := range obs {
			for _, ev := range e.Observe(o.focused, o.at) {
				if ev.Kind != focus.EventTransition {
					continue
				}
				if ev.Interval.Focused != state || ev.Current == state {
					t.Fatalf("transition %v->%v while confirmed %v", ev.Interval.Focused, ev.Current, state)
				}
				changedAt := ev.Interval.Start.Add(ev.Interval.Duration)
				if ev.At.Sub(changedAt) < focus.DefaultDebounce {
					t.Fatalf("transition confirmed after %v", ev.At.Sub(changedAt))
				}
				// The run of observations ending here must all carry the new
				// state and must have begun exactly when the candidate did.
				k := i
				for k > 0 && obs[k-1].focused == ev.Current {
					k--
				}
				if !obs[k].at.Equal(changedAt) {
					t.Fatalf("sustained run began at %v, candidate at %v", obs[k].at, changedAt)
				}
				state = ev.Current
			}
		}
	})
}

func TestPropertyDurationsCoverSession(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		obs := drawObservations(t)
		e := focus.NewEngine(focus.DefaultDebounce, focus.DefaultHeartbeat)
		events := run(e, obs)

		now := obs[len(obs)-1].at.Add(time.Duration(rapid.IntRange(0, 5000).Draw(t, "tail_ms")) * time.Millisecond)
		final, ok := e.Flush(now)
		if !ok {
			t.Fatal("flush produced nothing")
		}
		events = append(events, final)

		var total time.Duration
		for _, ev := range events {
			total += ev.Interval.Duration
		}
		if want := now.Sub(obs[0].at); total != want {
			t.Fatalf("durations sum to %v, want %v", total, want)
		}
	})
}
