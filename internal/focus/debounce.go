package focus

import (
	"sync"
	"time"
)

const (
	DefaultDebounce  = 500 * time.Millisecond
	DefaultHeartbeat = 5 * time.Second
)

type EventKind int

const (
	// EventInitial establishes the starting state. It carries no duration.
	EventInitial EventKind = iota
	// EventTransition closes the previous confirmed interval.
	EventTransition
	// EventHeartbeat re-reports the current state with zero duration.
	EventHeartbeat
	// EventFinal closes the still-open interval at session end.
	EventFinal
)

func (k EventKind) String() string {
	switch k {
	case EventInitial:
		return "initial"
	case EventTransition:
		return "transition"
	case EventHeartbeat:
		return "heartbeat"
	case EventFinal:
		return "final"
	default:
		return "unknown"
	}
}

// ConfirmedInterval is a span during which the debounced state was stable.
type ConfirmedInterval struct {
	Focused  bool
	Start    time.Time
	Duration time.Duration
}

// Event is one report produced by the Engine. Interval is the interval being
// reported (zero duration for initial and heartbeat events) and Current is
// the confirmed state after the event.
type Event struct {
	Kind     EventKind
	Interval ConfirmedInterval
	Current  bool
	At       time.Time
}

// Seconds is the reported duration on the wire.
func (e Event) Seconds() float64 {
	return e.Interval.Duration.Seconds()
}

// Engine suppresses classifier flicker: a state change is only confirmed
// after the opposite signal has persisted for the debounce interval. It is
// owned by a single session.
type Engine struct {
	debounce  time.Duration
	heartbeat time.Duration

	mu               sync.Mutex
	started          bool
	flushed          bool
	confirmed        bool
	confirmedStart   time.Time
	pending          bool
	pendingChangedAt time.Time
	lastHeartbeat    time.Time
}

func NewEngine(debounce, heartbeat time.Duration) *Engine {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &Engine{debounce: debounce, heartbeat: heartbeat}
}

// Observe feeds one classifier output observed at t and returns the events
// it produced, in order. Observations after Flush are ignored.
func (e *Engine) Observe(focused bool, t time.Time) []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.flushed {
		return nil
	}

	var events []Event
	if !e.started {
		e.started = true
		e.confirmed = focused
		e.pending = focused
		e.confirmedStart = t
		e.pendingChangedAt = t
		e.lastHeartbeat = t
		events = append(events, Event{
			Kind:     EventInitial,
			Interval: ConfirmedInterval{Focused: focused, Start: t},
			Current:  focused,
			At:       t,
		})
	}

	if focused != e.pending {
		e.pending = focused
		e.pendingChangedAt = t
	}

	if e.pending != e.confirmed && t.Sub(e.pendingChangedAt) >= e.debounce {
		events = append(events, Event{
			Kind: EventTransition,
			Interval: ConfirmedInterval{
				Focused:  e.confirmed,
				Start:    e.confirmedStart,
				Duration: e.pendingChangedAt.Sub(e.confirmedStart),
			},
			Current: e.pending,
			At:      t,
		})
		e.confirmed = e.pending
		e.confirmedStart = e.pendingChangedAt
	}

	if ev, ok := e.heartbeatLocked(t); ok {
		events = append(events, ev)
	}
	return events
}

// Tick evaluates only the heartbeat rule. It is used when a frame carried no
// face, so the state cannot move but liveness must still be reported.
func (e *Engine) Tick(t time.Time) (Event, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started || e.flushed {
		return Event{}, false
	}
	return e.heartbeatLocked(t)
}

func (e *Engine) heartbeatLocked(t time.Time) (Event, bool) {
	if t.Sub(e.lastHeartbeat) < e.heartbeat {
		return Event{}, false
	}
	e.lastHeartbeat = t
	return Event{
		Kind:     EventHeartbeat,
		Interval: ConfirmedInterval{Focused: e.confirmed, Start: e.confirmedStart},
		Current:  e.confirmed,
		At:       t,
	}, true
}

// Flush emits the trailing interval up to now. It reports false if nothing
// was ever observed or the engine was already flushed.
func (e *Engine) Flush(now time.Time) (Event, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started || e.flushed {
		return Event{}, false
	}
	e.flushed = true
	d := now.Sub(e.confirmedStart)
	if d < 0 {
		d = 0
	}
	return Event{
		Kind:     EventFinal,
		Interval: ConfirmedInterval{Focused: e.confirmed, Start: e.confirmedStart, Duration: d},
		Current:  e.confirmed,
		At:       now,
	}, true
}

// Confirmed returns the current debounced state and whether any observation
// has been made.
func (e *Engine) Confirmed() (bool, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.confirmed, e.started
}
