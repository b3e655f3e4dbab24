// Package session holds the per-connection accumulator that turns reported
// focus intervals into a finalized SessionRecord.
package session

import (
	"sync"
	"time"

	"github.com/coder/quartz"

	"FOCUS_TRACKER/go-backend/internal/models"
)

type State int

const (
	Idle State = iota
	Active
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Active:
		return "active"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Accumulator is the running, unrounded tally of one session.
type Accumulator struct {
	UserID            string
	StartedAt         time.Time
	FocusedSeconds    float64
	UnfocusedSeconds  float64
	LastReportedState bool
}

// Machine is safe for concurrent use. Callers are still expected to feed
// messages of one connection from a single goroutine so that their order is
// preserved; the lock only makes a racing disconnect finalize exactly once.
type Machine struct {
	clock quartz.Clock

	mu    sync.Mutex
	state State
	acc   Accumulator
}

func NewMachine(clock quartz.Clock) *Machine {
	return &Machine{clock: clock}
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Snapshot returns a copy of the accumulator.
func (m *Machine) Snapshot() Accumulator {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acc
}

// Start opens accounting. It reports false when the session is not Idle.
func (m *Machine) Start(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Idle {
		return false
	}
	m.state = Active
	m.acc = Accumulator{
		UserID:            userID,
		StartedAt:         m.clock.Now(),
		LastReportedState: true,
	}
	return true
}

// Update applies a status_update. The duration belongs to the interval that
// just ended, so it is credited to the previously reported state before the
// new state is recorded.
func (m *Machine) Update(isFocused bool, duration float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Active {
		return false
	}
	m.credit(duration)
	m.acc.LastReportedState = isFocused
	return true
}

// End applies the optional trailing interval and finalizes.
func (m *Machine) End(duration float64, isFocused *bool) (models.SessionRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Active {
		return models.SessionRecord{}, false
	}
	m.credit(duration)
	if isFocused != nil {
		m.acc.LastReportedState = *isFocused
	}
	return m.finalize(), true
}

// Disconnect finalizes with whatever has been accumulated. Calling it on an
// Idle machine closes it without producing a record.
func (m *Machine) Disconnect() (models.SessionRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case Active:
		return m.finalize(), true
	case Idle:
		m.state = Closed
	}
	return models.SessionRecord{}, false
}

func (m *Machine) credit(duration float64) {
	if duration <= 0 {
		return
	}
	if m.acc.LastReportedState {
		m.acc.FocusedSeconds += duration
	} else {
		m.acc.UnfocusedSeconds += duration
	}
}

func (m *Machine) finalize() models.SessionRecord {
	m.state = Closed
	focused := models.Round2(m.acc.FocusedSeconds)
	unfocused := models.Round2(m.acc.UnfocusedSeconds)
	return models.SessionRecord{
		UserID:        m.acc.UserID,
		StartTime:     m.acc.StartedAt,
		EndTime:       m.clock.Now(),
		TotalTime:     models.Round2(focused + unfocused),
		FocusedTime:   focused,
		UnfocusedTime: unfocused,
	}
}
