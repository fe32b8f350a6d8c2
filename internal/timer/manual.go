package timer

import (
	"sync"
	"time"
)

// Manual is a driver that fires only when told to. It records how often it
// was disarmed and rearmed so tests can check the critical-section
// discipline.
type Manual struct {
	mu       sync.Mutex
	interval time.Duration
	fire     func()
	started  bool
	armed    bool
	disarms  int
	rearms   int
}

// NewManual creates an unstarted manual driver.
func NewManual() *Manual {
	return &Manual{}
}

func (m *Manual) Start(interval time.Duration, fire func()) error {
	if interval <= 0 {
		return ErrInterval
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return ErrBusy
	}
	m.interval = interval
	m.fire = fire
	m.started = true
	m.armed = true
	return nil
}

// Fire delivers one expiry if the timer is armed and reports whether it did.
func (m *Manual) Fire() bool {
	m.mu.Lock()
	fire, armed := m.fire, m.started && m.armed
	m.mu.Unlock()
	if !armed {
		return false
	}
	fire()
	return true
}

func (m *Manual) Disarm() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return ErrNotStarted
	}
	m.armed = false
	m.disarms++
	return nil
}

func (m *Manual) Rearm() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return ErrNotStarted
	}
	m.armed = true
	m.rearms++
	return nil
}

func (m *Manual) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = false
	m.armed = false
	return nil
}

// Armed reports whether the timer is currently counting.
func (m *Manual) Armed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started && m.armed
}

// Interval returns the interval passed to Start.
func (m *Manual) Interval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interval
}

// Counts returns how many times the timer was disarmed and rearmed.
func (m *Manual) Counts() (disarms, rearms int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disarms, m.rearms
}
