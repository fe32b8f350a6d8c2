package timer

import (
	"sync"
	"time"
)

// Wall approximates the quantum with wall-clock time. Unlike Virtual it keeps
// counting while the process is descheduled by the OS.
type Wall struct {
	mu       sync.Mutex
	interval time.Duration
	ticker   *time.Ticker
	armed    bool
	done     chan struct{}
}

// NewWall creates an unstarted wall-clock driver.
func NewWall() *Wall {
	return &Wall{}
}

func (w *Wall) Start(interval time.Duration, fire func()) error {
	if interval <= 0 {
		return ErrInterval
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ticker != nil {
		return ErrBusy
	}
	w.interval = interval
	w.ticker = time.NewTicker(interval)
	w.armed = true
	w.done = make(chan struct{})
	go w.loop(w.ticker.C, w.done, fire)
	return nil
}

func (w *Wall) loop(c <-chan time.Time, done <-chan struct{}, fire func()) {
	for {
		select {
		case <-c:
			w.mu.Lock()
			armed := w.armed
			w.mu.Unlock()
			if armed {
				fire()
			}
		case <-done:
			return
		}
	}
}

func (w *Wall) Disarm() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ticker == nil {
		return ErrNotStarted
	}
	w.armed = false
	w.ticker.Stop()
	return nil
}

func (w *Wall) Rearm() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ticker == nil {
		return ErrNotStarted
	}
	w.armed = true
	w.ticker.Reset(w.interval)
	return nil
}

func (w *Wall) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ticker == nil {
		return nil
	}
	w.ticker.Stop()
	close(w.done)
	w.ticker = nil
	w.armed = false
	return nil
}
