//go:build linux

package timer

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// inUse guards the single ITIMER_VIRTUAL of the process.
var inUse atomic.Bool

// Virtual counts down only while the process consumes user CPU time
// (setitimer ITIMER_VIRTUAL) and is notified through SIGVTALRM.
type Virtual struct {
	mu       sync.Mutex
	interval time.Duration
	sigs     chan os.Signal
	done     chan struct{}
}

// NewVirtual creates an unstarted process CPU-time driver.
func NewVirtual() Driver {
	return &Virtual{}
}

func (v *Virtual) Start(interval time.Duration, fire func()) error {
	if interval <= 0 {
		return ErrInterval
	}
	if !inUse.CompareAndSwap(false, true) {
		return ErrBusy
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	v.interval = interval
	v.sigs = make(chan os.Signal, 1)
	v.done = make(chan struct{})
	signal.Notify(v.sigs, unix.SIGVTALRM)
	go v.loop(v.sigs, v.done, fire)

	if err := v.set(interval); err != nil {
		signal.Stop(v.sigs)
		close(v.done)
		v.sigs = nil
		inUse.Store(false)
		return err
	}
	return nil
}

func (v *Virtual) loop(sigs <-chan os.Signal, done <-chan struct{}, fire func()) {
	for {
		select {
		case <-sigs:
			fire()
		case <-done:
			return
		}
	}
}

// set arms the itimer; a zero interval disarms it.
func (v *Virtual) set(d time.Duration) error {
	tv := unix.NsecToTimeval(d.Nanoseconds())
	if _, err := unix.Setitimer(unix.ItimerVirtual, unix.Itimerval{Interval: tv, Value: tv}); err != nil {
		return fmt.Errorf("setitimer: %w", err)
	}
	return nil
}

func (v *Virtual) Disarm() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.sigs == nil {
		return ErrNotStarted
	}
	return v.set(0)
}

func (v *Virtual) Rearm() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.sigs == nil {
		return ErrNotStarted
	}
	return v.set(v.interval)
}

func (v *Virtual) Stop() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.sigs == nil {
		return nil
	}
	err := v.set(0)
	signal.Stop(v.sigs)
	close(v.done)
	v.sigs = nil
	inUse.Store(false)
	return err
}
