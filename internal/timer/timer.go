// Package timer delivers the periodic preemption requests that drive the
// scheduler's quantum.
package timer

import (
	"errors"
	"time"
)

var (
	// ErrBusy is returned when a process-wide timer is already armed.
	ErrBusy = errors.New("timer: process timer already in use")
	// ErrInterval is returned for a non-positive interval.
	ErrInterval = errors.New("timer: interval must be positive")
	// ErrNotStarted is returned by Disarm/Rearm before Start.
	ErrNotStarted = errors.New("timer: not started")
)

// Driver invokes a callback once per elapsed interval while armed. The
// callback runs on a goroutine owned by the driver and must not block.
type Driver interface {
	// Start arms the timer with first-fire delay and repeat interval both
	// equal to interval.
	Start(interval time.Duration, fire func()) error

	// Disarm stops the countdown without forgetting the interval.
	Disarm() error

	// Rearm restarts a full interval countdown.
	Rearm() error

	// Stop disarms the timer and releases its resources.
	Stop() error
}

// Kind names a driver implementation in configuration.
type Kind string

const (
	KindVirtual Kind = "virtual"
	KindWall    Kind = "wall"
)

// New returns the driver for kind.
func New(kind Kind) (Driver, error) {
	switch kind {
	case KindVirtual, "":
		return NewVirtual(), nil
	case KindWall:
		return NewWall(), nil
	}
	return nil, errors.New("timer: unknown kind " + string(kind))
}
