package model

import "time"

// EventKind identifies a scheduling event.
type EventKind string

const (
	EventInit      EventKind = "init"
	EventSpawn     EventKind = "spawn"
	EventSwitch    EventKind = "switch"
	EventBlock     EventKind = "block"
	EventResume    EventKind = "resume"
	EventLock      EventKind = "lock"
	EventLockWait  EventKind = "lock_wait"
	EventUnlock    EventKind = "unlock"
	EventTerminate EventKind = "terminate"
	EventDeadlock  EventKind = "deadlock"
	EventExit      EventKind = "exit"
)

// String returns the string representation of the event kind.
func (k EventKind) String() string {
	return string(k)
}

// Event records one scheduler state transition.
//
// For EventSwitch, Peer is the thread that gave up the CPU and TID the thread
// that received it (they are equal when a thread continues for another
// quantum). Quanta is TID's quantum count after the event. For EventExit, Peer
// carries the exit code.
type Event struct {
	Seq         uint64    `json:"seq"`
	Kind        EventKind `json:"kind"`
	TID         int       `json:"tid"`
	Peer        int       `json:"peer"`
	Quanta      uint64    `json:"quanta"`
	TotalQuanta uint64    `json:"total_quanta"`
	At          time.Time `json:"at"`
}
