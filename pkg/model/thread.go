package model

import "time"

// MainThreadID is the tid of the thread that initialized the scheduler.
const MainThreadID = 0

// ThreadInfo is a point-in-time snapshot of one green thread.
type ThreadInfo struct {
	ID        int         `json:"id"`
	State     ThreadState `json:"state"`
	Quanta    uint64      `json:"quanta"`
	HoldsLock bool        `json:"holds_lock,omitempty"`
	SpawnedAt time.Time   `json:"spawned_at"`
}

// Stats summarizes scheduler-wide counters.
type Stats struct {
	Quantum      time.Duration `json:"quantum_ns"`
	QuantumStr   string        `json:"quantum"`
	TotalQuanta  uint64        `json:"total_quanta"`
	Ticks        uint64        `json:"ticks"`
	Threads      int           `json:"threads"`
	MaxThreads   int           `json:"max_threads"`
	Running      int           `json:"running"`
	Ready        []int         `json:"ready"`
	MutexWaiting []int         `json:"mutex_waiting"`
	MutexOwner   int           `json:"mutex_owner"`
}
