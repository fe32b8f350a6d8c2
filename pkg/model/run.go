package model

import "time"

// Run is one journaled scheduler session.
type Run struct {
	ID           string     `json:"id"`
	Workload     string     `json:"workload"`
	QuantumUsecs int64      `json:"quantum_usecs"`
	MaxThreads   int        `json:"max_threads"`
	Timer        string     `json:"timer"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	ExitCode     *int       `json:"exit_code,omitempty"`
	TotalQuanta  uint64     `json:"total_quanta"`
	Events       int        `json:"events"`
}

// IsFinished returns true once the run's process reported its exit.
func (r *Run) IsFinished() bool {
	return r.FinishedAt != nil
}

// ThreadQuanta aggregates the quanta a tid received during a run, across
// every thread that held the tid.
type ThreadQuanta struct {
	TID          int    `json:"tid"`
	Quanta       uint64 `json:"quanta"`
	Incarnations int    `json:"incarnations"`
}
