package uthreads

import (
	"time"

	"github.com/me/uthreads/internal/threadtable"
	"github.com/me/uthreads/pkg/model"
)

// CurrentThreadID returns the tid of the running thread, or model.NoThread
// before Init.
func (s *Scheduler) CurrentThreadID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running == nil {
		return model.NoThread
	}
	return s.running.ID
}

// TotalQuanta returns the number of quanta granted since Init, counting the
// main thread's first one.
func (s *Scheduler) TotalQuanta() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalQuanta
}

// QuantaOf returns how many quanta thread tid has been granted, including
// the current one if it is running.
func (s *Scheduler) QuantaOf(tid int) (uint64, error) {
	if err := s.enter(); err != nil {
		return 0, err
	}
	t, ok := s.table.Get(tid)
	if !ok {
		s.leave()
		return 0, s.usage(model.ErrNoSuchThread, tid, "no such thread")
	}
	q := t.Quanta
	s.leave()
	return q, nil
}

// Quantum returns the configured quantum length.
func (s *Scheduler) Quantum() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quantum
}

// Ticks returns the number of timer expiries delivered so far.
func (s *Scheduler) Ticks() uint64 {
	return s.ticks.Load()
}

// Stack returns the running thread's private stack memory.
func (s *Scheduler) Stack() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running == nil {
		return nil
	}
	return s.running.Ctx.Stack()
}

// Threads returns a snapshot of every live thread in tid order.
func (s *Scheduler) Threads() []model.ThreadInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.table == nil || s.closed {
		return nil
	}
	infos := make([]model.ThreadInfo, 0, s.table.Len())
	s.table.Each(func(t *threadtable.Thread) {
		infos = append(infos, model.ThreadInfo{
			ID:        t.ID,
			State:     s.stateOf(t.ID),
			Quanta:    t.Quanta,
			HoldsLock: s.owner == t.ID,
			SpawnedAt: t.SpawnedAt,
		})
	})
	return infos
}

// Stats returns scheduler-wide counters and queue contents.
func (s *Scheduler) Stats() model.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := model.Stats{
		Quantum:      s.quantum,
		QuantumStr:   s.quantum.String(),
		TotalQuanta:  s.totalQuanta,
		Ticks:        s.ticks.Load(),
		MaxThreads:   s.maxThreads,
		Running:      model.NoThread,
		Ready:        s.ready.Snapshot(),
		MutexWaiting: s.waiting.Snapshot(),
		MutexOwner:   s.owner,
	}
	if s.table != nil && !s.closed {
		st.Threads = s.table.Len()
	}
	if s.running != nil && !s.closed {
		st.Running = s.running.ID
	}
	return st
}
