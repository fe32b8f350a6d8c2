package uthreads

import (
	"github.com/me/uthreads/internal/execctx"
	"github.com/me/uthreads/internal/threadtable"
	"github.com/me/uthreads/pkg/model"
)

// Checkpoint is a preemption safe point. If the timer has expired since the
// running thread was dispatched, the thread goes to the tail of the ready
// queue and the next ready thread runs. Otherwise Checkpoint returns at once.
func (s *Scheduler) Checkpoint() {
	if !s.preempt.Load() {
		return
	}
	if err := s.enter(); err != nil {
		return
	}
	if s.preempt.Load() {
		s.reschedule(execctx.ReasonPreempted)
	}
	s.leave()
}

// Yield gives up the rest of the quantum, as if the timer had expired.
func (s *Scheduler) Yield() error {
	if err := s.enter(); err != nil {
		return err
	}
	s.reschedule(execctx.ReasonYield)
	s.leave()
	return nil
}

// reschedule picks the next thread and switches to it. Called inside the
// critical section; returns inside it once the calling thread has been
// dispatched again.
func (s *Scheduler) reschedule(reason execctx.Reason) {
	s.preempt.Store(false)
	cur := s.running
	next := s.candidate()

	if next == cur {
		if !s.runnable(cur.ID) {
			s.deadlock()
		}
		// Nothing else is ready: another quantum for the same thread.
		s.dispatch(cur)
		return
	}
	if s.runnable(cur.ID) {
		s.ready.Push(cur.ID)
	}
	s.dispatch(next)

	next.Ctx.Restore()
	s.mu.Unlock()
	cur.Ctx.Capture(reason)
	s.mu.Lock()
}

// candidate pops the head of the ready queue, or returns the running thread
// when the queue is empty.
func (s *Scheduler) candidate() *threadtable.Thread {
	for {
		tid, ok := s.ready.Pop()
		if !ok {
			return s.running
		}
		if t, ok := s.table.Get(tid); ok {
			return t
		}
		s.logger.Warn("stale tid in ready queue", "tid", tid)
	}
}

// dispatch makes next the running thread and grants it a quantum.
func (s *Scheduler) dispatch(next *threadtable.Thread) {
	prev := s.running
	s.running = next
	next.Quanta++
	s.totalQuanta++
	s.emit(model.EventSwitch, next.ID, prev.ID)
	if prev != next {
		s.logger.Debug("switch", "from", prev.ID, "to", next.ID, "quanta", next.Quanta, "total_quanta", s.totalQuanta)
	}
}

func (s *Scheduler) deadlock() {
	cur := s.running
	s.emit(model.EventDeadlock, cur.ID, cur.ID)
	s.fatal("deadlock: no runnable thread",
		"running", cur.ID,
		"state", s.stateOf(cur.ID),
		"threads", s.table.Len(),
		"mutex_waiting", s.waiting.Snapshot(),
	)
}
