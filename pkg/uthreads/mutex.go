package uthreads

import (
	"github.com/me/uthreads/internal/execctx"
	"github.com/me/uthreads/pkg/model"
)

// MutexLock acquires the scheduler's mutex for the running thread. If another
// thread owns it, the caller joins the FIFO wait queue and gives up the CPU
// until it acquires the mutex. The mutex is not reentrant.
func (s *Scheduler) MutexLock() error {
	if err := s.enter(); err != nil {
		return err
	}
	cur := s.running
	switch s.owner {
	case model.NoThread:
		s.acquire(cur.ID)
		s.leave()
		s.Checkpoint()
		return nil
	case cur.ID:
		s.leave()
		return s.usage(model.ErrAlreadyLocked, cur.ID, "the mutex is already locked by this thread")
	}

	s.waiting.Push(cur.ID)
	s.emit(model.EventLockWait, cur.ID, s.owner)
	for s.owner != cur.ID {
		s.reschedule(execctx.ReasonMutexWait)
		// Back on the CPU: either promoted by an unlock, or resumed after
		// losing the queue position while blocked.
		if s.owner == model.NoThread {
			s.acquire(cur.ID)
		} else if !s.waiting.Contains(cur.ID) {
			s.waiting.Push(cur.ID)
			s.emit(model.EventLockWait, cur.ID, s.owner)
		}
	}
	s.leave()
	return nil
}

// MutexUnlock releases the mutex. The first waiter that is not blocked moves
// to the ready queue and retries the lock when it runs; blocked waiters ahead
// of it lose their place in the wait queue.
func (s *Scheduler) MutexUnlock() error {
	if err := s.enter(); err != nil {
		return err
	}
	cur := s.running
	switch s.owner {
	case model.NoThread:
		s.leave()
		return s.usage(model.ErrNotLocked, cur.ID, "the mutex is already unlocked")
	case cur.ID:
	default:
		s.leave()
		return s.usage(model.ErrNotOwner, cur.ID, "only the thread which locked the mutex can release it")
	}

	s.owner = model.NoThread
	s.emit(model.EventUnlock, cur.ID, cur.ID)
	for {
		head, ok := s.waiting.Pop()
		if !ok {
			break
		}
		if s.isBlocked(head) {
			s.logger.Debug("dropping blocked mutex waiter", "tid", head)
			continue
		}
		s.ready.Push(head)
		break
	}
	s.leave()

	s.Checkpoint()
	return nil
}

func (s *Scheduler) acquire(tid int) {
	s.owner = tid
	s.emit(model.EventLock, tid, tid)
}

// releaseFromTerminated frees the mutex held by a thread being terminated and
// hands the head waiter to the ready queue if it is not blocked. A blocked
// head is dropped from the wait queue; it contends again after Resume.
func (s *Scheduler) releaseFromTerminated(tid int) {
	s.owner = model.NoThread
	s.emit(model.EventUnlock, tid, s.running.ID)
	head, ok := s.waiting.Pop()
	if !ok {
		return
	}
	if s.isBlocked(head) {
		s.logger.Debug("dropping blocked mutex waiter", "tid", head)
		return
	}
	s.ready.Push(head)
}

// MutexOwner returns the tid owning the mutex, or model.NoThread.
func (s *Scheduler) MutexOwner() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner
}
