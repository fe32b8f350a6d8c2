package uthreads

import (
	"fmt"
	"runtime"

	"github.com/me/uthreads/internal/execctx"
	"github.com/me/uthreads/internal/threadtable"
	"github.com/me/uthreads/pkg/model"
)

// Spawn creates a thread that runs entry and appends it to the ready queue.
// It returns the new tid. A thread whose entry returns terminates itself.
func (s *Scheduler) Spawn(entry func()) (int, error) {
	if err := s.enter(); err != nil {
		return model.NoThread, err
	}
	if entry == nil {
		s.leave()
		return model.NoThread, s.usage(model.ErrInvalidEntry, model.NoThread, "invalid thread entry")
	}
	ctx, err := execctx.New(s.stackSize)
	if err != nil {
		s.fatal("stack allocation failed", "error", err)
	}
	t, err := s.table.Alloc(entry, ctx)
	if err != nil {
		s.leave()
		return model.NoThread, s.usage(model.ErrCapacityExceeded, model.NoThread,
			fmt.Sprintf("threads out of limit (%d)", s.table.Cap()))
	}
	s.ready.Push(t.ID)
	ctx.Start(func() { s.run(t) }, func() { s.exited(t) })
	s.emit(model.EventSpawn, t.ID, s.running.ID)
	s.logger.Debug("thread spawned", "tid", t.ID, "threads", s.table.Len())
	s.leave()

	s.Checkpoint()
	return t.ID, nil
}

// run is the body of a spawned thread's goroutine. It starts when the thread
// is first dispatched, inside the critical section its dispatcher left.
func (s *Scheduler) run(t *threadtable.Thread) {
	s.mu.Lock()
	s.leave()

	t.Entry()

	s.logger.Debug("thread entry returned", "tid", t.ID)
	if err := s.Terminate(t.ID); err != nil {
		s.logger.Error("terminate after return", "tid", t.ID, "error", err)
	}
}

// Terminate destroys thread tid. Terminating the main thread ends the
// process with exit code 0. Terminating the calling thread never returns.
func (s *Scheduler) Terminate(tid int) error {
	if err := s.enter(); err != nil {
		return err
	}
	t, ok := s.table.Get(tid)
	if !ok {
		s.leave()
		return s.usage(model.ErrNoSuchThread, tid, "no such thread")
	}
	s.emit(model.EventTerminate, tid, s.running.ID)
	if tid == MainThreadID {
		s.logger.Info("main thread terminated", "total_quanta", s.totalQuanta)
		s.shutdown(0)
	}

	s.waiting.Remove(tid)
	s.ready.Remove(tid)
	delete(s.blocked, tid)
	if s.owner == tid {
		s.releaseFromTerminated(tid)
	}
	s.table.Free(tid)
	s.logger.Debug("thread terminated", "tid", tid, "quanta", t.Quanta, "threads", s.table.Len())

	if t != s.running {
		s.unwind(t)
		s.leave()
		s.Checkpoint()
		return nil
	}

	next := s.candidate()
	if next == t {
		s.deadlock()
	}
	// The thread keeps the CPU while it unwinds; exited dispatches next.
	s.unwinding = t
	s.afterUnwind = func() {
		s.dispatch(next)
		next.Ctx.Restore()
	}
	s.mu.Unlock()
	runtime.Goexit()
	return nil
}

// Block suspends thread tid until Resume. Blocking the running thread
// reschedules before returning; blocking a blocked thread has no effect.
func (s *Scheduler) Block(tid int) error {
	if err := s.enter(); err != nil {
		return err
	}
	if _, ok := s.table.Get(tid); !ok {
		s.leave()
		return s.usage(model.ErrNoSuchThread, tid, "no such thread")
	}
	if tid == MainThreadID {
		s.leave()
		return s.usage(model.ErrCannotBlockMain, tid, "can not block main thread")
	}

	s.ready.Remove(tid)
	if !s.isBlocked(tid) {
		s.blocked[tid] = struct{}{}
		s.emit(model.EventBlock, tid, s.running.ID)
	}
	if tid == s.running.ID {
		s.reschedule(execctx.ReasonBlocked)
		s.leave()
		return nil
	}
	s.leave()

	s.Checkpoint()
	return nil
}

// Resume moves a blocked thread back to the ready queue, unless it is also
// waiting for the mutex. Resuming a thread that is not blocked has no effect.
func (s *Scheduler) Resume(tid int) error {
	if err := s.enter(); err != nil {
		return err
	}
	if _, ok := s.table.Get(tid); !ok {
		s.leave()
		return s.usage(model.ErrNoSuchThread, tid, "no such thread")
	}
	if s.isBlocked(tid) {
		delete(s.blocked, tid)
		if !s.waiting.Contains(tid) {
			s.ready.Push(tid)
		}
		s.emit(model.EventResume, tid, s.running.ID)
	}
	s.leave()

	s.Checkpoint()
	return nil
}
