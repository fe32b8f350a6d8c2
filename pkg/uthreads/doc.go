// Package uthreads schedules user-space green threads on a single execution
// vehicle.
//
// The goroutine that calls Init becomes the main thread (tid 0). Threads
// created with Spawn run one at a time in round-robin order; a thread gives up
// the CPU when its quantum expires (observed at the next safe point), when it
// blocks itself, when it waits for the mutex, or when it terminates.
//
//	s := uthreads.New(uthreads.WithLogger(logger))
//	if err := s.Init(10 * time.Millisecond); err != nil {
//		return err
//	}
//	tid, err := s.Spawn(func() {
//		for {
//			work()
//			s.Checkpoint()
//		}
//	})
//
// Preemption requests come from a timer.Driver and are honored at safe
// points: Checkpoint, and every mutating call of this package. The timer
// cannot interrupt Go code between safe points, so a thread body that never
// calls into this package keeps the CPU until it returns. Thread bodies with
// long loops must call Checkpoint.
//
// Terminating a thread unwinds its goroutine: its deferred functions run,
// while it holds the CPU and before Terminate returns to the caller. During
// the unwind the thread sees CurrentThreadID as its own tid, and mutating
// calls fail with model.ErrNoSuchThread. Terminating the main thread ends the
// process; when another thread does it, the main goroutine stays parked.
//
// Mutating methods must only be called by the running green thread.
// CurrentThreadID, TotalQuanta, Threads and Stats may be called from any
// goroutine. A deadlock (no runnable thread left) ends the process with exit
// code 1.
package uthreads
