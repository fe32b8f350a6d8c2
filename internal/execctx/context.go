// Package execctx holds the saved execution state of one green thread.
//
// A Context is backed by a goroutine that stays parked while the thread is
// not running. Capture parks the caller until the context is restored;
// Restore wakes it. Only one goroutine per scheduler is unparked at a time,
// which is what the scheduler relies on for mutual exclusion of user code.
//
// A terminated thread is killed, not abandoned: Kill marks the context and
// the next Restore makes its goroutine unwind, so deferred code in the thread
// also runs only while it holds the CPU.
//
// Each context owns a private stack buffer. Go manages the real goroutine
// stack; the buffer is per-thread memory handed to the thread's code (the
// workload layer exposes it to scripts as an ArrayBuffer).
package execctx

import (
	"errors"
	"runtime"
	"sync"
)

// Reason records why a context was last captured.
type Reason uint8

const (
	ReasonNone Reason = iota
	ReasonPreempted
	ReasonYield
	ReasonBlocked
	ReasonMutexWait
	ReasonUnwind
)

func (r Reason) String() string {
	switch r {
	case ReasonPreempted:
		return "preempted"
	case ReasonYield:
		return "yield"
	case ReasonBlocked:
		return "blocked"
	case ReasonMutexWait:
		return "mutex_wait"
	case ReasonUnwind:
		return "unwind"
	}
	return "none"
}

// ErrStackSize is returned by New for a non-positive stack size.
var ErrStackSize = errors.New("execctx: stack size must be positive")

// Context is the saved state of one thread: where it resumes and the private
// stack memory it owns.
type Context struct {
	stack  []byte
	resume chan struct{}

	mu       sync.Mutex
	killed   bool
	released bool
	reason   Reason
	captures uint64
}

// New allocates a context with a private stack of stackSize bytes.
func New(stackSize int) (*Context, error) {
	if stackSize <= 0 {
		return nil, ErrStackSize
	}
	return &Context{
		stack:  make([]byte, stackSize),
		resume: make(chan struct{}, 1),
	}, nil
}

// Start launches the goroutine backing a spawned thread. The goroutine waits
// for the first Restore before running body. If the context was killed by
// then, body never runs. onExit runs last on the goroutine in every case,
// after body has returned or unwound.
func (c *Context) Start(body func(), onExit func()) {
	go func() {
		defer onExit()
		<-c.resume
		if c.Killed() {
			return
		}
		body()
	}()
}

// Capture suspends the calling goroutine until the context is restored. If
// the context was killed in the meantime, the goroutine unwinds with
// runtime.Goexit and Capture never returns.
func (c *Context) Capture(reason Reason) {
	c.mu.Lock()
	c.reason = reason
	c.captures++
	c.mu.Unlock()

	<-c.resume
	if c.Killed() {
		runtime.Goexit()
	}
}

// Restore resumes the goroutine suspended in Capture (or waiting in Start).
// A restore may precede the matching capture; the capture then returns
// immediately. Restoring a killed context lets its goroutine unwind.
func (c *Context) Restore() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		panic("execctx: restore of released context")
	}
	select {
	case c.resume <- struct{}{}:
	default:
		panic("execctx: context restored twice without capture")
	}
}

// Kill marks the context so that its goroutine unwinds the next time it is
// restored instead of resuming. The goroutine keeps running deferred code
// only while it holds the CPU, which is why Kill does not wake it.
func (c *Context) Kill() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.killed = true
}

// Killed reports whether Kill has been called.
func (c *Context) Killed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.killed
}

// Release frees the stack. It is called once the backing goroutine is gone
// or will never run again. Release is idempotent.
func (c *Context) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released = true
	c.stack = nil
}

// Released reports whether Release has been called.
func (c *Context) Released() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}

// Stack returns the private stack memory. It is nil after Release.
func (c *Context) Stack() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stack
}

// Reason returns why the context was last captured.
func (c *Context) Reason() Reason {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// Captures returns how many times the context has been captured.
func (c *Context) Captures() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.captures
}
