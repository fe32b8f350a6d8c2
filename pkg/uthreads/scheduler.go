package uthreads

import (
	"log/slog"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/me/uthreads/internal/execctx"
	"github.com/me/uthreads/internal/threadtable"
	"github.com/me/uthreads/internal/timer"
	"github.com/me/uthreads/pkg/model"
)

const (
	// MainThreadID is the tid of the thread that called Init.
	MainThreadID = model.MainThreadID

	DefaultMaxThreads = 100
	DefaultStackSize  = 4096
)

// Observer receives every scheduling event. Observe is called inside the
// scheduler's critical section: it must not block and must not call back into
// the Scheduler.
type Observer interface {
	Observe(e model.Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(model.Event)

func (f ObserverFunc) Observe(e model.Event) { f(e) }

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithTimer sets the driver that requests preemption. The default counts
// process CPU time (timer.NewVirtual).
func WithTimer(d timer.Driver) Option {
	return func(s *Scheduler) {
		s.timer = d
	}
}

// WithObserver adds event observers.
func WithObserver(obs ...Observer) Option {
	return func(s *Scheduler) {
		s.observers = append(s.observers, obs...)
	}
}

// WithExitFunc replaces os.Exit as the way the process ends after the main
// thread terminates or a fatal error.
func WithExitFunc(fn func(code int)) Option {
	return func(s *Scheduler) {
		s.exit = fn
	}
}

// WithMaxThreads sets the thread table capacity, main thread included.
func WithMaxThreads(n int) Option {
	return func(s *Scheduler) {
		s.maxThreads = n
	}
}

// WithStackSize sets the size of each thread's private stack buffer.
func WithStackSize(n int) Option {
	return func(s *Scheduler) {
		s.stackSize = n
	}
}

// Scheduler multiplexes green threads. All fields below mu are guarded by it;
// holding mu with the timer disarmed is the scheduler's critical section.
type Scheduler struct {
	logger     *slog.Logger
	timer      timer.Driver
	observers  []Observer
	exit       func(code int)
	maxThreads int
	stackSize  int

	mu          sync.Mutex
	initialized bool
	closed      bool
	quantum     time.Duration
	table       *threadtable.Table
	ready       tidQueue
	waiting     tidQueue
	blocked     map[int]struct{}
	running     *threadtable.Thread
	owner       int
	totalQuanta uint64
	seq         uint64

	// unwinding is the killed thread whose goroutine currently holds the CPU
	// to run its deferred code; afterUnwind hands the CPU on once it is gone.
	unwinding   *threadtable.Thread
	afterUnwind func()

	preempt atomic.Bool
	ticks   atomic.Uint64
}

// New creates a scheduler. It does nothing until Init.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		logger:     slog.Default(),
		exit:       os.Exit,
		maxThreads: DefaultMaxThreads,
		stackSize:  DefaultStackSize,
		blocked:    make(map[int]struct{}),
		owner:      model.NoThread,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.timer == nil {
		s.timer = timer.NewVirtual()
	}
	s.logger = s.logger.With("component", "uthreads")
	return s
}

// Init makes the calling goroutine the main thread and starts the quantum
// timer. It may be called once per Scheduler; the default virtual timer
// allows one initialized Scheduler per process.
func (s *Scheduler) Init(quantum time.Duration) error {
	if quantum <= 0 {
		return s.usage(model.ErrInvalidConfig, model.NoThread, "non-positive quantum")
	}
	if s.maxThreads < 1 || s.stackSize <= 0 {
		return s.usage(model.ErrInvalidConfig, model.NoThread, "thread capacity and stack size must be positive")
	}

	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		return s.usage(model.ErrAlreadyInitialized, model.NoThread, "scheduler already initialized")
	}
	ctx, err := execctx.New(s.stackSize)
	if err != nil {
		s.mu.Unlock()
		return s.usage(model.ErrInvalidConfig, model.NoThread, err.Error())
	}
	s.table = threadtable.New(s.maxThreads)
	main, _ := s.table.Alloc(nil, ctx)
	main.Quanta = 1
	s.running = main
	s.totalQuanta = 1
	s.quantum = quantum
	s.initialized = true
	s.emit(model.EventInit, main.ID, main.ID)

	if err := s.timer.Start(quantum, s.onTick); err != nil {
		s.fatal("timer setup failed", "error", err)
	}
	s.logger.Info("scheduler initialized", "quantum", quantum, "max_threads", s.maxThreads, "stack_size", s.stackSize)
	s.mu.Unlock()
	return nil
}

// onTick runs on the timer's goroutine. It only records the request; the
// running thread switches at its next safe point.
func (s *Scheduler) onTick() {
	s.ticks.Add(1)
	s.preempt.Store(true)
}

// enter starts a critical section.
func (s *Scheduler) enter() error {
	s.mu.Lock()
	if !s.initialized || s.closed {
		s.mu.Unlock()
		return s.usage(model.ErrNotInitialized, model.NoThread, "scheduler is not running")
	}
	if s.unwinding != nil {
		tid := s.unwinding.ID
		s.mu.Unlock()
		return s.usage(model.ErrNoSuchThread, tid, "thread is terminating")
	}
	if err := s.timer.Disarm(); err != nil {
		s.fatal("timer disarm failed", "error", err)
	}
	return nil
}

// leave ends a critical section.
func (s *Scheduler) leave() {
	if err := s.timer.Rearm(); err != nil {
		s.fatal("timer rearm failed", "error", err)
	}
	s.mu.Unlock()
}

func (s *Scheduler) usage(code model.ErrorCode, tid int, msg string) error {
	s.logger.Debug("thread library error", "code", code, "tid", tid, "error", msg)
	return model.NewThreadError(code, tid, msg)
}

// fatal logs and ends the process with exit code 1. Called with mu held;
// never returns.
func (s *Scheduler) fatal(msg string, args ...any) {
	s.logger.Error(msg, args...)
	s.shutdown(1)
}

// shutdown unwinds every other spawned thread one at a time, stops the timer
// and calls the exit function. Called with mu held; the calling goroutine never
// returns.
func (s *Scheduler) shutdown(code int) {
	self := s.running
	if self != nil {
		s.emit(model.EventExit, self.ID, code)
	}
	s.closed = true
	if err := s.timer.Stop(); err != nil {
		s.logger.Warn("timer stop failed", "error", err)
	}

	if s.table != nil {
		var victims []*threadtable.Thread
		var tids []int
		s.table.Each(func(t *threadtable.Thread) {
			tids = append(tids, t.ID)
			if t != self {
				victims = append(victims, t)
			}
		})
		for _, t := range victims {
			// The main goroutine belongs to the caller of Init and has no
			// exit hook to hand the CPU back; it stays parked until the
			// process ends.
			if self != nil && t.ID != MainThreadID {
				s.unwind(t)
			}
			t.Ctx.Release()
		}
		for _, tid := range tids {
			s.table.Free(tid)
		}
	}
	if self != nil {
		self.Ctx.Release()
	}
	s.ready = tidQueue{}
	s.waiting = tidQueue{}
	s.blocked = make(map[int]struct{})
	s.owner = model.NoThread

	s.logger.Info("scheduler shut down", "exit_code", code, "total_quanta", s.totalQuanta)
	s.mu.Unlock()
	s.exit(code)
	runtime.Goexit()
}

// unwind kills thread t and lends it the CPU until its goroutine has run its
// deferred code and exited. Called with mu held by the running thread;
// returns with mu held and the caller running again. No quantum is granted
// for the detour.
func (s *Scheduler) unwind(t *threadtable.Thread) {
	cur := s.running
	s.unwinding = t
	s.afterUnwind = func() {
		s.running = cur
		cur.Ctx.Restore()
	}
	s.running = t
	t.Ctx.Kill()
	t.Ctx.Restore()
	s.mu.Unlock()
	cur.Ctx.Capture(execctx.ReasonUnwind)
	s.mu.Lock()
}

// exited runs last on every spawned thread's goroutine. If the thread was
// unwinding on the CPU, it hands the CPU to whoever is waiting for that.
func (s *Scheduler) exited(t *threadtable.Thread) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.Ctx.Release()
	if s.unwinding != t {
		return
	}
	after := s.afterUnwind
	s.unwinding = nil
	s.afterUnwind = nil
	after()
}

func (s *Scheduler) emit(kind model.EventKind, tid, peer int) {
	if len(s.observers) == 0 {
		return
	}
	s.seq++
	e := model.Event{
		Seq:         s.seq,
		Kind:        kind,
		TID:         tid,
		Peer:        peer,
		TotalQuanta: s.totalQuanta,
		At:          time.Now(),
	}
	if t, ok := s.table.Get(tid); ok {
		e.Quanta = t.Quanta
	}
	for _, o := range s.observers {
		o.Observe(e)
	}
}

func (s *Scheduler) isBlocked(tid int) bool {
	_, ok := s.blocked[tid]
	return ok
}

func (s *Scheduler) runnable(tid int) bool {
	return !s.isBlocked(tid) && !s.waiting.Contains(tid)
}

func (s *Scheduler) stateOf(tid int) model.ThreadState {
	if s.running != nil && s.running.ID == tid {
		return model.ThreadStateRunning
	}
	return model.StateOf(s.isBlocked(tid), s.waiting.Contains(tid))
}
