package workload

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/dop251/goja"

	"github.com/me/uthreads/pkg/model"
)

// Scheduler is the part of the green-thread scheduler a workload drives.
type Scheduler interface {
	Spawn(entry func()) (int, error)
	Terminate(tid int) error
	Block(tid int) error
	Resume(tid int) error
	MutexLock() error
	MutexUnlock() error
	Yield() error
	Checkpoint()
	CurrentThreadID() int
	TotalQuanta() uint64
	QuantaOf(tid int) (uint64, error)
	Threads() []model.ThreadInfo
	Stack() []byte
}

// Outcome says why a workload stopped.
type Outcome string

const (
	OutcomeRunning         Outcome = ""
	OutcomeCompleted       Outcome = "completed"        // every workload thread terminated
	OutcomeBudgetExhausted Outcome = "budget_exhausted" // max_quanta reached
	OutcomeStalled         Outcome = "stalled"          // threads left, none of them ready
)

// Result is the state of a workload when the process ends.
type Result struct {
	Workload string           `json:"workload"`
	Outcome  Outcome          `json:"outcome"`
	Spawned  int              `json:"spawned"`
	Failures int              `json:"failures"`
	Counters map[string]int64 `json:"counters"`
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithMaxQuanta overrides the workload's quantum budget.
func WithMaxQuanta(n uint64) RunnerOption {
	return func(r *Runner) {
		r.maxQuanta = n
	}
}

// Runner drives one workload from the scheduler's main thread.
type Runner struct {
	sched     Scheduler
	wl        *Workload
	logger    *slog.Logger
	counters  *Counters
	setup     *goja.Program
	programs  map[string]*goja.Program
	maxQuanta uint64

	outcome  atomic.Value // Outcome
	spawned  atomic.Int64
	failures atomic.Int64
}

// NewRunner compiles the workload's scripts.
func NewRunner(sched Scheduler, wl *Workload, logger *slog.Logger, opts ...RunnerOption) (*Runner, error) {
	r := &Runner{
		sched:     sched,
		wl:        wl,
		logger:    logger.With("component", "workload", "workload", wl.Name),
		counters:  NewCounters(),
		programs:  make(map[string]*goja.Program, len(wl.Threads)),
		maxQuanta: wl.MaxQuanta,
	}
	for _, opt := range opts {
		opt(r)
	}

	if wl.Setup != "" {
		prg, err := goja.Compile("setup", wl.Setup, false)
		if err != nil {
			return nil, fmt.Errorf("compile setup: %w", err)
		}
		r.setup = prg
	}
	for _, t := range wl.Threads {
		prg, err := goja.Compile(t.Name, t.Script, false)
		if err != nil {
			return nil, fmt.Errorf("compile thread %q: %w", t.Name, err)
		}
		r.programs[t.Name] = prg
	}
	r.outcome.Store(OutcomeRunning)
	return r, nil
}

// Counters returns the shared counter store.
func (r *Runner) Counters() *Counters {
	return r.counters
}

// Result reports the workload state so far.
func (r *Runner) Result() Result {
	return Result{
		Workload: r.wl.Name,
		Outcome:  r.outcome.Load().(Outcome),
		Spawned:  int(r.spawned.Load()),
		Failures: int(r.failures.Load()),
		Counters: r.counters.Snapshot(),
	}
}

// Run must be called by the main thread after Init. It spawns the initial
// threads, gives up the CPU until the workload is over, then terminates the
// main thread. It only returns if the scheduler is no longer running.
func (r *Runner) Run() {
	r.logger.Info("workload starting", "threads", len(r.wl.Threads), "max_quanta", r.maxQuanta)
	for _, t := range r.wl.Threads {
		for i := 0; i < t.InitialInstances(); i++ {
			if _, err := r.spawn(t.Name); err != nil {
				r.logger.Error("spawn initial thread", "thread", t.Name, "error", err)
			}
		}
	}

	outcome := r.supervise()
	r.outcome.Store(outcome)
	r.logger.Info("workload finished",
		"outcome", outcome,
		"total_quanta", r.sched.TotalQuanta(),
		"spawned", r.spawned.Load(),
		"failures", r.failures.Load(),
	)
	if err := r.sched.Terminate(model.MainThreadID); err != nil {
		r.logger.Error("terminate main thread", "error", err)
	}
}

func (r *Runner) supervise() Outcome {
	for {
		live, ready := 0, 0
		for _, t := range r.sched.Threads() {
			if t.ID == model.MainThreadID {
				continue
			}
			live++
			if t.State == model.ThreadStateReady {
				ready++
			}
		}
		switch {
		case live == 0:
			return OutcomeCompleted
		case ready == 0:
			r.logger.Warn("no workload thread can run", "threads", live)
			return OutcomeStalled
		case r.maxQuanta > 0 && r.sched.TotalQuanta() >= r.maxQuanta:
			r.logger.Warn("quantum budget exhausted", "max_quanta", r.maxQuanta, "threads", live)
			return OutcomeBudgetExhausted
		}
		r.sched.Yield()
	}
}

// spawn starts a thread from template name.
func (r *Runner) spawn(name string) (int, error) {
	spec, ok := r.wl.Template(name)
	if !ok {
		return model.NoThread, fmt.Errorf("unknown thread template %q", name)
	}
	tid, err := r.sched.Spawn(func() { r.runThread(spec) })
	if err != nil {
		return model.NoThread, err
	}
	r.spawned.Add(1)
	return tid, nil
}

// runThread is the entry of every workload thread.
func (r *Runner) runThread(spec *ThreadSpec) {
	tid := r.sched.CurrentThreadID()
	logger := r.logger.With("tid", tid, "thread", spec.Name)
	logger.Debug("thread started")

	vm := goja.New()
	obj, err := r.binding(vm, tid, spec.Name, logger)
	if err == nil {
		err = vm.Set("uthread", obj)
	}
	if err != nil {
		r.fail(logger, fmt.Errorf("bind uthread: %w", err))
		return
	}
	if r.setup != nil {
		if _, err := vm.RunProgram(r.setup); err != nil {
			r.fail(logger, fmt.Errorf("setup: %w", err))
			return
		}
	}
	if _, err := vm.RunProgram(r.programs[spec.Name]); err != nil {
		r.fail(logger, err)
		return
	}
	logger.Debug("thread finished")
}

func (r *Runner) fail(logger *slog.Logger, err error) {
	r.failures.Add(1)
	logger.Error("thread script failed", "error", err)
}
