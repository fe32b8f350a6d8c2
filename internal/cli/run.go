package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/me/uthreads/internal/config"
	"github.com/me/uthreads/internal/metrics"
	"github.com/me/uthreads/internal/server"
	"github.com/me/uthreads/internal/store"
	"github.com/me/uthreads/internal/timer"
	"github.com/me/uthreads/internal/workload"
	"github.com/me/uthreads/pkg/model"
	"github.com/me/uthreads/pkg/uthreads"
)

func newRunCmd() *cobra.Command {
	var (
		quantum    int64
		maxThreads int
		stackSize  int
		timerKind  string
		statusAddr string
		maxQuanta  uint64
		jsonOut    bool
	)

	cmd := &cobra.Command{
		Use:   "run <workload.yaml>",
		Short: "Run a workload on the scheduler",
		Long: "Run a workload file on a fresh scheduler. The process exits with the " +
			"scheduler's exit code: 0 when the workload ends, 1 on deadlock.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wl, err := workload.Load(args[0])
			if err != nil {
				return err
			}

			c := cfg
			if wl.QuantumUsecs > 0 {
				c.QuantumUsecs = wl.QuantumUsecs
			}
			if wl.MaxQuanta > 0 {
				c.MaxQuanta = wl.MaxQuanta
			}
			flags := cmd.Flags()
			if flags.Changed("quantum") {
				c.QuantumUsecs = quantum
			}
			if flags.Changed("max-threads") {
				c.MaxThreads = maxThreads
			}
			if flags.Changed("stack-size") {
				c.StackSize = stackSize
			}
			if flags.Changed("timer") {
				c.Timer = timerKind
			}
			if flags.Changed("status-addr") {
				c.StatusAddr = statusAddr
			}
			if flags.Changed("max-quanta") {
				c.MaxQuanta = maxQuanta
			}
			if err := c.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			sess, err := newSession(cmd.Context(), c, wl, logger)
			if err != nil {
				return err
			}
			sess.out = cmd.OutOrStdout()
			sess.jsonOut = jsonOut
			return sess.run()
		},
	}

	cmd.Flags().Int64Var(&quantum, "quantum", 0, "Quantum length in microseconds (overrides config and workload)")
	cmd.Flags().IntVar(&maxThreads, "max-threads", 0, "Thread table capacity, main included")
	cmd.Flags().IntVar(&stackSize, "stack-size", 0, "Private stack bytes per thread")
	cmd.Flags().StringVar(&timerKind, "timer", "", "Timer driver (virtual, wall)")
	cmd.Flags().StringVar(&statusAddr, "status-addr", "", "Serve the status API on this address while running")
	cmd.Flags().Uint64Var(&maxQuanta, "max-quanta", 0, "Stop the workload after this many quanta (0 = unlimited)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the final report as JSON")

	return cmd
}

// session wires one workload run: scheduler, journal recorder, accounting
// and the optional status server. Its exit hook writes the report and ends
// the process.
type session struct {
	cfg    config.Config
	wl     *workload.Workload
	logger *slog.Logger

	out     io.Writer
	jsonOut bool
	exit    func(code int)

	runID     string
	st        *store.SQLiteStore
	recorder  *store.Recorder
	collector *metrics.Collector
	sched     *uthreads.Scheduler
	runner    *workload.Runner

	cancel context.CancelFunc
	group  *errgroup.Group
}

// newSession opens the journal, records the run and builds the scheduler.
// Nothing is started yet.
func newSession(ctx context.Context, c config.Config, wl *workload.Workload, logger *slog.Logger) (*session, error) {
	s := &session{
		cfg:       c,
		wl:        wl,
		logger:    logger.With("component", "session"),
		out:       os.Stdout,
		exit:      os.Exit,
		collector: metrics.NewCollector(),
	}
	observers := []uthreads.Observer{s.collector}

	if c.Journal != "" {
		st, err := openJournal(ctx, c.Journal, logger)
		if err != nil {
			return nil, err
		}
		run := &model.Run{
			ID:           "run_" + uuid.New().String(),
			Workload:     wl.Name,
			QuantumUsecs: c.QuantumUsecs,
			MaxThreads:   c.MaxThreads,
			Timer:        c.Timer,
			StartedAt:    time.Now().UTC(),
		}
		if err := st.CreateRun(ctx, run); err != nil {
			st.Close()
			return nil, fmt.Errorf("record run: %w", err)
		}
		s.runID = run.ID
		s.st = st
		s.recorder = store.NewRecorder(st, run.ID, logger)
		observers = append(observers, s.recorder)
	}

	drv, err := timer.New(c.TimerKind())
	if err != nil {
		s.closeJournal()
		return nil, err
	}
	s.sched = uthreads.New(
		uthreads.WithLogger(logger),
		uthreads.WithTimer(drv),
		uthreads.WithObserver(observers...),
		uthreads.WithExitFunc(s.finish),
		uthreads.WithMaxThreads(c.MaxThreads),
		uthreads.WithStackSize(c.StackSize),
	)

	var opts []workload.RunnerOption
	if c.MaxQuanta > 0 {
		opts = append(opts, workload.WithMaxQuanta(c.MaxQuanta))
	}
	s.runner, err = workload.NewRunner(s.sched, wl, logger, opts...)
	if err != nil {
		s.closeJournal()
		return nil, err
	}
	return s, nil
}

// run starts the background services, turns the calling goroutine into the
// main thread and hands it to the workload. It returns only when the
// scheduler cannot start; otherwise the process ends through finish.
func (s *session) run() error {
	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	s.cancel = cancel
	s.group = g

	if s.recorder != nil {
		g.Go(func() error { return s.recorder.Run(gctx) })
	}
	if s.cfg.StatusAddr != "" {
		var st store.Store
		if s.st != nil {
			st = s.st
		}
		srv := server.New(st, s.logger,
			server.WithLive(s.sched),
			server.WithCurrentRun(s.runID),
		)
		g.Go(func() error { return srv.ListenAndServe(gctx, s.cfg.StatusAddr) })
	}

	s.logger.Info("run starting",
		"run_id", s.runID,
		"workload", s.wl.Name,
		"quantum", s.cfg.Quantum(),
		"timer", s.cfg.Timer,
	)
	if err := s.sched.Init(s.cfg.Quantum()); err != nil {
		s.stopServices()
		s.closeJournal()
		return fmt.Errorf("init scheduler: %w", err)
	}
	s.runner.Run()
	return nil
}

// finish is the scheduler's exit hook.
func (s *session) finish(code int) {
	s.stopServices()

	report := s.collector.Report()
	report.RunID = s.runID
	report.Workload = s.wl.Name
	if err := report.AttachProcessUsage(); err != nil {
		s.logger.Warn("process usage unavailable", "error", err)
	}
	if s.recorder != nil {
		report.DroppedEvents = s.recorder.Dropped()
	}

	if s.st != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := s.st.FinishRun(ctx, s.runID, code, report.TotalQuanta, time.Now().UTC()); err != nil {
			s.logger.Error("finish run", "run_id", s.runID, "error", err)
		}
		cancel()
		s.closeJournal()
	}

	s.print(report, s.runner.Result())
	s.logger.Info("run finished", "run_id", s.runID, "exit_code", code)
	s.exit(code)
}

func (s *session) stopServices() {
	s.cancel()
	if err := s.group.Wait(); err != nil {
		s.logger.Error("background service failed", "error", err)
	}
}

func (s *session) closeJournal() {
	if s.st == nil {
		return
	}
	if err := s.st.Close(); err != nil {
		s.logger.Warn("close journal", "error", err)
	}
	s.st = nil
}

func (s *session) print(report *metrics.Report, result workload.Result) {
	if s.jsonOut {
		enc := json.NewEncoder(s.out)
		enc.SetIndent("", "  ")
		err := enc.Encode(struct {
			Report   *metrics.Report `json:"report"`
			Workload workload.Result `json:"workload"`
		}{report, result})
		if err != nil {
			s.logger.Error("write report", "error", err)
		}
		return
	}

	metrics.PrintReport(s.out, report)
	printResult(s.out, result)
}

// printResult writes the workload outcome and its counters.
func printResult(w io.Writer, r workload.Result) {
	outcome := string(r.Outcome)
	if outcome == "" {
		outcome = "interrupted"
	}
	fmt.Fprintf(w, "Workload %s: %s (%d threads spawned, %d failed)\n", r.Workload, outcome, r.Spawned, r.Failures)
	if len(r.Counters) == 0 {
		return
	}

	keys := make([]string, 0, len(r.Counters))
	for k := range r.Counters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintln(w, "Counters:")
	for _, k := range keys {
		fmt.Fprintf(w, "  %-20s %d\n", k, r.Counters[k])
	}
}
