// Package metrics accounts for the quanta each thread receives and reports
// how evenly the scheduler shared the CPU.
package metrics

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/me/uthreads/pkg/model"
)

// ThreadMetrics holds the counters of one tid over a run.
type ThreadMetrics struct {
	TID          int    `json:"tid"`
	Quanta       uint64 `json:"quanta"`
	Incarnations int    `json:"incarnations"`
	Blocks       int    `json:"blocks"`
	Locks        int    `json:"locks"`
	LockWaits    int    `json:"lock_waits"`
}

// CPUTime is the CPU time consumed by the whole process.
type CPUTime struct {
	User   time.Duration `json:"user_ns"`
	System time.Duration `json:"system_ns"`
	Total  string        `json:"total"`
}

// Report summarizes a run.
type Report struct {
	RunID           string          `json:"run_id,omitempty"`
	Workload        string          `json:"workload,omitempty"`
	Duration        time.Duration   `json:"duration_ns"`
	DurationStr     string          `json:"duration"`
	TotalQuanta     uint64          `json:"total_quanta"`
	ContextSwitches uint64          `json:"context_switches"`
	Threads         []ThreadMetrics `json:"threads"`
	MinQuanta       uint64          `json:"min_quanta"`
	MaxQuanta       uint64          `json:"max_quanta"`
	Spread          uint64          `json:"spread"`
	Deadlock        bool            `json:"deadlock"`
	ExitCode        *int            `json:"exit_code,omitempty"`
	CPU             *CPUTime        `json:"cpu,omitempty"`
	PeakRSSKB       uint64          `json:"rss_kb,omitempty"`
	DroppedEvents   uint64          `json:"dropped_events,omitempty"`
}

// Collector is a scheduler observer that keeps per-thread counters.
type Collector struct {
	mu       sync.Mutex
	start    time.Time
	threads  map[int]*ThreadMetrics
	total    uint64
	switches uint64
	deadlock bool
	exitCode *int
	end      time.Time
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		start:   time.Now(),
		threads: make(map[int]*ThreadMetrics),
	}
}

func (c *Collector) thread(tid int) *ThreadMetrics {
	t, ok := c.threads[tid]
	if !ok {
		t = &ThreadMetrics{TID: tid}
		c.threads[tid] = t
	}
	return t
}

// Observe implements uthreads.Observer.
func (c *Collector) Observe(e model.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.total = e.TotalQuanta
	switch e.Kind {
	case model.EventInit:
		c.start = e.At
		t := c.thread(e.TID)
		t.Incarnations++
		t.Quanta++
	case model.EventSpawn:
		c.thread(e.TID).Incarnations++
	case model.EventSwitch:
		c.thread(e.TID).Quanta++
		if e.TID != e.Peer {
			c.switches++
		}
	case model.EventBlock:
		c.thread(e.TID).Blocks++
	case model.EventLock:
		c.thread(e.TID).Locks++
	case model.EventLockWait:
		c.thread(e.TID).LockWaits++
	case model.EventDeadlock:
		c.deadlock = true
	case model.EventExit:
		code := e.Peer
		c.exitCode = &code
		c.end = e.At
	}
}

// Report computes the summary of everything observed so far.
func (c *Collector) Report() *Report {
	c.mu.Lock()
	defer c.mu.Unlock()

	threads := make([]ThreadMetrics, 0, len(c.threads))
	for _, t := range c.threads {
		threads = append(threads, *t)
	}
	end := c.end
	if end.IsZero() {
		end = time.Now()
	}
	r := newReport(threads, end.Sub(c.start))
	r.TotalQuanta = c.total
	r.ContextSwitches = c.switches
	r.Deadlock = c.deadlock
	r.ExitCode = c.exitCode
	return r
}

// FromJournal builds a report from a journaled run and its per-thread
// quanta.
func FromJournal(run *model.Run, rows []model.ThreadQuanta) *Report {
	threads := make([]ThreadMetrics, 0, len(rows))
	for _, q := range rows {
		threads = append(threads, ThreadMetrics{TID: q.TID, Quanta: q.Quanta, Incarnations: q.Incarnations})
	}
	var d time.Duration
	if run.FinishedAt != nil {
		d = run.FinishedAt.Sub(run.StartedAt)
	}
	r := newReport(threads, d)
	r.RunID = run.ID
	r.Workload = run.Workload
	r.TotalQuanta = run.TotalQuanta
	r.ExitCode = run.ExitCode
	r.Deadlock = run.ExitCode != nil && *run.ExitCode != 0
	return r
}

// newReport sorts threads by tid and computes the fairness spread over the
// spawned threads. The main thread is excluded: it usually only supervises.
func newReport(threads []ThreadMetrics, d time.Duration) *Report {
	sort.Slice(threads, func(i, j int) bool { return threads[i].TID < threads[j].TID })
	r := &Report{
		Duration:    d,
		DurationStr: formatDuration(d),
		Threads:     threads,
	}
	first := true
	for _, t := range threads {
		if t.TID == model.MainThreadID {
			continue
		}
		if first || t.Quanta < r.MinQuanta {
			r.MinQuanta = t.Quanta
		}
		if t.Quanta > r.MaxQuanta {
			r.MaxQuanta = t.Quanta
		}
		first = false
	}
	r.Spread = r.MaxQuanta - r.MinQuanta
	return r
}

// AttachProcessUsage fills in the CPU time and resident memory of the
// current process.
func (r *Report) AttachProcessUsage() error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return fmt.Errorf("inspect process: %w", err)
	}
	times, err := p.Times()
	if err != nil {
		return fmt.Errorf("process cpu times: %w", err)
	}
	user := time.Duration(times.User * float64(time.Second))
	system := time.Duration(times.System * float64(time.Second))
	r.CPU = &CPUTime{User: user, System: system, Total: formatDuration(user + system)}

	if mem, err := p.MemoryInfo(); err == nil {
		r.PeakRSSKB = mem.RSS / 1024
	}
	return nil
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %02ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
}

// PrintReport writes a formatted summary of r.
func PrintReport(w io.Writer, r *Report) {
	if r == nil {
		return
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Scheduling Summary ===")
	if r.RunID != "" {
		fmt.Fprintf(w, "Run: %s\n", r.RunID)
	}
	if r.Workload != "" {
		fmt.Fprintf(w, "Workload: %s\n", r.Workload)
	}
	fmt.Fprintf(w, "Duration: %s\n", r.DurationStr)
	fmt.Fprintf(w, "Total quanta: %d", r.TotalQuanta)
	if r.ContextSwitches > 0 {
		fmt.Fprintf(w, " (%d context switches)", r.ContextSwitches)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w)

	if len(r.Threads) > 0 {
		fmt.Fprintf(w, "%5s  %10s  %12s  %7s  %6s  %10s\n", "TID", "Quanta", "Incarnations", "Blocks", "Locks", "Lock waits")
		fmt.Fprintln(w, strings.Repeat("-", 58))
		for _, t := range r.Threads {
			fmt.Fprintf(w, "%5d  %10d  %12d  %7d  %6d  %10d\n",
				t.TID, t.Quanta, t.Incarnations, t.Blocks, t.Locks, t.LockWaits)
		}
		fmt.Fprintln(w, strings.Repeat("-", 58))
		fmt.Fprintf(w, "Quanta per spawned tid: min %d, max %d, spread %d\n", r.MinQuanta, r.MaxQuanta, r.Spread)
	}

	if r.CPU != nil {
		fmt.Fprintf(w, "CPU: %s (user %s, system %s)\n", r.CPU.Total, formatDuration(r.CPU.User), formatDuration(r.CPU.System))
	}
	if r.PeakRSSKB > 0 {
		fmt.Fprintf(w, "RSS: %d KB\n", r.PeakRSSKB)
	}
	if r.DroppedEvents > 0 {
		fmt.Fprintf(w, "Journal dropped %d events\n", r.DroppedEvents)
	}
	switch {
	case r.Deadlock:
		fmt.Fprintln(w, "Result: deadlock")
	case r.ExitCode != nil:
		fmt.Fprintf(w, "Result: exit %d\n", *r.ExitCode)
	}
	fmt.Fprintln(w)
}
