package metrics

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/me/uthreads/pkg/model"
)

func feed(c *Collector, events ...model.Event) {
	for i, e := range events {
		e.Seq = uint64(i + 1)
		if e.At.IsZero() {
			e.At = time.Now()
		}
		c.Observe(e)
	}
}

func TestCollector_CountsQuanta(t *testing.T) {
	c := NewCollector()
	feed(c,
		model.Event{Kind: model.EventInit, TID: 0, TotalQuanta: 1},
		model.Event{Kind: model.EventSpawn, TID: 1, Peer: 0, TotalQuanta: 1},
		model.Event{Kind: model.EventSpawn, TID: 2, Peer: 0, TotalQuanta: 1},
		model.Event{Kind: model.EventSwitch, TID: 1, Peer: 0, TotalQuanta: 2},
		model.Event{Kind: model.EventLock, TID: 1, Peer: 1, TotalQuanta: 2},
		model.Event{Kind: model.EventSwitch, TID: 2, Peer: 1, TotalQuanta: 3},
		model.Event{Kind: model.EventLockWait, TID: 2, Peer: 1, TotalQuanta: 3},
		model.Event{Kind: model.EventSwitch, TID: 0, Peer: 2, TotalQuanta: 4},
		model.Event{Kind: model.EventSwitch, TID: 0, Peer: 0, TotalQuanta: 5},
		model.Event{Kind: model.EventBlock, TID: 1, Peer: 0, TotalQuanta: 5},
		model.Event{Kind: model.EventExit, TID: 0, Peer: 0, TotalQuanta: 5},
	)

	r := c.Report()
	if r.TotalQuanta != 5 {
		t.Errorf("TotalQuanta = %d, want 5", r.TotalQuanta)
	}
	if r.ContextSwitches != 3 {
		t.Errorf("ContextSwitches = %d, want 3", r.ContextSwitches)
	}
	want := []ThreadMetrics{
		{TID: 0, Quanta: 3, Incarnations: 1},
		{TID: 1, Quanta: 1, Incarnations: 1, Blocks: 1, Locks: 1},
		{TID: 2, Quanta: 1, Incarnations: 1, LockWaits: 1},
	}
	if len(r.Threads) != len(want) {
		t.Fatalf("threads = %+v", r.Threads)
	}
	for i := range want {
		if r.Threads[i] != want[i] {
			t.Errorf("thread %d = %+v, want %+v", i, r.Threads[i], want[i])
		}
	}
	if r.Spread != 0 || r.MinQuanta != 1 || r.MaxQuanta != 1 {
		t.Errorf("min/max/spread = %d/%d/%d, want 1/1/0", r.MinQuanta, r.MaxQuanta, r.Spread)
	}
	if r.ExitCode == nil || *r.ExitCode != 0 || r.Deadlock {
		t.Errorf("exit = %v deadlock = %v", r.ExitCode, r.Deadlock)
	}
}

func TestCollector_Deadlock(t *testing.T) {
	c := NewCollector()
	feed(c,
		model.Event{Kind: model.EventInit, TID: 0, TotalQuanta: 1},
		model.Event{Kind: model.EventDeadlock, TID: 0, Peer: 0, TotalQuanta: 1},
		model.Event{Kind: model.EventExit, TID: 0, Peer: 1, TotalQuanta: 1},
	)
	r := c.Report()
	if !r.Deadlock || r.ExitCode == nil || *r.ExitCode != 1 {
		t.Errorf("deadlock = %v exit = %v", r.Deadlock, r.ExitCode)
	}
}

func TestFromJournal(t *testing.T) {
	start := time.Now().UTC()
	end := start.Add(1500 * time.Millisecond)
	code := 0
	run := &model.Run{ID: "run_1", Workload: "demo", StartedAt: start, FinishedAt: &end, ExitCode: &code, TotalQuanta: 12}
	r := FromJournal(run, []model.ThreadQuanta{
		{TID: 2, Quanta: 3, Incarnations: 1},
		{TID: 0, Quanta: 4, Incarnations: 1},
		{TID: 1, Quanta: 5, Incarnations: 2},
	})
	if r.Threads[0].TID != 0 || r.Threads[2].TID != 2 {
		t.Errorf("threads not sorted: %+v", r.Threads)
	}
	if r.MinQuanta != 3 || r.MaxQuanta != 5 || r.Spread != 2 {
		t.Errorf("min/max/spread = %d/%d/%d, want 3/5/2", r.MinQuanta, r.MaxQuanta, r.Spread)
	}
	if r.DurationStr != "1.5s" {
		t.Errorf("DurationStr = %q, want 1.5s", r.DurationStr)
	}
	if r.Deadlock {
		t.Error("exit 0 reported as deadlock")
	}
}

func TestAttachProcessUsage(t *testing.T) {
	r := &Report{}
	if err := r.AttachProcessUsage(); err != nil {
		t.Skipf("process stats unavailable: %v", err)
	}
	if r.CPU == nil || r.CPU.Total == "" {
		t.Errorf("CPU = %+v", r.CPU)
	}
}

func TestPrintReport(t *testing.T) {
	code := 0
	r := newReport([]ThreadMetrics{{TID: 0, Quanta: 2}, {TID: 1, Quanta: 4, Incarnations: 1}}, 250*time.Millisecond)
	r.RunID = "run_1"
	r.TotalQuanta = 6
	r.ExitCode = &code

	var buf bytes.Buffer
	PrintReport(&buf, r)
	out := buf.String()
	for _, want := range []string{"=== Scheduling Summary ===", "Run: run_1", "Duration: 250ms", "Total quanta: 6", "spread 0", "Result: exit 0"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{500 * time.Millisecond, "500ms"},
		{2500 * time.Millisecond, "2.5s"},
		{90 * time.Second, "1m 30s"},
		{2*time.Hour + 5*time.Minute, "2h 05m 00s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
