package store

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/me/uthreads/pkg/model"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
	st, err := NewSQLiteStore(":memory:", logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func sampleRun(id string, started time.Time) *model.Run {
	return &model.Run{
		ID:           id,
		Workload:     "pingpong",
		QuantumUsecs: 1000,
		MaxThreads:   16,
		Timer:        "wall",
		StartedAt:    started,
	}
}

// switchEvents returns the events of a main thread spawning tid 1 and the two
// alternating for n quanta.
func switchEvents(n int) []model.Event {
	at := time.Now().UTC()
	events := []model.Event{
		{Seq: 1, Kind: model.EventInit, TID: 0, Peer: 0, Quanta: 1, TotalQuanta: 1, At: at},
		{Seq: 2, Kind: model.EventSpawn, TID: 1, Peer: 0, Quanta: 0, TotalQuanta: 1, At: at},
	}
	total := uint64(1)
	quanta := map[int]uint64{0: 1}
	prev := 0
	for i := 0; i < n; i++ {
		next := 1 - prev
		total++
		quanta[next]++
		events = append(events, model.Event{
			Seq: uint64(len(events) + 1), Kind: model.EventSwitch,
			TID: next, Peer: prev, Quanta: quanta[next], TotalQuanta: total, At: at,
		})
		prev = next
	}
	return events
}

func TestMigrate_Idempotent(t *testing.T) {
	st := testStore(t)
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	ok, err := columnExists(context.Background(), st.db, "runs", "timer")
	if err != nil || !ok {
		t.Errorf("timer column missing: %v", err)
	}
}

func TestCreateAndGetRun(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	started := time.Now().UTC().Truncate(time.Millisecond)

	if err := st.CreateRun(ctx, sampleRun("run_1", started)); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	got, err := st.GetRun(ctx, "run_1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got == nil {
		t.Fatal("GetRun returned nil")
	}
	if got.Workload != "pingpong" || got.QuantumUsecs != 1000 || got.MaxThreads != 16 || got.Timer != "wall" {
		t.Errorf("run = %+v", got)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}
	if got.IsFinished() || got.ExitCode != nil {
		t.Error("new run reported finished")
	}
}

func TestGetRun_NotFound(t *testing.T) {
	st := testStore(t)
	got, err := st.GetRun(context.Background(), "run_missing")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got != nil {
		t.Errorf("GetRun = %+v, want nil", got)
	}
}

func TestFinishRun(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	st.CreateRun(ctx, sampleRun("run_1", time.Now().UTC()))

	finished := time.Now().UTC().Truncate(time.Millisecond)
	if err := st.FinishRun(ctx, "run_1", 1, 42, finished); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	got, _ := st.GetRun(ctx, "run_1")
	if !got.IsFinished() || !got.FinishedAt.Equal(finished) {
		t.Errorf("FinishedAt = %v, want %v", got.FinishedAt, finished)
	}
	if got.ExitCode == nil || *got.ExitCode != 1 {
		t.Errorf("ExitCode = %v, want 1", got.ExitCode)
	}
	if got.TotalQuanta != 42 {
		t.Errorf("TotalQuanta = %d, want 42", got.TotalQuanta)
	}

	if err := st.FinishRun(ctx, "run_missing", 0, 0, finished); err == nil {
		t.Error("FinishRun of a missing run succeeded")
	}
}

func TestListRuns_NewestFirst(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	base := time.Now().UTC()
	for i, id := range []string{"run_a", "run_b", "run_c"} {
		st.CreateRun(ctx, sampleRun(id, base.Add(time.Duration(i)*time.Second)))
	}

	runs, total, err := st.ListRuns(ctx, model.ListOptions{Limit: 2})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if total != 3 || len(runs) != 2 {
		t.Fatalf("total = %d, len = %d; want 3, 2", total, len(runs))
	}
	if runs[0].ID != "run_c" || runs[1].ID != "run_b" {
		t.Errorf("order = %s, %s; want run_c, run_b", runs[0].ID, runs[1].ID)
	}

	runs, _, _ = st.ListRuns(ctx, model.ListOptions{Limit: 2, Offset: 2})
	if len(runs) != 1 || runs[0].ID != "run_a" {
		t.Errorf("second page = %v", runs)
	}
}

func TestAppendAndListEvents(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	st.CreateRun(ctx, sampleRun("run_1", time.Now().UTC()))

	events := switchEvents(4)
	if err := st.AppendEvents(ctx, "run_1", events[:3]); err != nil {
		t.Fatalf("AppendEvents: %v", err)
	}
	if err := st.AppendEvents(ctx, "run_1", events[3:]); err != nil {
		t.Fatalf("AppendEvents: %v", err)
	}

	got, total, err := st.ListEvents(ctx, "run_1", model.DefaultListOptions())
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if total != len(events) || len(got) != len(events) {
		t.Fatalf("total = %d, len = %d; want %d", total, len(got), len(events))
	}
	for i, e := range got {
		if e.Seq != uint64(i+1) || e.Kind != events[i].Kind || e.TID != events[i].TID {
			t.Errorf("event %d = %+v, want %+v", i, e, events[i])
		}
	}

	run, _ := st.GetRun(ctx, "run_1")
	if run.Events != len(events) {
		t.Errorf("run.Events = %d, want %d", run.Events, len(events))
	}
	if run.TotalQuanta != 5 {
		t.Errorf("run.TotalQuanta = %d, want 5", run.TotalQuanta)
	}
}

func TestListEvents_Filters(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	st.CreateRun(ctx, sampleRun("run_1", time.Now().UTC()))
	st.AppendEvents(ctx, "run_1", switchEvents(4))

	got, total, err := st.ListEvents(ctx, "run_1", model.ListOptions{Kind: model.EventSwitch})
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if total != 4 || len(got) != 4 {
		t.Errorf("switch events = %d (total %d), want 4", len(got), total)
	}

	tid := 1
	got, total, _ = st.ListEvents(ctx, "run_1", model.ListOptions{TID: &tid})
	if total != 3 {
		t.Errorf("events of tid 1 = %d, want 3 (spawn + 2 switches)", total)
	}
	for _, e := range got {
		if e.TID != 1 {
			t.Errorf("unexpected tid %d", e.TID)
		}
	}

	got, total, _ = st.ListEvents(ctx, "run_1", model.ListOptions{Kind: model.EventSwitch, TID: &tid, Limit: 1})
	if total != 2 || len(got) != 1 {
		t.Errorf("combined filter: len = %d total = %d; want 1, 2", len(got), total)
	}
}

func TestAppendEvents_UnknownRun(t *testing.T) {
	st := testStore(t)
	err := st.AppendEvents(context.Background(), "run_missing", switchEvents(1))
	if err == nil {
		t.Fatal("expected error for unknown run")
	}
	_, total, _ := st.ListEvents(context.Background(), "run_missing", model.DefaultListOptions())
	if total != 0 {
		t.Errorf("events written for unknown run: %d", total)
	}
}

func TestQuantaByThread(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	st.CreateRun(ctx, sampleRun("run_1", time.Now().UTC()))
	st.AppendEvents(ctx, "run_1", switchEvents(5))

	got, err := st.QuantaByThread(ctx, "run_1")
	if err != nil {
		t.Fatalf("QuantaByThread: %v", err)
	}
	want := []model.ThreadQuanta{
		{TID: 0, Quanta: 3, Incarnations: 1},
		{TID: 1, Quanta: 3, Incarnations: 1},
	}
	if len(got) != len(want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("row %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}
