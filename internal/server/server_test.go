package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/me/uthreads/internal/store"
	"github.com/me/uthreads/pkg/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLiteStore(":memory:", testLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// seedRun journals a finished run with a main thread and one spawned thread.
func seedRun(t *testing.T, st store.Store, id string) {
	t.Helper()
	ctx := context.Background()
	start := time.Now().UTC()
	if err := st.CreateRun(ctx, &model.Run{ID: id, Workload: "demo", QuantumUsecs: 1000, MaxThreads: 8, StartedAt: start}); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	events := []model.Event{
		{Seq: 1, Kind: model.EventInit, TID: 0, Quanta: 1, TotalQuanta: 1, At: start},
		{Seq: 2, Kind: model.EventSpawn, TID: 1, Peer: 0, TotalQuanta: 1, At: start},
		{Seq: 3, Kind: model.EventSwitch, TID: 1, Peer: 0, Quanta: 1, TotalQuanta: 2, At: start},
		{Seq: 4, Kind: model.EventTerminate, TID: 1, Peer: 1, Quanta: 1, TotalQuanta: 2, At: start},
		{Seq: 5, Kind: model.EventSwitch, TID: 0, Peer: 1, Quanta: 2, TotalQuanta: 3, At: start},
		{Seq: 6, Kind: model.EventExit, TID: 0, Peer: 0, Quanta: 2, TotalQuanta: 3, At: start},
	}
	if err := st.AppendEvents(ctx, id, events); err != nil {
		t.Fatalf("AppendEvents: %v", err)
	}
	if err := st.FinishRun(ctx, id, 0, 3, start.Add(time.Second)); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
}

type fakeSource struct {
	threads []model.ThreadInfo
	stats   model.Stats
}

func (f *fakeSource) Threads() []model.ThreadInfo { return f.threads }
func (f *fakeSource) Stats() model.Stats          { return f.stats }

// envelope is used to decode the standard response envelope.
type envelope struct {
	Status     string            `json:"status"`
	RequestID  string            `json:"request_id"`
	Timestamp  string            `json:"timestamp"`
	Data       json.RawMessage   `json:"data"`
	Pagination *model.Pagination `json:"pagination"`
	Error      *model.APIError   `json:"error"`
}

func doGet(t *testing.T, srv *Server, path string, wantStatus int) envelope {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != wantStatus {
		t.Fatalf("GET %s: status=%d, want %d, body=%s", path, w.Code, wantStatus, w.Body.String())
	}
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("GET %s: invalid JSON: %v", path, err)
	}
	return env
}

func TestDiscovery(t *testing.T) {
	srv := New(nil, testLogger())
	env := doGet(t, srv, "/api/v1/", http.StatusOK)
	if env.Status != "ok" || env.RequestID == "" {
		t.Errorf("envelope = %+v", env)
	}
	var data discoveryResponse
	json.Unmarshal(env.Data, &data)
	if len(data.Endpoints) != 7 {
		t.Errorf("endpoints = %d, want 7", len(data.Endpoints))
	}
}

func TestHealth(t *testing.T) {
	srv := New(testStore(t), testLogger(), WithLive(&fakeSource{stats: model.Stats{Running: 0}}), WithCurrentRun("run_x"))
	env := doGet(t, srv, "/api/v1/health", http.StatusOK)

	var data healthResponse
	json.Unmarshal(env.Data, &data)
	if data.Status != "healthy" || data.Scheduler != "running" || data.Journal != "sqlite" || data.RunID != "run_x" {
		t.Errorf("health = %+v", data)
	}
	if !strings.HasPrefix(data.GoVersion, "go") {
		t.Errorf("go_version = %q", data.GoVersion)
	}
}

func TestHealth_NoDependencies(t *testing.T) {
	env := doGet(t, New(nil, testLogger()), "/api/v1/health", http.StatusOK)
	var data healthResponse
	json.Unmarshal(env.Data, &data)
	if data.Scheduler != "none" || data.Journal != "disabled" {
		t.Errorf("health = %+v", data)
	}
}

func TestRequestID_Propagated(t *testing.T) {
	srv := New(nil, testLogger())
	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "req_client")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "req_client" {
		t.Errorf("X-Request-ID = %q, want req_client", got)
	}
}

func TestThreadsAndStats(t *testing.T) {
	src := &fakeSource{
		threads: []model.ThreadInfo{
			{ID: 0, State: model.ThreadStateRunning, Quanta: 4, HoldsLock: true},
			{ID: 1, State: model.ThreadStateMutexWaiting, Quanta: 2},
		},
		stats: model.Stats{TotalQuanta: 6, Threads: 2, Running: 0, MutexOwner: 0, MutexWaiting: []int{1}},
	}
	srv := New(nil, testLogger(), WithLive(src))

	env := doGet(t, srv, "/api/v1/threads", http.StatusOK)
	var threads []model.ThreadInfo
	if err := json.Unmarshal(env.Data, &threads); err != nil {
		t.Fatalf("decode threads: %v", err)
	}
	if len(threads) != 2 || threads[1].State != model.ThreadStateMutexWaiting || !threads[0].HoldsLock {
		t.Errorf("threads = %+v", threads)
	}

	env = doGet(t, srv, "/api/v1/stats", http.StatusOK)
	var stats model.Stats
	json.Unmarshal(env.Data, &stats)
	if stats.TotalQuanta != 6 || len(stats.MutexWaiting) != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestThreads_NoScheduler(t *testing.T) {
	env := doGet(t, New(nil, testLogger()), "/api/v1/threads", http.StatusServiceUnavailable)
	if env.Status != "error" || env.Error == nil {
		t.Errorf("envelope = %+v", env)
	}
}

func TestListRuns(t *testing.T) {
	st := testStore(t)
	seedRun(t, st, "run_a")
	seedRun(t, st, "run_b")
	srv := New(st, testLogger())

	env := doGet(t, srv, "/api/v1/runs?limit=1", http.StatusOK)
	var runs []model.Run
	json.Unmarshal(env.Data, &runs)
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	if env.Pagination == nil || env.Pagination.Total != 2 || !env.Pagination.HasMore {
		t.Errorf("pagination = %+v", env.Pagination)
	}
}

func TestListRuns_BadLimit(t *testing.T) {
	env := doGet(t, New(testStore(t), testLogger()), "/api/v1/runs?limit=abc", http.StatusBadRequest)
	if env.Error == nil || env.Error.Code != model.ErrValidation {
		t.Errorf("error = %+v", env.Error)
	}
}

func TestGetRun(t *testing.T) {
	st := testStore(t)
	seedRun(t, st, "run_a")
	srv := New(st, testLogger())

	env := doGet(t, srv, "/api/v1/runs/run_a", http.StatusOK)
	var run model.Run
	json.Unmarshal(env.Data, &run)
	if run.ID != "run_a" || run.Events != 6 || run.TotalQuanta != 3 || run.ExitCode == nil {
		t.Errorf("run = %+v", run)
	}

	env = doGet(t, srv, "/api/v1/runs/run_missing", http.StatusNotFound)
	if env.Error == nil || env.Error.Code != model.ErrNotFound {
		t.Errorf("error = %+v", env.Error)
	}
}

func TestListEvents_Filtered(t *testing.T) {
	st := testStore(t)
	seedRun(t, st, "run_a")
	srv := New(st, testLogger())

	env := doGet(t, srv, "/api/v1/runs/run_a/events?kind=switch", http.StatusOK)
	var events []model.Event
	json.Unmarshal(env.Data, &events)
	if len(events) != 2 {
		t.Errorf("switch events = %d, want 2", len(events))
	}

	env = doGet(t, srv, "/api/v1/runs/run_a/events?tid=1", http.StatusOK)
	json.Unmarshal(env.Data, &events)
	if env.Pagination.Total != 3 {
		t.Errorf("events of tid 1 = %d, want 3", env.Pagination.Total)
	}

	doGet(t, srv, "/api/v1/runs/run_a/events?tid=x", http.StatusBadRequest)
	doGet(t, srv, "/api/v1/runs/run_missing/events", http.StatusNotFound)
}

func TestQuanta(t *testing.T) {
	st := testStore(t)
	seedRun(t, st, "run_a")
	srv := New(st, testLogger())

	env := doGet(t, srv, "/api/v1/runs/run_a/quanta", http.StatusOK)
	var rows []model.ThreadQuanta
	json.Unmarshal(env.Data, &rows)
	want := []model.ThreadQuanta{{TID: 0, Quanta: 2, Incarnations: 1}, {TID: 1, Quanta: 1, Incarnations: 1}}
	if len(rows) != 2 || rows[0] != want[0] || rows[1] != want[1] {
		t.Errorf("quanta = %+v, want %+v", rows, want)
	}
}

func TestRuns_NoJournal(t *testing.T) {
	doGet(t, New(nil, testLogger()), "/api/v1/runs", http.StatusServiceUnavailable)
	doGet(t, New(nil, testLogger()), "/api/v1/runs/run_a", http.StatusServiceUnavailable)
}

func TestListenAndServe_StopsOnCancel(t *testing.T) {
	srv := New(nil, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx, "127.0.0.1:0") }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ListenAndServe: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
