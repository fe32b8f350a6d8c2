package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/me/uthreads/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	if dbPath == ":memory:" {
		// Every connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// --- Runs ---

func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.Run) error {
	s.logger.Debug("sql", "op", "insert", "table", "runs", "id", run.ID)

	timerKind := run.Timer
	if timerKind == "" {
		timerKind = "virtual"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, workload, quantum_usecs, max_threads, timer, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Workload, run.QuantumUsecs, run.MaxThreads, timerKind,
		run.StartedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLiteStore) FinishRun(ctx context.Context, id string, exitCode int, totalQuanta uint64, finishedAt time.Time) error {
	s.logger.Debug("sql", "op", "finish", "table", "runs", "id", id, "exit_code", exitCode)

	result, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at=?, exit_code=?, total_quanta=MAX(total_quanta, ?) WHERE id=?`,
		finishedAt.Format(time.RFC3339Nano), exitCode, int64(totalQuanta), id,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

const runColumns = `id, workload, quantum_usecs, max_threads, timer, started_at, finished_at, exit_code, total_quanta, events`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*model.Run, error) {
	var run model.Run
	var startedAt string
	var finishedAt *string
	var exitCode *int
	var totalQuanta int64

	if err := row.Scan(&run.ID, &run.Workload, &run.QuantumUsecs, &run.MaxThreads, &run.Timer,
		&startedAt, &finishedAt, &exitCode, &totalQuanta, &run.Events); err != nil {
		return nil, err
	}
	run.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	if finishedAt != nil {
		t, _ := time.Parse(time.RFC3339Nano, *finishedAt)
		run.FinishedAt = &t
	}
	run.ExitCode = exitCode
	run.TotalQuanta = uint64(totalQuanta)
	return &run, nil
}

// GetRun returns nil, nil when the run does not exist.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	s.logger.Debug("sql", "op", "select", "table", "runs", "id", id)

	run, err := scanRun(s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, opts model.ListOptions) ([]*model.Run, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "runs", "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT ? OFFSET ?`,
		opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, run)
	}
	return runs, total, rows.Err()
}

// --- Events ---

// AppendEvents writes a batch of events and updates the run's counters in
// one transaction.
func (s *SQLiteStore) AppendEvents(ctx context.Context, runID string, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}
	s.logger.Debug("sql", "op", "insert_batch", "table", "events", "run_id", runID, "count", len(events))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events (run_id, seq, kind, tid, peer, quanta, total_quanta, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	var maxTotal uint64
	for _, e := range events {
		if _, err := stmt.ExecContext(ctx, runID, int64(e.Seq), string(e.Kind), e.TID, e.Peer,
			int64(e.Quanta), int64(e.TotalQuanta), e.At.Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("insert event %d: %w", e.Seq, err)
		}
		if e.TotalQuanta > maxTotal {
			maxTotal = e.TotalQuanta
		}
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE runs SET events = events + ?, total_quanta = MAX(total_quanta, ?) WHERE id = ?`,
		len(events), int64(maxTotal), runID,
	)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListEvents(ctx context.Context, runID string, opts model.ListOptions) ([]model.Event, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "events", "run_id", runID, "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	whereClauses := []string{"run_id = ?"}
	countArgs := []any{runID}
	if opts.Kind != "" {
		whereClauses = append(whereClauses, "kind = ?")
		countArgs = append(countArgs, string(opts.Kind))
	}
	if opts.TID != nil {
		whereClauses = append(whereClauses, "tid = ?")
		countArgs = append(countArgs, *opts.TID)
	}
	whereSQL := " WHERE " + strings.Join(whereClauses, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`+whereSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery := `SELECT seq, kind, tid, peer, quanta, total_quanta, at FROM events` +
		whereSQL + ` ORDER BY seq LIMIT ? OFFSET ?`
	listArgs := append(countArgs, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, listQuery, listArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var e model.Event
		var seq, quanta, totalQuanta int64
		var kind, at string
		if err := rows.Scan(&seq, &kind, &e.TID, &e.Peer, &quanta, &totalQuanta, &at); err != nil {
			return nil, 0, err
		}
		e.Seq = uint64(seq)
		e.Kind = model.EventKind(kind)
		e.Quanta = uint64(quanta)
		e.TotalQuanta = uint64(totalQuanta)
		e.At, _ = time.Parse(time.RFC3339Nano, at)
		events = append(events, e)
	}
	return events, total, rows.Err()
}

// QuantaByThread counts, per tid, the quanta granted (one per switch event
// plus the main thread's first quantum) and the threads that held the tid.
func (s *SQLiteStore) QuantaByThread(ctx context.Context, runID string) ([]model.ThreadQuanta, error) {
	s.logger.Debug("sql", "op", "aggregate", "table", "events", "run_id", runID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT tid,
			SUM(CASE WHEN kind IN ('switch', 'init') THEN 1 ELSE 0 END),
			SUM(CASE WHEN kind IN ('spawn', 'init') THEN 1 ELSE 0 END)
		 FROM events WHERE run_id = ?
		 GROUP BY tid ORDER BY tid`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ThreadQuanta
	for rows.Next() {
		var q model.ThreadQuanta
		var quanta int64
		if err := rows.Scan(&q.TID, &quanta, &q.Incarnations); err != nil {
			return nil, err
		}
		q.Quanta = uint64(quanta)
		out = append(out, q)
	}
	return out, rows.Err()
}
