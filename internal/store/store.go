package store

import (
	"context"
	"time"

	"github.com/me/uthreads/pkg/model"
)

// Store defines the persistence layer for the scheduling journal.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run *model.Run) error
	FinishRun(ctx context.Context, id string, exitCode int, totalQuanta uint64, finishedAt time.Time) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, opts model.ListOptions) ([]*model.Run, int, error)

	// Events
	AppendEvents(ctx context.Context, runID string, events []model.Event) error
	ListEvents(ctx context.Context, runID string, opts model.ListOptions) ([]model.Event, int, error)
	QuantaByThread(ctx context.Context, runID string) ([]model.ThreadQuanta, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
