package store

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/me/uthreads/pkg/model"
)

// Recorder journals scheduler events without blocking the scheduler. Observe
// enqueues into a bounded buffer and drops (counting) when it is full; Run
// drains the buffer into the store in batches.
type Recorder struct {
	store      Store
	runID      string
	logger     *slog.Logger
	events     chan model.Event
	batchSize  int
	flushEvery time.Duration

	dropped  atomic.Uint64
	written  atomic.Uint64
	failures atomic.Uint64
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithBuffer sets the event buffer capacity (default 4096).
func WithBuffer(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.events = make(chan model.Event, n)
		}
	}
}

// WithBatch sets how many events are written per transaction and how often a
// partial batch is flushed.
func WithBatch(size int, every time.Duration) RecorderOption {
	return func(r *Recorder) {
		if size > 0 {
			r.batchSize = size
		}
		if every > 0 {
			r.flushEvery = every
		}
	}
}

// NewRecorder creates a recorder for run runID.
func NewRecorder(st Store, runID string, logger *slog.Logger, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store:      st,
		runID:      runID,
		logger:     logger.With("component", "recorder", "run_id", runID),
		events:     make(chan model.Event, 4096),
		batchSize:  256,
		flushEvery: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Observe implements uthreads.Observer.
func (r *Recorder) Observe(e model.Event) {
	select {
	case r.events <- e:
	default:
		r.dropped.Add(1)
	}
}

// Run writes buffered events until ctx is cancelled, then writes whatever is
// still buffered and returns.
func (r *Recorder) Run(ctx context.Context) error {
	r.logger.Debug("recorder started", "batch_size", r.batchSize, "flush_every", r.flushEvery)
	ticker := time.NewTicker(r.flushEvery)
	defer ticker.Stop()

	batch := make([]model.Event, 0, r.batchSize)
	for {
		select {
		case e := <-r.events:
			batch = append(batch, e)
			if len(batch) >= r.batchSize {
				batch = r.flush(batch)
			}
		case <-ticker.C:
			batch = r.flush(batch)
		case <-ctx.Done():
			for drained := false; !drained; {
				select {
				case e := <-r.events:
					batch = append(batch, e)
					if len(batch) >= r.batchSize {
						batch = r.flush(batch)
					}
				default:
					drained = true
				}
			}
			r.flush(batch)
			r.logger.Debug("recorder stopped",
				"written", r.written.Load(), "dropped", r.dropped.Load(), "failed_batches", r.failures.Load())
			return nil
		}
	}
}

// flush writes batch and returns it emptied. Writes use a fresh context so a
// cancelled run still gets its tail recorded.
func (r *Recorder) flush(batch []model.Event) []model.Event {
	if len(batch) == 0 {
		return batch
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.store.AppendEvents(ctx, r.runID, batch); err != nil {
		r.failures.Add(1)
		r.logger.Error("append events", "count", len(batch), "error", err)
	} else {
		r.written.Add(uint64(len(batch)))
	}
	return batch[:0]
}

// Dropped returns how many events were discarded because the buffer was full.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Written returns how many events reached the store.
func (r *Recorder) Written() uint64 {
	return r.written.Load()
}
