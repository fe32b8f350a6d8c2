// Package threadtable is the fixed-capacity registry of green threads,
// indexed by tid.
package threadtable

import (
	"errors"
	"time"

	"github.com/me/uthreads/internal/execctx"
)

// ErrFull is returned by Alloc when every slot is taken.
var ErrFull = errors.New("threadtable: no free slot")

// Thread is the metadata the scheduler keeps for one green thread.
type Thread struct {
	ID        int
	Quanta    uint64
	Ctx       *execctx.Context
	Entry     func()
	SpawnedAt time.Time
}

// Table is an arena of slots indexed by tid. Alloc hands out the lowest free
// slot so tids are reused after Free.
type Table struct {
	slots []*Thread
	count int
}

// New creates a table with room for capacity threads.
func New(capacity int) *Table {
	return &Table{slots: make([]*Thread, capacity)}
}

// Alloc registers a thread in the lowest free slot and returns it.
func (t *Table) Alloc(entry func(), ctx *execctx.Context) (*Thread, error) {
	for i, slot := range t.slots {
		if slot == nil {
			th := &Thread{ID: i, Ctx: ctx, Entry: entry, SpawnedAt: time.Now()}
			t.slots[i] = th
			t.count++
			return th, nil
		}
	}
	return nil, ErrFull
}

// Get returns the thread registered under tid.
func (t *Table) Get(tid int) (*Thread, bool) {
	if tid < 0 || tid >= len(t.slots) || t.slots[tid] == nil {
		return nil, false
	}
	return t.slots[tid], true
}

// Free unregisters tid. Freeing an empty slot is a no-op.
func (t *Table) Free(tid int) {
	if _, ok := t.Get(tid); !ok {
		return
	}
	t.slots[tid] = nil
	t.count--
}

// Len returns the number of registered threads.
func (t *Table) Len() int { return t.count }

// Cap returns the table capacity.
func (t *Table) Cap() int { return len(t.slots) }

// Each calls fn for every registered thread in tid order.
func (t *Table) Each(fn func(*Thread)) {
	for _, th := range t.slots {
		if th != nil {
			fn(th)
		}
	}
}
