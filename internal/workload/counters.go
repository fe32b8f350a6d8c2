package workload

import "sync"

// Counters is the integer store shared by every thread of a workload.
type Counters struct {
	mu     sync.Mutex
	values map[string]int64
}

// NewCounters creates an empty store.
func NewCounters() *Counters {
	return &Counters{values: make(map[string]int64)}
}

// Get returns the value of key, zero if unset.
func (c *Counters) Get(key string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values[key]
}

// Set stores v under key.
func (c *Counters) Set(key string, v int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = v
}

// Add adds delta to key and returns the new value.
func (c *Counters) Add(key string, delta int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] += delta
	return c.values[key]
}

// Snapshot returns a copy of every counter.
func (c *Counters) Snapshot() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int64, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}
