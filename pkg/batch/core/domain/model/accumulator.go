package model

import (
	"sort"
	"sync"
)

// Accumulator holds named counters scoped to one StepExecution. Components that need
// per-step state (for example the number of records missing coordinates) read and write it
// through the StepExecution they were handed, never through their own fields, so two runs of
// the same step never share counts.
type Accumulator struct {
	mu       sync.Mutex
	counters map[string]int64
}

// NewAccumulator returns an empty Accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{counters: make(map[string]int64)}
}

// Increment adds one to key and returns the new value.
func (a *Accumulator) Increment(key string) int64 {
	return a.Add(key, 1)
}

// Add adds delta to key and returns the new value.
func (a *Accumulator) Add(key string, delta int64) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counters[key] += delta
	return a.counters[key]
}

// Get returns the value of key, zero when unset.
func (a *Accumulator) Get(key string) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.counters[key]
}

// Keys returns the names of all counters in sorted order.
func (a *Accumulator) Keys() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	keys := make([]string, 0, len(a.counters))
	for k := range a.counters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
