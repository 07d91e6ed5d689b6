// Package lockmap provides per-key mutual exclusion.
//
// The engine serializes mutations per decision: two writers touching the
// same decision queue up, writers on unrelated decisions run in parallel.
// Entries are reference counted and dropped when the last holder or waiter
// releases them, so the map only holds keys that are in use.
package lockmap

import (
	"context"
	"slices"
	"sync"
)

// Map is a set of named mutexes. The zero value is ready to use.
type Map struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	ch   chan struct{} // capacity 1; a token in the channel means locked
	refs int
}

// New returns an empty Map.
func New() *Map {
	return &Map{}
}

func (m *Map) acquire(key string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		m.entries = make(map[string]*entry)
	}
	e, ok := m.entries[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		m.entries[key] = e
	}
	e.refs++
	return e
}

func (m *Map) release(key string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(m.entries, key)
	}
}

// Lock blocks until every key is held and returns the function that
// releases them. Keys are taken in sorted order with duplicates and empty
// keys ignored, so callers locking overlapping sets cannot deadlock.
//
// If ctx ends first, the keys already taken are released and ctx.Err() is
// returned.
func (m *Map) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = normalize(keys)

	held := make([]string, 0, len(keys))
	entries := make([]*entry, 0, len(keys))
	unlock := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-entries[i].ch
			m.release(held[i], entries[i])
		}
	}

	for _, k := range keys {
		e := m.acquire(k)
		select {
		case e.ch <- struct{}{}:
			held = append(held, k)
			entries = append(entries, e)
		case <-ctx.Done():
			m.release(k, e)
			unlock()
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	return func() { once.Do(unlock) }, nil
}

// Len reports how many keys are currently held or waited on.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func normalize(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
