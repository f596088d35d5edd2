// Package tuplecache implements the keyed, at-most-once-per-key
// memoization table described in §4.D: the only shared mutable structure
// in the core.
package tuplecache

import (
	"sync"

	"github.com/gbif-norway/bdq-agent/internal/model"
)

type (
	// entry tracks one cache key's lifecycle: missing → in-flight →
	// finalized. done is closed exactly once, by the single writer, when
	// the finalized Outcome is stored — every other caller blocks on
	// done closing rather than polling, the same
	// lazy-create-then-double-check-under-lock shape the teacher uses for
	// its per-plugin rate limiters, generalized here from "create a
	// limiter once" to "compute an outcome once."
	entry struct {
		done    chan struct{}
		outcome model.Outcome
		err     error
	}

	// Cache is the Tuple Cache: a keyed, single-writer memoization table
	// for (test-id, tuple) → Outcome. Cache lifetime equals one job; there
	// is no eviction, since the cache is already bounded by the number of
	// distinct tuples per test (§4.D).
	Cache struct {
		mu      sync.Mutex
		entries map[string]*entry
		order   []string // first-insertion order, for a stable snapshot
	}
)

// New builds an empty Cache.
func New() *Cache {
	return &Cache{entries: make(map[string]*entry)}
}

// GetOrCompute returns the Outcome cached under key, computing it with
// compute exactly once per key even under concurrent callers (§8,
// invariant 3): the first caller for a given key becomes its producer and
// runs compute outside the lock; every other concurrent caller for the
// same key blocks until the producer finishes, then observes the same
// (Outcome, error) pair the producer got. A failed compute is not retried
// by the cache itself within the job — the Executor decides whether a
// tuple's work item is retried, and a retry reuses the same key, so a
// permanent failure here is permanent for every waiter too.
func (c *Cache) GetOrCompute(key string, compute func() (model.Outcome, error)) (model.Outcome, error) {
	c.mu.Lock()

	e, exists := c.entries[key]
	if exists {
		c.mu.Unlock()

		<-e.done

		return e.outcome, e.err
	}

	e = &entry{done: make(chan struct{})}
	c.entries[key] = e
	c.order = append(c.order, key)
	c.mu.Unlock()

	outcome, err := compute()

	e.outcome = outcome
	e.err = err
	close(e.done)

	return outcome, err
}

// Get returns the finalized Outcome stored under key, if any. Unlike
// GetOrCompute, Get never blocks waiting for an in-flight producer and
// never triggers a compute — it is for read-only lookups after the
// Executor has finished populating the cache (the Result Projector
// re-derives the same key a work item was dispatched under and looks the
// Outcome back up here, rather than threading it through separately).
func (c *Cache) Get(key string) (model.Outcome, bool) {
	c.mu.Lock()
	e, exists := c.entries[key]
	c.mu.Unlock()

	if !exists {
		return model.Outcome{}, false
	}

	select {
	case <-e.done:
		return e.outcome, e.err == nil
	default:
		return model.Outcome{}, false
	}
}

// SnapshotEntry is one finalized (key, Outcome) pair as returned by
// Snapshot, in first-insertion order.
type SnapshotEntry struct {
	Key     string
	Outcome model.Outcome
}

// Snapshot returns every finalized entry in first-insertion order (§4.D:
// "snapshot() returning an iterator over all finalized entries"). Entries
// still in-flight at the time Snapshot is called are skipped; once the
// Executor's Run has returned, every dispatched key is finalized. The
// Result Projector reads outcomes through Get rather than Snapshot.
func (c *Cache) Snapshot() []SnapshotEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]SnapshotEntry, 0, len(c.order))

	for _, key := range c.order {
		e := c.entries[key]

		select {
		case <-e.done:
			out = append(out, SnapshotEntry{Key: key, Outcome: e.outcome})
		default:
		}
	}

	return out
}

// Len reports the number of distinct keys seen by the cache (in-flight or
// finalized).
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}
