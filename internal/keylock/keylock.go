// Package keylock provides per-key mutual exclusion without a global lock.
//
// The write path of the pattern cache is serialized per caso: two workers
// learning pages of the same caso take turns, while writes to different
// casos proceed fully in parallel. Keys hash to a fixed set of shards, and
// each shard tracks refcounted mutexes so entries are dropped as soon as the
// last holder releases them.
package keylock

import (
	"sync"

	"github.com/google/uuid"
)

const shardCount = 32

// entry is one key's mutex plus the number of goroutines holding or waiting
// on it. The refcount lets the shard delete the entry when it goes idle.
type entry struct {
	mu   sync.Mutex
	refs int
}

type shard struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*entry
}

// Map is a set of per-key mutexes, sharded by key hash.
type Map struct {
	shards [shardCount]shard
}

// New creates an empty keyed lock map.
func New() *Map {
	m := &Map{}
	for i := range m.shards {
		m.shards[i].entries = make(map[uuid.UUID]*entry)
	}
	return m
}

func (m *Map) shardFor(key uuid.UUID) *shard {
	// The low byte of a v4 UUID is random; it spreads fine over 32 shards.
	return &m.shards[key[15]%shardCount]
}

// Lock acquires the mutex for key, blocking until it is available.
// It returns the unlock function; callers should defer it.
func (m *Map) Lock(key uuid.UUID) func() {
	s := m.shardFor(key)

	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		e = &entry{}
		s.entries[key] = e
	}
	e.refs++
	s.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		s.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(s.entries, key)
		}
		s.mu.Unlock()
	}
}

// Len reports how many keys currently hold or wait on a lock. Intended for
// tests and debugging.
func (m *Map) Len() int {
	n := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}
