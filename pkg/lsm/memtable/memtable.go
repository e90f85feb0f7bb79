// Package memtable implements the in-memory, capacity-bounded sorted
// buffer at the top of the LSM hierarchy (spec §4.2).
package memtable

import (
	"sort"
	"sync"

	"github.com/mnohosten/lsmkv/pkg/lsm/entry"
)

// DefaultMaxEntries is the reference capacity (spec: MEMTABLE_MAX_ENTRIES).
const DefaultMaxEntries = 30

// Memtable is a mutable, sorted key->Entry map. A write to an existing
// key replaces its prior Entry in place; tombstones may resurrect as PUT
// and vice versa.
type Memtable struct {
	mu         sync.RWMutex
	list       *skipList
	maxEntries int
}

// New creates an empty Memtable bounded by maxEntries.
func New(maxEntries int) *Memtable {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Memtable{list: newSkipList(), maxEntries: maxEntries}
}

// Put inserts or replaces the live entry for key.
func (m *Memtable) Put(key string, value any, timestamp int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.list.insert(key, entry.Entry{Key: key, Value: value, Timestamp: timestamp, Deleted: false})
}

// Delete writes a tombstone for key, replacing any prior entry.
func (m *Memtable) Delete(key string, timestamp int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.list.insert(key, entry.Entry{Key: key, Value: nil, Timestamp: timestamp, Deleted: true})
}

// Get returns the value for key if it has a live entry. found is false
// both when the key is absent and when it is tombstoned; callers that
// need to distinguish "absent" from "tombstoned" should use Lookup.
func (m *Memtable) Get(key string) (value any, found bool) {
	e, ok := m.Lookup(key)
	if !ok || e.Deleted {
		return nil, false
	}
	return e.Value, true
}

// Lookup returns the raw Entry (including tombstones) for key.
func (m *Memtable) Lookup(key string) (entry.Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.list.search(key)
}

// SortedEntries returns every entry, live or tombstoned, in ascending
// key order. This is the unit of flush.
func (m *Memtable) SortedEntries() []entry.Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]entry.Entry, 0, m.list.size)
	node := m.list.head.forward[0]
	for node != nil {
		entries = append(entries, node.value)
		node = node.forward[0]
	}
	// The skip list is already key-ordered by construction, but sort
	// defensively so callers never depend on that implementation detail.
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries
}

// IsFull reports whether the memtable has reached its capacity.
func (m *Memtable) IsFull() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.list.size >= m.maxEntries
}

// Size returns the number of entries currently held (including tombstones).
func (m *Memtable) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.list.size
}

// Clear empties the memtable. Called after a successful flush.
func (m *Memtable) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.list.clear()
}

// MaxEntries returns the configured capacity.
func (m *Memtable) MaxEntries() int {
	return m.maxEntries
}
