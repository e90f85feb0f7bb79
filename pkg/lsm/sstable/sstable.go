// Package sstable implements immutable, file-backed sorted runs and the
// manager that owns the on-disk catalog of them (spec §4.3, §4.4).
package sstable

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/mnohosten/lsmkv/pkg/lsm/entry"
)

// DefaultMaxEntries is the reference capacity (spec: SSTABLE_MAX_ENTRIES).
const DefaultMaxEntries = 30

// fileEnvelope is the on-disk shape: a single JSON object per spec §4.3.
type fileEnvelope struct {
	TableID   int64         `json:"table_id"`
	CreatedAt time.Time     `json:"created_at"`
	Entries   []entry.Entry `json:"entries"`
	Checksum  string        `json:"checksum,omitempty"`
}

// SSTable is an immutable-once-flushed, on-disk sorted run. Mutation
// methods exist for the flush builder and for tests; in steady state the
// engine only ever produces a run via Flush/Merge and reads it back.
type SSTable struct {
	mu         sync.RWMutex
	path       string
	id         int64
	createdAt  time.Time
	entries    []entry.Entry // sorted ascending by Key, unique
	maxEntries int
	codec      *codec
}

// newEmpty builds a fresh, unpersisted run with the given id and path.
func newEmpty(id int64, path string, maxEntries int, codec *codec) *SSTable {
	return &SSTable{
		path:       path,
		id:         id,
		createdAt:  time.Now(),
		maxEntries: maxEntries,
		codec:      codec,
	}
}

// Open loads a run from disk. A missing, empty, or corrupt file (bad
// JSON or checksum mismatch) yields an empty run rather than an error,
// per spec §7: "run files with invalid JSON are treated as empty".
func Open(path string, id int64, maxEntries int, codec *codec) *SSTable {
	sst := newEmpty(id, path, maxEntries, codec)

	raw, err := os.ReadFile(path)
	if err != nil {
		return sst
	}

	data, err := codec.decode(raw)
	if err != nil {
		return sst
	}

	var env fileEnvelope
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&env); err != nil {
		return sst
	}
	if env.Checksum != "" && env.Checksum != checksumOf(mustMarshalEntries(env.Entries)) {
		return sst
	}

	sst.id = env.TableID
	sst.createdAt = env.CreatedAt
	sst.entries = env.Entries
	return sst
}

func mustMarshalEntries(entries []entry.Entry) []byte {
	b, _ := json.Marshal(entries)
	return b
}

// ID returns the run's stable table id.
func (s *SSTable) ID() int64 { return s.id }

// Path returns the run's backing file path.
func (s *SSTable) Path() string { return s.path }

func (s *SSTable) save() error {
	entriesJSON := mustMarshalEntries(s.entries)
	env := fileEnvelope{
		TableID:   s.id,
		CreatedAt: s.createdAt,
		Entries:   s.entries,
		Checksum:  checksumOf(entriesJSON),
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("sstable: marshal %d: %w", s.id, err)
	}
	encoded, err := s.codec.encode(data)
	if err != nil {
		return fmt.Errorf("sstable: encode %d: %w", s.id, err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, encoded, 0o644); err != nil {
		return fmt.Errorf("sstable: write temp file: %w", err)
	}
	f, err := os.OpenFile(tmp, os.O_WRONLY, 0o644)
	if err == nil {
		f.Sync()
		f.Close()
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("sstable: rename temp file: %w", err)
	}
	return nil
}

// binarySearch returns the insertion index and whether key is present.
func (s *SSTable) binarySearch(key string) (int, bool) {
	idx := sort.Search(len(s.entries), func(i int) bool { return s.entries[i].Key >= key })
	if idx < len(s.entries) && s.entries[idx].Key == key {
		return idx, true
	}
	return idx, false
}

// Get returns the value for key if present and not tombstoned.
func (s *SSTable) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, found := s.binarySearch(key)
	if !found || s.entries[idx].Deleted {
		return nil, false
	}
	return s.entries[idx].Value, true
}

// Lookup returns the raw Entry (including tombstones) for key.
func (s *SSTable) Lookup(key string) (entry.Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, found := s.binarySearch(key)
	if !found {
		return entry.Entry{}, false
	}
	return s.entries[idx], true
}

// PutRaw appends an entry as-is, without a capacity check or triggering a
// save. It exists for the flush builder, which appends entries that are
// already known-sorted and within the configured capacity; everything
// else should use Put.
func (s *SSTable) PutRaw(e entry.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
}

// Persist writes the run's current in-memory entries to disk atomically.
// Called once by the flush builder after all entries have been appended
// via PutRaw.
func (s *SSTable) Persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save()
}

// Put inserts or updates key. An update always succeeds; a brand new key
// fails (returns false) once the run is at capacity rather than evicting
// anything. The engine never calls it: flush goes through PutRaw and
// merge assembles its result directly.
func (s *SSTable) Put(key string, value any, timestamp int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, found := s.binarySearch(key)
	e := entry.Entry{Key: key, Value: value, Timestamp: timestamp, Deleted: false}
	if found {
		s.entries[idx] = e
	} else {
		if len(s.entries) >= s.maxEntries {
			return false
		}
		s.entries = insertAt(s.entries, idx, e)
	}
	if err := s.save(); err != nil {
		return false
	}
	return true
}

// Delete marks key as a tombstone. Returns whether the key was already
// present. Unreachable from the engine's public API — see spec §9's open
// question — only tests call it.
func (s *SSTable) Delete(key string, timestamp int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, found := s.binarySearch(key)
	e := entry.Entry{Key: key, Value: nil, Timestamp: timestamp, Deleted: true}
	if found {
		s.entries[idx] = e
		s.save()
		return true
	}
	if len(s.entries) < s.maxEntries {
		s.entries = insertAt(s.entries, idx, e)
		s.save()
	}
	return false
}

func insertAt(entries []entry.Entry, idx int, e entry.Entry) []entry.Entry {
	entries = append(entries, entry.Entry{})
	copy(entries[idx+1:], entries[idx:])
	entries[idx] = e
	return entries
}

// Range returns entries with start <= key < end. Either bound may be
// empty to leave that side open. Tombstones are returned as-is.
func (s *SSTable) Range(start, end string) []entry.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lo := 0
	if start != "" {
		lo = sort.Search(len(s.entries), func(i int) bool { return s.entries[i].Key >= start })
	}
	hi := len(s.entries)
	if end != "" {
		hi = sort.Search(len(s.entries), func(i int) bool { return s.entries[i].Key >= end })
	}
	if lo >= hi {
		return nil
	}
	out := make([]entry.Entry, hi-lo)
	copy(out, s.entries[lo:hi])
	return out
}

// AllEntries returns every entry in the run, tombstones included.
func (s *SSTable) AllEntries() []entry.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]entry.Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// IsFull reports whether the run is at its entry-count capacity.
func (s *SSTable) IsFull() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries) >= s.maxEntries
}

// IsEmpty reports whether the run holds no entries at all.
func (s *SSTable) IsEmpty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries) == 0
}

// Size returns the number of entries (tombstones included).
func (s *SSTable) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Stats reports the "details" entry spec.md's stats shape expects for
// each run.
type Stats struct {
	TableID       int64 `json:"table_id"`
	TotalEntries  int   `json:"total_entries"`
	ActiveEntries int   `json:"active_entries"`
	DeletedEntries int  `json:"deleted_entries"`
	IsFull        bool  `json:"is_full"`
	FileSize      int64 `json:"file_size"`
}

// Stats summarizes the run for the engine's stats endpoint.
func (s *SSTable) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{TableID: s.id, TotalEntries: len(s.entries), IsFull: len(s.entries) >= s.maxEntries}
	for _, e := range s.entries {
		if e.Deleted {
			stats.DeletedEntries++
		} else {
			stats.ActiveEntries++
		}
	}
	if info, err := os.Stat(s.path); err == nil {
		stats.FileSize = info.Size()
	}
	return stats
}

// DeleteFile removes the run's backing file from disk and drops its
// in-memory entries, so the run reports empty afterwards.
func (s *SSTable) DeleteFile() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("sstable: delete file %s: %w", s.path, err)
	}
	s.entries = nil
	return nil
}
