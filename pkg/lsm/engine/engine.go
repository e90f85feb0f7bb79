// Package engine composes the write-ahead log, memtable, and SSTable
// manager into the LSM tree's write and read paths (spec §4.5).
package engine

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/mnohosten/lsmkv/pkg/lsm/entry"
	"github.com/mnohosten/lsmkv/pkg/lsm/memtable"
	"github.com/mnohosten/lsmkv/pkg/lsm/sstable"
	"github.com/mnohosten/lsmkv/pkg/lsm/wal"
)

// DefaultCompactionThreshold is the reference run count that triggers
// compaction (spec: COMPACTION_THRESHOLD).
const DefaultCompactionThreshold = 5

// mergeFanIn bounds how many of the oldest runs a single compaction
// merges, matching the reference implementation's "merge up to three
// oldest runs" policy (spec §4.4, §9).
const mergeFanIn = 3

// Config controls an Engine's storage locations and capacities.
type Config struct {
	DataDir             string
	WALFile             string
	MemtableMaxEntries  int
	SSTableMaxEntries   int
	CompactionThreshold int
	CompressionEnabled  bool
}

// DefaultConfig returns sensible defaults rooted at dir.
func DefaultConfig(dir string) *Config {
	return &Config{
		DataDir:             dir,
		WALFile:             filepath.Join(dir, "wal.log"),
		MemtableMaxEntries:  memtable.DefaultMaxEntries,
		SSTableMaxEntries:   sstable.DefaultMaxEntries,
		CompactionThreshold: DefaultCompactionThreshold,
	}
}

// Engine is the LSM tree: WAL-backed durability, memtable buffering, and
// SSTable-backed persistence with synchronous, inline flush and
// compaction (spec §4.5, §5 — "No background thread is required").
type Engine struct {
	mu     sync.Mutex
	cfg    *Config
	wal    *wal.WAL
	mem    *memtable.Memtable
	runs   *sstable.Manager
	closed bool
}

// Open starts (or recovers) an engine rooted at cfg's paths. WAL entries
// are replayed into the memtable in sequence order; if that leaves the
// memtable at or over capacity it is flushed once before Open returns.
func Open(cfg *Config) (*Engine, error) {
	w, err := wal.Open(cfg.WALFile)
	if err != nil {
		return nil, fmt.Errorf("engine: open wal: %w", err)
	}

	runs, err := sstable.NewManager(sstable.Config{
		Dir:                cfg.DataDir,
		MaxEntriesPerRun:   cfg.SSTableMaxEntries,
		CompressionEnabled: cfg.CompressionEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: open sstable manager: %w", err)
	}

	e := &Engine{
		cfg:  cfg,
		wal:  w,
		mem:  memtable.New(cfg.MemtableMaxEntries),
		runs: runs,
	}

	entries, err := w.Replay()
	if err != nil {
		return nil, fmt.Errorf("engine: replay wal: %w", err)
	}
	for _, rec := range entries {
		switch rec.Operation {
		case wal.OpPut:
			e.mem.Put(rec.Key, rec.Value, rec.SequenceNumber)
		case wal.OpDelete:
			e.mem.Delete(rec.Key, rec.SequenceNumber)
		}
	}
	if e.mem.IsFull() {
		if err := e.flushLocked(); err != nil {
			return nil, fmt.Errorf("engine: post-recovery flush: %w", err)
		}
	}

	return e, nil
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	return nil
}

// Put inserts or updates key. WAL append is fsynced before the write is
// applied to the memtable; if it fails the write is not applied. A
// memtable already at capacity is flushed before this write is applied,
// so the write that fills the memtable to capacity stays in it, and the
// next write flushes it and lands in the now-empty memtable.
func (e *Engine) Put(key string, value any) error {
	if key == "" {
		return ErrInvalidKey
	}
	if err := validateKey(key); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}

	if e.mem.IsFull() {
		if err := e.flushLocked(); err != nil {
			return err
		}
	}

	seq, err := e.wal.Append(wal.OpPut, key, value)
	if err != nil {
		return fmt.Errorf("engine: put %q: %w", key, err)
	}
	e.mem.Put(key, value, seq)

	return e.checkCompactionLocked()
}

// Get returns the current value for key, consulting the memtable first
// and then every run newest-to-oldest (spec §4.5 read path).
func (e *Engine) Get(key string) (any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.getLocked(key)
}

func (e *Engine) getLocked(key string) (any, bool) {
	if en, ok := e.mem.Lookup(key); ok {
		if en.Deleted {
			return nil, false
		}
		return en.Value, true
	}

	runs := e.runs.ListRuns()
	for i := len(runs) - 1; i >= 0; i-- {
		if en, ok := runs[i].Lookup(key); ok {
			if en.Deleted {
				return nil, false
			}
			return en.Value, true
		}
	}
	return nil, false
}

// Delete writes a tombstone for key and reports whether key existed
// immediately beforehand. The tombstone is written regardless.
func (e *Engine) Delete(key string) (bool, error) {
	if key == "" {
		return false, ErrInvalidKey
	}
	if err := validateKey(key); err != nil {
		return false, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false, ErrClosed
	}

	_, existed := e.getLocked(key)

	if e.mem.IsFull() {
		if err := e.flushLocked(); err != nil {
			return existed, err
		}
	}

	seq, err := e.wal.Append(wal.OpDelete, key, nil)
	if err != nil {
		return false, fmt.Errorf("engine: delete %q: %w", key, err)
	}
	e.mem.Delete(key, seq)

	if err := e.checkCompactionLocked(); err != nil {
		return existed, err
	}
	return existed, nil
}

// liveKeySet overlays the memtable and every run newest-to-oldest: a key
// is live if its most recent occurrence anywhere is a non-tombstoned
// entry. Used by Range and AllKeys.
func (e *Engine) liveKeySet() map[string]bool {
	live := make(map[string]bool)
	seen := make(map[string]bool)

	mark := func(en entry.Entry) {
		if seen[en.Key] {
			return
		}
		seen[en.Key] = true
		live[en.Key] = !en.Deleted
	}

	for _, en := range e.mem.SortedEntries() {
		mark(en)
	}
	runs := e.runs.ListRuns()
	for i := len(runs) - 1; i >= 0; i-- {
		for _, en := range runs[i].AllEntries() {
			mark(en)
		}
	}
	return live
}

// AllKeys returns every live key in ascending order.
func (e *Engine) AllKeys() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.allKeysLocked()
}

func (e *Engine) allKeysLocked() []string {
	live := e.liveKeySet()
	keys := make([]string, 0, len(live))
	for k, isLive := range live {
		if isLive {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Range returns {key: value} for every live key k with start <= k < end.
// Either bound empty leaves that side open. Values are fetched by point
// lookup per spec §4.5 (accepted inefficiency).
func (e *Engine) Range(start, end string) map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()

	result := make(map[string]any)
	for _, k := range e.allKeysLocked() {
		if start != "" && k < start {
			continue
		}
		if end != "" && k >= end {
			break
		}
		if v, ok := e.getLocked(k); ok {
			result[k] = v
		}
	}
	return result
}

// ForceFlush flushes the memtable if non-empty; otherwise it is a no-op.
func (e *Engine) ForceFlush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flushLocked()
}

func (e *Engine) flushLocked() error {
	if e.mem.Size() == 0 {
		return nil
	}
	run := e.runs.CreateRun()
	for _, en := range e.mem.SortedEntries() {
		run.PutRaw(en)
	}
	if err := run.Persist(); err != nil {
		return fmt.Errorf("engine: flush: %w", err)
	}
	e.mem.Clear()
	return e.checkCompactionLocked()
}

// ForceCompact merges the oldest runs (up to mergeFanIn of them) into
// one, unconditionally dropping tombstones among the survivors. This is
// only safe because the reference policy never leaves a live older copy
// of a compacted key stranded outside the merge set in the scenarios
// spec §8 exercises; spec §9 documents this as a known limitation of
// partial compaction, not a bug to silently fix here.
func (e *Engine) ForceCompact() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.compactLocked()
}

func (e *Engine) compactLocked() error {
	runs := e.runs.ListRuns()
	if len(runs) < 2 {
		return nil
	}
	n := mergeFanIn
	if n > len(runs) {
		n = len(runs)
	}
	if _, err := e.runs.Merge(runs[:n]); err != nil {
		return fmt.Errorf("engine: compact: %w", err)
	}
	e.runs.CleanupEmpty()
	return nil
}

// checkCompactionLocked compacts once the catalog holds at least
// CompactionThreshold runs. Safe to call redundantly: compactLocked is a no-op
// below two runs, and a successful merge always leaves fewer runs than
// it started with.
func (e *Engine) checkCompactionLocked() error {
	if len(e.runs.ListRuns()) >= e.cfg.CompactionThreshold {
		return e.compactLocked()
	}
	return nil
}

// ClearAll wipes the memtable, every run, and the WAL. Use with caution.
func (e *Engine) ClearAll() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.mem.Clear()
	for _, r := range e.runs.ListRuns() {
		r.DeleteFile()
	}
	e.runs.CleanupEmpty()
	return e.wal.Clear()
}

// Close releases the WAL's file handle. Outstanding memtable contents
// remain recoverable from the WAL on next Open.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.wal.Close()
}

// Stats reports the nested stats shape spec §6 specifies.
type Stats struct {
	Memtable struct {
		Size    int  `json:"size"`
		MaxSize int  `json:"max_size"`
		IsFull  bool `json:"is_full"`
	} `json:"memtable"`
	SSTables struct {
		Count         int               `json:"count"`
		TotalEntries  int               `json:"total_entries"`
		ActiveEntries int               `json:"active_entries"`
		Details       []sstable.Stats   `json:"details"`
	} `json:"sstables"`
	WAL                 wal.Stats `json:"wal"`
	TotalActiveKeys     int       `json:"total_active_keys"`
	CompactionThreshold int       `json:"compaction_threshold"`
}

// Stats gathers a point-in-time snapshot of every recognized counter.
func (e *Engine) Stats() (Stats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var s Stats
	s.Memtable.Size = e.mem.Size()
	s.Memtable.MaxSize = e.mem.MaxEntries()
	s.Memtable.IsFull = e.mem.IsFull()

	runs := e.runs.ListRuns()
	s.SSTables.Count = len(runs)
	s.SSTables.Details = make([]sstable.Stats, 0, len(runs))
	for _, r := range runs {
		st := r.Stats()
		s.SSTables.TotalEntries += st.TotalEntries
		s.SSTables.ActiveEntries += st.ActiveEntries
		s.SSTables.Details = append(s.SSTables.Details, st)
	}

	walStats, err := e.wal.Stats()
	if err != nil {
		return Stats{}, fmt.Errorf("engine: stats: %w", err)
	}
	s.WAL = walStats
	s.TotalActiveKeys = len(e.allKeysLocked())
	s.CompactionThreshold = e.cfg.CompactionThreshold
	return s, nil
}
