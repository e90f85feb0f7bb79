package sstable

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/mnohosten/lsmkv/pkg/lsm/entry"
)

const filePattern = "sstable_%d.sst"

// Manager owns the on-disk catalog of runs: it assigns ids, creates new
// runs, and performs the N-way merge that backs compaction (spec §4.4).
type Manager struct {
	mu         sync.RWMutex
	dir        string
	runs       []*SSTable // oldest first, per spec's catalog ordering
	nextID     int64
	maxEntries int
	codec      *codec
}

// Config controls a Manager's capacity and at-rest encoding.
type Config struct {
	Dir                 string
	MaxEntriesPerRun    int
	CompressionEnabled  bool
}

// NewManager recovers the catalog from dir: every sstable_<id>.sst file is loaded,
// empties are discarded, and the id counter floors at the highest
// numeric suffix observed (spec §4.4 "Catalog recovery").
func NewManager(cfg Config) (*Manager, error) {
	if cfg.MaxEntriesPerRun <= 0 {
		cfg.MaxEntriesPerRun = DefaultMaxEntries
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("sstable: create data dir: %w", err)
	}
	codec, err := NewCodec(cfg.CompressionEnabled)
	if err != nil {
		return nil, err
	}

	m := &Manager{dir: cfg.Dir, maxEntries: cfg.MaxEntriesPerRun, codec: codec}

	entries, err := os.ReadDir(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("sstable: enumerate data dir: %w", err)
	}

	type loaded struct {
		id   int64
		path string
	}
	var found []loaded
	for _, de := range entries {
		if de.IsDir() || filepath.Ext(de.Name()) != ".sst" {
			continue
		}
		var id int64
		if _, err := fmt.Sscanf(de.Name(), filePattern, &id); err != nil {
			continue
		}
		found = append(found, loaded{id: id, path: filepath.Join(cfg.Dir, de.Name())})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].id < found[j].id })

	for _, lf := range found {
		sst := Open(lf.path, lf.id, m.maxEntries, m.codec)
		if sst.IsEmpty() {
			continue
		}
		m.runs = append(m.runs, sst)
		if lf.id >= m.nextID {
			m.nextID = lf.id + 1
		}
	}

	return m, nil
}

// allocate reserves the next run id and its deterministic file path.
func (m *Manager) allocate() (int64, string) {
	id := m.nextID
	m.nextID++
	return id, filepath.Join(m.dir, fmt.Sprintf(filePattern, id))
}

// CreateRun allocates a new, empty, uniquely-named run and adds it to the
// catalog (as the newest run).
func (m *Manager) CreateRun() *SSTable {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, path := m.allocate()
	sst := newEmpty(id, path, m.maxEntries, m.codec)
	m.runs = append(m.runs, sst)
	return sst
}

// ListRuns returns the catalog, oldest first.
func (m *Manager) ListRuns() []*SSTable {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*SSTable, len(m.runs))
	copy(out, m.runs)
	return out
}

// CleanupEmpty removes any run left with zero entries from the catalog
// and deletes its file.
func (m *Manager) CleanupEmpty() {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.runs[:0]
	for _, r := range m.runs {
		if r.IsEmpty() {
			r.DeleteFile()
			continue
		}
		kept = append(kept, r)
	}
	m.runs = kept
}

// Merge performs the spec §4.4 merge algorithm over runs (most likely the
// oldest few, per the engine's compaction policy): collect every entry,
// sort by (key asc, timestamp asc), keep the max-timestamp survivor per
// key, drop tombstones among the survivors, and write the rest as one
// fresh run. The source runs are then removed from the catalog and their
// files deleted.
//
// This unconditionally drops tombstones among the merge set's survivors,
// which is only safe when every run holding an older version of a key is
// part of the merge. A partial compaction (fewer than all runs) can
// resurrect a key whose tombstone lived only in the compacted set if an
// even older, non-participating run still holds a live entry for it.
// Reference behavior per spec §4.4/§9: left uncorrected here.
func (m *Manager) Merge(runs []*SSTable) (*SSTable, error) {
	if len(runs) == 0 {
		return nil, fmt.Errorf("sstable: merge: no runs given")
	}

	var all []entry.Entry
	for _, r := range runs {
		all = append(all, r.AllEntries()...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Key != all[j].Key {
			return all[i].Key < all[j].Key
		}
		return all[i].Timestamp < all[j].Timestamp
	})

	survivors := make(map[string]entry.Entry, len(all))
	for _, e := range all {
		cur, ok := survivors[e.Key]
		if !ok || e.Timestamp >= cur.Timestamp {
			survivors[e.Key] = e
		}
	}

	keys := make([]string, 0, len(survivors))
	for k := range survivors {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	m.mu.Lock()
	id, path := m.allocate()
	m.mu.Unlock()

	merged := newEmpty(id, path, m.maxEntries, m.codec)
	for _, k := range keys {
		e := survivors[k]
		if e.Deleted {
			continue
		}
		merged.entries = append(merged.entries, e)
	}
	if err := merged.save(); err != nil {
		return nil, fmt.Errorf("sstable: save merged run: %w", err)
	}

	// The merged run replaces the compacted runs at the position of the
	// oldest one among them: it is not newer than any run outside the
	// merge set, so it cannot be appended as the catalog's newest entry.
	m.mu.Lock()
	byPath := make(map[string]bool, len(runs))
	for _, r := range runs {
		byPath[r.Path()] = true
	}
	insertPos := -1
	var kept []*SSTable
	for _, r := range m.runs {
		if byPath[r.Path()] {
			if insertPos == -1 {
				insertPos = len(kept)
			}
			continue
		}
		kept = append(kept, r)
	}
	if insertPos == -1 {
		insertPos = len(kept)
	}
	kept = append(kept, nil)
	copy(kept[insertPos+1:], kept[insertPos:])
	kept[insertPos] = merged
	m.runs = kept
	m.mu.Unlock()

	for _, r := range runs {
		if err := r.DeleteFile(); err != nil {
			return nil, err
		}
	}

	return merged, nil
}
