// Package kv is the CRUD façade over the LSM engine: the surface every
// external collaborator (CLI, HTTP server) actually talks to.
package kv

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mnohosten/lsmkv/pkg/lsm/engine"
)

// Config controls a Store's on-disk layout and capacities.
type Config struct {
	DataDir             string
	WALFile             string
	MemtableMaxEntries  int
	SSTableMaxEntries   int
	CompactionThreshold int
	CompressionEnabled  bool
}

// DefaultConfig returns sensible defaults rooted at dataDir, with the WAL
// file placed alongside the SSTable runs.
func DefaultConfig(dataDir string) *Config {
	ec := engine.DefaultConfig(dataDir)
	return &Config{
		DataDir:             ec.DataDir,
		WALFile:             ec.WALFile,
		MemtableMaxEntries:  ec.MemtableMaxEntries,
		SSTableMaxEntries:   ec.SSTableMaxEntries,
		CompactionThreshold: ec.CompactionThreshold,
	}
}

// Store is the key-value store: an LSM engine plus the CRUD/batch/health
// vocabulary a caller actually wants, instead of engine.Engine's bare
// Put/Get/Delete.
type Store struct {
	mu  sync.RWMutex
	cfg *Config
	eng *engine.Engine
}

// Open starts (or recovers) a Store rooted at cfg's paths.
func Open(cfg *Config) (*Store, error) {
	eng, err := engine.Open(&engine.Config{
		DataDir:             cfg.DataDir,
		WALFile:             cfg.WALFile,
		MemtableMaxEntries:  cfg.MemtableMaxEntries,
		SSTableMaxEntries:   cfg.SSTableMaxEntries,
		CompactionThreshold: cfg.CompactionThreshold,
		CompressionEnabled:  cfg.CompressionEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("kv: open: %w", err)
	}
	return &Store{cfg: cfg, eng: eng}, nil
}

// Create inserts key only if it does not already exist.
func (s *Store) Create(key string, value any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.eng.Get(key); exists {
		return false, nil
	}
	if err := s.eng.Put(key, value); err != nil {
		return false, err
	}
	return true, nil
}

// Read returns the value for key, or found=false if it is absent.
func (s *Store) Read(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.eng.Get(key)
}

// Get is an alias for Read.
func (s *Store) Get(key string) (any, bool) {
	return s.Read(key)
}

// Update overwrites key's value only if it already exists. An invalid key
// is rejected unconditionally, before the existence check, so it never
// masquerades as a plain "not found".
func (s *Store) Update(key string, value any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(key) == "" {
		return false, engine.ErrInvalidKey
	}
	if _, exists := s.eng.Get(key); !exists {
		return false, nil
	}
	if err := s.eng.Put(key, value); err != nil {
		return false, err
	}
	return true, nil
}

// Put creates or overwrites key unconditionally.
func (s *Store) Put(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eng.Put(key, value)
}

// Delete removes key. Returns whether key existed beforehand.
func (s *Store) Delete(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eng.Delete(key)
}

// Exists reports whether key currently has a live value.
func (s *Store) Exists(key string) bool {
	_, ok := s.Read(key)
	return ok
}

// AllKeys returns every live key in ascending order.
func (s *Store) AllKeys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.eng.AllKeys()
}

// AllItems returns every live key-value pair.
func (s *Store) AllItems() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.eng.Range("", "")
}

// GetRange returns every live key-value pair with start <= key < end.
// Either bound empty leaves that side open.
func (s *Store) GetRange(start, end string) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.eng.Range(start, end)
}

// Count returns the number of live keys.
func (s *Store) Count() int {
	return len(s.AllKeys())
}

// IsEmpty reports whether the store holds no live keys.
func (s *Store) IsEmpty() bool {
	return s.Count() == 0
}

// Clear wipes every key, run, and the WAL.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eng.ClearAll()
}

// ForceFlush flushes the memtable to a new run, bypassing the capacity
// trigger.
func (s *Store) ForceFlush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eng.ForceFlush()
}

// ForceCompaction merges the oldest runs, bypassing the threshold trigger.
func (s *Store) ForceCompaction() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eng.ForceCompact()
}

// Stats reports the engine's counters plus the store's own configuration.
type Stats struct {
	engine.Stats
	DataDir   string `json:"data_directory"`
	WALFile   string `json:"wal_file"`
	TotalKeys int    `json:"total_keys"`
}

// Stats gathers a point-in-time snapshot of every recognized counter.
func (s *Store) Stats() (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	es, err := s.eng.Stats()
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Stats:     es,
		DataDir:   s.cfg.DataDir,
		WALFile:   s.cfg.WALFile,
		TotalKeys: es.TotalActiveKeys,
	}, nil
}

// Health is the shape returned by HealthCheck.
type Health struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Checks    struct {
		WALAccessible        bool `json:"wal_accessible"`
		DataDirAccessible    bool `json:"data_dir_accessible"`
		MemtableOperational  bool `json:"memtable_operational"`
		SSTablesAccessible   bool `json:"sstables_accessible"`
	} `json:"checks"`
	Stats Stats  `json:"stats,omitempty"`
	Error string `json:"error,omitempty"`
}

// HealthCheck reports whether the store's backing files are reachable and
// its counters are sane.
func (s *Store) HealthCheck() Health {
	h := Health{Timestamp: time.Now()}

	stats, err := s.Stats()
	if err != nil {
		h.Status = "error"
		h.Error = err.Error()
		return h
	}

	_, walErr := os.Stat(s.cfg.WALFile)
	_, dirErr := os.Stat(s.cfg.DataDir)
	h.Checks.WALAccessible = walErr == nil
	h.Checks.DataDirAccessible = dirErr == nil
	h.Checks.MemtableOperational = stats.Memtable.Size >= 0
	h.Checks.SSTablesAccessible = stats.SSTables.Count >= 0

	h.Status = "healthy"
	if !h.Checks.WALAccessible || !h.Checks.DataDirAccessible ||
		!h.Checks.MemtableOperational || !h.Checks.SSTablesAccessible {
		h.Status = "unhealthy"
	}
	h.Stats = stats
	return h
}

// BatchPut puts every item, returning per-key success.
func (s *Store) BatchPut(items map[string]any) map[string]bool {
	results := make(map[string]bool, len(items))
	for key, value := range items {
		results[key] = s.Put(key, value) == nil
	}
	return results
}

// BatchGet reads every key, returning per-key value and presence.
func (s *Store) BatchGet(keys []string) map[string]any {
	results := make(map[string]any, len(keys))
	for _, key := range keys {
		if v, ok := s.Read(key); ok {
			results[key] = v
		} else {
			results[key] = nil
		}
	}
	return results
}

// BatchDelete deletes every key, returning per-key prior existence.
func (s *Store) BatchDelete(keys []string) map[string]bool {
	results := make(map[string]bool, len(keys))
	for _, key := range keys {
		existed, err := s.Delete(key)
		results[key] = err == nil && existed
	}
	return results
}

// Close releases the store's backing resources.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eng.Close()
}
