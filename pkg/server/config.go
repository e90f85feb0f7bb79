package server

import "time"

// Config holds server configuration settings
type Config struct {
	Host                string        // Server host address
	Port                int           // Server port
	DataDir             string        // Store data directory - where the WAL and SSTable runs live
	MemtableMaxEntries  int           // Memtable capacity before an automatic flush
	SSTableMaxEntries   int           // SSTable run capacity
	CompactionThreshold int           // Run count that triggers automatic compaction
	CompressionEnabled  bool          // zstd-compress SSTable runs at rest
	ReadTimeout         time.Duration // HTTP read timeout
	WriteTimeout        time.Duration // HTTP write timeout
	IdleTimeout         time.Duration // HTTP idle timeout
	MaxRequestSize      int64         // Maximum request body size in bytes
	EnableCORS          bool          // Enable CORS middleware
	AllowedOrigins      []string      // CORS allowed origins
	EnableLogging       bool          // Enable request logging

	// TLS/SSL configuration
	EnableTLS   bool   // Enable TLS/SSL
	TLSCertFile string // Path to TLS certificate file
	TLSKeyFile  string // Path to TLS private key file

	// Change notifications
	EnableWatch bool // Enable the /_watch WebSocket stream
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Host:                "localhost",
		Port:                8080,
		DataDir:             "./data",
		MemtableMaxEntries:  30,
		SSTableMaxEntries:   30,
		CompactionThreshold: 5,
		ReadTimeout:         30 * time.Second,
		WriteTimeout:        30 * time.Second,
		IdleTimeout:         120 * time.Second,
		MaxRequestSize:      10 * 1024 * 1024, // 10MB
		EnableCORS:          true,
		AllowedOrigins:      []string{"*"},
		EnableLogging:       true,
		EnableTLS:           false,
		EnableWatch:         true,
	}
}
