// Command lsmkv-server serves the HTTP surface over pkg/kv.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mnohosten/lsmkv/pkg/server"
)

func main() {
	host := flag.String("host", "localhost", "Server host address")
	port := flag.Int("port", 8080, "Server port")
	dataDir := flag.String("data-dir", "./data", "Data directory for WAL and SSTable storage")
	memtableMax := flag.Int("memtable-max-entries", 30, "Memtable capacity before an automatic flush")
	sstableMax := flag.Int("sstable-max-entries", 30, "SSTable run capacity")
	compactionThreshold := flag.Int("compaction-threshold", 5, "Run count that triggers automatic compaction")
	compression := flag.Bool("compression", false, "Compress SSTable runs at rest with zstd")
	corsOrigin := flag.String("cors-origin", "*", "CORS allowed origin")
	enableTLS := flag.Bool("tls", false, "Enable TLS/SSL")
	tlsCert := flag.String("tls-cert", "", "Path to TLS certificate file")
	tlsKey := flag.String("tls-key", "", "Path to TLS private key file")
	enableWatch := flag.Bool("watch", true, "Enable the /_watch change notification stream")
	flag.Parse()

	config := server.DefaultConfig()
	config.Host = *host
	config.Port = *port
	config.DataDir = *dataDir
	config.MemtableMaxEntries = *memtableMax
	config.SSTableMaxEntries = *sstableMax
	config.CompactionThreshold = *compactionThreshold
	config.CompressionEnabled = *compression
	config.AllowedOrigins = []string{*corsOrigin}
	config.EnableTLS = *enableTLS
	config.TLSCertFile = *tlsCert
	config.TLSKeyFile = *tlsKey
	config.EnableWatch = *enableWatch

	srv, err := server.New(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create server: %v\n", err)
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}
