// Command lsmkv is a CLI front-end over pkg/kv: put, get, delete, range,
// stats, and a sample-data loader for quickly poking at a store.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/mnohosten/lsmkv/pkg/kv"
)

const usage = `lsmkv: a small command-line client for an lsmkv data directory

Usage:
  lsmkv [-data-dir DIR] <command> [args]

Commands:
  put <key> <json-value>   Insert or overwrite key
  get <key>                Print the value for key
  delete <key>              Remove key
  range [start] [end]      Print every key in [start, end)
  stats                    Print store statistics
  load-sample              Populate the store with sample data
`

func main() {
	dataDir := flag.String("data-dir", "./data", "Data directory for WAL and SSTable storage")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	store, err := kv.Open(kv.DefaultConfig(*dataDir))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	cmd, rest := args[0], args[1:]
	var cmdErr error
	switch cmd {
	case "put":
		cmdErr = runPut(store, rest)
	case "get":
		cmdErr = runGet(store, rest)
	case "delete":
		cmdErr = runDelete(store, rest)
	case "range":
		cmdErr = runRange(store, rest)
	case "stats":
		cmdErr = runStats(store)
	case "load-sample":
		cmdErr = runLoadSample(store)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		flag.Usage()
		os.Exit(2)
	}

	if cmdErr != nil {
		fmt.Fprintf(os.Stderr, "%v\n", cmdErr)
		os.Exit(1)
	}
}

func runPut(store *kv.Store, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: lsmkv put <key> <json-value>")
	}
	var value interface{}
	if err := json.Unmarshal([]byte(args[1]), &value); err != nil {
		return fmt.Errorf("invalid JSON value: %w", err)
	}
	if err := store.Put(args[0], value); err != nil {
		return err
	}
	fmt.Printf("put %q\n", args[0])
	return nil
}

func runGet(store *kv.Store, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: lsmkv get <key>")
	}
	value, ok := store.Read(args[0])
	if !ok {
		return fmt.Errorf("key not found: %s", args[0])
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}

func runDelete(store *kv.Store, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: lsmkv delete <key>")
	}
	existed, err := store.Delete(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("deleted %q (existed: %v)\n", args[0], existed)
	return nil
}

func runRange(store *kv.Store, args []string) error {
	var start, end string
	if len(args) > 0 {
		start = args[0]
	}
	if len(args) > 1 {
		end = args[1]
	}
	items := store.GetRange(start, end)
	encoded, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}

func runStats(store *kv.Store) error {
	stats, err := store.Stats()
	if err != nil {
		return err
	}
	encoded, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}

// sampleData mirrors the web demo's /api/demo/load_sample seed set: users
// and products (nested mappings), config scalars (string, bool, number),
// sessions, a list value, metrics, and logs — one example of every JSON
// shape the store accepts.
var sampleData = map[string]interface{}{
	"user_1": map[string]interface{}{"name": "Alice Johnson", "age": 28, "role": "Developer", "email": "alice@example.com"},
	"user_2": map[string]interface{}{"name": "Bob Smith", "age": 35, "role": "Manager", "email": "bob@example.com"},
	"user_3": map[string]interface{}{"name": "Charlie Brown", "age": 22, "role": "Intern", "email": "charlie@example.com"},

	"product_laptop":   map[string]interface{}{"name": "Gaming Laptop", "price": 1299.99, "category": "Electronics", "stock": 15},
	"product_mouse":    map[string]interface{}{"name": "Wireless Mouse", "price": 29.99, "category": "Electronics", "stock": 120},
	"product_keyboard": map[string]interface{}{"name": "Mechanical Keyboard", "price": 89.99, "category": "Electronics", "stock": 45},

	"config_app_name":  "lsmkv",
	"config_version":   "1.2.3",
	"config_debug":     true,
	"config_max_users": 1000,

	"session_abc123": map[string]interface{}{"user_id": "user_1", "login_time": "2024-01-15T10:30:00", "expires": "2024-01-15T18:30:00"},
	"session_def456": map[string]interface{}{"user_id": "user_2", "login_time": "2024-01-15T11:45:00", "expires": "2024-01-15T19:45:00"},

	"cache_popular_products": []interface{}{"product_laptop", "product_mouse"},

	"metrics_daily_users": 2547,
	"metrics_total_sales": 45678.90,

	"log_error_001": map[string]interface{}{"timestamp": "2024-01-15T14:30:00", "level": "ERROR", "message": "Database connection failed"},
	"log_info_002":  map[string]interface{}{"timestamp": "2024-01-15T14:35:00", "level": "INFO", "message": "Database connection restored"},
}

func runLoadSample(store *kv.Store) error {
	results := store.BatchPut(sampleData)
	successful := 0
	for key, ok := range results {
		if ok {
			successful++
		}
		fmt.Printf("loaded %q: %v\n", key, ok)
	}
	fmt.Printf("sample data loaded: %d/%d items\n", successful, len(sampleData))
	return nil
}
