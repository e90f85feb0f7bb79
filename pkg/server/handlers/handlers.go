// Package handlers implements the HTTP handlers backing pkg/server's
// routes: a thin JSON wrapper over pkg/kv, plus the /_watch change
// notification stream.
package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mnohosten/lsmkv/pkg/kv"
)

// Handlers holds the store instance and provides HTTP handlers.
type Handlers struct {
	store   *kv.Store
	watcher *WatchManager
}

// New creates a new Handlers instance. watcher may be nil to disable
// change notifications.
func New(store *kv.Store, watcher *WatchManager) *Handlers {
	return &Handlers{store: store, watcher: watcher}
}

// parseJSONBody parses JSON request body into target. Numbers decode via
// json.Number rather than float64, so an integer value round-trips through
// a PUT/GET pair without drifting into floating point.
func parseJSONBody(r *http.Request, target interface{}) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return &BadRequestError{Message: "failed to read request body"}
	}
	defer r.Body.Close()

	if len(body) == 0 {
		return &BadRequestError{Message: "request body is empty"}
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(target); err != nil {
		return &BadRequestError{Message: "invalid JSON: " + err.Error()}
	}
	return nil
}

// Error types for consistent error-to-status mapping.

type BadRequestError struct{ Message string }

func (e *BadRequestError) Error() string { return e.Message }

type KeyNotFoundError struct{ Key string }

func (e *KeyNotFoundError) Error() string { return "key not found: " + e.Key }

type InternalError struct{ Message string }

func (e *InternalError) Error() string { return e.Message }

func writeError(w http.ResponseWriter, err error) {
	var statusCode int
	var errorType, message string

	switch e := err.(type) {
	case *BadRequestError:
		statusCode, errorType, message = http.StatusBadRequest, "BadRequest", e.Message
	case *KeyNotFoundError:
		statusCode, errorType, message = http.StatusNotFound, "KeyNotFound", e.Error()
	case *InternalError:
		statusCode, errorType, message = http.StatusInternalServerError, "InternalError", e.Message
	default:
		statusCode, errorType, message = http.StatusInternalServerError, "InternalError", err.Error()
	}

	response := map[string]interface{}{
		"success": false,
		"error":   errorType,
		"message": message,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}

func writeSuccess(w http.ResponseWriter, data interface{}) {
	response := map[string]interface{}{
		"success": true,
		"data":    data,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// Health returns a health check handler.
func (h *Handlers) Health(startTime time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := h.store.HealthCheck()
		status := http.StatusOK
		if health.Status != "healthy" {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": health.Status == "healthy",
			"data":    health,
			"uptime":  time.Since(startTime).String(),
		})
	}
}

// Stats returns the store's point-in-time statistics.
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats()
	if err != nil {
		writeError(w, &InternalError{Message: err.Error()})
		return
	}
	writeSuccess(w, stats)
}

// Get returns the value for the {key} path parameter.
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	value, ok := h.store.Get(key)
	if !ok {
		writeError(w, &KeyNotFoundError{Key: key})
		return
	}
	writeSuccess(w, map[string]interface{}{"key": key, "value": value})
}

// putRequest is the body shape for PUT /{key}.
type putRequest struct {
	Value interface{} `json:"value"`
}

// Put creates or overwrites the {key} path parameter's value.
func (h *Handlers) Put(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var req putRequest
	if err := parseJSONBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.store.Put(key, req.Value); err != nil {
		writeError(w, &BadRequestError{Message: err.Error()})
		return
	}
	if h.watcher != nil {
		h.watcher.Broadcast(Event{Type: "put", Key: key, Value: req.Value})
	}
	writeSuccess(w, map[string]interface{}{"key": key})
}

// Delete removes the {key} path parameter.
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	existed, err := h.store.Delete(key)
	if err != nil {
		writeError(w, &BadRequestError{Message: err.Error()})
		return
	}
	if h.watcher != nil {
		h.watcher.Broadcast(Event{Type: "delete", Key: key})
	}
	writeSuccess(w, map[string]interface{}{"key": key, "existed": existed})
}

// Range handles GET /_range?start=...&end=....
func (h *Handlers) Range(w http.ResponseWriter, r *http.Request) {
	start := r.URL.Query().Get("start")
	end := r.URL.Query().Get("end")
	writeSuccess(w, h.store.GetRange(start, end))
}

// Clear handles POST /_clear.
func (h *Handlers) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Clear(); err != nil {
		writeError(w, &InternalError{Message: err.Error()})
		return
	}
	if h.watcher != nil {
		h.watcher.Broadcast(Event{Type: "clear"})
	}
	writeSuccess(w, map[string]interface{}{"cleared": true})
}

// Flush handles POST /_flush.
func (h *Handlers) Flush(w http.ResponseWriter, r *http.Request) {
	if err := h.store.ForceFlush(); err != nil {
		writeError(w, &InternalError{Message: err.Error()})
		return
	}
	writeSuccess(w, map[string]interface{}{"flushed": true})
}

// Compact handles POST /_compact.
func (h *Handlers) Compact(w http.ResponseWriter, r *http.Request) {
	if err := h.store.ForceCompaction(); err != nil {
		writeError(w, &InternalError{Message: err.Error()})
		return
	}
	writeSuccess(w, map[string]interface{}{"compacted": true})
}

// BatchPut handles POST /_batch/put with body {"items": {key: value, ...}}.
func (h *Handlers) BatchPut(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items map[string]interface{} `json:"items"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	results := h.store.BatchPut(req.Items)
	if h.watcher != nil {
		for key, ok := range results {
			if ok {
				h.watcher.Broadcast(Event{Type: "put", Key: key, Value: req.Items[key]})
			}
		}
	}
	writeSuccess(w, results)
}

// BatchGet handles POST /_batch/get with body {"keys": [...]}.
func (h *Handlers) BatchGet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Keys []string `json:"keys"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, h.store.BatchGet(req.Keys))
}

// BatchDelete handles POST /_batch/delete with body {"keys": [...]}.
func (h *Handlers) BatchDelete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Keys []string `json:"keys"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	results := h.store.BatchDelete(req.Keys)
	if h.watcher != nil {
		for key, existed := range results {
			if existed {
				h.watcher.Broadcast(Event{Type: "delete", Key: key})
			}
		}
	}
	writeSuccess(w, results)
}
