package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/mnohosten/lsmkv/pkg/kv"
)

func setupTestHandlers(t *testing.T) *Handlers {
	t.Helper()
	store, err := kv.Open(kv.DefaultConfig(t.TempDir()))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(store, NewWatchManager())
}

func router(h *Handlers) *chi.Mux {
	r := chi.NewRouter()
	r.Get("/{key}", h.Get)
	r.Put("/{key}", h.Put)
	r.Delete("/{key}", h.Delete)
	r.Get("/_range", h.Range)
	r.Get("/_stats", h.Stats)
	r.Post("/_clear", h.Clear)
	r.Post("/_flush", h.Flush)
	r.Post("/_compact", h.Compact)
	r.Post("/_batch/put", h.BatchPut)
	r.Post("/_batch/get", h.BatchGet)
	r.Post("/_batch/delete", h.BatchDelete)
	return r
}

func decodeSuccess(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return body
}

func TestPutAndGet(t *testing.T) {
	r := router(setupTestHandlers(t))

	putBody, _ := json.Marshal(putRequest{Value: "Alice"})
	req := httptest.NewRequest(http.MethodPut, "/user1", bytes.NewReader(putBody))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("put: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/user1", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rec.Code)
	}
	body := decodeSuccess(t, rec)
	data := body["data"].(map[string]interface{})
	if data["value"] != "Alice" {
		t.Errorf("expected value Alice, got %v", data["value"])
	}
}

func TestGetMissingKey(t *testing.T) {
	r := router(setupTestHandlers(t))

	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestDeleteReportsExistence(t *testing.T) {
	r := router(setupTestHandlers(t))

	putBody, _ := json.Marshal(putRequest{Value: 1})
	req := httptest.NewRequest(http.MethodPut, "/a", bytes.NewReader(putBody))
	r.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodDelete, "/a", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	body := decodeSuccess(t, rec)
	data := body["data"].(map[string]interface{})
	if data["existed"] != true {
		t.Errorf("expected existed=true, got %v", data["existed"])
	}

	req = httptest.NewRequest(http.MethodDelete, "/a", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	body = decodeSuccess(t, rec)
	data = body["data"].(map[string]interface{})
	if data["existed"] != false {
		t.Errorf("expected existed=false on second delete, got %v", data["existed"])
	}
}

func TestRange(t *testing.T) {
	r := router(setupTestHandlers(t))

	for _, k := range []string{"a", "b", "c", "d"} {
		putBody, _ := json.Marshal(putRequest{Value: k})
		req := httptest.NewRequest(http.MethodPut, "/"+k, bytes.NewReader(putBody))
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	req := httptest.NewRequest(http.MethodGet, "/_range?start=b&end=d", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	body := decodeSuccess(t, rec)
	data := body["data"].(map[string]interface{})
	if len(data) != 2 {
		t.Fatalf("expected 2 keys in range, got %d (%v)", len(data), data)
	}
	if _, ok := data["b"]; !ok {
		t.Errorf("expected key b in range")
	}
	if _, ok := data["d"]; ok {
		t.Errorf("did not expect key d in range (exclusive end)")
	}
}

func TestBatchPutGetDelete(t *testing.T) {
	r := router(setupTestHandlers(t))

	putBody, _ := json.Marshal(map[string]interface{}{
		"items": map[string]interface{}{"x": 1, "y": 2},
	})
	req := httptest.NewRequest(http.MethodPost, "/_batch/put", bytes.NewReader(putBody))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("batch put: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	getBody, _ := json.Marshal(map[string]interface{}{"keys": []string{"x", "y", "z"}})
	req = httptest.NewRequest(http.MethodPost, "/_batch/get", bytes.NewReader(getBody))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	body := decodeSuccess(t, rec)
	data := body["data"].(map[string]interface{})
	if data["z"] != nil {
		t.Errorf("expected nil for missing key z, got %v", data["z"])
	}

	delBody, _ := json.Marshal(map[string]interface{}{"keys": []string{"x", "y"}})
	req = httptest.NewRequest(http.MethodPost, "/_batch/delete", bytes.NewReader(delBody))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	body = decodeSuccess(t, rec)
	data = body["data"].(map[string]interface{})
	if data["x"] != true || data["y"] != true {
		t.Errorf("expected both batch deletes to report existed=true, got %v", data)
	}
}

func TestClearFlushCompact(t *testing.T) {
	r := router(setupTestHandlers(t))

	putBody, _ := json.Marshal(putRequest{Value: 1})
	req := httptest.NewRequest(http.MethodPut, "/a", bytes.NewReader(putBody))
	r.ServeHTTP(httptest.NewRecorder(), req)

	for _, path := range []string{"/_flush", "/_compact", "/_clear"} {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d: %s", path, rec.Code, rec.Body.String())
		}
	}

	req = httptest.NewRequest(http.MethodGet, "/a", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected key gone after clear, got status %d", rec.Code)
	}
}

func TestPutRejectsInvalidJSON(t *testing.T) {
	r := router(setupTestHandlers(t))

	req := httptest.NewRequest(http.MethodPut, "/a", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid JSON, got %d", rec.Code)
	}
}
