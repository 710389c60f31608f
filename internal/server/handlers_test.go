package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/catalog"
	"github.com/hyperjump/kioku/internal/config"
	"github.com/hyperjump/kioku/internal/embed"
	"github.com/hyperjump/kioku/internal/engine"
	"github.com/hyperjump/kioku/internal/index"
	"github.com/hyperjump/kioku/internal/models"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "docs")
	if err := os.MkdirAll(root, 0755); err != nil {
		t.Fatal(err)
	}
	store, err := index.NewStore(filepath.Join(dir, "index"), 4, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	cat, err := catalog.Open(filepath.Join(dir, "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { cat.Close() })
	mock := embed.NewMockEmbedder(4)
	eng, err := engine.New(engine.Params{
		Root:         root,
		ChunkChars:   200,
		ChunkOverlap: 20,
		Extensions:   []string{".txt"},
		MinFileSize:  1,
	}, mock, store, cat, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return NewServer(eng, &config.ServerConfig{Host: "127.0.0.1", Port: 8765}, zap.NewNop()), root
}

func TestHandleQuery(t *testing.T) {
	srv, root := newTestServer(t)
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello world"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := srv.engine.Rebuild(context.Background()); err != nil {
		t.Fatal(err)
	}

	body, _ := json.Marshal(map[string]interface{}{"query": "hello", "k": 3})
	r := httptest.NewRequest(http.MethodPost, "/api/v1/query", bytes.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.handleQuery(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var out queryResponse
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Hits) != 1 {
		t.Errorf("hits: got %v", out.Hits)
	}
	if len(out.Hits) == 1 && out.Hits[0].Source != models.SourceVector {
		t.Errorf("source: got %q, want %q", out.Hits[0].Source, models.SourceVector)
	}
}

func TestHandleQuery_MissingQuery(t *testing.T) {
	srv, _ := newTestServer(t)
	body, _ := json.Marshal(map[string]interface{}{"k": 3})
	r := httptest.NewRequest(http.MethodPost, "/api/v1/query", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.handleQuery(w, r)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", w.Code)
	}
}

func TestHandleQuery_InvalidBody(t *testing.T) {
	srv, _ := newTestServer(t)
	r := httptest.NewRequest(http.MethodPost, "/api/v1/query", bytes.NewReader([]byte("{")))
	w := httptest.NewRecorder()
	srv.handleQuery(w, r)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", w.Code)
	}
}

func TestHandleReindex(t *testing.T) {
	srv, root := newTestServer(t)
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("some content"), 0600); err != nil {
		t.Fatal(err)
	}

	r := httptest.NewRequest(http.MethodPost, "/api/v1/reindex", nil)
	w := httptest.NewRecorder()
	srv.handleReindex(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var out engine.RebuildResult
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.BuildID == "" {
		t.Error("expected a build id")
	}
	if out.ChunkCount < 1 {
		t.Errorf("chunk_count: got %d, want >= 1", out.ChunkCount)
	}
}

func TestHandleStatus(t *testing.T) {
	srv, root := newTestServer(t)
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("some content"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := srv.engine.Rebuild(context.Background()); err != nil {
		t.Fatal(err)
	}

	r := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	w := httptest.NewRecorder()
	srv.handleStatus(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var out models.Health
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if !out.IndexPresent {
		t.Error("expected index_present")
	}
	if out.RowCount < 1 {
		t.Errorf("row_count: got %d, want >= 1", out.RowCount)
	}
	if out.FileCount != 1 {
		t.Errorf("file_count: got %d, want 1", out.FileCount)
	}
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.handleHealth(w, r)
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
}

func TestRouter_Endpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /health: got %d", resp.StatusCode)
	}

	resp, err = http.Post(ts.URL+"/api/v1/query", "application/json",
		bytes.NewReader([]byte(`{"query":"anything"}`)))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("POST /api/v1/query: got %d", resp.StatusCode)
	}
}
