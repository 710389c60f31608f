package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
root:
  dir: "/tmp/docs"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Root.Dir != "/tmp/docs" {
		t.Errorf("root dir: got %s", cfg.Root.Dir)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_debugTrue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
debug: true
root:
  dir: "/tmp/docs"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
}

func TestLoad_missingRootFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9000
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for missing root.dir")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
root:
  dir: "./docs"
index:
  dir: "./data/index"
  catalog_path: "./data/catalog.db"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	wantRoot := filepath.Join(dir, "docs")
	if cfg.Root.Dir != wantRoot {
		t.Errorf("root dir = %s, want %s", cfg.Root.Dir, wantRoot)
	}
	wantIndex := filepath.Join(dir, "data", "index")
	if cfg.Index.Dir != wantIndex {
		t.Errorf("index dir = %s, want %s", cfg.Index.Dir, wantIndex)
	}
	wantCatalog := filepath.Join(dir, "data", "catalog.db")
	if cfg.Index.CatalogPath != wantCatalog {
		t.Errorf("catalog path = %s, want %s", cfg.Index.CatalogPath, wantCatalog)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" {
		t.Errorf("default host: got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8765 {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
	if cfg.Index.ChunkChars != 1200 {
		t.Errorf("default chunk_chars: got %d", cfg.Index.ChunkChars)
	}
	if cfg.Index.ChunkOverlap != 200 {
		t.Errorf("default chunk_overlap: got %d", cfg.Index.ChunkOverlap)
	}
	if cfg.Index.MaxExtractBytes != 2<<20 {
		t.Errorf("default max_extract_bytes: got %d", cfg.Index.MaxExtractBytes)
	}
	if cfg.Embedding.Dimensions != 384 {
		t.Errorf("default dimensions: got %d", cfg.Embedding.Dimensions)
	}
	if cfg.Embedding.BatchSize != 64 {
		t.Errorf("default batch_size: got %d", cfg.Embedding.BatchSize)
	}
	if cfg.Embedding.Model != "nomic-embed-text" {
		t.Errorf("default model: got %s", cfg.Embedding.Model)
	}
	if cfg.Root.Extensions == nil {
		t.Error("extensions should be set by default")
	}
	if len(cfg.Root.Extensions) != 6 || cfg.Root.Extensions[0] != ".txt" {
		t.Errorf("default extensions: got %v", cfg.Root.Extensions)
	}
	if cfg.Root.ExcludeDirs == nil {
		t.Error("exclude dirs should be set by default")
	}
	if cfg.Root.MaxFileSize != 50<<20 {
		t.Errorf("default max_file_size: got %d", cfg.Root.MaxFileSize)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing root", func(c *Config) { c.Root.Dir = "" }, true},
		{"zero chunk chars", func(c *Config) { c.Index.ChunkChars = 0 }, true},
		{"negative chunk chars", func(c *Config) { c.Index.ChunkChars = -5 }, true},
		{"negative overlap", func(c *Config) { c.Index.ChunkOverlap = -1 }, true},
		{"zero dimensions", func(c *Config) { c.Embedding.Dimensions = 0 }, true},
		{"overlap larger than chunk is tolerated", func(c *Config) {
			c.Index.ChunkChars = 100
			c.Index.ChunkOverlap = 500
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Root: RootConfig{Dir: "/tmp/docs"}}
			ApplyDefaults(cfg)
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEmbeddingConfig_Timeout(t *testing.T) {
	e := &EmbeddingConfig{TimeoutSeconds: 45}
	if got := e.Timeout(); got != 45*time.Second {
		t.Errorf("Timeout() = %v, want 45s", got)
	}
}
