// Package config provides configuration loading and structs for the Kioku engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Root      RootConfig      `yaml:"root"`
	Index     IndexConfig     `yaml:"index"`
	Embedding EmbeddingConfig `yaml:"embedding"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// RootConfig describes the watched directory tree and which files are candidates.
type RootConfig struct {
	Dir         string   `yaml:"dir"`
	Extensions  []string `yaml:"extensions"`
	ExcludeDirs []string `yaml:"exclude_dirs"`
	MinFileSize int64    `yaml:"min_file_size"`
	MaxFileSize int64    `yaml:"max_file_size"`
}

// IndexConfig holds chunking parameters and persisted index paths.
type IndexConfig struct {
	Dir             string `yaml:"dir"`
	CatalogPath     string `yaml:"catalog_path"`
	ChunkChars      int    `yaml:"chunk_chars"`
	ChunkOverlap    int    `yaml:"chunk_overlap"`
	MaxExtractBytes int    `yaml:"max_extract_bytes"`
}

// EmbeddingConfig holds settings for the external embedding service.
type EmbeddingConfig struct {
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	APIKeyEnv      string `yaml:"api_key_env"`
	Dimensions     int    `yaml:"dimensions"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	BatchSize      int    `yaml:"batch_size"`
	CacheSize      int    `yaml:"cache_size"`
}

// Timeout returns the request timeout for embedding calls.
func (e *EmbeddingConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed, or if validation fails.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Root.Dir = expandPath(cfg.Root.Dir, configDir)
	cfg.Index.Dir = expandPath(cfg.Index.Dir, configDir)
	cfg.Index.CatalogPath = expandPath(cfg.Index.CatalogPath, configDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings the engine cannot start without. Invalid chunking
// or embedding dimensions are configuration errors, fatal at startup.
func (c *Config) Validate() error {
	if c.Root.Dir == "" {
		return fmt.Errorf("root.dir is required")
	}
	if c.Index.ChunkChars <= 0 {
		return fmt.Errorf("index.chunk_chars must be positive, got %d", c.Index.ChunkChars)
	}
	if c.Index.ChunkOverlap < 0 {
		return fmt.Errorf("index.chunk_overlap must not be negative, got %d", c.Index.ChunkOverlap)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
