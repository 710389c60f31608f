package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8765
	}
	if cfg.Index.Dir == "" {
		cfg.Index.Dir = ".kioku/index"
	}
	if cfg.Index.CatalogPath == "" {
		cfg.Index.CatalogPath = ".kioku/catalog.db"
	}
	if cfg.Index.ChunkChars == 0 {
		cfg.Index.ChunkChars = 1200
	}
	if cfg.Index.ChunkOverlap == 0 {
		cfg.Index.ChunkOverlap = 200
	}
	if cfg.Index.MaxExtractBytes == 0 {
		cfg.Index.MaxExtractBytes = 2 << 20
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "http://localhost:11434/v1"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "nomic-embed-text"
	}
	if cfg.Embedding.APIKeyEnv == "" {
		cfg.Embedding.APIKeyEnv = "KIOKU_EMBED_API_KEY"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.TimeoutSeconds == 0 {
		cfg.Embedding.TimeoutSeconds = 30
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 64
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 1024
	}
	if cfg.Root.Extensions == nil {
		cfg.Root.Extensions = []string{".txt", ".md", ".rst", ".pdf", ".docx", ".xlsx"}
	}
	if cfg.Root.ExcludeDirs == nil {
		cfg.Root.ExcludeDirs = []string{".git", ".kioku", "node_modules", ".venv", "venv", "__pycache__", ".cache"}
	}
	if cfg.Root.MaxFileSize == 0 {
		cfg.Root.MaxFileSize = 50 << 20
	}
}
