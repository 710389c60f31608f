// Package engine orchestrates indexing and retrieval: directory walks,
// change detection, extraction, chunking, embedding, index publication, and
// query serving.
//
// Concurrency model: a single writer mutex serializes Rebuild, ReindexFile,
// and RemoveFile against each other. Readers never lock; Retrieve takes the
// store's current snapshot pointer and works on that immutable state, so a
// query issued during a rebuild sees the old index until the new one is
// published, never a mix.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/catalog"
	"github.com/hyperjump/kioku/internal/chunk"
	"github.com/hyperjump/kioku/internal/embed"
	"github.com/hyperjump/kioku/internal/extract"
	"github.com/hyperjump/kioku/internal/index"
	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/pkg/utils"
)

// ErrEmbedding marks failures of the external embedding service. A batch
// that fails is never partially committed.
var ErrEmbedding = errors.New("embedding failed")

const previewRunes = 200

// Params configures an Engine.
type Params struct {
	Root            string
	ChunkChars      int
	ChunkOverlap    int
	MaxExtractBytes int
	BatchSize       int
	Extensions      []string
	ExcludeDirs     []string
	MinFileSize     int64
	MaxFileSize     int64
	QueryCacheSize  int
	FileTimeout     time.Duration // bound on incremental per-file work
	ExtractWorkers  int
}

// Engine is the indexing and retrieval core. Construct with New; the zero
// value is not usable.
type Engine struct {
	root       string
	extractor  *extract.Extractor
	chunker    *chunk.Chunker
	maxExtract int
	embedder   embed.Embedder
	queryEmb   embed.Embedder // cache-wrapped, used for query vectors only
	store      *index.Store
	catalog    *catalog.Catalog
	filter     *catalog.Filter
	batchSize  int
	timeout    time.Duration
	workers    int
	logger     *zap.Logger

	writer      sync.Mutex // serializes all index mutations
	buildMu     sync.Mutex // guards lastBuildID/lastBuildAt
	lastBuildID string
	lastBuildAt time.Time
}

// New creates an engine. The root directory must exist; a missing root is a
// configuration error, fatal to the indexing subsystem.
func New(p Params, embedder embed.Embedder, store *index.Store, cat *catalog.Catalog, logger *zap.Logger) (*Engine, error) {
	info, err := os.Stat(p.Root)
	if err != nil {
		return nil, fmt.Errorf("watched root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watched root is not a directory: %s", p.Root)
	}
	if p.ChunkChars <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", p.ChunkChars)
	}
	if p.BatchSize <= 0 {
		p.BatchSize = 64
	}
	if p.FileTimeout <= 0 {
		p.FileTimeout = 60 * time.Second
	}
	if p.ExtractWorkers <= 0 {
		p.ExtractWorkers = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		root:       p.Root,
		extractor:  extract.NewExtractor(p.MaxExtractBytes),
		chunker:    chunk.NewChunker(p.ChunkChars, p.ChunkOverlap),
		maxExtract: p.MaxExtractBytes,
		embedder:   embedder,
		queryEmb:   embed.NewCache(embedder, p.QueryCacheSize),
		store:      store,
		catalog:    cat,
		filter: &catalog.Filter{
			Extensions:  p.Extensions,
			ExcludeDirs: p.ExcludeDirs,
			MinSize:     p.MinFileSize,
			MaxSize:     p.MaxFileSize,
		},
		batchSize: p.BatchSize,
		timeout:   p.FileTimeout,
		workers:   p.ExtractWorkers,
		logger:    logger,
	}, nil
}

// relPath converts an absolute or root-relative path to the slash-normalized
// relative form stored in metadata and the catalog.
func (e *Engine) relPath(path string) (string, error) {
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(e.root, abs)
	}
	rel, err := filepath.Rel(e.root, abs)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// absPath converts a stored relative path back to a filesystem path.
func (e *Engine) absPath(rel string) string {
	return filepath.Join(e.root, filepath.FromSlash(rel))
}

// Health reports index availability.
func (e *Engine) Health(ctx context.Context) models.Health {
	snap := e.store.Current()
	h := models.Health{
		IndexPresent: e.store.Present(),
		RowCount:     snap.Rows(),
		Dimensions:   snap.Dims,
	}
	if n, err := e.catalog.Count(ctx); err == nil {
		h.FileCount = n
	}
	e.buildMu.Lock()
	h.LastBuildID = e.lastBuildID
	h.LastBuildAt = e.lastBuildAt
	e.buildMu.Unlock()
	return h
}

func (e *Engine) recordBuild(id string) {
	e.buildMu.Lock()
	e.lastBuildID = id
	e.lastBuildAt = time.Now()
	e.buildMu.Unlock()
}

// preview returns the catalog preview for text: its first 200 runes.
func preview(text string) string {
	runes := []rune(text)
	if len(runes) > previewRunes {
		runes = runes[:previewRunes]
	}
	return string(runes)
}

// embedAndNormalize embeds texts in batches of batchSize. Each batch either
// succeeds whole or is retried once and then fails the call; nothing partial
// is returned. Every vector is L2-normalized here, never trusted from the
// client.
func (e *Engine) embedAndNormalize(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]
		vecs, err := e.embedder.EmbedBatch(ctx, batch)
		if err != nil {
			e.logger.Warn("embedding batch failed, retrying once",
				zap.Int("batch_start", start), zap.Error(err))
			vecs, err = e.embedder.EmbedBatch(ctx, batch)
			if err != nil {
				return nil, fmt.Errorf("%w: batch at %d: %v", ErrEmbedding, start, err)
			}
		}
		if len(vecs) != len(batch) {
			return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbedding, len(vecs), len(batch))
		}
		dims := e.store.Dims()
		for i, v := range vecs {
			if len(v) != dims {
				return nil, fmt.Errorf("%w: vector %d has dimension %d, expected %d", ErrEmbedding, start+i, len(v), dims)
			}
			utils.NormalizeL2(v)
			out = append(out, v)
		}
	}
	return out, nil
}

// fileChunks extracts and chunks one file. Extraction failures are returned
// to the caller to be counted and skipped, never to abort a whole pass.
func (e *Engine) fileChunks(path string) ([]string, error) {
	text, err := e.extractor.Extract(path)
	if err != nil {
		return nil, err
	}
	return e.chunker.Split(text), nil
}

// catalogRecord builds the catalog entry for an indexed file.
func catalogRecord(rel string, size, mtimeNS int64, hash, text string) *models.FileRecord {
	return &models.FileRecord{
		Path:            rel,
		Name:            filepath.Base(rel),
		Extension:       filepath.Ext(rel),
		Size:            size,
		ModTimeNS:       mtimeNS,
		ContentHash:     hash,
		LastIndexedHash: hash,
		Preview:         preview(text),
		IndexedAt:       time.Now(),
	}
}

// lookupRecord fetches the catalog record for rel, mapping "absent" to nil.
func (e *Engine) lookupRecord(ctx context.Context, rel string) (*models.FileRecord, error) {
	rec, err := e.catalog.Get(ctx, rel)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

// walkCandidates returns the relative paths of all candidate files under the
// root in deterministic (lexical) walk order. Excluded directories are
// pruned without descending.
func (e *Engine) walkCandidates() ([]string, error) {
	var out []string
	err := filepath.WalkDir(e.root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			// Unreadable subtree: skip it, keep walking.
			e.logger.Debug("walk error, skipping", zap.String("path", path), zap.Error(walkErr))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			for _, ex := range e.filter.ExcludeDirs {
				if d.Name() == ex && path != e.root {
					return fs.SkipDir
				}
			}
			return nil
		}
		info, err := d.Info()
		if err != nil || !info.Mode().IsRegular() {
			return nil
		}
		rel, err := e.relPath(path)
		if err != nil {
			return nil
		}
		if e.filter.Candidate(rel, info.Size()) {
			out = append(out, rel)
		}
		return nil
	})
	return out, err
}
