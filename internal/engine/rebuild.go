package engine

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/catalog"
	"github.com/hyperjump/kioku/internal/index"
	"github.com/hyperjump/kioku/internal/models"
)

// RebuildResult summarizes one full rebuild.
type RebuildResult struct {
	BuildID       string `json:"build_id"`
	ChunkCount    int    `json:"chunk_count"`
	FilesTotal    int    `json:"files_total"`
	FilesReused   int    `json:"files_reused"`
	FilesEmbedded int    `json:"files_embedded"`
	FilesFailed   int    `json:"files_failed"`
}

// chunkParamsKey is the catalog settings key recording the parameters the
// published index rows were embedded under.
const chunkParamsKey = "chunk_params"

// chunkParams fingerprints the settings that determine how a file's text
// maps to chunk rows. Retrieval re-chunks the source file with the current
// settings to recover chunk text, so rows embedded under different
// parameters must never be reused: their ordinals would index into a
// differently split sequence.
func (e *Engine) chunkParams() string {
	return fmt.Sprintf("%d:%d:%d", e.chunker.ChunkChars(), e.chunker.Overlap(), e.maxExtract)
}

// fileWork is the per-file state accumulated during a rebuild, kept in walk
// order so the published row order is deterministic.
type fileWork struct {
	rel    string
	size   int64
	mtime  int64
	hash   string
	text   string   // extracted text, only for files being re-embedded
	chunks []string // chunk texts, only for files being re-embedded
	reuse  []int    // current-snapshot row indices, only for unchanged files
	failed bool
}

// Rebuild re-enumerates the whole tree and publishes a fresh aligned index.
// Unchanged files (per the change detector) keep their existing vectors;
// only new or modified files are re-embedded. A change in chunk parameters
// invalidates every existing row regardless. The publish is all-or-nothing:
// a failed embedding batch aborts the rebuild and the previous index stays
// current. Per-file extraction failures are counted and skipped.
func (e *Engine) Rebuild(ctx context.Context) (*RebuildResult, error) {
	e.writer.Lock()
	defer e.writer.Unlock()

	buildID := uuid.New().String()
	e.logger.Info("rebuild started", zap.String("build_id", buildID))

	rels, err := e.walkCandidates()
	if err != nil {
		return nil, err
	}

	current := e.store.Current()
	rowsByPath := make(map[string][]int, len(current.Meta))
	for i, m := range current.Meta {
		rowsByPath[m.Path] = append(rowsByPath[m.Path], i)
	}

	params := e.chunkParams()
	stored, err := e.catalog.GetSetting(ctx, chunkParamsKey)
	if err != nil {
		return nil, err
	}
	if stored != params && len(rowsByPath) > 0 {
		e.logger.Info("chunk parameters changed, re-embedding all files",
			zap.String("from", stored), zap.String("to", params))
		rowsByPath = map[string][]int{}
	}

	work := make([]*fileWork, 0, len(rels))
	var toExtract []*fileWork
	for _, rel := range rels {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		abs := e.absPath(rel)
		info, err := os.Stat(abs)
		if err != nil {
			continue // raced with a delete; the walk is advisory
		}
		w := &fileWork{rel: rel, size: info.Size(), mtime: info.ModTime().UnixNano()}
		rec, err := e.lookupRecord(ctx, rel)
		if err != nil {
			return nil, err
		}
		needs, hash, err := e.needsReindex(rec, abs, w.size, w.mtime)
		if err != nil {
			e.logger.Debug("change detection failed, skipping file", zap.String("path", rel), zap.Error(err))
			w.failed = true
			work = append(work, w)
			continue
		}
		w.hash = hash
		if !needs {
			if rows, ok := rowsByPath[rel]; ok {
				w.reuse = rows
				work = append(work, w)
				continue
			}
			// Catalog says indexed but the snapshot has no rows (e.g. the
			// index files were wiped). Re-embed.
		}
		toExtract = append(toExtract, w)
		work = append(work, w)
	}

	e.extractAll(ctx, toExtract)

	// Assemble chunk texts in walk order for the files being re-embedded.
	var texts []string
	for _, w := range work {
		if w.reuse != nil || w.failed {
			continue
		}
		texts = append(texts, w.chunks...)
	}
	vecs, err := e.embedAndNormalize(ctx, texts)
	if err != nil {
		e.logger.Error("rebuild aborted, previous index kept", zap.String("build_id", buildID), zap.Error(err))
		return nil, err
	}

	dims := e.store.Dims()
	next := index.EmptySnapshot(dims)
	res := &RebuildResult{BuildID: buildID, FilesTotal: len(work)}
	vecPos := 0
	for _, w := range work {
		switch {
		case w.failed:
			res.FilesFailed++
		case w.reuse != nil:
			res.FilesReused++
			for _, row := range w.reuse {
				next.Meta = append(next.Meta, current.Meta[row])
				next.Vecs = append(next.Vecs, current.Row(row)...)
			}
		default:
			res.FilesEmbedded++
			for ord, text := range w.chunks {
				next.Meta = append(next.Meta, models.ChunkRef{
					Path:    w.rel,
					Ordinal: ord,
					Chars:   len([]rune(text)),
				})
				next.Vecs = append(next.Vecs, vecs[vecPos]...)
				vecPos++
			}
		}
	}
	res.ChunkCount = next.Rows()

	if err := e.store.Publish(next); err != nil {
		return nil, err
	}
	e.recordBuild(buildID)
	if err := e.catalog.SetSetting(ctx, chunkParamsKey, params); err != nil {
		e.logger.Warn("failed to record chunk parameters", zap.Error(err))
	}

	if err := e.reconcileCatalog(ctx, work); err != nil {
		// The index is already live; catalog drift self-heals on the next
		// pass, so log rather than fail the rebuild.
		e.logger.Warn("catalog reconciliation failed", zap.Error(err))
	}

	e.logger.Info("rebuild finished",
		zap.String("build_id", buildID),
		zap.Int("chunks", res.ChunkCount),
		zap.Int("files", res.FilesTotal),
		zap.Int("reused", res.FilesReused),
		zap.Int("embedded", res.FilesEmbedded),
		zap.Int("failed", res.FilesFailed),
	)
	return res, nil
}

// needsReindex wraps the catalog change detector; a nil record means the
// file was never indexed.
func (e *Engine) needsReindex(rec *models.FileRecord, abs string, size, mtime int64) (bool, string, error) {
	return catalog.NeedsReindex(rec, abs, size, mtime)
}

// extractAll runs extraction+chunking for the given files on a small worker
// pool. Results land in each fileWork slot, so cross-file parallelism does
// not disturb the deterministic output order.
func (e *Engine) extractAll(ctx context.Context, files []*fileWork) {
	if len(files) == 0 {
		return
	}
	jobs := make(chan *fileWork)
	var wg sync.WaitGroup
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for w := range jobs {
				text, err := e.extractor.Extract(e.absPath(w.rel))
				if err != nil {
					e.logger.Debug("extraction failed, skipping file",
						zap.String("path", w.rel), zap.Error(err))
					w.failed = true
					continue
				}
				w.text = text
				w.chunks = e.chunker.Split(text)
			}
		}()
	}
	for _, w := range files {
		if ctx.Err() != nil {
			break
		}
		jobs <- w
	}
	close(jobs)
	wg.Wait()
}

// reconcileCatalog upserts records for everything the rebuild saw and purges
// records for files that are no longer on disk.
func (e *Engine) reconcileCatalog(ctx context.Context, work []*fileWork) error {
	seen := make(map[string]bool, len(work))
	for _, w := range work {
		seen[w.rel] = true
		if w.failed {
			continue
		}
		text := w.text
		if w.reuse != nil {
			// Unchanged file: keep the existing preview.
			if rec, err := e.lookupRecord(ctx, w.rel); err == nil && rec != nil {
				text = rec.Preview
			}
		}
		if err := e.catalog.Upsert(ctx, catalogRecord(w.rel, w.size, w.mtime, w.hash, text)); err != nil {
			return err
		}
	}
	existing, err := e.catalog.List(ctx)
	if err != nil {
		return err
	}
	for _, rec := range existing {
		if !seen[rec.Path] {
			if err := e.catalog.Delete(ctx, rec.Path); err != nil {
				return err
			}
		}
	}
	return nil
}
