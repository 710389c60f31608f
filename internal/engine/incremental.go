package engine

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/models"
)

// ReindexFile re-processes a single file, typically on a watcher event. It
// is serialized against Rebuild by the writer lock, bounded by the engine's
// per-file timeout, and publishes a new snapshot in which only this file's
// rows changed; every other file keeps its rows and ordinals. A file that
// has disappeared is treated as a removal, so the incremental path never
// leaves stale entries behind.
func (e *Engine) ReindexFile(ctx context.Context, path string) error {
	rel, err := e.relPath(path)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	e.writer.Lock()
	defer e.writer.Unlock()

	abs := e.absPath(rel)
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return e.removeLocked(ctx, rel)
		}
		return err
	}
	if !info.Mode().IsRegular() {
		return nil
	}
	size, mtime := info.Size(), info.ModTime().UnixNano()
	if !e.filter.Candidate(rel, size) {
		// No longer a candidate (grew past the size cap, etc.). Drop any
		// rows it had instead of serving stale vectors.
		return e.removeLocked(ctx, rel)
	}

	rec, err := e.lookupRecord(ctx, rel)
	if err != nil {
		return err
	}
	needs, hash, err := e.needsReindex(rec, abs, size, mtime)
	if err != nil {
		return err
	}
	if !needs {
		// Record the fresh stat so the next cheap check short-circuits.
		if rec != nil && (rec.Size != size || rec.ModTimeNS != mtime) {
			rec.Size, rec.ModTimeNS = size, mtime
			if err := e.catalog.Upsert(ctx, rec); err != nil {
				return err
			}
		}
		e.logger.Debug("file unchanged, skipping", zap.String("path", rel))
		return nil
	}

	text, err := e.extractor.Extract(abs)
	if err != nil {
		// Unreadable or corrupt source: skip this pass, retry on the next
		// trigger. Nothing is half-written.
		e.logger.Warn("extraction failed, skipping file", zap.String("path", rel), zap.Error(err))
		return nil
	}
	chunks := e.chunker.Split(text)
	vecs, err := e.embedAndNormalize(ctx, chunks)
	if err != nil {
		return err
	}

	meta := make([]models.ChunkRef, len(chunks))
	flat := make([]float32, 0, len(vecs)*e.store.Dims())
	for i, ch := range chunks {
		meta[i] = models.ChunkRef{Path: rel, Ordinal: i, Chars: len([]rune(ch))}
		flat = append(flat, vecs[i]...)
	}

	next, err := e.store.Current().WithoutPath(rel).Append(meta, flat)
	if err != nil {
		return err
	}
	if err := e.store.Publish(next); err != nil {
		return err
	}
	if err := e.catalog.Upsert(ctx, catalogRecord(rel, size, mtime, hash, text)); err != nil {
		return err
	}
	e.logger.Debug("file reindexed", zap.String("path", rel), zap.Int("chunks", len(chunks)))
	return nil
}

// RemoveFile drops a path's rows from the index and purges its catalog
// records, typically on a watcher delete event. path may name a file or a
// directory: a deleted directory produces one notification with no per-file
// events, so removal always purges the whole subtree under the path.
func (e *Engine) RemoveFile(ctx context.Context, path string) error {
	rel, err := e.relPath(path)
	if err != nil {
		return err
	}
	e.writer.Lock()
	defer e.writer.Unlock()
	return e.removeLocked(ctx, rel)
}

func (e *Engine) removeLocked(ctx context.Context, rel string) error {
	current := e.store.Current()
	next := current.WithoutTree(rel)
	if next.Rows() != current.Rows() {
		if err := e.store.Publish(next); err != nil {
			return err
		}
		e.logger.Debug("path removed from index", zap.String("path", rel),
			zap.Int("rows_dropped", current.Rows()-next.Rows()))
	}
	return e.catalog.DeleteTree(ctx, rel)
}
