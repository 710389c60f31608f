package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/index"
	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/pkg/utils"
)

// Retrieve embeds queryText and returns the top-k chunks by cosine
// similarity, re-materializing each chunk's text from its source file. The
// result is always well-formed and possibly empty. When the index has no
// rows (never built, empty corpus, or degraded after corruption), retrieval
// falls back to a keyword scan over the file catalog ranked by recency.
func (e *Engine) Retrieve(ctx context.Context, queryText string, k int) ([]models.Hit, error) {
	snap := e.store.Current()
	if snap.Rows() == 0 {
		return e.keywordFallback(ctx, queryText, k)
	}

	qv, err := e.queryEmb.Embed(ctx, queryText)
	if err != nil {
		e.logger.Warn("query embedding failed, using keyword fallback", zap.Error(err))
		return e.keywordFallback(ctx, queryText, k)
	}
	utils.NormalizeL2(qv)

	results := index.Search(snap, qv, k)
	hits := make([]models.Hit, 0, len(results))
	for _, r := range results {
		ref := snap.Meta[r.Row]
		hits = append(hits, models.Hit{
			Path:    ref.Path,
			Ordinal: ref.Ordinal,
			Score:   r.Score,
			Text:    e.chunkText(ref),
			Source:  models.SourceVector,
		})
	}
	return hits, nil
}

// chunkText re-derives the text for ref by re-extracting and re-chunking its
// source file. The index stores vectors and metadata only, so if the file
// changed since it was embedded the recovered text may legitimately differ
// (or be empty when the ordinal no longer exists); callers tolerate that
// staleness window.
func (e *Engine) chunkText(ref models.ChunkRef) string {
	chunks, err := e.fileChunks(e.absPath(ref.Path))
	if err != nil {
		e.logger.Debug("chunk re-materialization failed",
			zap.String("path", ref.Path), zap.Error(err))
		return ""
	}
	if ref.Ordinal < 0 || ref.Ordinal >= len(chunks) {
		return ""
	}
	return chunks[ref.Ordinal]
}

// keywordFallback is the degraded-but-available retrieval mode: substring
// match over cataloged names and previews, most recently modified first.
func (e *Engine) keywordFallback(ctx context.Context, queryText string, k int) ([]models.Hit, error) {
	if k < 1 {
		k = 1
	}
	recs, err := e.catalog.SearchKeyword(ctx, queryText, k)
	if err != nil {
		e.logger.Warn("keyword fallback failed", zap.Error(err))
		return []models.Hit{}, nil
	}
	hits := make([]models.Hit, 0, len(recs))
	for _, rec := range recs {
		hits = append(hits, models.Hit{
			Path:   rec.Path,
			Text:   rec.Preview,
			Source: models.SourceKeyword,
		})
	}
	return hits, nil
}
