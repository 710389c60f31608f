// Package embed provides text embedding via an external embeddings service.
//
// The engine treats embedding as a pure remote function: a batch of strings
// in, one fixed-dimension vector per string out, in order. Vectors returned
// by any Embedder are NOT trusted to be normalized; the engine L2-normalizes
// them itself before they enter the index.
package embed

import "context"

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
