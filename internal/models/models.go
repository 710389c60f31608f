// Package models defines core data structures for files, chunks, and retrieval results.
package models

import "time"

// FileRecord is the catalog entry for one file under the watched root.
type FileRecord struct {
	Path            string    `json:"path"` // relative to the watched root
	Name            string    `json:"name"`
	Extension       string    `json:"extension"`
	Size            int64     `json:"size"`
	ModTimeNS       int64     `json:"mtime_ns"`
	ContentHash     string    `json:"content_hash"`
	LastIndexedHash string    `json:"last_indexed_hash"`
	Preview         string    `json:"preview,omitempty"`
	IndexedAt       time.Time `json:"indexed_at"`
}

// ChunkRef locates one embedded chunk. It is the metadata persisted per matrix
// row; chunk text is never stored and is re-derived from the source file.
type ChunkRef struct {
	Path    string `json:"path"`  // relative file path
	Ordinal int    `json:"chunk"` // 0-based position in the file's chunk sequence
	Chars   int    `json:"chars"` // rune count of the chunk text
}

// Hit sources.
const (
	SourceVector  = "vector"
	SourceKeyword = "keyword"
)

// Hit is a single retrieval result.
type Hit struct {
	Path    string  `json:"path"`
	Ordinal int     `json:"chunk"`
	Score   float64 `json:"score"`
	Text    string  `json:"text,omitempty"`
	Source  string  `json:"source"`
}

// Health reports index availability for callers that need to distinguish
// "no index yet" from "no matches".
type Health struct {
	IndexPresent bool      `json:"index_present"`
	RowCount     int       `json:"row_count"`
	Dimensions   int       `json:"dimensions"`
	FileCount    int64     `json:"file_count"`
	LastBuildID  string    `json:"last_build_id,omitempty"`
	LastBuildAt  time.Time `json:"last_build_at,omitempty"`
}
