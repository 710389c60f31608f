// Package index persists and queries the aligned (embedding matrix, chunk
// metadata) pair that backs retrieval.
//
// The central invariant is alignment by position: row i of the matrix and
// entry i of the metadata list describe the same chunk. Snapshots are
// immutable; every mutation builds a new snapshot and publishes it whole.
package index

import (
	"fmt"
	"strings"

	"github.com/hyperjump/kioku/internal/models"
)

// Snapshot is one immutable, fully-aligned index state. Vecs is the N×D
// matrix flattened row-major. Readers share snapshots freely; nothing in a
// published snapshot is ever written again.
type Snapshot struct {
	Dims int
	Vecs []float32
	Meta []models.ChunkRef
}

// EmptySnapshot returns a valid zero-row snapshot for the given dimension.
// "No index yet" and "corrupt index" both degrade to this state.
func EmptySnapshot(dims int) *Snapshot {
	return &Snapshot{Dims: dims, Vecs: []float32{}, Meta: []models.ChunkRef{}}
}

// Rows returns the number of chunk rows.
func (s *Snapshot) Rows() int {
	return len(s.Meta)
}

// Row returns the vector for row i as a sub-slice of the flat matrix.
// The caller must not modify it.
func (s *Snapshot) Row(i int) []float32 {
	return s.Vecs[i*s.Dims : (i+1)*s.Dims]
}

// validate checks the alignment invariant.
func (s *Snapshot) validate() error {
	if s.Dims <= 0 {
		return fmt.Errorf("snapshot dimension must be positive, got %d", s.Dims)
	}
	if len(s.Vecs) != len(s.Meta)*s.Dims {
		return fmt.Errorf("snapshot misaligned: %d floats for %d metadata rows at dim %d",
			len(s.Vecs), len(s.Meta), s.Dims)
	}
	return nil
}

// WithoutPath returns a copy of s with every row belonging to path removed.
// Rows of other files keep their relative order and their ordinals.
func (s *Snapshot) WithoutPath(path string) *Snapshot {
	out := &Snapshot{
		Dims: s.Dims,
		Vecs: make([]float32, 0, len(s.Vecs)),
		Meta: make([]models.ChunkRef, 0, len(s.Meta)),
	}
	for i, m := range s.Meta {
		if m.Path == path {
			continue
		}
		out.Meta = append(out.Meta, m)
		out.Vecs = append(out.Vecs, s.Row(i)...)
	}
	return out
}

// WithoutTree returns a copy of s with every row for path itself and every
// row under path removed. Filesystem notifications report a deleted
// directory as a single event with no per-file detail, so removal must be
// able to take a whole subtree's rows in one pass.
func (s *Snapshot) WithoutTree(path string) *Snapshot {
	prefix := path + "/"
	out := &Snapshot{
		Dims: s.Dims,
		Vecs: make([]float32, 0, len(s.Vecs)),
		Meta: make([]models.ChunkRef, 0, len(s.Meta)),
	}
	for i, m := range s.Meta {
		if m.Path == path || strings.HasPrefix(m.Path, prefix) {
			continue
		}
		out.Meta = append(out.Meta, m)
		out.Vecs = append(out.Vecs, s.Row(i)...)
	}
	return out
}

// Append returns a copy of s with the given rows added at the end.
// len(vecs) must be len(meta)*Dims.
func (s *Snapshot) Append(meta []models.ChunkRef, vecs []float32) (*Snapshot, error) {
	if len(vecs) != len(meta)*s.Dims {
		return nil, fmt.Errorf("append misaligned: %d floats for %d metadata rows at dim %d",
			len(vecs), len(meta), s.Dims)
	}
	out := &Snapshot{
		Dims: s.Dims,
		Vecs: make([]float32, 0, len(s.Vecs)+len(vecs)),
		Meta: make([]models.ChunkRef, 0, len(s.Meta)+len(meta)),
	}
	out.Vecs = append(append(out.Vecs, s.Vecs...), vecs...)
	out.Meta = append(append(out.Meta, s.Meta...), meta...)
	return out, nil
}
