package index

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/hyperjump/kioku/internal/models"
	"go.uber.org/zap"
)

// On-disk layout inside the index directory:
//
//	embeddings.f32 — N×D little-endian float32, row-major, one row per chunk
//	meta.jsonl     — N line-delimited JSON records (path, chunk, chars)
//
// Row order in both files matches 1:1. Publication is write-temp-then-rename
// for both files, matrix first, so a crash mid-publish leaves either the old
// pair or (worst case) a new matrix with old metadata; Load detects the
// row-count disagreement and degrades to empty rather than serving a torn
// index.
const (
	matrixFileName = "embeddings.f32"
	metaFileName   = "meta.jsonl"
)

// Store owns the persisted index files and the current in-memory snapshot.
// The snapshot pointer is swapped atomically: any number of readers may call
// Current concurrently with a Publish. Store itself does not serialize
// writers; the engine holds a single writer lock around mutations.
type Store struct {
	dir     string
	dims    int
	logger  *zap.Logger
	current atomic.Pointer[Snapshot]
}

// NewStore creates a store rooted at dir for vectors of the given dimension
// and loads any previously published index. A missing, unreadable, or
// misaligned persisted index degrades to the empty snapshot.
func NewStore(dir string, dims int, logger *zap.Logger) (*Store, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("store dimension must be positive, got %d", dims)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	s := &Store{dir: dir, dims: dims, logger: logger}
	snap, err := s.load()
	if err != nil {
		if logger != nil {
			logger.Warn("persisted index unreadable, starting empty", zap.Error(err))
		}
		snap = EmptySnapshot(dims)
	}
	s.current.Store(snap)
	return s, nil
}

// Current returns the most recently published snapshot. Never nil.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Present reports whether an index has ever been published to disk.
func (s *Store) Present() bool {
	_, errM := os.Stat(filepath.Join(s.dir, matrixFileName))
	_, errJ := os.Stat(filepath.Join(s.dir, metaFileName))
	return errM == nil && errJ == nil
}

// Publish persists snap and swaps it in as the current snapshot. Readers
// holding the previous snapshot are unaffected; new readers see snap only
// after both files are fully written and renamed.
func (s *Store) Publish(snap *Snapshot) error {
	if snap.Dims != s.dims {
		return fmt.Errorf("snapshot dimension %d does not match store dimension %d", snap.Dims, s.dims)
	}
	if err := snap.validate(); err != nil {
		return err
	}
	if err := s.writeMatrix(snap); err != nil {
		return err
	}
	if err := s.writeMeta(snap); err != nil {
		return err
	}
	s.current.Store(snap)
	return nil
}

func (s *Store) writeMatrix(snap *Snapshot) error {
	tmp := filepath.Join(s.dir, matrixFileName+".tmp")
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create matrix temp: %w", err)
	}
	w := bufio.NewWriter(f)
	buf := make([]byte, 4)
	for _, v := range snap.Vecs {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
		if _, err := w.Write(buf); err != nil {
			_ = f.Close()
			return fmt.Errorf("write matrix: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush matrix: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync matrix: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close matrix: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(s.dir, matrixFileName)); err != nil {
		return fmt.Errorf("publish matrix: %w", err)
	}
	return nil
}

func (s *Store) writeMeta(snap *Snapshot) error {
	tmp := filepath.Join(s.dir, metaFileName+".tmp")
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create metadata temp: %w", err)
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for i := range snap.Meta {
		if err := enc.Encode(&snap.Meta[i]); err != nil {
			_ = f.Close()
			return fmt.Errorf("write metadata row %d: %w", i, err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush metadata: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync metadata: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close metadata: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(s.dir, metaFileName)); err != nil {
		return fmt.Errorf("publish metadata: %w", err)
	}
	return nil
}

// load reads the persisted pair. Errors cover unreadable files and any
// alignment violation between them.
func (s *Store) load() (*Snapshot, error) {
	matrixPath := filepath.Join(s.dir, matrixFileName)
	metaPath := filepath.Join(s.dir, metaFileName)
	if _, err := os.Stat(matrixPath); os.IsNotExist(err) {
		return EmptySnapshot(s.dims), nil
	}

	raw, err := os.ReadFile(matrixPath)
	if err != nil {
		return nil, fmt.Errorf("read matrix: %w", err)
	}
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("matrix file size %d is not a multiple of 4", len(raw))
	}
	vecs := make([]float32, len(raw)/4)
	for i := range vecs {
		vecs[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4 : i*4+4]))
	}

	mf, err := os.Open(metaPath)
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	defer mf.Close()
	var meta []models.ChunkRef
	sc := bufio.NewScanner(mf)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var ref models.ChunkRef
		if err := json.Unmarshal(line, &ref); err != nil {
			return nil, fmt.Errorf("parse metadata row %d: %w", len(meta), err)
		}
		meta = append(meta, ref)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan metadata: %w", err)
	}

	if len(vecs) != len(meta)*s.dims {
		return nil, fmt.Errorf("index corrupt: %d floats for %d metadata rows at dim %d",
			len(vecs), len(meta), s.dims)
	}
	if meta == nil {
		meta = []models.ChunkRef{}
	}
	return &Snapshot{Dims: s.dims, Vecs: vecs, Meta: meta}, nil
}

// Dims returns the store's vector dimension.
func (s *Store) Dims() int {
	return s.dims
}
