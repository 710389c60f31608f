package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/kioku/internal/models"
)

// HashFile returns the hex SHA-256 of the file's bytes. This is the content
// hash used for change detection.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// NeedsReindex decides whether a file must be re-extracted and re-embedded.
// rec is the cataloged record (nil when the file has never been indexed);
// size and mtimeNS come from a fresh stat. The cheap size+mtime comparison
// runs first; only on a mismatch is the content hashed, so a touched but
// unmodified file (mtime changed, bytes identical) is skipped. The hash
// actually read is returned so the caller can store it without re-hashing.
func NeedsReindex(rec *models.FileRecord, path string, size, mtimeNS int64) (needs bool, hash string, err error) {
	if rec == nil || rec.LastIndexedHash == "" {
		hash, err = HashFile(path)
		if err != nil {
			return false, "", err
		}
		return true, hash, nil
	}
	if rec.Size == size && rec.ModTimeNS == mtimeNS {
		return false, rec.LastIndexedHash, nil
	}
	hash, err = HashFile(path)
	if err != nil {
		return false, "", err
	}
	if hash == rec.LastIndexedHash {
		// touch without modify
		return false, hash, nil
	}
	return true, hash, nil
}

// Filter decides which files are candidates for indexing at all.
type Filter struct {
	Extensions  []string // allow-list, with or without leading dots; empty = all
	ExcludeDirs []string // path segments that disqualify a file anywhere in its path
	MinSize     int64
	MaxSize     int64 // 0 = unlimited
}

// Candidate reports whether relPath (using forward or native separators)
// with the given size passes the extension allow-list, the excluded-segment
// list, and the size bounds.
func (f *Filter) Candidate(relPath string, size int64) bool {
	for _, seg := range strings.Split(filepath.ToSlash(relPath), "/") {
		for _, ex := range f.ExcludeDirs {
			if seg == ex {
				return false
			}
		}
	}
	if !extensionAllowed(filepath.Ext(relPath), f.Extensions) {
		return false
	}
	if size < f.MinSize {
		return false
	}
	if f.MaxSize > 0 && size > f.MaxSize {
		return false
	}
	return true
}

func extensionAllowed(ext string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
