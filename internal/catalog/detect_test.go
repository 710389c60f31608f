package catalog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/kioku/internal/models"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func statFile(t *testing.T, path string) (int64, int64) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	return info.Size(), info.ModTime().UnixNano()
}

func TestNeedsReindex_newFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.txt", "hello")
	size, mtime := statFile(t, path)

	needs, hash, err := NeedsReindex(nil, path, size, mtime)
	if err != nil {
		t.Fatal(err)
	}
	if !needs {
		t.Error("never-indexed file must need reindexing")
	}
	if hash == "" {
		t.Error("hash should be computed for a new file")
	}
}

func TestNeedsReindex_unchanged(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.txt", "hello")
	size, mtime := statFile(t, path)
	hash, err := HashFile(path)
	if err != nil {
		t.Fatal(err)
	}
	rec := &models.FileRecord{Path: "a.txt", Size: size, ModTimeNS: mtime, LastIndexedHash: hash}

	needs, got, err := NeedsReindex(rec, path, size, mtime)
	if err != nil {
		t.Fatal(err)
	}
	if needs {
		t.Error("unchanged file must not need reindexing")
	}
	if got != hash {
		t.Errorf("hash = %q", got)
	}
}

func TestNeedsReindex_touchWithoutModify(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.txt", "hello")
	size, mtime := statFile(t, path)
	hash, err := HashFile(path)
	if err != nil {
		t.Fatal(err)
	}
	rec := &models.FileRecord{Path: "a.txt", Size: size, ModTimeNS: mtime, LastIndexedHash: hash}

	// Bump mtime, leave content alone.
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}
	size2, mtime2 := statFile(t, path)

	needs, _, err := NeedsReindex(rec, path, size2, mtime2)
	if err != nil {
		t.Fatal(err)
	}
	if needs {
		t.Error("touched-but-identical file must be skipped")
	}
}

func TestNeedsReindex_contentChanged(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.txt", "hello")
	size, mtime := statFile(t, path)
	hash, err := HashFile(path)
	if err != nil {
		t.Fatal(err)
	}
	rec := &models.FileRecord{Path: "a.txt", Size: size, ModTimeNS: mtime, LastIndexedHash: hash}

	writeFile(t, dir, "a.txt", "goodbye")
	size2, mtime2 := statFile(t, path)

	needs, newHash, err := NeedsReindex(rec, path, size2, mtime2)
	if err != nil {
		t.Fatal(err)
	}
	if !needs {
		t.Error("changed content must need reindexing")
	}
	if newHash == hash {
		t.Error("hash should differ for changed content")
	}
}

func TestFilter_candidate(t *testing.T) {
	f := &Filter{
		Extensions:  []string{".txt", "md"},
		ExcludeDirs: []string{".git", "node_modules", ".kioku"},
		MinSize:     1,
		MaxSize:     1000,
	}
	cases := []struct {
		path string
		size int64
		want bool
	}{
		{"notes/a.txt", 10, true},
		{"notes/a.md", 10, true},       // allow-list entries without dots work
		{"notes/a.exe", 10, false},     // extension not allowed
		{".git/config.txt", 10, false}, // excluded segment
		{"src/node_modules/x.txt", 10, false},
		{".kioku/meta.txt", 10, false}, // the index's own storage dir
		{"notes/a.txt", 0, false},      // below minimum
		{"notes/a.txt", 5000, false},   // above maximum
	}
	for _, tc := range cases {
		if got := f.Candidate(tc.path, tc.size); got != tc.want {
			t.Errorf("Candidate(%q, %d) = %v, want %v", tc.path, tc.size, got, tc.want)
		}
	}
}

func TestFilter_emptyExtensionsAllowsAll(t *testing.T) {
	f := &Filter{}
	if !f.Candidate("whatever.bin", 10) {
		t.Error("empty allow-list should allow all extensions")
	}
}
