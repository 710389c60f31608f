// Package catalog persists per-file records in SQLite: size/mtime/hash for
// change detection, plus name and a text preview that power the keyword
// fallback when no vector index is available.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kioku/internal/models"
)

// Catalog is the SQLite-backed file metadata table.
type Catalog struct {
	db *sql.DB
}

// Open opens or creates the catalog database at dbPath and initializes the
// schema. Parent directories are created if they do not exist.
func Open(dbPath string) (*Catalog, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create catalog directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Catalog{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS files (
		path TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		extension TEXT NOT NULL,
		size INTEGER NOT NULL,
		mtime_ns INTEGER NOT NULL,
		content_hash TEXT NOT NULL,
		last_indexed_hash TEXT NOT NULL DEFAULT '',
		preview TEXT NOT NULL DEFAULT '',
		indexed_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_files_mtime ON files(mtime_ns);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Get returns the record for path, or sql.ErrNoRows if absent.
func (c *Catalog) Get(ctx context.Context, path string) (*models.FileRecord, error) {
	var rec models.FileRecord
	var indexedAt sql.NullTime
	err := c.db.QueryRowContext(ctx,
		`SELECT path, name, extension, size, mtime_ns, content_hash, last_indexed_hash, preview, indexed_at
		 FROM files WHERE path = ?`, path,
	).Scan(&rec.Path, &rec.Name, &rec.Extension, &rec.Size, &rec.ModTimeNS,
		&rec.ContentHash, &rec.LastIndexedHash, &rec.Preview, &indexedAt)
	if err != nil {
		return nil, err
	}
	if indexedAt.Valid {
		rec.IndexedAt = indexedAt.Time
	}
	return &rec, nil
}

// Upsert inserts or replaces the record for rec.Path.
func (c *Catalog) Upsert(ctx context.Context, rec *models.FileRecord) error {
	if rec.IndexedAt.IsZero() {
		rec.IndexedAt = time.Now()
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO files
		 (path, name, extension, size, mtime_ns, content_hash, last_indexed_hash, preview, indexed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Path, rec.Name, rec.Extension, rec.Size, rec.ModTimeNS,
		rec.ContentHash, rec.LastIndexedHash, rec.Preview, rec.IndexedAt,
	)
	return err
}

// Delete removes the record for path. Deleting an absent path is not an error.
func (c *Catalog) Delete(ctx context.Context, path string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, path)
	return err
}

// DeleteTree removes the record for path and every record under it. A
// removed directory arrives as one event for the directory alone; its
// files' records go with it here.
func (c *Catalog) DeleteTree(ctx context.Context, path string) error {
	pattern := escapeLike(path) + "/%"
	_, err := c.db.ExecContext(ctx,
		`DELETE FROM files WHERE path = ? OR path LIKE ? ESCAPE '\'`, path, pattern)
	return err
}

// List returns every record, ordered by path.
func (c *Catalog) List(ctx context.Context) ([]*models.FileRecord, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT path, name, extension, size, mtime_ns, content_hash, last_indexed_hash, preview, indexed_at
		 FROM files ORDER BY path`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.FileRecord
	for rows.Next() {
		var rec models.FileRecord
		var indexedAt sql.NullTime
		if err := rows.Scan(&rec.Path, &rec.Name, &rec.Extension, &rec.Size, &rec.ModTimeNS,
			&rec.ContentHash, &rec.LastIndexedHash, &rec.Preview, &indexedAt); err != nil {
			return nil, err
		}
		if indexedAt.Valid {
			rec.IndexedAt = indexedAt.Time
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// SearchKeyword is the fallback retrieval mode: a case-insensitive substring
// scan over file names and previews, ranked by modification time descending
// (most recent first). It is degraded but always available.
func (c *Catalog) SearchKeyword(ctx context.Context, query string, limit int) ([]*models.FileRecord, error) {
	if limit < 1 {
		limit = 1
	}
	pattern := "%" + escapeLike(query) + "%"
	rows, err := c.db.QueryContext(ctx,
		`SELECT path, name, extension, size, mtime_ns, content_hash, last_indexed_hash, preview, indexed_at
		 FROM files
		 WHERE name LIKE ? ESCAPE '\' OR preview LIKE ? ESCAPE '\'
		 ORDER BY mtime_ns DESC
		 LIMIT ?`, pattern, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.FileRecord
	for rows.Next() {
		var rec models.FileRecord
		var indexedAt sql.NullTime
		if err := rows.Scan(&rec.Path, &rec.Name, &rec.Extension, &rec.Size, &rec.ModTimeNS,
			&rec.ContentHash, &rec.LastIndexedHash, &rec.Preview, &indexedAt); err != nil {
			return nil, err
		}
		if indexedAt.Valid {
			rec.IndexedAt = indexedAt.Time
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// GetSetting returns the stored value for key, or "" if none was ever set.
// Settings record the indexing parameters the current index was built under.
func (c *Catalog) GetSetting(ctx context.Context, key string) (string, error) {
	var v string
	err := c.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return v, err
}

// SetSetting stores value under key, replacing any previous value.
func (c *Catalog) SetSetting(ctx context.Context, key, value string) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)`, key, value)
	return err
}

// Count returns the number of cataloged files.
func (c *Catalog) Count(ctx context.Context) (int64, error) {
	var n int64
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files`).Scan(&n)
	return n, err
}

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}
