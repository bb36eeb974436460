// Copyright 2025 Certen Protocol

// Package blobstore implements the content-addressable BLOB store (§4.12):
// SHA3-256-addressed bytes on disk, SQLite metadata for refcounting and
// garbage collection.
package blobstore

import (
	"context"
	"database/sql"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/capengine/cap-core/internal/capcrypto"
	"github.com/capengine/cap-core/internal/caperr"
)

const schema = `
CREATE TABLE IF NOT EXISTS blobs (
	blob_id      TEXT PRIMARY KEY,
	media_type   TEXT,
	size         INTEGER NOT NULL,
	refcount     INTEGER NOT NULL DEFAULT 0,
	created_at   TEXT NOT NULL
);
`

// Store is a content-addressable byte store: bytes live under dataDir,
// named by their SHA3-256 digest; SQLite tracks size, media type, and
// reference counts.
type Store struct {
	db      *sql.DB
	dataDir string
}

// Open creates or opens a blob store rooted at dataDir, with metadata kept
// in a SQLite database at metaPath.
func Open(dataDir, metaPath string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, caperr.Wrap(caperr.KindInputFormat, err, "create blob data directory")
	}
	db, err := sql.Open("sqlite", metaPath)
	if err != nil {
		return nil, caperr.Wrap(caperr.KindBackendUnavailable, err, "open blob metadata database")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, caperr.Wrap(caperr.KindBackendUnavailable, err, "initialise blob schema")
	}
	return &Store{db: db, dataDir: dataDir}, nil
}

func (s *Store) path(blobID string) string {
	return filepath.Join(s.dataDir, blobID)
}

// Put stores bytes, deduplicating by content hash. If bumpRef is true, it
// also bumps the blob's refcount (the caller is recording a new reference
// from a registry entry).
func (s *Store) Put(data []byte, mediaType string, bumpRef bool) (string, error) {
	sum := capcrypto.SHA3256(data)
	blobID := capcrypto.HexLower(sum[:])

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return "", caperr.Wrap(caperr.KindBackendUnavailable, err, "begin blob transaction")
	}
	defer tx.Rollback()

	var existingSize int64
	err = tx.QueryRow("SELECT size FROM blobs WHERE blob_id = ?", blobID).Scan(&existingSize)
	switch err {
	case nil:
		// already stored; optionally bump refcount.
		if bumpRef {
			if _, err := tx.Exec("UPDATE blobs SET refcount = refcount + 1 WHERE blob_id = ?", blobID); err != nil {
				return "", caperr.Wrap(caperr.KindBackendUnavailable, err, "bump blob refcount")
			}
		}
	case sql.ErrNoRows:
		if err := os.WriteFile(s.path(blobID), data, 0o644); err != nil {
			return "", caperr.Wrap(caperr.KindInputFormat, err, "write blob bytes")
		}
		refcount := 0
		if bumpRef {
			refcount = 1
		}
		_, err = tx.Exec(
			"INSERT INTO blobs (blob_id, media_type, size, refcount, created_at) VALUES (?, ?, ?, ?, ?)",
			blobID, mediaType, len(data), refcount, time.Now().UTC().Format(time.RFC3339),
		)
		if err != nil {
			return "", caperr.Wrap(caperr.KindBackendUnavailable, err, "insert blob metadata")
		}
	default:
		return "", caperr.Wrap(caperr.KindBackendUnavailable, err, "query blob metadata")
	}

	if err := tx.Commit(); err != nil {
		return "", caperr.Wrap(caperr.KindBackendUnavailable, err, "commit blob transaction")
	}
	return blobID, nil
}

// Get streams a blob's bytes out by id.
func (s *Store) Get(blobID string) (io.ReadCloser, error) {
	f, err := os.Open(s.path(blobID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, caperr.Newf(caperr.KindInputFormat, "blob not found: %s", blobID)
		}
		return nil, caperr.Wrap(caperr.KindInputFormat, err, "open blob")
	}
	return f, nil
}

// Info is blob metadata as listed by List.
type Info struct {
	BlobID    string
	MediaType string
	Size      int64
	Refcount  int
	CreatedAt string
}

// ListFilters narrows List results.
type ListFilters struct {
	MinSize        int64
	MaxSize        int64 // 0 means unbounded
	MediaType      string
	UnreferencedOnly bool
	OrderBy        string // "size", "refcount", "blob_id"; default blob_id
}

func (f ListFilters) orderColumn() string {
	switch f.OrderBy {
	case "size", "refcount", "blob_id":
		return f.OrderBy
	default:
		return "blob_id"
	}
}

// List returns blob metadata matching the given filters.
func (s *Store) List(f ListFilters) ([]Info, error) {
	query := "SELECT blob_id, media_type, size, refcount, created_at FROM blobs WHERE size >= ?"
	args := []interface{}{f.MinSize}
	if f.MaxSize > 0 {
		query += " AND size <= ?"
		args = append(args, f.MaxSize)
	}
	if f.MediaType != "" {
		query += " AND media_type = ?"
		args = append(args, f.MediaType)
	}
	if f.UnreferencedOnly {
		query += " AND refcount = 0"
	}
	query += " ORDER BY " + f.orderColumn()

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, caperr.Wrap(caperr.KindBackendUnavailable, err, "query blobs")
	}
	defer rows.Close()

	var out []Info
	for rows.Next() {
		var info Info
		if err := rows.Scan(&info.BlobID, &info.MediaType, &info.Size, &info.Refcount, &info.CreatedAt); err != nil {
			return nil, caperr.Wrap(caperr.KindInputFormat, err, "scan blob info")
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// GC removes blobs with zero refcount and age at least minAge. In dry-run
// mode it reports what would be removed without touching disk or the
// database.
func (s *Store) GC(dryRun bool, minAge time.Duration) ([]string, error) {
	cutoff := time.Now().UTC().Add(-minAge).Format(time.RFC3339)
	rows, err := s.db.Query("SELECT blob_id FROM blobs WHERE refcount = 0 AND created_at <= ?", cutoff)
	if err != nil {
		return nil, caperr.Wrap(caperr.KindBackendUnavailable, err, "query gc candidates")
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, caperr.Wrap(caperr.KindInputFormat, err, "scan gc candidate")
		}
		ids = append(ids, id)
	}
	rows.Close()

	if dryRun {
		return ids, nil
	}

	for _, id := range ids {
		if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
			return nil, caperr.Wrap(caperr.KindInputFormat, err, "remove blob bytes")
		}
		if _, err := s.db.Exec("DELETE FROM blobs WHERE blob_id = ?", id); err != nil {
			return nil, caperr.Wrap(caperr.KindBackendUnavailable, err, "delete blob metadata")
		}
	}
	return ids, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
