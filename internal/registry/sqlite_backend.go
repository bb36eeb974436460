// Copyright 2025 Certen Protocol

package registry

import (
	"context"
	"database/sql"

	_ "modernc.org/sqlite"

	"github.com/capengine/cap-core/internal/caperr"
	"github.com/capengine/cap-core/internal/metrics"
)

// schema mirrors the JSON backend's fields in relational form, indexed on
// the (manifest_hash, proof_hash) pair used by find_by_hashes.
const schema = `
CREATE TABLE IF NOT EXISTS registry_entries (
	id               TEXT PRIMARY KEY,
	schema_version   TEXT NOT NULL,
	manifest_hash    TEXT NOT NULL,
	proof_hash       TEXT NOT NULL,
	timestamp_file   TEXT,
	registered_at    TEXT NOT NULL,
	signature        TEXT,
	public_key       TEXT,
	kid              TEXT,
	signature_scheme TEXT,
	UNIQUE(manifest_hash, proof_hash)
);
CREATE INDEX IF NOT EXISTS idx_registry_hashes ON registry_entries(manifest_hash, proof_hash);
`

// SQLiteBackend stores registry entries in a modernc.org/sqlite database.
// The database is opened with _txlock=immediate, so every transaction,
// and with it every write, starts with BEGIN IMMEDIATE and concurrent writers
// serialize at the SQLite file-lock level rather than only in-process.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens (or creates) a SQLite-backed registry at path.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", path+"?_txlock=immediate")
	if err != nil {
		return nil, caperr.Wrap(caperr.KindBackendUnavailable, err, "open registry database")
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: one writer at a time, avoids SQLITE_BUSY churn
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, caperr.Wrap(caperr.KindBackendUnavailable, err, "initialise registry schema")
	}
	return &SQLiteBackend{db: db}, nil
}

// AddEntry inserts e inside an immediate-mode transaction, per §5: the
// write lock is acquired at BEGIN rather than deferred to the first write,
// so a concurrent writer blocks (or gets SQLITE_BUSY) up front instead of
// racing to the INSERT.
func (b *SQLiteBackend) AddEntry(e *Entry) error {
	tx, err := b.db.BeginTx(context.Background(), &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return caperr.Wrap(caperr.KindBackendUnavailable, err, "begin registry transaction")
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO registry_entries
		 (id, schema_version, manifest_hash, proof_hash, timestamp_file, registered_at, signature, public_key, kid, signature_scheme)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Schema, e.ManifestHash, e.ProofHash, e.TimestampFile, e.RegisteredAt, e.Signature, e.PublicKey, e.KID, e.SignatureScheme,
	)
	if err != nil {
		return caperr.Wrap(caperr.KindIntegrityMismatch, err, "insert registry entry")
	}
	if err := tx.Commit(); err != nil {
		return caperr.Wrap(caperr.KindBackendUnavailable, err, "commit registry entry")
	}
	metrics.RegistryWrites.WithLabelValues("sqlite").Inc()
	return nil
}

// FindByHashes returns the entry matching the manifest hash and proof hash
// pair, if present.
func (b *SQLiteBackend) FindByHashes(manifestHash, proofHash string) ([]*Entry, error) {
	rows, err := b.db.Query(
		`SELECT id, schema_version, manifest_hash, proof_hash, timestamp_file, registered_at, signature, public_key, kid, signature_scheme
		 FROM registry_entries WHERE manifest_hash = ? AND proof_hash = ?`,
		manifestHash, proofHash,
	)
	if err != nil {
		return nil, caperr.Wrap(caperr.KindBackendUnavailable, err, "query registry entries")
	}
	defer rows.Close()
	return scanEntries(rows)
}

// List returns every entry, ordered by registration time.
func (b *SQLiteBackend) List() ([]*Entry, error) {
	rows, err := b.db.Query(
		`SELECT id, schema_version, manifest_hash, proof_hash, timestamp_file, registered_at, signature, public_key, kid, signature_scheme
		 FROM registry_entries ORDER BY registered_at ASC`,
	)
	if err != nil {
		return nil, caperr.Wrap(caperr.KindBackendUnavailable, err, "query registry entries")
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var out []*Entry
	for rows.Next() {
		var e Entry
		var timestampFile, signature, publicKey, kid, signatureScheme sql.NullString
		if err := rows.Scan(&e.ID, &e.Schema, &e.ManifestHash, &e.ProofHash, &timestampFile, &e.RegisteredAt, &signature, &publicKey, &kid, &signatureScheme); err != nil {
			return nil, caperr.Wrap(caperr.KindInputFormat, err, "scan registry entry")
		}
		e.TimestampFile = timestampFile.String
		e.Signature = signature.String
		e.PublicKey = publicKey.String
		e.KID = kid.String
		e.SignatureScheme = signatureScheme.String
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, caperr.Wrap(caperr.KindBackendUnavailable, err, "iterate registry entries")
	}
	return out, nil
}

// Close releases the underlying database handle.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
