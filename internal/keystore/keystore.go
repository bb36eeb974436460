// Copyright 2025 Certen Protocol

// Package keystore implements key metadata lifecycle, KID derivation, and
// attestation chain-of-trust verification (§4.8). Ported from
// original_source/agent/src/keys.rs into the teacher's service idiom
// (pkg/proof/attestation.go: crypto + repo + status texture).
package keystore

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/capengine/cap-core/internal/capcrypto"
	"github.com/capengine/cap-core/internal/caperr"
)

// Status is a key's lifecycle state.
type Status string

const (
	StatusActive  Status = "active"
	StatusRetired Status = "retired"
	StatusRevoked Status = "revoked"
)

// Metadata is the cap-key.v1 schema (§3).
type Metadata struct {
	Schema      string    `json:"schema"`
	KID         string    `json:"kid"`
	Owner       string    `json:"owner"`
	CreatedAt   string    `json:"created_at"`
	ValidFrom   string    `json:"valid_from"`
	ValidTo     string    `json:"valid_to"`
	Algorithm   string    `json:"algorithm"`
	Status      Status    `json:"status"`
	Usage       []string  `json:"usage"`
	PublicKey   string    `json:"public_key"`
	Fingerprint string    `json:"fingerprint"`
	Comment     string    `json:"comment,omitempty"`
}

// NewMetadata builds key metadata from raw public key bytes, deriving KID and
// fingerprint per §4.1/§4.8.
func NewMetadata(publicKeyBytes []byte, owner, algorithm string, validForDays int) *Metadata {
	pubB64 := base64.StdEncoding.EncodeToString(publicKeyBytes)
	kid := capcrypto.DeriveKID(pubB64)
	fingerprint := capcrypto.Fingerprint(publicKeyBytes)

	now := time.Now().UTC()
	validTo := now.AddDate(0, 0, validForDays)

	return &Metadata{
		Schema:    "cap-key.v1",
		KID:       kid,
		Owner:     owner,
		CreatedAt: now.Format(time.RFC3339),
		ValidFrom: now.Format(time.RFC3339),
		ValidTo:   validTo.Format(time.RFC3339),
		Algorithm: algorithm,
		Status:    StatusActive,
		Usage:     []string{"signing", "registry"},
		PublicKey: pubB64,
		Fingerprint: fingerprint,
	}
}

// Retire transitions a key from active to retired (normal rotation).
func (m *Metadata) Retire() { m.Status = StatusRetired }

// Revoke transitions a key to revoked (security incident).
func (m *Metadata) Revoke() { m.Status = StatusRevoked }

// PublicKeyBytes decodes the base64 public key.
func (m *Metadata) PublicKeyBytes() (ed25519.PublicKey, error) {
	b, err := base64.StdEncoding.DecodeString(m.PublicKey)
	if err != nil {
		return nil, caperr.Wrap(caperr.KindInputFormat, err, "decode public key")
	}
	return ed25519.PublicKey(b), nil
}

// Load reads key metadata from a JSON file.
func Load(path string) (*Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, caperr.Wrap(caperr.KindInputFormat, err, "read key metadata")
	}
	var m Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, caperr.Wrap(caperr.KindInputFormat, err, "parse key metadata")
	}
	return &m, nil
}

// Save writes key metadata as JSON to path.
func (m *Metadata) Save(path string) error {
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return caperr.Wrap(caperr.KindInputFormat, err, "marshal key metadata")
	}
	return os.WriteFile(path, raw, 0o644)
}

// Store manages the keys directory structure: active keys at root, retired
// keys under archive/, trusted anchors under trusted/.
type Store struct {
	basePath string
}

// NewStore opens or creates a key store at basePath.
func NewStore(basePath string) (*Store, error) {
	for _, sub := range []string{"", "archive", "trusted"} {
		if err := os.MkdirAll(filepath.Join(basePath, sub), 0o755); err != nil {
			return nil, caperr.Wrap(caperr.KindInputFormat, err, "create key store directory")
		}
	}
	return &Store{basePath: basePath}, nil
}

func scanJSONFiles(dir string) ([]*Metadata, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, caperr.Wrap(caperr.KindInputFormat, err, "read key store directory")
	}
	var out []*Metadata
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		m, err := Load(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue // skip unparsable files, matching the original's if let Ok(...) pattern
		}
		out = append(out, m)
	}
	return out, nil
}

// List returns every key in the store, including archived ones.
func (s *Store) List() ([]*Metadata, error) {
	active, err := scanJSONFiles(s.basePath)
	if err != nil {
		return nil, err
	}
	archived, err := scanJSONFiles(filepath.Join(s.basePath, "archive"))
	if err != nil {
		return nil, err
	}
	return append(active, archived...), nil
}

// FindByKID returns the key with the given KID, or nil if not found.
func (s *Store) FindByKID(kid string) (*Metadata, error) {
	keys, err := s.List()
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		if k.KID == kid {
			return k, nil
		}
	}
	return nil, nil
}

// GetActive returns the active key for an owner, if any.
func (s *Store) GetActive(owner string) (*Metadata, error) {
	keys, err := s.List()
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		if k.Owner == owner && k.Status == StatusActive {
			return k, nil
		}
	}
	return nil, nil
}

// Reactivate moves a retired key back from archive/ to the active root,
// restoring StatusActive. Used by rotation rollback (P3->P2): the old key
// resumes dual-accept status.
func (s *Store) Reactivate(kid string) error {
	archiveDir := filepath.Join(s.basePath, "archive")
	entries, err := os.ReadDir(archiveDir)
	if err != nil {
		return caperr.Wrap(caperr.KindInputFormat, err, "read key store archive directory")
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(archiveDir, entry.Name())
		m, err := Load(path)
		if err != nil {
			continue
		}
		if m.KID != kid {
			continue
		}
		m.Status = StatusActive
		if err := m.Save(path); err != nil {
			return err
		}
		rootPath := filepath.Join(s.basePath, entry.Name())
		return os.Rename(path, rootPath)
	}
	return caperr.Newf(caperr.KindKeyStatus, "archived key not found: %s", kid)
}

// Archive retires a key and moves its metadata file into archive/.
func (s *Store) Archive(kid string) error {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return caperr.Wrap(caperr.KindInputFormat, err, "read key store directory")
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(s.basePath, entry.Name())
		m, err := Load(path)
		if err != nil {
			continue
		}
		if m.KID != kid {
			continue
		}
		m.Retire()
		if err := m.Save(path); err != nil {
			return err
		}
		archivePath := filepath.Join(s.basePath, "archive", entry.Name())
		return os.Rename(path, archivePath)
	}
	return caperr.Newf(caperr.KindKeyStatus, "key not found: %s", kid)
}
