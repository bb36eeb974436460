// Copyright 2025 Certen Protocol

// Package bundle implements the cap-bundle.v1 packer and reader (§4.9, §6):
// content-addressed payload directories with a proof-unit dependency DAG,
// plus the CAPZ container format and legacy two-file bundle fallback.
package bundle

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/capengine/cap-core/internal/capcrypto"
	"github.com/capengine/cap-core/internal/caperr"
)

// SchemaTag is the bundle metadata schema identifier.
const SchemaTag = "cap-bundle.v1"

// FileEntry describes one payload file tracked in _meta.json.
type FileEntry struct {
	Role        string `json:"role"`
	Hash        string `json:"hash"`
	Size        int64  `json:"size,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Optional    bool   `json:"optional,omitempty"`
}

// ProofUnit is one node in the bundle's proof dependency DAG.
type ProofUnit struct {
	ID           string   `json:"id"`
	ManifestFile string   `json:"manifest_file"`
	ProofFile    string   `json:"proof_file"`
	PolicyID     string   `json:"policy_id"`
	PolicyHash   string   `json:"policy_hash"`
	Backend      string   `json:"backend"`
	DependsOn    []string `json:"depends_on"`
}

// Meta is the _meta.json document.
type Meta struct {
	Schema     string               `json:"schema"`
	BundleID   string               `json:"bundle_id"`
	CreatedAt  string               `json:"created_at"`
	Files      map[string]FileEntry `json:"files"`
	ProofUnits []ProofUnit          `json:"proof_units"`
}

// sanitizeFileName rejects absolute paths and parent-directory components,
// per §6's "no absolute paths, no parent-directory components".
func sanitizeFileName(name string) error {
	if name == "" {
		return caperr.New(caperr.KindBundleStructure, "empty file name")
	}
	if filepath.IsAbs(name) {
		return caperr.Newf(caperr.KindBundleStructure, "absolute path not allowed: %s", name)
	}
	cleaned := filepath.ToSlash(filepath.Clean(name))
	for _, part := range strings.Split(cleaned, "/") {
		if part == ".." {
			return caperr.Newf(caperr.KindBundleStructure, "parent-directory component not allowed: %s", name)
		}
	}
	return nil
}

func hashFile(path string) (string, int64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", 0, caperr.Wrap(caperr.KindInputFormat, err, "read bundle file")
	}
	sum := capcrypto.SHA3256(raw)
	return capcrypto.HexLower(sum[:]), int64(len(raw)), nil
}

// LoadMeta reads and parses _meta.json from a bundle directory.
func LoadMeta(dir string) (*Meta, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "_meta.json"))
	if err != nil {
		return nil, caperr.Wrap(caperr.KindInputFormat, err, "read _meta.json")
	}
	var m Meta
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, caperr.Wrap(caperr.KindInputFormat, err, "parse _meta.json")
	}
	if m.Schema != SchemaTag {
		return nil, caperr.Newf(caperr.KindBundleStructure, "unexpected bundle schema: %s", m.Schema)
	}
	return &m, nil
}

// NewBundleID generates a fresh UUIDv4 bundle identifier.
func NewBundleID() string {
	return uuid.NewString()
}
