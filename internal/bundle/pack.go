// Copyright 2025 Certen Protocol

package bundle

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/capengine/cap-core/internal/caperr"
)

// SourceFile is one payload file to copy into a bundle during packing.
type SourceFile struct {
	Name        string // destination name within the bundle directory
	SourcePath  string // path to read bytes from
	Role        string
	ContentType string
	Optional    bool
}

// Packer assembles cap-bundle.v1 directories.
type Packer struct {
	dir string
}

// NewPacker targets dir, which must not yet exist (or be empty).
func NewPacker(dir string) (*Packer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, caperr.Wrap(caperr.KindInputFormat, err, "create bundle directory")
	}
	return &Packer{dir: dir}, nil
}

// Pack copies each source file into the bundle directory, hashes the bytes
// as written to disk, validates the proof-unit DAG, and serialises
// _meta.json. Files are copied and hashed in the order given.
func (p *Packer) Pack(bundleID string, sources []SourceFile, units []ProofUnit) (*Meta, error) {
	if bundleID == "" {
		bundleID = NewBundleID()
	}

	files := make(map[string]FileEntry, len(sources))
	for _, sf := range sources {
		if err := sanitizeFileName(sf.Name); err != nil {
			return nil, err
		}
		dest := filepath.Join(p.dir, sf.Name)
		if err := copyFile(sf.SourcePath, dest); err != nil {
			return nil, err
		}
		hash, size, err := hashFile(dest)
		if err != nil {
			return nil, err
		}
		files[sf.Name] = FileEntry{
			Role:        sf.Role,
			Hash:        hash,
			Size:        size,
			ContentType: sf.ContentType,
			Optional:    sf.Optional,
		}
	}

	if err := ValidateProofUnits(units, files); err != nil {
		return nil, err
	}

	meta := &Meta{
		Schema:     SchemaTag,
		BundleID:   bundleID,
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
		Files:      files,
		ProofUnits: units,
	}

	raw, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, caperr.Wrap(caperr.KindInputFormat, err, "marshal _meta.json")
	}
	if err := os.WriteFile(filepath.Join(p.dir, "_meta.json"), raw, 0o644); err != nil {
		return nil, caperr.Wrap(caperr.KindInputFormat, err, "write _meta.json")
	}
	return meta, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return caperr.Wrap(caperr.KindInputFormat, err, "open bundle source file")
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return caperr.Wrap(caperr.KindInputFormat, err, "create bundle payload file")
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return caperr.Wrap(caperr.KindInputFormat, err, "copy bundle payload file")
	}
	return out.Sync()
}
