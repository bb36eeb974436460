// Copyright 2025 Certen Protocol

package bundle

import (
	"os"
	"path/filepath"

	"github.com/capengine/cap-core/internal/caperr"
)

// CheckSelfConsistency verifies, for a packed bundle directory, that every
// files[n].hash equals the SHA3-256 of the bytes of that file on disk, and
// that the proof-unit DAG is well-formed. It does not dispatch into the
// verification kernel; that is C11's job.
func CheckSelfConsistency(dir string) (*Meta, error) {
	meta, err := LoadMeta(dir)
	if err != nil {
		return nil, err
	}

	for name, entry := range meta.Files {
		if err := sanitizeFileName(name); err != nil {
			return nil, err
		}
		path := filepath.Join(dir, name)
		if _, statErr := os.Stat(path); statErr != nil {
			if entry.Optional && os.IsNotExist(statErr) {
				continue
			}
			return nil, caperr.Wrap(caperr.KindBundleStructure, statErr, "stat bundle file "+name)
		}
		hash, size, err := hashFile(path)
		if err != nil {
			return nil, err
		}
		if hash != entry.Hash {
			return nil, caperr.Newf(caperr.KindIntegrityMismatch, "file %s hash mismatch: meta has %s, disk has %s", name, entry.Hash, hash)
		}
		if entry.Size != 0 && entry.Size != size {
			return nil, caperr.Newf(caperr.KindIntegrityMismatch, "file %s size mismatch: meta has %d, disk has %d", name, entry.Size, size)
		}
	}

	if err := ValidateProofUnits(meta.ProofUnits, meta.Files); err != nil {
		return nil, err
	}

	for _, u := range meta.ProofUnits {
		if u.ManifestFile == "" {
			return nil, caperr.Newf(caperr.KindBundleStructure, "proof unit %s missing manifest_file", u.ID)
		}
		if u.ProofFile == "" {
			return nil, caperr.Newf(caperr.KindBundleStructure, "proof unit %s missing proof_file", u.ID)
		}
	}

	return meta, nil
}

// IsLegacyBundle reports whether dir lacks _meta.json and should be read
// via the two-file legacy path (manifest.json + proof.dat).
func IsLegacyBundle(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, "_meta.json"))
	return os.IsNotExist(err)
}

// LegacyBundle is the minimal manifest.json + proof.dat pair predating
// _meta.json.
type LegacyBundle struct {
	ManifestBytes []byte
	ProofBytes    []byte
}

// LoadLegacyBundle reads the legacy two-file layout from dir.
func LoadLegacyBundle(dir string) (*LegacyBundle, error) {
	manifestBytes, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		return nil, caperr.Wrap(caperr.KindInputFormat, err, "read legacy manifest.json")
	}
	datBytes, err := os.ReadFile(filepath.Join(dir, "proof.dat"))
	if err != nil {
		return nil, caperr.Wrap(caperr.KindInputFormat, err, "read legacy proof.dat")
	}
	proofBytes, err := UnwrapLegacyDat(datBytes)
	if err != nil {
		return nil, err
	}
	return &LegacyBundle{ManifestBytes: manifestBytes, ProofBytes: proofBytes}, nil
}
