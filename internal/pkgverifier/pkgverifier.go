// Copyright 2025 Certen Protocol

// Package pkgverifier implements the format-detecting bundle verifier
// (§4.11): modern vs. legacy detection, _meta.json DAG/invariant checks,
// load-once TOCTOU-safe hashing, CAPZ peeling, and dispatch into the
// verification kernel.
package pkgverifier

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/capengine/cap-core/internal/bundle"
	"github.com/capengine/cap-core/internal/capcrypto"
	"github.com/capengine/cap-core/internal/caperr"
	"github.com/capengine/cap-core/internal/verifykernel"
)

// MaxFileSize is the default load-once read cap (§4.11, §5: "bundle
// file-size cap of 100 MiB").
const MaxFileSize = 100 * 1024 * 1024

// VerifyOptions configures which optional kernel checks run.
type VerifyOptions struct {
	PolicyHash     string
	PolicyID       string
	Backend        string
	Credentials    *verifykernel.Credentials
	CheckSignature bool
	CheckTimestamp bool
	CheckRegistry  bool
}

// VerifyBundle detects the bundle format at dir and dispatches to the
// appropriate path, returning one kernel Result per proof unit (or a
// single result for the legacy single-proof layout).
func VerifyBundle(dir string, opts VerifyOptions) ([]verifykernel.Result, error) {
	if bundle.IsLegacyBundle(dir) {
		result, err := verifyLegacy(dir, opts)
		if err != nil {
			return nil, err
		}
		return []verifykernel.Result{result}, nil
	}
	return verifyModern(dir, opts)
}

// loadOnce reads path into memory exactly once, under the size cap,
// returning both the bytes and their SHA3-256 hash — closing the TOCTOU
// gap between "check the file" and "use the file" by never re-reading it.
func loadOnce(path string) ([]byte, string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, "", caperr.Wrap(caperr.KindInputFormat, err, "stat bundle file")
	}
	if info.Size() > MaxFileSize {
		return nil, "", caperr.Newf(caperr.KindResourceLimit, "bundle file %s exceeds size limit of %d bytes", path, MaxFileSize)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, "", caperr.Wrap(caperr.KindInputFormat, err, "read bundle file")
	}
	sum := capcrypto.SHA3256(raw)
	return raw, capcrypto.HexLower(sum[:]), nil
}

func verifyModern(dir string, opts VerifyOptions) ([]verifykernel.Result, error) {
	meta, err := bundle.LoadMeta(dir)
	if err != nil {
		return nil, err
	}
	if err := bundle.ValidateProofUnits(meta.ProofUnits, meta.Files); err != nil {
		return nil, err
	}

	// load-once pass: every file is read and hash-checked exactly once,
	// and the in-memory bytes are what downstream verification uses —
	// never a second read from disk.
	loaded := make(map[string][]byte, len(meta.Files))
	for name, entry := range meta.Files {
		if filepath.IsAbs(name) {
			return nil, caperr.Newf(caperr.KindBundleStructure, "absolute path not allowed: %s", name)
		}
		for _, part := range strings.Split(filepath.ToSlash(filepath.Clean(name)), "/") {
			if part == ".." {
				return nil, caperr.Newf(caperr.KindBundleStructure, "parent-directory component not allowed: %s", name)
			}
		}
		path := filepath.Join(dir, name)
		if _, statErr := os.Stat(path); statErr != nil {
			if entry.Optional && os.IsNotExist(statErr) {
				continue
			}
			return nil, caperr.Wrap(caperr.KindBundleStructure, statErr, "stat bundle file "+name)
		}
		raw, hash, err := loadOnce(path)
		if err != nil {
			return nil, err
		}
		if hash != entry.Hash {
			return nil, caperr.Newf(caperr.KindIntegrityMismatch, "file %s hash mismatch: meta has %s, disk has %s", name, entry.Hash, hash)
		}
		loaded[name] = raw
	}

	var results []verifykernel.Result
	for _, unit := range meta.ProofUnits {
		manifestBytes := loaded[unit.ManifestFile]
		proofRaw := loaded[unit.ProofFile]

		proofBytes, err := peelContainer(unit.ProofFile, proofRaw)
		if err != nil {
			return nil, err
		}

		manifestHash, proofHash, policyHash, err := hashesFromManifest(manifestBytes, proofBytes, unit.PolicyHash)
		if err != nil {
			return nil, err
		}

		in := verifykernel.Input{
			ProtocolVersion: "1.0",
			ManifestBytes:   manifestBytes,
			ProofBytes:      proofBytes,
			ManifestHash:    manifestHash,
			ProofHash:       proofHash,
			PolicyHash:      policyHash,
			PolicyID:        unit.PolicyID,
			Backend:         unit.Backend,
			Credentials:     opts.Credentials,
			Options: verifykernel.Options{
				CheckSignature: opts.CheckSignature,
				CheckTimestamp: opts.CheckTimestamp,
				CheckRegistry:  opts.CheckRegistry,
			},
		}
		results = append(results, verifykernel.VerifyCore(in))
	}
	return results, nil
}

// peelContainer strips the CAPZ/legacy-dat wrapping by filename extension,
// per the Open Question decision to keep C10 strictly opaque-bytes: C11
// always hands the kernel an unwrapped JSON payload.
func peelContainer(name string, raw []byte) ([]byte, error) {
	switch filepath.Ext(name) {
	case ".capz":
		return bundle.UnwrapCAPZ(raw)
	case ".dat":
		return bundle.UnwrapLegacyDat(raw)
	default:
		return raw, nil
	}
}

func hashesFromManifest(manifestBytes, proofBytes []byte, policyHashHint string) (manifestHash, proofHash, policyHash string, err error) {
	mSum := capcrypto.SHA3256(manifestBytes)
	manifestHash = capcrypto.HexLower(mSum[:])
	pSum := capcrypto.SHA3256(proofBytes)
	proofHash = capcrypto.HexLower(pSum[:])

	if policyHashHint != "" {
		return manifestHash, proofHash, policyHashHint, nil
	}

	var m struct {
		Policy struct {
			Hash string `json:"hash"`
		} `json:"policy"`
	}
	if jsonErr := json.Unmarshal(manifestBytes, &m); jsonErr != nil {
		return "", "", "", caperr.Wrap(caperr.KindInputFormat, jsonErr, "parse manifest for policy hash")
	}
	return manifestHash, proofHash, m.Policy.Hash, nil
}

func verifyLegacy(dir string, opts VerifyOptions) (verifykernel.Result, error) {
	legacy, err := bundle.LoadLegacyBundle(dir)
	if err != nil {
		return verifykernel.Result{}, err
	}
	manifestHash, proofHash, policyHash, err := hashesFromManifest(legacy.ManifestBytes, legacy.ProofBytes, opts.PolicyHash)
	if err != nil {
		return verifykernel.Result{}, err
	}
	in := verifykernel.Input{
		ProtocolVersion: "1.0",
		ManifestBytes:   legacy.ManifestBytes,
		ProofBytes:      legacy.ProofBytes,
		ManifestHash:    manifestHash,
		ProofHash:       proofHash,
		PolicyHash:      policyHash,
		PolicyID:        opts.PolicyID,
		Backend:         opts.Backend,
		Credentials:     opts.Credentials,
		Options: verifykernel.Options{
			CheckSignature: opts.CheckSignature,
			CheckTimestamp: opts.CheckTimestamp,
			CheckRegistry:  opts.CheckRegistry,
		},
	}
	return verifykernel.VerifyCore(in), nil
}
