// Copyright 2025 Certen Protocol

// Package registry implements the append-mostly entry registry (§4.7):
// add_entry, find_by_hashes, list, verify_entry_signature, and schema
// migration, behind one Backend interface with two concrete backends.
package registry

import (
	"crypto/ed25519"
	"encoding/base64"
	"time"

	"github.com/capengine/cap-core/internal/capcrypto"
	"github.com/capengine/cap-core/internal/caperr"
	"github.com/capengine/cap-core/internal/commitment"
	"github.com/capengine/cap-core/internal/keystore"
)

// SchemaVersion is the current registry entry envelope version.
const SchemaVersion = "v1.1"

// Entry is one registry record (§3's data model), content-addressed by the
// manifest and proof hash pair it attests to.
type Entry struct {
	Schema          string `json:"schema"`
	ID              string `json:"id"`
	ManifestHash    string `json:"manifest_hash"`
	ProofHash       string `json:"proof_hash"`
	TimestampFile   string `json:"timestamp_file,omitempty"`
	RegisteredAt    string `json:"registered_at"`
	Signature       string `json:"signature,omitempty"`
	PublicKey       string `json:"public_key,omitempty"`
	KID             string `json:"kid,omitempty"`
	SignatureScheme string `json:"signature_scheme,omitempty"`
}

// Backend is the storage abstraction implemented by the JSON and SQLite
// registries. Both enforce the same serializable write discipline (§5):
// AddEntry must not interleave with another AddEntry for the same store.
type Backend interface {
	AddEntry(e *Entry) error
	FindByHashes(manifestHash, proofHash string) ([]*Entry, error)
	List() ([]*Entry, error)
	Close() error
}

// entryCore is the subset of fields that is BLAKE3-hashed and signed: the
// signature triple itself (signature, public_key, kid, signature_scheme)
// is excluded, matching the manifest's self-referential-hash discipline.
func entryCore(e *Entry) map[string]string {
	return map[string]string{
		"schema":        e.Schema,
		"id":            e.ID,
		"manifest_hash": e.ManifestHash,
		"proof_hash":    e.ProofHash,
		"timestamp_file": e.TimestampFile,
		"registered_at": e.RegisteredAt,
	}
}

func canonicalEntryForSigning(e *Entry) ([]byte, error) {
	return commitment.MarshalCanonical(entryCore(e))
}

// NewEntry builds an unsigned entry with a BLAKE3-derived id from its core
// fields.
func NewEntry(manifestHash, proofHash, timestampFile string) *Entry {
	e := &Entry{
		Schema:        SchemaVersion,
		ManifestHash:  manifestHash,
		ProofHash:     proofHash,
		TimestampFile: timestampFile,
		RegisteredAt:  time.Now().UTC().Format(time.RFC3339),
	}
	e.ID = blake3EntryID(manifestHash, proofHash, e.RegisteredAt)
	return e
}

func blake3EntryID(manifestHash, proofHash, registeredAt string) string {
	raw := manifestHash + "|" + proofHash + "|" + registeredAt
	sum := capcrypto.Blake3([]byte(raw))
	return "reg_" + capcrypto.HexLower(sum[:])
}

// Sign signs e's canonical core with priv, filling
// {signature, public_key, kid, signature_scheme} per §4.7.
func Sign(e *Entry, priv ed25519.PrivateKey, pub ed25519.PublicKey, kid string) error {
	canon, err := canonicalEntryForSigning(e)
	if err != nil {
		return err
	}
	sig, err := capcrypto.Ed25519Sign(priv, canon)
	if err != nil {
		return err
	}
	e.Signature = base64.StdEncoding.EncodeToString(sig)
	e.PublicKey = base64.StdEncoding.EncodeToString(pub)
	e.KID = kid
	e.SignatureScheme = "ed25519"
	return nil
}

// VerifyEntrySignature checks e.Signature against its embedded public key.
// Unsigned entries (no Signature set) always return false, for backward
// compatibility with pre-signing registry entries rather than implicit trust.
func VerifyEntrySignature(e *Entry) (bool, error) {
	if e.Signature == "" {
		return false, nil
	}
	canon, err := canonicalEntryForSigning(e)
	if err != nil {
		return false, err
	}
	sig, err := base64.StdEncoding.DecodeString(e.Signature)
	if err != nil {
		return false, caperr.Wrap(caperr.KindInputFormat, err, "decode entry signature")
	}
	pub, err := base64.StdEncoding.DecodeString(e.PublicKey)
	if err != nil {
		return false, caperr.Wrap(caperr.KindInputFormat, err, "decode entry public key")
	}
	return capcrypto.Ed25519Verify(ed25519.PublicKey(pub), canon, sig)
}

// VerifyEntrySignatureAgainstKeyStatus performs the crypto check in
// VerifyEntrySignature and additionally consults the key store to enforce
// §4.8's acceptance rule: a signature's KID must have been active at the
// time it was produced, or still within an in-progress rotation's
// dual-accept window. A revoked key is rejected unconditionally, matching
// the incident-response Revoke path bypassing the normal grace period.
// rotation may be nil when no rotation is in progress for the signing KID's
// owner; store must not be nil.
func VerifyEntrySignatureAgainstKeyStatus(e *Entry, store *keystore.Store, rotation *keystore.RotationState) (bool, error) {
	ok, err := VerifyEntrySignature(e)
	if err != nil || !ok {
		return ok, err
	}

	key, err := store.FindByKID(e.KID)
	if err != nil {
		return false, err
	}
	if key == nil {
		return false, caperr.Newf(caperr.KindKeyStatus, "registry entry signed by unknown kid: %s", e.KID)
	}
	if key.Status == keystore.StatusRevoked {
		return false, caperr.Newf(caperr.KindKeyStatus, "registry entry signed by revoked kid: %s", e.KID)
	}

	signedAt, err := time.Parse(time.RFC3339, e.RegisteredAt)
	if err != nil {
		return false, caperr.Wrap(caperr.KindInputFormat, err, "parse registered_at")
	}
	validFrom, err := time.Parse(time.RFC3339, key.ValidFrom)
	if err != nil {
		return false, caperr.Wrap(caperr.KindInputFormat, err, "parse key valid_from")
	}
	if signedAt.Before(validFrom) {
		return false, caperr.Newf(caperr.KindKeyStatus, "kid %s was not yet valid at %s", e.KID, e.RegisteredAt)
	}

	cutoff := key.ValidTo
	if rotation != nil && rotation.OldKID == e.KID && rotation.Phase == keystore.PhaseSingleKeyNew {
		// The old key has been fully decommissioned (P3): only signatures
		// produced no later than the dual-accept window that preceded
		// decommission are honored, regardless of the key's own ValidTo.
		cutoff = rotation.DualUntil
	}
	cutoffAt, err := time.Parse(time.RFC3339, cutoff)
	if err != nil {
		return false, caperr.Wrap(caperr.KindInputFormat, err, "parse key validity cutoff")
	}
	if signedAt.After(cutoffAt) {
		return false, caperr.Newf(caperr.KindKeyStatus, "kid %s was no longer active at %s", e.KID, e.RegisteredAt)
	}

	return true, nil
}

// Migrate upgrades a legacy v1.0 entry (unversioned envelope) into the
// current v1.1 envelope, re-indexing nothing beyond the schema tag since
// field names did not change between versions.
func Migrate(e *Entry) (*Entry, error) {
	if e.Schema == SchemaVersion {
		return e, nil
	}
	if e.Schema != "" && e.Schema != "v1.0" {
		return nil, caperr.Newf(caperr.KindInputFormat, "unknown registry schema: %s", e.Schema)
	}
	migrated := *e
	migrated.Schema = SchemaVersion
	return &migrated, nil
}
