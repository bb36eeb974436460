// Copyright 2025 Certen Protocol

package keystore

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"

	"github.com/capengine/cap-core/internal/capcrypto"
	"github.com/capengine/cap-core/internal/caperr"
	"github.com/capengine/cap-core/internal/commitment"
)

// Attestation is a signed statement that one key vouches for another,
// forming a chain of trust rooted at a trusted anchor key.
type Attestation struct {
	SubjectKID string `json:"subject_kid"`
	IssuerKID  string `json:"issuer_kid"`
	IssuedAt   string `json:"issued_at"`
	Signature  string `json:"signature"`
}

func attestationForSigning(subjectKID, issuerKID, issuedAt string) ([]byte, error) {
	payload := map[string]string{
		"subject_kid": subjectKID,
		"issuer_kid":  issuerKID,
		"issued_at":   issuedAt,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, caperr.Wrap(caperr.KindInputFormat, err, "marshal attestation payload")
	}
	return commitment.CanonicalizeJSON(raw)
}

// Sign produces a signed attestation that issuerPriv vouches for subject.
func Sign(subjectKID string, issuer *Metadata, issuerPriv ed25519.PrivateKey, issuedAt string) (*Attestation, error) {
	canon, err := attestationForSigning(subjectKID, issuer.KID, issuedAt)
	if err != nil {
		return nil, err
	}
	sig, err := capcrypto.Ed25519Sign(issuerPriv, canon)
	if err != nil {
		return nil, err
	}
	return &Attestation{
		SubjectKID: subjectKID,
		IssuerKID:  issuer.KID,
		IssuedAt:   issuedAt,
		Signature:  base64.StdEncoding.EncodeToString(sig),
	}, nil
}

// Verify checks that attestation a was produced by issuer's private key.
func (a *Attestation) Verify(issuer *Metadata) (bool, error) {
	canon, err := attestationForSigning(a.SubjectKID, a.IssuerKID, a.IssuedAt)
	if err != nil {
		return false, err
	}
	sig, err := base64.StdEncoding.DecodeString(a.Signature)
	if err != nil {
		return false, caperr.Wrap(caperr.KindInputFormat, err, "decode attestation signature")
	}
	pub, err := issuer.PublicKeyBytes()
	if err != nil {
		return false, err
	}
	return capcrypto.Ed25519Verify(pub, canon, sig)
}

// VerifyChain walks a chain of attestations from leaf (attestations[0]) up to
// a trusted anchor key, verifying every signature and KID linkage along the
// way. trustedAnchors maps KID to metadata for keys considered axiomatically
// trusted (e.g. loaded from the store's trusted/ directory).
func VerifyChain(leafKID string, attestations []*Attestation, store *Store, trustedAnchors map[string]*Metadata) (bool, error) {
	if _, ok := trustedAnchors[leafKID]; ok {
		return true, nil
	}

	current := leafKID
	seen := map[string]bool{}
	for _, att := range attestations {
		if att.SubjectKID != current {
			continue
		}
		if seen[att.IssuerKID] {
			return false, caperr.New(caperr.KindKeyStatus, "attestation chain cycle detected")
		}
		seen[att.IssuerKID] = true

		issuer, err := store.FindByKID(att.IssuerKID)
		if err != nil {
			return false, err
		}
		if issuer == nil {
			if anchor, ok := trustedAnchors[att.IssuerKID]; ok {
				issuer = anchor
			} else {
				return false, caperr.Newf(caperr.KindKeyStatus, "unknown issuer key: %s", att.IssuerKID)
			}
		}
		if issuer.Status == StatusRevoked {
			return false, caperr.Newf(caperr.KindKeyStatus, "issuer key revoked: %s", att.IssuerKID)
		}

		ok, err := att.Verify(issuer)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, caperr.New(caperr.KindSignatureInvalid, "attestation signature invalid")
		}

		if _, trusted := trustedAnchors[att.IssuerKID]; trusted {
			return true, nil
		}
		current = att.IssuerKID
	}
	return false, caperr.New(caperr.KindKeyStatus, "attestation chain does not terminate at a trusted anchor")
}
