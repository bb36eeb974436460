// Copyright 2025 Certen Protocol

// Package manifest implements the canonical manifest document (§4.4): binds
// commitments, policy summary, and audit tail; supports idempotent dual
// time-anchor initialisation.
package manifest

import (
	"encoding/json"
	"os"
	"time"

	"github.com/capengine/cap-core/internal/capcrypto"
	"github.com/capengine/cap-core/internal/caperr"
	"github.com/capengine/cap-core/internal/commitment"
)

const Version = "manifest.v1.0"

// PolicySummary is the {name, version, hash} triple embedded in a manifest.
type PolicySummary struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Hash    string `json:"hash"`
}

// AuditSummary is the audit tail snapshot embedded at manifest creation time.
type AuditSummary struct {
	TailDigest   string `json:"tail_digest"`
	EventsCount  int    `json:"events_count"`
}

// ProofSummary records the proof type and its evaluation status once attached.
type ProofSummary struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

// PrivateAnchor is the private arm of a dual time anchor.
type PrivateAnchor struct {
	AuditTipHex string `json:"audit_tip_hex"`
	CreatedAt   string `json:"created_at"`
}

// PublicAnchor is the public, on-chain arm of a dual time anchor.
type PublicAnchor struct {
	Chain     string `json:"chain"`
	Txid      string `json:"txid"`
	Digest    string `json:"digest"`
	CreatedAt string `json:"created_at"`
}

// TimeAnchor is the optional legacy-or-dual time anchor block.
type TimeAnchor struct {
	Kind        string         `json:"kind,omitempty"`
	Reference   string         `json:"reference,omitempty"`
	AuditTipHex string         `json:"audit_tip_hex,omitempty"`
	CreatedAt   string         `json:"created_at,omitempty"`
	Private     *PrivateAnchor `json:"private,omitempty"`
	Public      *PublicAnchor  `json:"public,omitempty"`
}

// Signature is one detached signature over the manifest's canonical bytes.
type Signature struct {
	KID       string `json:"kid"`
	PublicKey string `json:"public_key"`
	Signature string `json:"signature"`
	SignedAt  string `json:"signed_at"`
}

// Manifest is the canonical JSON document binding commitments, policy, and
// audit tail (§3, §4.4). Signatures are excluded when computing manifest_hash.
type Manifest struct {
	Version               string       `json:"version"`
	CreatedAt             string       `json:"created_at"`
	SupplierRoot          string       `json:"supplier_root"`
	UBORoot                string       `json:"ubo_root"`
	CompanyCommitmentRoot string       `json:"company_commitment_root"`
	Policy                PolicySummary `json:"policy"`
	Audit                 AuditSummary  `json:"audit"`
	Proof                 ProofSummary  `json:"proof"`
	Signatures            []Signature   `json:"signatures,omitempty"`
	TimeAnchor            *TimeAnchor   `json:"time_anchor,omitempty"`
}

// New constructs a manifest from commitments and policy/audit summaries,
// stamping created_at. Mirrors pkg/proof/bundle_format.go's
// NewCertenProofBundle constructor shape.
func New(c *commitment.Commitments, policySummary PolicySummary, audit AuditSummary) *Manifest {
	return &Manifest{
		Version:               Version,
		CreatedAt:             time.Now().UTC().Format(time.RFC3339),
		SupplierRoot:          capcrypto.HexLower(c.SupplierRoot),
		UBORoot:                capcrypto.HexLower(c.UBORoot),
		CompanyCommitmentRoot: capcrypto.HexLower(c.CompanyCommitmentRoot),
		Policy:                policySummary,
		Audit:                 audit,
		Proof:                 ProofSummary{Status: "pending"},
	}
}

// SetTimeAnchor idempotently initialises the legacy/private anchor block. A
// second call with identical kind/reference/tip is a no-op; a call that would
// change an already-set anchor is rejected.
func (m *Manifest) SetTimeAnchor(kind, reference, auditTipHex string) error {
	if m.TimeAnchor == nil {
		m.TimeAnchor = &TimeAnchor{
			Kind:        kind,
			Reference:   reference,
			AuditTipHex: auditTipHex,
			CreatedAt:   time.Now().UTC().Format(time.RFC3339),
		}
		return nil
	}
	if m.TimeAnchor.Kind == kind && m.TimeAnchor.Reference == reference && m.TimeAnchor.AuditTipHex == auditTipHex {
		return nil
	}
	return caperr.New(caperr.KindAnchorInconsistent, "time anchor already initialised with different values")
}

// SetPrivateAnchor requires an initialised anchor and fails with
// AnchorInconsistent if the tip differs from the existing audit_tip_hex.
func (m *Manifest) SetPrivateAnchor(auditTipHex string, createdAt ...string) error {
	if m.TimeAnchor == nil {
		return caperr.New(caperr.KindAnchorInconsistent, "cannot set private anchor before time anchor is initialised")
	}
	if m.TimeAnchor.AuditTipHex != "" && m.TimeAnchor.AuditTipHex != auditTipHex {
		return caperr.Newf(caperr.KindAnchorInconsistent, "private anchor tip %s does not match existing audit_tip_hex %s", auditTipHex, m.TimeAnchor.AuditTipHex)
	}
	ts := time.Now().UTC().Format(time.RFC3339)
	if len(createdAt) > 0 {
		ts = createdAt[0]
	}
	m.TimeAnchor.Private = &PrivateAnchor{AuditTipHex: auditTipHex, CreatedAt: ts}
	return nil
}

// SetPublicAnchor requires an initialised anchor; chain must be one of
// ethereum/hedera/btc.
func (m *Manifest) SetPublicAnchor(chain, txid, digest string, createdAt ...string) error {
	if m.TimeAnchor == nil {
		return caperr.New(caperr.KindAnchorInconsistent, "cannot set public anchor before time anchor is initialised")
	}
	switch chain {
	case "ethereum", "hedera", "btc":
	default:
		return caperr.Newf(caperr.KindAnchorInconsistent, "unsupported chain: %s", chain)
	}
	ts := time.Now().UTC().Format(time.RFC3339)
	if len(createdAt) > 0 {
		ts = createdAt[0]
	}
	m.TimeAnchor.Public = &PublicAnchor{Chain: chain, Txid: txid, Digest: digest, CreatedAt: ts}
	return nil
}

// ValidateDualAnchor enforces: private.audit_tip matches top-level tip;
// public.digest is 32-byte hex; public.txid non-empty.
func (m *Manifest) ValidateDualAnchor() error {
	if m.TimeAnchor == nil {
		return caperr.New(caperr.KindAnchorInconsistent, "no time anchor present")
	}
	if m.TimeAnchor.Private != nil && m.TimeAnchor.Private.AuditTipHex != m.TimeAnchor.AuditTipHex {
		return caperr.New(caperr.KindAnchorInconsistent, "private.audit_tip_hex does not match top-level tip")
	}
	if m.TimeAnchor.Public != nil {
		if _, err := capcrypto.DecodeHex(m.TimeAnchor.Public.Digest, capcrypto.HashSize); err != nil {
			return caperr.Wrap(caperr.KindAnchorInconsistent, err, "public.digest must be 32-byte hex")
		}
		if m.TimeAnchor.Public.Txid == "" {
			return caperr.New(caperr.KindAnchorInconsistent, "public.txid must be non-empty")
		}
	}
	return nil
}

// manifestForHash is Manifest without Signatures, the canonical hash input.
type manifestForHash struct {
	Version               string       `json:"version"`
	CreatedAt             string       `json:"created_at"`
	SupplierRoot          string       `json:"supplier_root"`
	UBORoot                string       `json:"ubo_root"`
	CompanyCommitmentRoot string       `json:"company_commitment_root"`
	Policy                PolicySummary `json:"policy"`
	Audit                 AuditSummary  `json:"audit"`
	Proof                 ProofSummary  `json:"proof"`
	TimeAnchor            *TimeAnchor   `json:"time_anchor,omitempty"`
}

// ToCanonicalJSON returns the stable byte image used for all hashing: the
// manifest's canonical JSON with signatures excluded. This is the one byte
// image every downstream hash must reference (§9 Canonical byte ownership).
func (m *Manifest) ToCanonicalJSON() ([]byte, error) {
	partial := manifestForHash{
		Version: m.Version, CreatedAt: m.CreatedAt,
		SupplierRoot: m.SupplierRoot, UBORoot: m.UBORoot, CompanyCommitmentRoot: m.CompanyCommitmentRoot,
		Policy: m.Policy, Audit: m.Audit, Proof: m.Proof, TimeAnchor: m.TimeAnchor,
	}
	raw, err := json.Marshal(partial)
	if err != nil {
		return nil, caperr.Wrap(caperr.KindInputFormat, err, "marshal manifest")
	}
	return commitment.CanonicalizeJSON(raw)
}

// Hash returns the hex-encoded SHA3-256 of ToCanonicalJSON.
func (m *Manifest) Hash() (string, error) {
	canon, err := m.ToCanonicalJSON()
	if err != nil {
		return "", err
	}
	digest := capcrypto.SHA3256(canon)
	return capcrypto.HexLower(digest[:]), nil
}

// Save writes the full manifest (including signatures) as JSON to path.
func (m *Manifest) Save(path string) error {
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return caperr.Wrap(caperr.KindInputFormat, err, "marshal manifest")
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return caperr.Wrap(caperr.KindInputFormat, err, "write manifest")
	}
	return nil
}

// Load reads a manifest document from path.
func Load(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, caperr.Wrap(caperr.KindInputFormat, err, "read manifest")
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, caperr.Wrap(caperr.KindInputFormat, err, "parse manifest")
	}
	return &m, nil
}
