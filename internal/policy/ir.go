// Copyright 2025 Certen Protocol

package policy

import (
	"encoding/json"

	"github.com/capengine/cap-core/internal/capcrypto"
	"github.com/capengine/cap-core/internal/caperr"
	"github.com/capengine/cap-core/internal/commitment"
)

// IRVersion is the fixed IR schema tag.
const IRVersion = 1

// IR is the lowered, canonical intermediate representation of a policy.
// ir_hash is a deterministic function of policy_hash and the reduction
// rules; two compilations of the same policy yield identical IR bytes.
type IR struct {
	IRVersion  int         `json:"ir_version"`
	PolicyID   string      `json:"policy_id"`
	PolicyHash string      `json:"policy_hash"`
	Rules      []Rule      `json:"rules"`
	Adaptivity *Adaptivity `json:"adaptivity,omitempty"`
	IRHash     string      `json:"ir_hash"`
}

// irForHash is IR without IRHash, used to compute the hash input.
type irForHash struct {
	IRVersion  int         `json:"ir_version"`
	PolicyID   string      `json:"policy_id"`
	PolicyHash string      `json:"policy_hash"`
	Rules      []Rule      `json:"rules"`
	Adaptivity *Adaptivity `json:"adaptivity,omitempty"`
}

// Compile lowers a policy into its IR, computing policy_hash (if not already
// known) and ir_hash. policy_hash never changes across reductions.
func Compile(p *Policy) (*IR, error) {
	policyHash, err := Hash(p)
	if err != nil {
		return nil, err
	}

	partial := irForHash{
		IRVersion:  IRVersion,
		PolicyID:   p.PolicyID,
		PolicyHash: policyHash,
		Rules:      p.Rules,
		Adaptivity: p.Adaptivity,
	}

	raw, err := json.Marshal(partial)
	if err != nil {
		return nil, caperr.Wrap(caperr.KindInputFormat, err, "marshal ir")
	}
	canon, err := commitment.CanonicalizeJSON(raw)
	if err != nil {
		return nil, caperr.Wrap(caperr.KindInputFormat, err, "canonicalize ir")
	}
	digest := capcrypto.SHA3256(canon)

	return &IR{
		IRVersion:  IRVersion,
		PolicyID:   p.PolicyID,
		PolicyHash: policyHash,
		Rules:      p.Rules,
		Adaptivity: p.Adaptivity,
		IRHash:     capcrypto.HexLower(digest[:]),
	}, nil
}
