// Copyright 2025 Certen Protocol

// Package proofengine evaluates policy constraints against commitment
// witnesses and emits backend-agnostic proof objects (§4.5): per-constraint
// {name, ok} records folded into an aggregate status, behind a pluggable
// backend capability set.
package proofengine

import (
	"encoding/json"
	"fmt"

	"github.com/capengine/cap-core/internal/capcrypto"
	"github.com/capengine/cap-core/internal/caperr"
	"github.com/capengine/cap-core/internal/commitment"
	"github.com/capengine/cap-core/internal/manifest"
	"github.com/capengine/cap-core/internal/policy"
)

// Witness is the evaluation context a statement's constraints run against:
// the commitment roots/counts plus any extra named variables a rule's LHS
// may reference.
type Witness struct {
	SupplierRoot          string
	UBORoot               string
	CompanyCommitmentRoot string
	SupplierCount         int
	UBOCount              int
	Variables             map[string]interface{}
}

// WitnessFromCommitments builds a Witness from a commitment set.
func WitnessFromCommitments(c *commitment.Commitments) Witness {
	return Witness{
		SupplierRoot:          capcrypto.HexLower(c.SupplierRoot),
		UBORoot:               capcrypto.HexLower(c.UBORoot),
		CompanyCommitmentRoot: capcrypto.HexLower(c.CompanyCommitmentRoot),
		SupplierCount:         c.SupplierCount,
		UBOCount:              c.UBOCount,
	}
}

func (w Witness) field(name string) (interface{}, bool) {
	switch name {
	case "supplier_root":
		return w.SupplierRoot, true
	case "ubo_root":
		return w.UBORoot, true
	case "company_commitment_root":
		return w.CompanyCommitmentRoot, true
	case "supplier_count":
		return float64(w.SupplierCount), true
	case "ubo_count":
		return float64(w.UBOCount), true
	default:
		v, ok := w.Variables[name]
		return v, ok
	}
}

// resolveOperand treats a string operand as a witness field reference when
// one exists under that name, and as a literal otherwise.
func (w Witness) resolveOperand(operand interface{}) interface{} {
	if name, ok := operand.(string); ok {
		if v, found := w.field(name); found {
			return v
		}
	}
	return operand
}

// Statement is a policy bound to a manifest, the unit a backend proves
// against.
type Statement struct {
	PolicyID     string
	PolicyHash   string
	ManifestHash string
	Rules        []policy.Rule
}

// CheckedConstraint is one evaluated rule result.
type CheckedConstraint struct {
	Name string `json:"name"`
	OK   bool   `json:"ok"`
}

// Proof is the backend-agnostic proof object (§3 data model).
type Proof struct {
	Version      string          `json:"version"`
	Type         string          `json:"type"`
	Statement    string          `json:"statement"`
	ManifestHash string          `json:"manifest_hash"`
	PolicyHash   string          `json:"policy_hash"`
	ProofData    json.RawMessage `json:"proof_data"`
	Status       string          `json:"status"`
}

// Backend is the pluggable proving/verification capability set (§4.5).
type Backend interface {
	Name() string
	Prove(stmt Statement, w Witness) (*Proof, error)
	Verify(p *Proof) (bool, error)
}

// evaluateConstraint applies a single rule's operator to its resolved
// operands.
func evaluateConstraint(r policy.Rule, w Witness) (CheckedConstraint, error) {
	lhs := w.resolveOperand(r.LHS)

	switch r.Op {
	case policy.OpEq:
		rhs := w.resolveOperand(r.RHS)
		return CheckedConstraint{Name: r.ID, OK: fmt.Sprint(lhs) == fmt.Sprint(rhs)}, nil
	case policy.OpRangeMin, policy.OpThreshold:
		lf, rf, err := asFloats(lhs, w.resolveOperand(r.RHS))
		if err != nil {
			return CheckedConstraint{}, wrapConstraintErr(r.ID, err)
		}
		return CheckedConstraint{Name: r.ID, OK: lf >= rf}, nil
	case policy.OpRangeMax:
		lf, rf, err := asFloats(lhs, w.resolveOperand(r.RHS))
		if err != nil {
			return CheckedConstraint{}, wrapConstraintErr(r.ID, err)
		}
		return CheckedConstraint{Name: r.ID, OK: lf <= rf}, nil
	case policy.OpNonMembership:
		set, ok := r.RHS.([]interface{})
		if !ok {
			return CheckedConstraint{}, caperr.Newf(caperr.KindPolicyMismatch, "rule %s: non_membership rhs must be a list", r.ID)
		}
		for _, member := range set {
			if fmt.Sprint(lhs) == fmt.Sprint(member) {
				return CheckedConstraint{Name: r.ID, OK: false}, nil
			}
		}
		return CheckedConstraint{Name: r.ID, OK: true}, nil
	default:
		return CheckedConstraint{}, caperr.Newf(caperr.KindPolicyMismatch, "rule %s: unknown op %q", r.ID, r.Op)
	}
}

func wrapConstraintErr(ruleID string, err error) error {
	return caperr.Wrap(caperr.KindPolicyMismatch, err, "rule "+ruleID+": operand type mismatch")
}

func asFloats(lhs, rhs interface{}) (float64, float64, error) {
	lf, lok := toFloat(lhs)
	rf, rok := toFloat(rhs)
	if !lok || !rok {
		return 0, 0, fmt.Errorf("operands must be numeric, got %T and %T", lhs, rhs)
	}
	return lf, rf, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// foldStatus is "ok" iff every constraint passed, else "fail".
func foldStatus(checked []CheckedConstraint) string {
	for _, c := range checked {
		if !c.OK {
			return "fail"
		}
	}
	return "ok"
}

// VerifyProof checks a proof against the manifest it claims to attest to
// (§4.5): manifest_hash agreement, policy_hash agreement, aggregate status,
// and that every constituent constraint is ok. Returns the name of the
// first offending constraint on failure.
func VerifyProof(p *Proof, m *manifest.Manifest) error {
	manifestHash, err := m.Hash()
	if err != nil {
		return err
	}
	if p.ManifestHash != manifestHash {
		return caperr.Newf(caperr.KindIntegrityMismatch, "proof manifest_hash %s does not match manifest hash %s", p.ManifestHash, manifestHash)
	}
	if p.PolicyHash != m.Policy.Hash {
		return caperr.Newf(caperr.KindPolicyMismatch, "proof policy_hash %s does not match manifest policy hash %s", p.PolicyHash, m.Policy.Hash)
	}
	if p.Status != "ok" {
		return caperr.Newf(caperr.KindPolicyMismatch, "proof status is %q, not ok", p.Status)
	}

	if p.Type == "mock" {
		var data struct {
			CheckedConstraints []CheckedConstraint `json:"checked_constraints"`
		}
		if err := json.Unmarshal(p.ProofData, &data); err != nil {
			return caperr.Wrap(caperr.KindInputFormat, err, "parse mock proof_data")
		}
		for _, c := range data.CheckedConstraints {
			if !c.OK {
				return caperr.Newf(caperr.KindPolicyMismatch, "constraint %s did not pass", c.Name)
			}
		}
	}
	return nil
}
