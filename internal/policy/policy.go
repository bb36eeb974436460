// Copyright 2025 Certen Protocol

// Package policy implements the policy IR (§4.3): typed rule trees,
// canonical-JSON-derived policy_hash, and IR lowering to ir_hash.
package policy

import (
	"encoding/json"

	"github.com/capengine/cap-core/internal/capcrypto"
	"github.com/capengine/cap-core/internal/caperr"
	"github.com/capengine/cap-core/internal/commitment"
)

// Op is one of the five recognised rule operators, each with a fixed cost
// weight used later by the orchestrator (§4.3 table).
type Op string

const (
	OpEq             Op = "eq"
	OpRangeMin       Op = "range_min"
	OpRangeMax       Op = "range_max"
	OpNonMembership  Op = "non_membership"
	OpThreshold      Op = "threshold"
)

// IsValid reports whether op is one of the five recognised operators.
func (o Op) IsValid() bool {
	switch o {
	case OpEq, OpRangeMin, OpRangeMax, OpNonMembership, OpThreshold:
		return true
	}
	return false
}

// Cost returns the fixed cost weight for op, or 0 for an unrecognised op.
func (o Op) Cost() int {
	switch o {
	case OpEq:
		return 1
	case OpRangeMin, OpRangeMax:
		return 2
	case OpNonMembership:
		return 10
	case OpThreshold:
		return 20
	}
	return 0
}

// Rule is one constraint in a policy's rule list.
type Rule struct {
	ID         string      `json:"id"`
	Op         Op          `json:"op"`
	LHS        interface{} `json:"lhs"`
	RHS        interface{} `json:"rhs"`
	LegalBasis string      `json:"legal_basis,omitempty"`
}

// Activation binds a predicate expression (see internal/orchestrator) to a
// set of rule ids it activates, per the adaptivity block.
type Activation struct {
	Predicate json.RawMessage `json:"predicate"`
	Rules     []string        `json:"rules"`
}

// Adaptivity is the optional adaptive-policy block.
type Adaptivity struct {
	Activations []Activation `json:"activations"`
}

// Policy is the top-level, identified policy document.
type Policy struct {
	PolicyID   string      `json:"policy_id"`
	Version    string      `json:"version"`
	Rules      []Rule      `json:"rules"`
	Adaptivity *Adaptivity `json:"adaptivity,omitempty"`
}

// LintMode controls how unrecognised ops / missing legal_basis are treated.
type LintMode string

const (
	LintStrict  LintMode = "strict"
	LintRelaxed LintMode = "relaxed"
)

// LintIssue describes a single lint finding.
type LintIssue struct {
	RuleID  string
	Message string
}

// Lint validates a policy's rule list under the given mode. In strict mode,
// unknown ops and missing legal_basis are fatal (returned as an error);
// in relaxed mode, they are returned as warnings without failing.
func Lint(p *Policy, mode LintMode) ([]LintIssue, error) {
	var issues []LintIssue
	for _, r := range p.Rules {
		if !r.Op.IsValid() {
			issue := LintIssue{RuleID: r.ID, Message: "unknown op: " + string(r.Op)}
			if mode == LintStrict {
				return nil, caperr.Newf(caperr.KindPolicyMismatch, "rule %s: unknown op %q", r.ID, r.Op)
			}
			issues = append(issues, issue)
		}
		if r.LegalBasis == "" {
			issue := LintIssue{RuleID: r.ID, Message: "missing legal_basis"}
			if mode == LintStrict {
				return nil, caperr.Newf(caperr.KindPolicyMismatch, "rule %s: missing legal_basis", r.ID)
			}
			issues = append(issues, issue)
		}
	}
	return issues, nil
}

// Hash computes policy_hash = SHA3-256(canonical_json(policy)).
func Hash(p *Policy) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", caperr.Wrap(caperr.KindInputFormat, err, "marshal policy")
	}
	canon, err := commitment.CanonicalizeJSON(raw)
	if err != nil {
		return "", caperr.Wrap(caperr.KindInputFormat, err, "canonicalize policy")
	}
	digest := capcrypto.SHA3256(canon)
	return capcrypto.HexLower(digest[:]), nil
}
