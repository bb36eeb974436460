// Copyright 2025 Certen Protocol
package proofengine

import "encoding/json"

// MockBackend is the reference proof backend (§4.5): it evaluates each rule
// directly against the witness and reports the result in cleartext.
type MockBackend struct{}

func (MockBackend) Name() string { return "mock" }

func (MockBackend) Prove(stmt Statement, w Witness) (*Proof, error) {
	checked := make([]CheckedConstraint, 0, len(stmt.Rules))
	for _, r := range stmt.Rules {
		c, err := evaluateConstraint(r, w)
		if err != nil {
			return nil, err
		}
		checked = append(checked, c)
	}

	proofData, err := json.Marshal(struct {
		CheckedConstraints []CheckedConstraint `json:"checked_constraints"`
	}{CheckedConstraints: checked})
	if err != nil {
		return nil, err
	}

	return &Proof{
		Version:      "1.0",
		Type:         "mock",
		Statement:    "policy:" + stmt.PolicyID,
		ManifestHash: stmt.ManifestHash,
		PolicyHash:   stmt.PolicyHash,
		ProofData:    proofData,
		Status:       foldStatus(checked),
	}, nil
}

func (MockBackend) Verify(p *Proof) (bool, error) {
	var data struct {
		CheckedConstraints []CheckedConstraint `json:"checked_constraints"`
	}
	if err := json.Unmarshal(p.ProofData, &data); err != nil {
		return false, err
	}
	if p.Status != foldStatus(data.CheckedConstraints) {
		return false, nil
	}
	return p.Status == "ok", nil
}
