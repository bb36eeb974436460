// Copyright 2025 Certen Protocol
package proofengine

import (
	"bytes"
	"encoding/base64"
	"encoding/json"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"

	"github.com/capengine/cap-core/internal/caperr"
)

// passCountCircuit proves knowledge of a private per-constraint pass count
// equal to a publicly declared total, without revealing which individual
// constraints passed. It is a deliberately simplified stand-in for a full
// constraint-satisfaction circuit (§4.5's "future ZK" backend slot).
type passCountCircuit struct {
	PassCount frontend.Variable `gnark:",secret"`
	Total     frontend.Variable `gnark:",public"`
}

func (c *passCountCircuit) Define(api frontend.API) error {
	api.AssertIsEqual(c.PassCount, c.Total)
	return nil
}

// zkProofData is the opaque payload shape for the zk-simplified backend:
// the serialised Groth16 proof and verifying key, plus the public inputs
// replicated in cleartext (§4.5: "ZK backends ... replicated in cleartext").
type zkProofData struct {
	Proof        string         `json:"proof"`
	VerifyingKey string         `json:"verifying_key"`
	PublicInputs map[string]int `json:"public_inputs"`
}

// ZKSimplifiedBackend wires the pluggable backend contract to a minimal
// Groth16/BN254 circuit via gnark.
type ZKSimplifiedBackend struct{}

func (ZKSimplifiedBackend) Name() string { return "zk-simplified" }

func (ZKSimplifiedBackend) Prove(stmt Statement, w Witness) (*Proof, error) {
	checked := make([]CheckedConstraint, 0, len(stmt.Rules))
	passCount := 0
	for _, r := range stmt.Rules {
		c, err := evaluateConstraint(r, w)
		if err != nil {
			return nil, err
		}
		checked = append(checked, c)
		if c.OK {
			passCount++
		}
	}
	total := len(checked)

	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, &passCountCircuit{})
	if err != nil {
		return nil, caperr.Wrap(caperr.KindPolicyMismatch, err, "compile zk-simplified circuit")
	}
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, caperr.Wrap(caperr.KindPolicyMismatch, err, "setup zk-simplified circuit")
	}

	assignment := &passCountCircuit{PassCount: passCount, Total: total}
	fullWitness, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, caperr.Wrap(caperr.KindPolicyMismatch, err, "assign zk-simplified witness")
	}

	gProof, err := groth16.Prove(ccs, pk, fullWitness)
	if err != nil {
		return nil, caperr.Newf(caperr.KindPolicyMismatch, "zk-simplified prove failed (pass_count=%d, total=%d): %v", passCount, total, err)
	}

	var proofBuf, vkBuf bytes.Buffer
	if _, err := gProof.WriteTo(&proofBuf); err != nil {
		return nil, caperr.Wrap(caperr.KindPolicyMismatch, err, "serialise zk-simplified proof")
	}
	if _, err := vk.WriteTo(&vkBuf); err != nil {
		return nil, caperr.Wrap(caperr.KindPolicyMismatch, err, "serialise zk-simplified verifying key")
	}

	proofData, err := json.Marshal(zkProofData{
		Proof:        base64.StdEncoding.EncodeToString(proofBuf.Bytes()),
		VerifyingKey: base64.StdEncoding.EncodeToString(vkBuf.Bytes()),
		PublicInputs: map[string]int{"total": total},
	})
	if err != nil {
		return nil, caperr.Wrap(caperr.KindInputFormat, err, "marshal zk-simplified proof_data")
	}

	return &Proof{
		Version:      "1.0",
		Type:         "zk-simplified",
		Statement:    "policy:" + stmt.PolicyID,
		ManifestHash: stmt.ManifestHash,
		PolicyHash:   stmt.PolicyHash,
		ProofData:    proofData,
		Status:       foldStatus(checked),
	}, nil
}

// Verify re-derives the public witness from the proof's "total" public
// input (the declared status is not read), then checks the Groth16 proof against the embedded
// verifying key. It cannot recompute PassCount (that stayed private) —
// consistent with status "ok" requiring pass_count == total, it verifies
// exactly that claim.
func (ZKSimplifiedBackend) Verify(p *Proof) (bool, error) {
	var data zkProofData
	if err := json.Unmarshal(p.ProofData, &data); err != nil {
		return false, caperr.Wrap(caperr.KindInputFormat, err, "parse zk-simplified proof_data")
	}

	proofBytes, err := base64.StdEncoding.DecodeString(data.Proof)
	if err != nil {
		return false, caperr.Wrap(caperr.KindInputFormat, err, "decode zk-simplified proof")
	}
	vkBytes, err := base64.StdEncoding.DecodeString(data.VerifyingKey)
	if err != nil {
		return false, caperr.Wrap(caperr.KindInputFormat, err, "decode zk-simplified verifying key")
	}

	gProof := groth16.NewProof(ecc.BN254)
	if _, err := gProof.ReadFrom(bytes.NewReader(proofBytes)); err != nil {
		return false, caperr.Wrap(caperr.KindInputFormat, err, "deserialise zk-simplified proof")
	}
	vk := groth16.NewVerifyingKey(ecc.BN254)
	if _, err := vk.ReadFrom(bytes.NewReader(vkBytes)); err != nil {
		return false, caperr.Wrap(caperr.KindInputFormat, err, "deserialise zk-simplified verifying key")
	}

	total, ok := data.PublicInputs["total"]
	if !ok {
		return false, caperr.New(caperr.KindInputFormat, "zk-simplified proof_data missing total public input")
	}
	assignment := &passCountCircuit{PassCount: total, Total: total}
	publicWitness, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return false, caperr.Wrap(caperr.KindInputFormat, err, "build zk-simplified public witness")
	}

	if err := groth16.Verify(gProof, vk, publicWitness); err != nil {
		return false, nil
	}
	return true, nil
}
