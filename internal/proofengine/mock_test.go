package proofengine

import (
	"testing"

	"github.com/capengine/cap-core/internal/commitment"
	"github.com/capengine/cap-core/internal/manifest"
	"github.com/capengine/cap-core/internal/policy"
)

func sampleStatement() (Statement, Witness) {
	c := &commitment.Commitments{
		SupplierRoot: make([]byte, 32),
		UBORoot:      make([]byte, 32),
		SupplierCount: 5,
		UBOCount:      2,
	}
	w := WitnessFromCommitments(c)
	stmt := Statement{
		PolicyID:     "policy.sample",
		PolicyHash:   "0xpolicyhash",
		ManifestHash: "0xmanifesthash",
		Rules: []policy.Rule{
			{ID: "r-supplier-count", Op: policy.OpRangeMin, LHS: "supplier_count", RHS: float64(1), LegalBasis: "art6"},
			{ID: "r-ubo-eq", Op: policy.OpEq, LHS: "ubo_count", RHS: float64(2), LegalBasis: "art6"},
		},
	}
	return stmt, w
}

func TestMockBackendProveAllPass(t *testing.T) {
	stmt, w := sampleStatement()
	backend := MockBackend{}

	proof, err := backend.Prove(stmt, w)
	if err != nil {
		t.Fatalf("Prove failed: %v", err)
	}
	if proof.Status != "ok" {
		t.Errorf("expected status ok, got %s", proof.Status)
	}
	ok, err := backend.Verify(proof)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !ok {
		t.Error("expected backend verification to succeed")
	}
}

func TestMockBackendProveDetectsFailure(t *testing.T) {
	stmt, w := sampleStatement()
	stmt.Rules = append(stmt.Rules, policy.Rule{ID: "r-impossible", Op: policy.OpEq, LHS: "ubo_count", RHS: float64(99), LegalBasis: "art6"})
	backend := MockBackend{}

	proof, err := backend.Prove(stmt, w)
	if err != nil {
		t.Fatalf("Prove failed: %v", err)
	}
	if proof.Status != "fail" {
		t.Errorf("expected status fail, got %s", proof.Status)
	}
}

func TestMockBackendNonMembership(t *testing.T) {
	stmt, w := sampleStatement()
	stmt.Rules = []policy.Rule{
		{ID: "r-non-member", Op: policy.OpNonMembership, LHS: "ubo_count", RHS: []interface{}{float64(99), float64(100)}, LegalBasis: "art6"},
	}
	backend := MockBackend{}

	proof, err := backend.Prove(stmt, w)
	if err != nil {
		t.Fatalf("Prove failed: %v", err)
	}
	if proof.Status != "ok" {
		t.Errorf("expected non_membership to pass, got %s", proof.Status)
	}
}

func buildManifestForProof(t *testing.T, policyHash string) (*manifest.Manifest, string) {
	t.Helper()
	c := &commitment.Commitments{SupplierRoot: make([]byte, 32), UBORoot: make([]byte, 32)}
	m := manifest.New(c, manifest.PolicySummary{Name: "p", Version: "1", Hash: policyHash}, manifest.AuditSummary{})
	hash, err := m.Hash()
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	return m, hash
}

func TestVerifyProofAcceptsMatchingProof(t *testing.T) {
	m, manifestHash := buildManifestForProof(t, "0xpolicyhash")
	proof := &Proof{
		ManifestHash: manifestHash,
		PolicyHash:   "0xpolicyhash",
		Status:       "ok",
		Type:         "mock",
		ProofData:    []byte(`{"checked_constraints":[{"name":"r1","ok":true}]}`),
	}
	if err := VerifyProof(proof, m); err != nil {
		t.Errorf("expected matching proof to verify, got %v", err)
	}
}

func TestVerifyProofRejectsManifestHashMismatch(t *testing.T) {
	m, _ := buildManifestForProof(t, "0xpolicyhash")
	proof := &Proof{
		ManifestHash: "0xwrong",
		PolicyHash:   "0xpolicyhash",
		Status:       "ok",
		Type:         "mock",
		ProofData:    []byte(`{"checked_constraints":[]}`),
	}
	if err := VerifyProof(proof, m); err == nil {
		t.Error("expected manifest hash mismatch to fail verification")
	}
}

func TestVerifyProofRejectsFailingConstraint(t *testing.T) {
	m, manifestHash := buildManifestForProof(t, "0xpolicyhash")
	proof := &Proof{
		ManifestHash: manifestHash,
		PolicyHash:   "0xpolicyhash",
		Status:       "ok",
		Type:         "mock",
		ProofData:    []byte(`{"checked_constraints":[{"name":"r1","ok":false}]}`),
	}
	if err := VerifyProof(proof, m); err == nil {
		t.Error("expected a failing constraint inside an ok-status proof to fail verification")
	}
}
