package commitment

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/capengine/cap-core/internal/capcrypto"
)

func sampleSuppliers() []Record {
	return []Record{
		{"name": "Acme Corp", "country": "DE"},
		{"name": "Globex", "country": "US"},
	}
}

func TestBuildCommitmentsDeterministic(t *testing.T) {
	suppliers := sampleSuppliers()
	ubos := []Record{{"name": "Jane Doe"}}

	c1, err := BuildCommitments(suppliers, ubos)
	if err != nil {
		t.Fatalf("BuildCommitments failed: %v", err)
	}
	c2, err := BuildCommitments(suppliers, ubos)
	if err != nil {
		t.Fatalf("BuildCommitments failed: %v", err)
	}

	if !bytes.Equal(c1.SupplierRoot, c2.SupplierRoot) {
		t.Errorf("supplier root not deterministic")
	}
	if !bytes.Equal(c1.CompanyCommitmentRoot, c2.CompanyCommitmentRoot) {
		t.Errorf("company commitment root not deterministic")
	}
}

func TestBuildCommitmentsPermutationInvariant(t *testing.T) {
	suppliers := sampleSuppliers()
	reversed := []Record{suppliers[1], suppliers[0]}

	c1, err := BuildCommitments(suppliers, nil)
	if err != nil {
		t.Fatalf("BuildCommitments failed: %v", err)
	}
	c2, err := BuildCommitments(reversed, nil)
	if err != nil {
		t.Fatalf("BuildCommitments failed: %v", err)
	}

	if !bytes.Equal(c1.SupplierRoot, c2.SupplierRoot) {
		t.Errorf("reordering rows changed the root")
	}
}

func TestBuildCommitmentsCompanyRootBindsBoth(t *testing.T) {
	c, err := BuildCommitments(sampleSuppliers(), []Record{{"name": "Jane Doe"}})
	if err != nil {
		t.Fatalf("BuildCommitments failed: %v", err)
	}

	cNoUBO, err := BuildCommitments(sampleSuppliers(), nil)
	if err != nil {
		t.Fatalf("BuildCommitments failed: %v", err)
	}

	if bytes.Equal(c.CompanyCommitmentRoot, cNoUBO.CompanyCommitmentRoot) {
		t.Errorf("company commitment root should change when UBO set changes")
	}
}

func TestBuildCommitmentsEmptyInputsYieldZeroRoots(t *testing.T) {
	c, err := BuildCommitments(nil, nil)
	if err != nil {
		t.Fatalf("BuildCommitments failed: %v", err)
	}
	zero := make([]byte, 32)
	if !bytes.Equal(c.SupplierRoot, zero) || !bytes.Equal(c.UBORoot, zero) {
		t.Errorf("expected zero roots for empty input")
	}
	if c.SupplierCount != 0 || c.UBOCount != 0 {
		t.Errorf("expected zero counts")
	}
}

func TestMerkleInclusionProofRoundTrip(t *testing.T) {
	leaves := [][]byte{
		mustHash("a"), mustHash("b"), mustHash("c"),
	}
	tree, err := BuildTree(leaves)
	if err != nil {
		t.Fatalf("BuildTree failed: %v", err)
	}

	for i := 0; i < tree.LeafCount(); i++ {
		proof, err := tree.GenerateProof(i)
		if err != nil {
			t.Fatalf("GenerateProof(%d) failed: %v", i, err)
		}
		leafBytes, _ := hex.DecodeString(proof.LeafHash)
		rootBytes, _ := hex.DecodeString(proof.MerkleRoot)

		ok, err := VerifyProof(leafBytes, proof, rootBytes)
		if err != nil {
			t.Fatalf("VerifyProof failed: %v", err)
		}
		if !ok {
			t.Errorf("expected proof for leaf %d to verify", i)
		}
	}
}

func mustHash(s string) []byte {
	h := capcrypto.SHA3256([]byte(s))
	return h[:]
}
