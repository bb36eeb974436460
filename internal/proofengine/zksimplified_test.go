package proofengine

import "testing"

func TestZKSimplifiedBackendName(t *testing.T) {
	if (ZKSimplifiedBackend{}).Name() != "zk-simplified" {
		t.Error("expected backend name zk-simplified")
	}
}

func TestZKSimplifiedBackendProveAndVerify(t *testing.T) {
	stmt, w := sampleStatement()
	backend := ZKSimplifiedBackend{}

	proof, err := backend.Prove(stmt, w)
	if err != nil {
		t.Fatalf("Prove failed: %v", err)
	}
	if proof.Status != "ok" {
		t.Fatalf("expected status ok, got %s", proof.Status)
	}

	ok, err := backend.Verify(proof)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !ok {
		t.Error("expected zk-simplified verification to succeed for a genuine proof")
	}
}
