package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/capengine/cap-core/internal/commitment"
)

func sampleManifest(t *testing.T) *Manifest {
	t.Helper()
	c, err := commitment.BuildCommitments(
		[]commitment.Record{{"name": "Acme"}},
		[]commitment.Record{{"name": "Jane"}},
	)
	if err != nil {
		t.Fatalf("BuildCommitments failed: %v", err)
	}
	return New(c, PolicySummary{Name: "supply-chain", Version: "1.0.0", Hash: "0xabc"}, AuditSummary{TailDigest: "0x00", EventsCount: 0})
}

func TestHashExcludesSignatures(t *testing.T) {
	m := sampleManifest(t)
	h1, err := m.Hash()
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	m.Signatures = append(m.Signatures, Signature{KID: "abc", Signature: "sig"})
	h2, err := m.Hash()
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	if h1 != h2 {
		t.Errorf("manifest hash changed when only signatures were added")
	}
}

func TestSetTimeAnchorIdempotent(t *testing.T) {
	m := sampleManifest(t)
	if err := m.SetTimeAnchor("legacy", "ref1", "0xaa"); err != nil {
		t.Fatalf("first SetTimeAnchor failed: %v", err)
	}
	if err := m.SetTimeAnchor("legacy", "ref1", "0xaa"); err != nil {
		t.Errorf("idempotent re-call should not fail: %v", err)
	}
	if err := m.SetTimeAnchor("legacy", "ref2", "0xaa"); err == nil {
		t.Errorf("expected conflicting re-initialisation to fail")
	}
}

func TestSetPrivateAnchorRequiresInitialised(t *testing.T) {
	m := sampleManifest(t)
	if err := m.SetPrivateAnchor("0xaa"); err == nil {
		t.Errorf("expected failure when time_anchor uninitialised")
	}
}

func TestSetPrivateAnchorMismatchFails(t *testing.T) {
	m := sampleManifest(t)
	if err := m.SetTimeAnchor("dual", "ref", "0xaa"); err != nil {
		t.Fatalf("SetTimeAnchor failed: %v", err)
	}
	if err := m.SetPrivateAnchor("0xbb"); err == nil {
		t.Errorf("expected AnchorMismatch when tip differs")
	}
}

func TestValidateDualAnchor(t *testing.T) {
	m := sampleManifest(t)
	if err := m.SetTimeAnchor("dual", "ref", "0xaa"); err != nil {
		t.Fatalf("SetTimeAnchor failed: %v", err)
	}
	if err := m.SetPrivateAnchor("0xaa"); err != nil {
		t.Fatalf("SetPrivateAnchor failed: %v", err)
	}

	digest := "0x" + (func() string {
		s := ""
		for i := 0; i < 64; i++ {
			s += "a"
		}
		return s
	})()
	if err := m.SetPublicAnchor("ethereum", "0xdeadbeef", digest); err != nil {
		t.Fatalf("SetPublicAnchor failed: %v", err)
	}

	if err := m.ValidateDualAnchor(); err != nil {
		t.Errorf("expected valid dual anchor, got: %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	m := sampleManifest(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")

	if err := m.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	h1, _ := m.Hash()
	h2, _ := loaded.Hash()
	if h1 != h2 {
		t.Errorf("round-tripped manifest hash differs")
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected manifest file to exist: %v", err)
	}
}
