package bundle

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp file failed: %v", err)
	}
	return path
}

func TestPackAndCheckSelfConsistency(t *testing.T) {
	srcDir := t.TempDir()
	manifestSrc := writeTemp(t, srcDir, "manifest.json", `{"hello":"manifest"}`)
	proofSrc := writeTemp(t, srcDir, "proof.capz", `{"hello":"proof"}`)

	bundleDir := filepath.Join(t.TempDir(), "bundle")
	packer, err := NewPacker(bundleDir)
	if err != nil {
		t.Fatalf("NewPacker failed: %v", err)
	}

	units := []ProofUnit{
		{ID: "u1", ManifestFile: "manifest.json", ProofFile: "proof.capz", PolicyID: "policy.a", Backend: "mock"},
	}
	sources := []SourceFile{
		{Name: "manifest.json", SourcePath: manifestSrc, Role: "manifest"},
		{Name: "proof.capz", SourcePath: proofSrc, Role: "proof"},
	}

	meta, err := packer.Pack("", sources, units)
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	if meta.Schema != SchemaTag {
		t.Errorf("expected schema %s, got %s", SchemaTag, meta.Schema)
	}
	if len(meta.Files) != 2 {
		t.Errorf("expected 2 files, got %d", len(meta.Files))
	}

	loaded, err := CheckSelfConsistency(bundleDir)
	if err != nil {
		t.Fatalf("CheckSelfConsistency failed: %v", err)
	}
	if loaded.BundleID != meta.BundleID {
		t.Errorf("expected bundle id %s, got %s", meta.BundleID, loaded.BundleID)
	}
}

func TestPackRejectsAbsolutePath(t *testing.T) {
	srcDir := t.TempDir()
	manifestSrc := writeTemp(t, srcDir, "manifest.json", `{}`)
	bundleDir := filepath.Join(t.TempDir(), "bundle")
	packer, err := NewPacker(bundleDir)
	if err != nil {
		t.Fatalf("NewPacker failed: %v", err)
	}

	_, err = packer.Pack("", []SourceFile{{Name: "/etc/passwd", SourcePath: manifestSrc}}, nil)
	if err == nil {
		t.Error("expected absolute path to be rejected")
	}
}

func TestPackRejectsParentDirComponent(t *testing.T) {
	srcDir := t.TempDir()
	manifestSrc := writeTemp(t, srcDir, "manifest.json", `{}`)
	bundleDir := filepath.Join(t.TempDir(), "bundle")
	packer, err := NewPacker(bundleDir)
	if err != nil {
		t.Fatalf("NewPacker failed: %v", err)
	}

	_, err = packer.Pack("", []SourceFile{{Name: "../escape.json", SourcePath: manifestSrc}}, nil)
	if err == nil {
		t.Error("expected parent-directory component to be rejected")
	}
}

func TestCheckSelfConsistencyDetectsTamper(t *testing.T) {
	srcDir := t.TempDir()
	manifestSrc := writeTemp(t, srcDir, "manifest.json", `{"a":1}`)
	bundleDir := filepath.Join(t.TempDir(), "bundle")
	packer, err := NewPacker(bundleDir)
	if err != nil {
		t.Fatalf("NewPacker failed: %v", err)
	}
	if _, err := packer.Pack("", []SourceFile{{Name: "manifest.json", SourcePath: manifestSrc}}, nil); err != nil {
		t.Fatalf("Pack failed: %v", err)
	}

	if err := os.WriteFile(filepath.Join(bundleDir, "manifest.json"), []byte(`{"a":2}`), 0o644); err != nil {
		t.Fatalf("tamper write failed: %v", err)
	}

	if _, err := CheckSelfConsistency(bundleDir); err == nil {
		t.Error("expected tampered bundle to fail self-consistency check")
	}
}
