package registry

import (
	"path/filepath"
	"testing"
)

func backendContract(t *testing.T, b Backend) {
	t.Helper()
	defer b.Close()

	e1 := NewEntry("0xmanifest1", "0xproof1", "")
	e2 := NewEntry("0xmanifest2", "0xproof2", "")

	if err := b.AddEntry(e1); err != nil {
		t.Fatalf("AddEntry e1 failed: %v", err)
	}
	if err := b.AddEntry(e2); err != nil {
		t.Fatalf("AddEntry e2 failed: %v", err)
	}

	if err := b.AddEntry(e1); err == nil {
		t.Error("expected duplicate entry id to be rejected")
	}

	found, err := b.FindByHashes("0xmanifest1", "0xproof1")
	if err != nil {
		t.Fatalf("FindByHashes failed: %v", err)
	}
	if len(found) != 1 || found[0].ID != e1.ID {
		t.Errorf("expected to find e1, got %+v", found)
	}

	missing, err := b.FindByHashes("0xnope", "0xnope")
	if err != nil {
		t.Fatalf("FindByHashes failed: %v", err)
	}
	if len(missing) != 0 {
		t.Errorf("expected no match for unknown hashes, got %+v", missing)
	}

	all, err := b.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 entries, got %d", len(all))
	}
}

func TestJSONBackendContract(t *testing.T) {
	dir := t.TempDir()
	b, err := NewJSONBackend("registry", dir)
	if err != nil {
		t.Fatalf("NewJSONBackend failed: %v", err)
	}
	backendContract(t, b)
}

func TestSQLiteBackendContract(t *testing.T) {
	dir := t.TempDir()
	b, err := NewSQLiteBackend(filepath.Join(dir, "registry.db"))
	if err != nil {
		t.Fatalf("NewSQLiteBackend failed: %v", err)
	}
	backendContract(t, b)
}
