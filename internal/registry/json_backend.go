// Copyright 2025 Certen Protocol

package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/capengine/cap-core/internal/caperr"
	"github.com/capengine/cap-core/internal/metrics"
)

// JSONBackend stores registry entries as flat JSON files under dir/entries,
// with a single dir/index.json mapping manifest_hash|proof_hash to entry
// id. Writes go through writeFileAtomic (temp-file + fsync + rename, per
// spec's locking/transaction discipline) and are additionally serialised by
// an OS advisory lock, since two processes must not hold concurrent write
// access to the same registry.
type JSONBackend struct {
	mu         sync.Mutex
	dir        string
	entriesDir string
	indexPath  string
	lock       *flock.Flock
}

// NewJSONBackend opens (or creates) a flat-file JSON registry at dir.
func NewJSONBackend(name, dir string) (*JSONBackend, error) {
	entriesDir := filepath.Join(dir, "entries")
	if err := os.MkdirAll(entriesDir, 0o755); err != nil {
		return nil, caperr.Wrap(caperr.KindBackendUnavailable, err, "create registry directory")
	}
	return &JSONBackend{
		dir:        dir,
		entriesDir: entriesDir,
		indexPath:  filepath.Join(dir, "index.json"),
		lock:       flock.New(filepath.Join(dir, name+".lock")),
	}, nil
}

func (b *JSONBackend) entryPath(id string) string {
	return filepath.Join(b.entriesDir, id+".json")
}

// writeFileAtomic writes data to path via a temp file in the same
// directory, fsync, then rename — so a crash mid-write never leaves a
// partially-written file visible at path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return caperr.Wrap(caperr.KindBackendUnavailable, err, "create temp file")
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return caperr.Wrap(caperr.KindBackendUnavailable, err, "write temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return caperr.Wrap(caperr.KindBackendUnavailable, err, "fsync temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return caperr.Wrap(caperr.KindBackendUnavailable, err, "close temp file")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return caperr.Wrap(caperr.KindBackendUnavailable, err, "rename temp file into place")
	}
	return nil
}

func (b *JSONBackend) readIndex() (map[string]string, error) {
	raw, err := os.ReadFile(b.indexPath)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, caperr.Wrap(caperr.KindBackendUnavailable, err, "read registry index")
	}
	var idx map[string]string
	if err := json.Unmarshal(raw, &idx); err != nil {
		return nil, caperr.Wrap(caperr.KindInputFormat, err, "parse registry index")
	}
	return idx, nil
}

func (b *JSONBackend) writeIndex(idx map[string]string) error {
	raw, err := json.Marshal(idx)
	if err != nil {
		return caperr.Wrap(caperr.KindInputFormat, err, "marshal registry index")
	}
	return writeFileAtomic(b.indexPath, raw)
}

func indexKeyFor(manifestHash, proofHash string) string {
	return manifestHash + "|" + proofHash
}

// AddEntry writes e to entries/<id>.json and records it in index.json. The
// OS advisory lock is held for the whole read-check-write sequence so a
// second process (or a second JSONBackend handle) cannot interleave writes;
// the in-process mutex covers concurrent goroutines within this process,
// matching the SQLite backend's BEGIN IMMEDIATE serialisation.
func (b *JSONBackend) AddEntry(e *Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.lock.Lock(); err != nil {
		return caperr.Wrap(caperr.KindBackendUnavailable, err, "acquire registry lock")
	}
	defer b.lock.Unlock()

	if _, err := os.Stat(b.entryPath(e.ID)); err == nil {
		return caperr.Newf(caperr.KindIntegrityMismatch, "entry already registered: %s", e.ID)
	} else if !os.IsNotExist(err) {
		return caperr.Wrap(caperr.KindBackendUnavailable, err, "check existing entry")
	}

	raw, err := json.Marshal(e)
	if err != nil {
		return caperr.Wrap(caperr.KindInputFormat, err, "marshal entry")
	}
	if err := writeFileAtomic(b.entryPath(e.ID), raw); err != nil {
		return err
	}

	idx, err := b.readIndex()
	if err != nil {
		return err
	}
	idx[indexKeyFor(e.ManifestHash, e.ProofHash)] = e.ID
	if err := b.writeIndex(idx); err != nil {
		return err
	}

	metrics.RegistryWrites.WithLabelValues("json").Inc()
	return nil
}

// FindByHashes returns entries matching the given manifest hash and proof
// hash (both must match; a registry entry is keyed on the pair).
func (b *JSONBackend) FindByHashes(manifestHash, proofHash string) ([]*Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx, err := b.readIndex()
	if err != nil {
		return nil, err
	}
	id, ok := idx[indexKeyFor(manifestHash, proofHash)]
	if !ok {
		return nil, nil
	}

	raw, err := os.ReadFile(b.entryPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, caperr.Wrap(caperr.KindBackendUnavailable, err, "read entry")
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, caperr.Wrap(caperr.KindInputFormat, err, "parse entry")
	}
	return []*Entry{&e}, nil
}

// List iterates every entry file under entries/. Entries come back in
// file-name order, as os.ReadDir returns them.
func (b *JSONBackend) List() ([]*Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	dirEntries, err := os.ReadDir(b.entriesDir)
	if err != nil {
		return nil, caperr.Wrap(caperr.KindBackendUnavailable, err, "read entries directory")
	}
	var out []*Entry
	for _, de := range dirEntries {
		if de.IsDir() || filepath.Ext(de.Name()) != ".json" {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(b.entriesDir, de.Name()))
		if err != nil {
			return nil, caperr.Wrap(caperr.KindBackendUnavailable, err, "read entry file")
		}
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, caperr.Wrap(caperr.KindInputFormat, err, "parse entry")
		}
		out = append(out, &e)
	}
	return out, nil
}

// Close releases the backend's advisory lock handle. The lock itself is
// only held transiently during AddEntry (FindByHashes and List take only
// the in-process mutex), so Close never blocks on pending work.
func (b *JSONBackend) Close() error {
	return b.lock.Close()
}
