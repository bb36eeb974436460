// Copyright 2025 Certen Protocol

// Package audit implements the tamper-evident, append-only JSONL hash chain
// (§4.6). Grounded on pkg/ledger/store.go's append-only, single-writer
// discipline and original_source/agent/src/audit/hash_chain.rs's event shape.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/capengine/cap-core/internal/capcrypto"
	"github.com/capengine/cap-core/internal/caperr"
	"github.com/capengine/cap-core/internal/commitment"
	"github.com/capengine/cap-core/internal/metrics"
)

// Result is the outcome tag recorded on an audit event.
type Result string

const (
	ResultOK   Result = "OK"
	ResultWarn Result = "WARN"
	ResultFail Result = "FAIL"
)

// GenesisHash is the prev_hash of the first event in any chain: 64 zero hex
// characters with a 0x prefix.
const GenesisHash = "0x" + "0000000000000000000000000000000000000000000000000000000000000000"[:64]

// Event is the V2 canonical audit record. V1 additionally carries Seq and
// Details; the reader accepts both, discriminating by field presence.
type Event struct {
	Ts           string  `json:"ts"`
	Event        string  `json:"event"`
	PolicyID     string  `json:"policy_id,omitempty"`
	IRHash       string  `json:"ir_hash,omitempty"`
	ManifestHash string  `json:"manifest_hash,omitempty"`
	Result       Result  `json:"result,omitempty"`
	RunID        string  `json:"run_id,omitempty"`
	PrevHash     string  `json:"prev_hash"`
	SelfHash     string  `json:"self_hash"`

	// V1 legacy fields.
	Seq     *int                   `json:"seq,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// IsV1 reports whether this event carries the legacy seq field.
func (e *Event) IsV1() bool { return e.Seq != nil }

// eventForHash is Event without SelfHash, the canonical hash input. Field
// order here matches the on-disk struct tag order, mirroring the original's
// CanonicalEvent helper struct.
type eventForHash struct {
	Ts           string                 `json:"ts"`
	Event        string                 `json:"event"`
	PolicyID     string                 `json:"policy_id,omitempty"`
	IRHash       string                 `json:"ir_hash,omitempty"`
	ManifestHash string                 `json:"manifest_hash,omitempty"`
	Result       Result                 `json:"result,omitempty"`
	RunID        string                 `json:"run_id,omitempty"`
	PrevHash     string                 `json:"prev_hash"`
	Seq          *int                   `json:"seq,omitempty"`
	Details      map[string]interface{} `json:"details,omitempty"`
}

// computeSelfHash returns self_hash = SHA3-256(canonical_json(event - self_hash)).
func computeSelfHash(e *Event) (string, error) {
	partial := eventForHash{
		Ts: e.Ts, Event: e.Event, PolicyID: e.PolicyID, IRHash: e.IRHash,
		ManifestHash: e.ManifestHash, Result: e.Result, RunID: e.RunID,
		PrevHash: e.PrevHash, Seq: e.Seq, Details: e.Details,
	}
	raw, err := json.Marshal(partial)
	if err != nil {
		return "", caperr.Wrap(caperr.KindInputFormat, err, "marshal audit event")
	}
	canon, err := commitment.CanonicalizeJSON(raw)
	if err != nil {
		return "", caperr.Wrap(caperr.KindInputFormat, err, "canonicalize audit event")
	}
	digest := capcrypto.SHA3256(canon)
	return capcrypto.HexLower(digest[:]), nil
}

// VerifySelfHash reports whether e.SelfHash matches its recomputed value.
func (e *Event) VerifySelfHash() (bool, error) {
	computed, err := computeSelfHash(e)
	if err != nil {
		return false, err
	}
	return computed == e.SelfHash, nil
}

// Chain manages a single JSONL-backed audit log. Single-writer per file, per
// §5's ordering guarantee: two concurrent appends MUST still produce a
// linear prev_hash/self_hash order, so callers serialise via the mutex below
// rather than relying on OS-level file locking alone.
type Chain struct {
	mu       sync.Mutex
	path     string
	tailHash string
	length   int
	mirror   Mirror
}

// Mirror is an optional best-effort secondary sink for audit events (e.g. the
// Firestore mirror), never on the critical path: a mirror failure is logged,
// not propagated, because the JSONL file remains the source of truth.
type Mirror interface {
	Record(e *Event)
}

// Open creates or opens a JSONL-backed chain at path, restoring tail_hash
// from the last line if the file already exists.
func Open(path string, mirror Mirror) (*Chain, error) {
	tail := GenesisHash
	length := 0
	if _, err := os.Stat(path); err == nil {
		last, count, err := readLastHash(path)
		if err != nil {
			return nil, err
		}
		tail, length = last, count
	}
	metrics.AuditChainLength.WithLabelValues(path).Set(float64(length))
	return &Chain{path: path, tailHash: tail, length: length, mirror: mirror}, nil
}

func readLastHash(path string) (string, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, caperr.Wrap(caperr.KindInputFormat, err, "open audit chain")
	}
	defer f.Close()

	tail := GenesisHash
	count := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var e Event
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return "", 0, caperr.Wrap(caperr.KindInputFormat, err, "parse audit event")
		}
		tail = e.SelfHash
		count++
	}
	if err := scanner.Err(); err != nil {
		return "", 0, caperr.Wrap(caperr.KindInputFormat, err, "scan audit chain")
	}
	return tail, count, nil
}

// Append computes self_hash, writes a new V2 line, and updates the in-memory
// tail.
func (c *Chain) Append(event, policyID, irHash, manifestHash string, result Result, runID string) (*Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := &Event{
		Ts:           time.Now().UTC().Format(time.RFC3339),
		Event:        event,
		PolicyID:     policyID,
		IRHash:       irHash,
		ManifestHash: manifestHash,
		Result:       result,
		RunID:        runID,
		PrevHash:     c.tailHash,
	}
	selfHash, err := computeSelfHash(e)
	if err != nil {
		return nil, err
	}
	e.SelfHash = selfHash

	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, caperr.Wrap(caperr.KindInputFormat, err, "open audit chain for append")
	}
	defer f.Close()

	raw, err := json.Marshal(e)
	if err != nil {
		return nil, caperr.Wrap(caperr.KindInputFormat, err, "marshal audit event")
	}
	if _, err := fmt.Fprintln(f, string(raw)); err != nil {
		return nil, caperr.Wrap(caperr.KindInputFormat, err, "write audit event")
	}

	c.tailHash = e.SelfHash
	c.length++
	metrics.AuditChainLength.WithLabelValues(c.path).Set(float64(c.length))
	if c.mirror != nil {
		c.mirror.Record(e)
	}
	return e, nil
}

// TailHash returns the current chain tail.
func (c *Chain) TailHash() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tailHash
}
