// Copyright 2025 Certen Protocol

package audit

import (
	"bufio"
	"os"
	"strings"

	"encoding/json"

	"github.com/capengine/cap-core/internal/caperr"
)

// VerifyReport is the outcome of verifying a JSONL audit chain.
type VerifyReport struct {
	TotalEvents int
	OK          bool
	TamperIndex int // -1 if OK
	Err         error
}

// VerifyChain streams events from path, checking that each record's
// prev_hash equals the previous self_hash (genesis for the first) and that
// each self_hash recomputes correctly. It stops and returns the index of the
// first broken event on failure.
//
// Mixed V1/V2 chains are refused: a V1 record (has seq) adjacent to a V2
// record in the same pass returns ChainBroken immediately, per the Open
// Question decision recorded in SPEC_FULL.md.
func VerifyChain(path string) (*VerifyReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, caperr.Wrap(caperr.KindInputFormat, err, "open audit chain")
	}
	defer f.Close()

	prevHash := GenesisHash
	index := 0
	var sawV1, sawV2 bool

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var e Event
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return nil, caperr.Wrap(caperr.KindInputFormat, err, "parse audit event")
		}

		if e.IsV1() {
			sawV1 = true
		} else {
			sawV2 = true
		}
		if sawV1 && sawV2 {
			return &VerifyReport{TotalEvents: index + 1, OK: false, TamperIndex: index,
				Err: caperr.New(caperr.KindChainBroken, "mixed schema versions in chain")}, nil
		}

		if e.PrevHash != prevHash {
			return &VerifyReport{TotalEvents: index + 1, OK: false, TamperIndex: index,
				Err: caperr.Newf(caperr.KindChainBroken, "hash chain broken: expected prev_hash %s, got %s", prevHash, e.PrevHash)}, nil
		}

		ok, err := e.VerifySelfHash()
		if err != nil {
			return nil, err
		}
		if !ok {
			return &VerifyReport{TotalEvents: index + 1, OK: false, TamperIndex: index,
				Err: caperr.Newf(caperr.KindChainBroken, "self-hash mismatch at event %d", index)}, nil
		}

		prevHash = e.SelfHash
		index++
	}
	if err := scanner.Err(); err != nil {
		return nil, caperr.Wrap(caperr.KindInputFormat, err, "scan audit chain")
	}

	return &VerifyReport{TotalEvents: index, OK: true, TamperIndex: -1}, nil
}

// ExportEvents filters the chain by inclusive timestamp range and/or
// policy_id, without mutating the underlying file.
func ExportEvents(path string, fromTS, toTS, policyID string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, caperr.Wrap(caperr.KindInputFormat, err, "open audit chain")
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var e Event
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return nil, caperr.Wrap(caperr.KindInputFormat, err, "parse audit event")
		}
		if fromTS != "" && e.Ts < fromTS {
			continue
		}
		if toTS != "" && e.Ts > toTS {
			continue
		}
		if policyID != "" && e.PolicyID != policyID {
			continue
		}
		events = append(events, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, caperr.Wrap(caperr.KindInputFormat, err, "scan audit chain")
	}
	return events, nil
}
