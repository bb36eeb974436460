// Copyright 2025 Certen Protocol

// Package verifykernel implements the I/O-free verification kernel (§4.10):
// a single pure function over in-memory bytes and precomputed hashes,
// returning a structured, fully deterministic verdict with per-check
// granularity. No file system or logging side effects occur here.
package verifykernel

import (
	"crypto/ed25519"
	"encoding/json"

	"github.com/capengine/cap-core/internal/capcrypto"
)

// Status is the outcome of an individual check or the overall verdict.
type Status string

const (
	StatusOk    Status = "Ok"
	StatusWarn  Status = "Warn"
	StatusFail  Status = "Fail"
	StatusError Status = "Error"
)

// rank orders statuses for folding: Error > Fail > Warn > Ok.
func (s Status) rank() int {
	switch s {
	case StatusError:
		return 3
	case StatusFail:
		return 2
	case StatusWarn:
		return 1
	default:
		return 0
	}
}

// Check is one named verification step and its outcome.
type Check struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Credentials carries optional signature/timestamp/registry inputs.
type Credentials struct {
	Signature             string `json:"signature,omitempty"`
	PublicKey              string `json:"public_key,omitempty"`
	TimestampAttestationJSON string `json:"timestamp_attestation,omitempty"`
	RegistryEntryJSON      string `json:"registry_entry_json,omitempty"`
}

// Options toggles the optional checks.
type Options struct {
	CheckSignature bool
	CheckTimestamp bool
	CheckRegistry  bool
}

// Input is everything verify_core needs; it performs no I/O of its own.
type Input struct {
	ProtocolVersion string
	ManifestBytes   []byte
	ProofBytes      []byte
	ManifestHash    string // 0x-prefixed hex, precomputed by the caller
	ProofHash       string
	PolicyHash      string
	PolicyID        string
	Backend         string
	Credentials     *Credentials
	Options         Options
}

// Result is the kernel's output: per-check detail plus a folded overall
// status. It carries no started_at/finished_at timestamps: the kernel does
// not read the clock.
type Result struct {
	Overall Status  `json:"overall"`
	Checks  []Check `json:"checks"`
}

func fold(checks []Check) Status {
	overall := StatusOk
	for _, c := range checks {
		if c.Status.rank() > overall.rank() {
			overall = c.Status
		}
	}
	return overall
}

func hashOf(data []byte) string {
	sum := capcrypto.SHA3256(data)
	return capcrypto.HexLower(sum[:])
}

// VerifyCore is the pure verification function described in §4.10. It
// never touches the file system or a logger and returns identical checks
// for identical input, every time.
func VerifyCore(in Input) Result {
	var checks []Check

	manifestHash := hashOf(in.ManifestBytes)
	if manifestHash == in.ManifestHash {
		checks = append(checks, Check{Name: "hash_match_manifest", Status: StatusOk})
	} else {
		checks = append(checks, Check{Name: "hash_match_manifest", Status: StatusFail,
			Message: "manifest bytes do not hash to the declared manifest_hash"})
	}

	proofHash := hashOf(in.ProofBytes)
	if proofHash == in.ProofHash {
		checks = append(checks, Check{Name: "hash_match_proof", Status: StatusOk})
	} else {
		checks = append(checks, Check{Name: "hash_match_proof", Status: StatusFail,
			Message: "proof bytes do not hash to the declared proof_hash"})
	}

	var manifest struct {
		Policy struct {
			Hash string `json:"hash"`
		} `json:"policy"`
	}
	if err := json.Unmarshal(in.ManifestBytes, &manifest); err != nil {
		checks = append(checks, Check{Name: "policy_hash_match", Status: StatusError,
			Message: "manifest is not valid JSON: " + err.Error()})
	} else if manifest.Policy.Hash == in.PolicyHash {
		checks = append(checks, Check{Name: "policy_hash_match", Status: StatusOk})
	} else {
		checks = append(checks, Check{Name: "policy_hash_match", Status: StatusFail,
			Message: "manifest.policy.hash does not match the declared policy_hash"})
	}

	if in.Options.CheckSignature {
		checks = append(checks, checkSignature(in))
	}
	if in.Options.CheckTimestamp {
		checks = append(checks, checkTimestamp(in))
	}
	if in.Options.CheckRegistry {
		checks = append(checks, checkRegistry(in))
	}

	return Result{Overall: fold(checks), Checks: checks}
}

func checkSignature(in Input) Check {
	if in.Credentials == nil || in.Credentials.Signature == "" || in.Credentials.PublicKey == "" {
		return Check{Name: "signature_valid", Status: StatusWarn, Message: "no signature credentials supplied"}
	}
	sig, err := capcrypto.DecodeHex(in.Credentials.Signature, ed25519.SignatureSize)
	if err != nil {
		return Check{Name: "signature_valid", Status: StatusError, Message: "malformed signature: " + err.Error()}
	}
	pub, err := capcrypto.DecodeHex(in.Credentials.PublicKey, ed25519.PublicKeySize)
	if err != nil {
		return Check{Name: "signature_valid", Status: StatusError, Message: "malformed public key: " + err.Error()}
	}
	ok, err := capcrypto.Ed25519Verify(ed25519.PublicKey(pub), in.ManifestBytes, sig)
	if err != nil {
		return Check{Name: "signature_valid", Status: StatusError, Message: err.Error()}
	}
	if !ok {
		return Check{Name: "signature_valid", Status: StatusFail, Message: "signature does not verify over manifest bytes"}
	}
	return Check{Name: "signature_valid", Status: StatusOk}
}

func checkTimestamp(in Input) Check {
	if in.Credentials == nil || in.Credentials.TimestampAttestationJSON == "" {
		return Check{Name: "timestamp_valid", Status: StatusWarn, Message: "no timestamp attestation supplied"}
	}
	var attestation map[string]interface{}
	if err := json.Unmarshal([]byte(in.Credentials.TimestampAttestationJSON), &attestation); err != nil {
		return Check{Name: "timestamp_valid", Status: StatusError, Message: "malformed timestamp attestation: " + err.Error()}
	}
	if _, ok := attestation["created_at"]; !ok {
		return Check{Name: "timestamp_valid", Status: StatusFail, Message: "timestamp attestation missing created_at"}
	}
	return Check{Name: "timestamp_valid", Status: StatusOk}
}

func checkRegistry(in Input) Check {
	if in.Credentials == nil || in.Credentials.RegistryEntryJSON == "" {
		return Check{Name: "registry_match", Status: StatusWarn, Message: "no registry entry supplied"}
	}
	var entry struct {
		ManifestHash string `json:"manifest_hash"`
		ProofHash    string `json:"proof_hash"`
	}
	if err := json.Unmarshal([]byte(in.Credentials.RegistryEntryJSON), &entry); err != nil {
		return Check{Name: "registry_match", Status: StatusError, Message: "malformed registry entry: " + err.Error()}
	}
	if entry.ManifestHash != in.ManifestHash || entry.ProofHash != in.ProofHash {
		return Check{Name: "registry_match", Status: StatusFail, Message: "registry entry hashes do not match input hashes"}
	}
	return Check{Name: "registry_match", Status: StatusOk}
}
