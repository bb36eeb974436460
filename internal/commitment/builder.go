// Copyright 2025 Certen Protocol

package commitment

import (
	"github.com/capengine/cap-core/internal/capcrypto"
	"github.com/capengine/cap-core/internal/caperr"
)

// Record is a single tabular row (supplier or UBO). Field order within a
// record is policy-defined, so callers pass already-ordered key/value pairs
// via a map; we canonicalise before hashing so the exact map iteration order
// never leaks into the hash.
type Record map[string]interface{}

// Commitments holds the three roots and row counts produced by BuildCommitments.
type Commitments struct {
	SupplierRoot          []byte
	UBORoot                []byte
	CompanyCommitmentRoot  []byte
	SupplierCount          int
	UBOCount               int
}

// hashRecord canonicalises a record and returns its SHA3-256 digest.
func hashRecord(r Record) ([]byte, error) {
	canon, err := MarshalCanonical(map[string]interface{}(r))
	if err != nil {
		return nil, caperr.Wrap(caperr.KindInputFormat, err, "canonicalize record")
	}
	digest := capcrypto.SHA3256(canon)
	return digest[:], nil
}

// rootOf hashes every record, sorts the resulting hashes, and returns the
// Merkle root. An empty input produces a 32-byte zero root (no suppliers or
// no UBOs is a valid, hashable state).
func rootOf(records []Record) ([]byte, error) {
	if len(records) == 0 {
		return make([]byte, capcrypto.HashSize), nil
	}

	leaves := make([][]byte, len(records))
	for i, r := range records {
		h, err := hashRecord(r)
		if err != nil {
			return nil, err
		}
		leaves[i] = h
	}

	tree, err := BuildTree(leaves)
	if err != nil {
		return nil, caperr.Wrap(caperr.KindInputFormat, err, "build merkle tree")
	}
	return tree.Root(), nil
}

// BuildCommitments computes supplier_root, ubo_root, and
// company_commitment_root = H(supplier_root || ubo_root) over raw bytes
// (§4.2). Determinism: same multiset in any order yields the same roots,
// because rootOf sorts leaf hashes before tree construction.
func BuildCommitments(suppliers, ubos []Record) (*Commitments, error) {
	supplierRoot, err := rootOf(suppliers)
	if err != nil {
		return nil, err
	}
	uboRoot, err := rootOf(ubos)
	if err != nil {
		return nil, err
	}

	combined := make([]byte, 0, len(supplierRoot)+len(uboRoot))
	combined = append(combined, supplierRoot...)
	combined = append(combined, uboRoot...)
	companyRoot := capcrypto.SHA3256(combined)

	return &Commitments{
		SupplierRoot:         supplierRoot,
		UBORoot:               uboRoot,
		CompanyCommitmentRoot: companyRoot[:],
		SupplierCount:         len(suppliers),
		UBOCount:              len(ubos),
	}, nil
}
