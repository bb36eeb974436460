// Copyright 2025 Certen Protocol
package proofengine

import "github.com/capengine/cap-core/internal/caperr"

// BackendByName resolves a backend name to its implementation (§4.5:
// "mock", "zk-simplified", future ZK).
func BackendByName(name string) (Backend, error) {
	switch name {
	case "", "mock":
		return MockBackend{}, nil
	case "zk-simplified":
		return ZKSimplifiedBackend{}, nil
	default:
		return nil, caperr.Newf(caperr.KindBackendUnavailable, "unknown proof backend: %s", name)
	}
}
