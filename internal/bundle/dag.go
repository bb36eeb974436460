// Copyright 2025 Certen Protocol

package bundle

import (
	"github.com/capengine/cap-core/internal/caperr"
)

// ValidateProofUnits enforces the §4.9 pack-time invariants over proof
// units: no duplicate ids, no self-referential depends_on, every referenced
// file present in files, and an acyclic depends_on graph (DFS with a
// recursion set).
func ValidateProofUnits(units []ProofUnit, files map[string]FileEntry) error {
	byID := make(map[string]ProofUnit, len(units))
	for _, u := range units {
		if _, dup := byID[u.ID]; dup {
			return caperr.Newf(caperr.KindBundleStructure, "duplicate proof unit id: %s", u.ID)
		}
		byID[u.ID] = u

		for _, dep := range u.DependsOn {
			if dep == u.ID {
				return caperr.Newf(caperr.KindBundleStructure, "proof unit depends on itself: %s", u.ID)
			}
		}
		for _, ref := range []string{u.ManifestFile, u.ProofFile} {
			if ref == "" {
				continue
			}
			if _, ok := files[ref]; !ok {
				return caperr.Newf(caperr.KindBundleStructure, "proof unit %s references unknown file %s", u.ID, ref)
			}
		}
	}

	white := make(map[string]bool, len(units)) // unvisited
	for id := range byID {
		white[id] = true
	}
	gray := make(map[string]bool) // on the current recursion stack
	black := make(map[string]bool)

	var visit func(id string) error
	visit = func(id string) error {
		if black[id] {
			return nil
		}
		if gray[id] {
			return caperr.New(caperr.KindBundleStructure, "Circular dependency detected in proof units")
		}
		gray[id] = true
		delete(white, id)
		for _, dep := range byID[id].DependsOn {
			if _, ok := byID[dep]; !ok {
				return caperr.Newf(caperr.KindBundleStructure, "proof unit %s depends on unknown id %s", id, dep)
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		delete(gray, id)
		black[id] = true
		return nil
	}

	for id := range byID {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}
