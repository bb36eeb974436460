// Copyright 2025 Certen Protocol

package keystore

import (
	"encoding/json"
	"os"
	"time"

	"github.com/capengine/cap-core/internal/caperr"
)

// Phase is a step in the P0-P3 key rotation state machine (§4.8).
type Phase string

const (
	// PhaseSingleKeyOld (P0): no rotation in progress, K_old is the only
	// active key. Not persisted; a RotationState only exists from P1 on.
	PhaseSingleKeyOld Phase = "p0_single_key_old"
	// PhaseDualAcceptOld (P1): K_new has been issued, both keys verify, and
	// new material is still signed with K_old (default_key=K_old).
	PhaseDualAcceptOld Phase = "p1_dual_accept_old"
	// PhaseDualAcceptNew (P2): signing has switched to K_new, K_old is still
	// accepted for verification until dual_until (default_key=K_new).
	PhaseDualAcceptNew Phase = "p2_dual_accept_new"
	// PhaseSingleKeyNew (P3): K_old is retired and rejected; K_new is the
	// only active key.
	PhaseSingleKeyNew Phase = "p3_single_key_new"
)

// RotationState is the persisted state of an in-progress or completed
// rotation, stored as rotation.json next to the key store.
type RotationState struct {
	Owner      string `json:"owner"`
	Phase      Phase  `json:"phase"`
	OldKID     string `json:"old_kid"`
	NewKID     string `json:"new_kid"`
	DefaultKID string `json:"default_kid"`
	DualUntil  string `json:"dual_until"`
	StartedAt  string `json:"started_at"`
	UpdatedAt  string `json:"updated_at"`
}

// StartRotation begins rotating owner's active key to newKey, entering P1
// (dual-accept, signing still with the old key). dualUntil bounds how long
// the old key is accepted for verification absent further transitions.
func StartRotation(store *Store, owner string, newKey *Metadata, dualUntil string) (*RotationState, error) {
	old, err := store.GetActive(owner)
	if err != nil {
		return nil, err
	}
	oldKID := ""
	if old != nil {
		oldKID = old.KID
	}
	now := time.Now().UTC().Format(time.RFC3339)
	return &RotationState{
		Owner:      owner,
		Phase:      PhaseDualAcceptOld,
		OldKID:     oldKID,
		NewKID:     newKey.KID,
		DefaultKID: oldKID,
		DualUntil:  dualUntil,
		StartedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Advance moves the rotation forward one step in the P1->P2->P3 sequence.
// P1->P2 only flips default_key to K_new (both keys still verify). P2->P3
// retires K_old entirely, decommissioning it.
func (r *RotationState) Advance(store *Store) error {
	switch r.Phase {
	case PhaseDualAcceptOld:
		r.Phase = PhaseDualAcceptNew
		r.DefaultKID = r.NewKID
	case PhaseDualAcceptNew:
		if err := store.Archive(r.OldKID); err != nil {
			return err
		}
		r.Phase = PhaseSingleKeyNew
		r.DefaultKID = r.NewKID
	case PhaseSingleKeyNew, PhaseSingleKeyOld:
		return caperr.Newf(caperr.KindKeyStatus, "rotation already at terminal phase %s", r.Phase)
	}
	r.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	return nil
}

// Rollback moves the rotation backward one step, per §4.8: P2->P1 flips
// default_key back to K_old with no other state change; P3->P2 reactivates
// the retired K_old and extends dual_until to newDualUntil.
func (r *RotationState) Rollback(store *Store, newDualUntil string) error {
	switch r.Phase {
	case PhaseDualAcceptNew:
		r.Phase = PhaseDualAcceptOld
		r.DefaultKID = r.OldKID
	case PhaseSingleKeyNew:
		if err := store.Reactivate(r.OldKID); err != nil {
			return err
		}
		r.Phase = PhaseDualAcceptNew
		r.DualUntil = newDualUntil
	case PhaseDualAcceptOld, PhaseSingleKeyOld:
		return caperr.Newf(caperr.KindKeyStatus, "rotation has no earlier phase than %s", r.Phase)
	}
	r.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	return nil
}

// Revoke jumps straight to P3 (single-key, new), for compromise response,
// bypassing the normal retiring grace period: K_old is revoked rather than
// merely retired.
func (r *RotationState) Revoke(store *Store) error {
	m, err := store.FindByKID(r.OldKID)
	if err != nil {
		return err
	}
	if m != nil {
		m.Revoke()
	}
	if err := store.Archive(r.OldKID); err != nil {
		return err
	}
	r.Phase = PhaseSingleKeyNew
	r.DefaultKID = r.NewKID
	r.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	return nil
}

// LoadRotationState reads rotation.json from path.
func LoadRotationState(path string) (*RotationState, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, caperr.Wrap(caperr.KindInputFormat, err, "read rotation state")
	}
	var r RotationState
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, caperr.Wrap(caperr.KindInputFormat, err, "parse rotation state")
	}
	return &r, nil
}

// Save persists the rotation state to path.
func (r *RotationState) Save(path string) error {
	raw, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return caperr.Wrap(caperr.KindInputFormat, err, "marshal rotation state")
	}
	return os.WriteFile(path, raw, 0o644)
}
