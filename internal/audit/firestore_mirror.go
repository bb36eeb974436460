// Copyright 2025 Certen Protocol

package audit

import (
	"context"
	"log"

	"cloud.google.com/go/firestore"
)

// FirestoreMirror is an optional, best-effort secondary sink for audit
// events. It is never on the critical path: Record logs and swallows errors
// rather than propagating them, because the JSONL file remains the source
// of truth (§4.6 supplement, see SPEC_FULL.md). Grounded on
// pkg/firestore/audit_trail.go's AuditTrailService shape.
type FirestoreMirror struct {
	client      *firestore.Client
	collection  string
	validatorID string
	logger      *log.Logger
}

// FirestoreMirrorConfig configures a FirestoreMirror.
type FirestoreMirrorConfig struct {
	Client      *firestore.Client
	Collection  string
	ValidatorID string
	Logger      *log.Logger
}

// NewFirestoreMirror constructs a mirror. A nil Client disables mirroring
// entirely (IsEnabled returns false), matching the teacher's
// AuditTrailService.IsEnabled pattern.
func NewFirestoreMirror(cfg FirestoreMirrorConfig) *FirestoreMirror {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[AuditMirror] ", log.LstdFlags)
	}
	collection := cfg.Collection
	if collection == "" {
		collection = "audit_events"
	}
	return &FirestoreMirror{client: cfg.Client, collection: collection, validatorID: cfg.ValidatorID, logger: logger}
}

// IsEnabled reports whether a live Firestore client is configured.
func (m *FirestoreMirror) IsEnabled() bool {
	return m != nil && m.client != nil
}

// Record best-effort mirrors an audit event to Firestore. Failures are
// logged, never returned — mirroring must never affect the local append
// path's success/failure.
func (m *FirestoreMirror) Record(e *Event) {
	if !m.IsEnabled() {
		return
	}
	ctx := context.Background()
	_, _, err := m.client.Collection(m.collection).Add(ctx, map[string]interface{}{
		"ts":            e.Ts,
		"event":         e.Event,
		"policy_id":     e.PolicyID,
		"manifest_hash": e.ManifestHash,
		"result":        e.Result,
		"self_hash":     e.SelfHash,
		"validator_id":  m.validatorID,
	})
	if err != nil {
		m.logger.Printf("mirror write failed for event %s: %v", e.SelfHash, err)
	}
}
