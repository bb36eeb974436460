package enforcer

import (
	"testing"
	"time"

	"github.com/capengine/cap-core/internal/orchestrator"
	"github.com/capengine/cap-core/internal/policy"
)

func TestShouldEnforceDisabled(t *testing.T) {
	if ShouldEnforce(Options{Enforce: false, RolloutPercent: 100}, "req-1") {
		t.Error("expected disabled enforce to never sample in")
	}
}

func TestShouldEnforceZeroRollout(t *testing.T) {
	if ShouldEnforce(Options{Enforce: true, RolloutPercent: 0}, "req-1") {
		t.Error("expected zero rollout to never sample in")
	}
}

func TestShouldEnforceFullRollout(t *testing.T) {
	if !ShouldEnforce(Options{Enforce: true, RolloutPercent: 100}, "req-1") {
		t.Error("expected full rollout to always sample in")
	}
}

func TestShouldEnforceDeterministicPerRequestID(t *testing.T) {
	opts := Options{Enforce: true, RolloutPercent: 50}
	first := ShouldEnforce(opts, "req-stable")
	for i := 0; i < 5; i++ {
		if ShouldEnforce(opts, "req-stable") != first {
			t.Error("expected deterministic sampling decision for the same request id")
		}
	}
}

func simplePolicy(ruleID string, op policy.Op) *policy.Policy {
	return &policy.Policy{
		PolicyID: "policy.enforcer-test",
		Rules:    []policy.Rule{{ID: ruleID, Op: op, LegalBasis: "art6"}},
	}
}

func TestEvaluateNoDriftWhenPoliciesMatch(t *testing.T) {
	p := simplePolicy("r1", policy.OpEq)
	tracker := NewDriftTracker()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	result, err := Evaluate(Options{Enforce: true, RolloutPercent: 100}, "req-1", p, p, orchestrator.Context{}, tracker, now)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !result.EnforcedApplied {
		t.Error("expected enforced to be applied at 100% rollout")
	}
	if result.HasDrift {
		t.Error("expected no drift when shadow and enforced policies match")
	}
}

func TestEvaluateDetectsDrift(t *testing.T) {
	shadow := simplePolicy("r1", policy.OpEq)
	enforced := simplePolicy("r2", policy.OpThreshold)
	tracker := NewDriftTracker()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	result, err := Evaluate(Options{Enforce: true, RolloutPercent: 100}, "req-1", shadow, enforced, orchestrator.Context{}, tracker, now)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !result.HasDrift {
		t.Error("expected drift when shadow and enforced plans diverge")
	}

	ratio := tracker.DriftRatio(now, time.Minute)
	if ratio != 1 {
		t.Errorf("expected drift event recorded, ratio %f", ratio)
	}
}

func TestEvaluateNotSampledInRecordsNoEnforcement(t *testing.T) {
	p := simplePolicy("r1", policy.OpEq)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	result, err := Evaluate(Options{Enforce: true, RolloutPercent: 0}, "req-1", p, p, orchestrator.Context{}, nil, now)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if result.EnforcedApplied {
		t.Error("expected no enforcement at 0% rollout")
	}
	if result.HasDrift {
		t.Error("expected has_drift false when enforcement was not applied")
	}
}
