package orchestrator

import (
	"encoding/json"
	"testing"

	"github.com/capengine/cap-core/internal/policy"
)

func samplePolicy() *policy.Policy {
	return &policy.Policy{
		PolicyID: "policy.sample",
		Version:  "1.0",
		Rules: []policy.Rule{
			{ID: "r-threshold", Op: policy.OpThreshold, LegalBasis: "art6"},
			{ID: "r-eq", Op: policy.OpEq, LegalBasis: "art6"},
			{ID: "r-range", Op: policy.OpRangeMin, LegalBasis: "art6"},
			{ID: "r-nonmember", Op: policy.OpNonMembership, LegalBasis: "art6"},
		},
	}
}

func TestSelectActiveRulesNoAdaptivityActivatesAll(t *testing.T) {
	p := samplePolicy()
	active, err := SelectActiveRules(p, Context{})
	if err != nil {
		t.Fatalf("SelectActiveRules failed: %v", err)
	}
	if len(active) != 4 {
		t.Errorf("expected all 4 rules active, got %d", len(active))
	}
}

func TestSelectActiveRulesWithAdaptivity(t *testing.T) {
	p := samplePolicy()
	p.Adaptivity = &policy.Adaptivity{
		Activations: []policy.Activation{
			{Predicate: json.RawMessage(`{"gt":[{"var":"risk_score"},{"var":"threshold"}]}`), Rules: []string{"r-threshold"}},
			{Predicate: json.RawMessage(`{"bool":false}`), Rules: []string{"r-nonmember"}},
		},
	}
	ctx := Context{Variables: map[string]float64{"risk_score": 90, "threshold": 50}}

	active, err := SelectActiveRules(p, ctx)
	if err != nil {
		t.Fatalf("SelectActiveRules failed: %v", err)
	}
	if !active["r-threshold"] {
		t.Error("expected r-threshold to be active")
	}
	if active["r-nonmember"] {
		t.Error("expected r-nonmember to stay inactive")
	}
	if len(active) != 1 {
		t.Errorf("expected exactly 1 active rule, got %d: %+v", len(active), active)
	}
}

func TestBuildPlanOrdersByCostThenRuleID(t *testing.T) {
	p := samplePolicy()
	plan, err := BuildPlan(p, Context{})
	if err != nil {
		t.Fatalf("BuildPlan failed: %v", err)
	}
	if len(plan.Steps) != 4 {
		t.Fatalf("expected 4 steps, got %d", len(plan.Steps))
	}

	wantOrder := []string{"r-eq", "r-range", "r-nonmember", "r-threshold"}
	for i, want := range wantOrder {
		if plan.Steps[i].RuleID != want {
			t.Errorf("step %d: expected rule %s, got %s", i, want, plan.Steps[i].RuleID)
		}
		if plan.Steps[i].StepIndex != i {
			t.Errorf("step %d: expected step_index %d, got %d", i, i, plan.Steps[i].StepIndex)
		}
	}

	wantTotal := policy.OpEq.Cost() + policy.OpRangeMin.Cost() + policy.OpNonMembership.Cost() + policy.OpThreshold.Cost()
	if plan.TotalCost != wantTotal {
		t.Errorf("expected total cost %d, got %d", wantTotal, plan.TotalCost)
	}
}

func TestBuildPlanTiesBrokenByRuleID(t *testing.T) {
	p := &policy.Policy{
		PolicyID: "policy.ties",
		Rules: []policy.Rule{
			{ID: "r-b", Op: policy.OpEq, LegalBasis: "art6"},
			{ID: "r-a", Op: policy.OpEq, LegalBasis: "art6"},
		},
	}
	plan, err := BuildPlan(p, Context{})
	if err != nil {
		t.Fatalf("BuildPlan failed: %v", err)
	}
	if plan.Steps[0].RuleID != "r-a" || plan.Steps[1].RuleID != "r-b" {
		t.Errorf("expected tie broken alphabetically, got %+v", plan.Steps)
	}
}

func TestBuildPlanWithAdaptivityOnlyIncludesActivatedRules(t *testing.T) {
	p := samplePolicy()
	p.Adaptivity = &policy.Adaptivity{
		Activations: []policy.Activation{
			{Predicate: json.RawMessage(`{"bool":true}`), Rules: []string{"r-eq", "r-range"}},
		},
	}
	plan, err := BuildPlan(p, Context{})
	if err != nil {
		t.Fatalf("BuildPlan failed: %v", err)
	}
	if len(plan.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d: %+v", len(plan.Steps), plan.Steps)
	}
}
