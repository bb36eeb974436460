package orchestrator

import (
	"encoding/json"
	"testing"
)

func TestEvalPredicateBoolLiteral(t *testing.T) {
	ok, err := EvalPredicate(json.RawMessage(`{"bool":true}`), Context{})
	if err != nil {
		t.Fatalf("EvalPredicate failed: %v", err)
	}
	if !ok {
		t.Error("expected true")
	}
}

func TestEvalPredicateVariableComparison(t *testing.T) {
	ctx := Context{Variables: map[string]float64{"risk_score": 42, "threshold": 10}}

	gt, err := EvalPredicate(json.RawMessage(`{"gt":[{"var":"risk_score"},{"var":"threshold"}]}`), ctx)
	if err != nil {
		t.Fatalf("EvalPredicate failed: %v", err)
	}
	if !gt {
		t.Error("expected risk_score > threshold to be true")
	}

	lt, err := EvalPredicate(json.RawMessage(`{"lt":[{"var":"risk_score"},{"var":"threshold"}]}`), ctx)
	if err != nil {
		t.Fatalf("EvalPredicate failed: %v", err)
	}
	if lt {
		t.Error("expected risk_score < threshold to be false")
	}
}

func TestEvalPredicateEq(t *testing.T) {
	ctx := Context{Variables: map[string]float64{"count": 5}}
	ok, err := EvalPredicate(json.RawMessage(`{"eq":[{"var":"count"},{"var":"count"}]}`), ctx)
	if err != nil {
		t.Fatalf("EvalPredicate failed: %v", err)
	}
	if !ok {
		t.Error("expected count == count to be true")
	}
}

func TestEvalPredicateUnknownVariableFails(t *testing.T) {
	_, err := EvalPredicate(json.RawMessage(`{"gt":[{"var":"missing"},{"bool":true}]}`), Context{})
	if err == nil {
		t.Error("expected error for unknown variable")
	}
}

func TestEvalPredicateNonBooleanResultFails(t *testing.T) {
	_, err := EvalPredicate(json.RawMessage(`{"var":"x"}`), Context{Variables: map[string]float64{"x": 1}})
	if err == nil {
		t.Error("expected error when top-level predicate is not boolean")
	}
}
