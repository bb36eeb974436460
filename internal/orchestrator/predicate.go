// Copyright 2025 Certen Protocol

// Package orchestrator evaluates policy predicates over a runtime context,
// selects the active rule set, and produces a cost-ordered execution plan
// (§4.13).
package orchestrator

import (
	"encoding/json"

	"github.com/capengine/cap-core/internal/caperr"
)

// Context is the runtime input the predicate language and orchestrator
// evaluate against.
type Context struct {
	SupplierHashes []string
	UBOHashes      []string
	SupplierRoot   string
	UBORoot        string
	Variables      map[string]float64
}

// predicate expression AST. The wire form is a small tagged JSON object:
//   {"bool": true}
//   {"var": "name"}
//   {"lt": [expr, expr]}
//   {"gt": [expr, expr]}
//   {"eq": [expr, expr]}
type predicateNode struct {
	Bool *bool             `json:"bool,omitempty"`
	Var  *string           `json:"var,omitempty"`
	Lt   []json.RawMessage `json:"lt,omitempty"`
	Gt   []json.RawMessage `json:"gt,omitempty"`
	Eq   []json.RawMessage `json:"eq,omitempty"`
}

// EvalPredicate parses and evaluates a predicate expression against ctx,
// returning its boolean result.
func EvalPredicate(raw json.RawMessage, ctx Context) (bool, error) {
	v, err := evalNode(raw, ctx)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, caperr.New(caperr.KindPolicyMismatch, "predicate does not evaluate to a boolean")
	}
	return b, nil
}

// evalNode evaluates any node, returning either a bool (boolean literal,
// lt/gt/eq result) or a float64 (variable reference).
func evalNode(raw json.RawMessage, ctx Context) (interface{}, error) {
	var n predicateNode
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, caperr.Wrap(caperr.KindInputFormat, err, "parse predicate node")
	}

	switch {
	case n.Bool != nil:
		return *n.Bool, nil
	case n.Var != nil:
		val, ok := ctx.Variables[*n.Var]
		if !ok {
			return nil, caperr.Newf(caperr.KindPolicyMismatch, "unknown predicate variable: %s", *n.Var)
		}
		return val, nil
	case len(n.Lt) == 2:
		return compare(n.Lt, ctx, func(a, b float64) bool { return a < b })
	case len(n.Gt) == 2:
		return compare(n.Gt, ctx, func(a, b float64) bool { return a > b })
	case len(n.Eq) == 2:
		return compare(n.Eq, ctx, func(a, b float64) bool { return a == b })
	default:
		return nil, caperr.New(caperr.KindPolicyMismatch, "predicate node has no recognised form")
	}
}

func compare(operands []json.RawMessage, ctx Context, op func(a, b float64) bool) (interface{}, error) {
	left, err := evalNode(operands[0], ctx)
	if err != nil {
		return nil, err
	}
	right, err := evalNode(operands[1], ctx)
	if err != nil {
		return nil, err
	}
	lf, lok := left.(float64)
	rf, rok := right.(float64)
	if !lok || !rok {
		return nil, caperr.New(caperr.KindPolicyMismatch, "comparison operands must be numeric")
	}
	return op(lf, rf), nil
}
