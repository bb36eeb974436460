// Copyright 2025 Certen Protocol
package orchestrator

import (
	"sort"

	"github.com/capengine/cap-core/internal/policy"
)

// Step is one entry in a deterministic execution plan.
type Step struct {
	StepIndex int    `json:"step_index"`
	RuleID    string `json:"rule_id"`
	Cost      int    `json:"cost"`
}

// Plan is the deterministically ordered list of rule-evaluation steps
// produced for a policy/context pair, with its aggregate cost.
type Plan struct {
	Steps     []Step `json:"steps"`
	TotalCost int    `json:"total_cost"`
}

// SelectActiveRules returns the set of rule ids active for ctx. Without an
// adaptivity block every rule is active. With one, it is the union of
// Activations whose predicate evaluates true against ctx.
func SelectActiveRules(p *policy.Policy, ctx Context) (map[string]bool, error) {
	active := make(map[string]bool, len(p.Rules))

	if p.Adaptivity == nil {
		for _, r := range p.Rules {
			active[r.ID] = true
		}
		return active, nil
	}

	for _, act := range p.Adaptivity.Activations {
		ok, err := EvalPredicate(act.Predicate, ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		for _, ruleID := range act.Rules {
			active[ruleID] = true
		}
	}
	return active, nil
}

// BuildPlan selects the active rule set for ctx and orders it into a plan:
// steps sorted first by fixed op cost, then by rule id to break ties
// deterministically (§4.13).
func BuildPlan(p *policy.Policy, ctx Context) (*Plan, error) {
	active, err := SelectActiveRules(p, ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]policy.Rule, len(p.Rules))
	for _, r := range p.Rules {
		byID[r.ID] = r
	}

	type candidate struct {
		ruleID string
		cost   int
	}
	var candidates []candidate
	for ruleID := range active {
		r, ok := byID[ruleID]
		if !ok {
			continue
		}
		candidates = append(candidates, candidate{ruleID: ruleID, cost: r.Op.Cost()})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].cost != candidates[j].cost {
			return candidates[i].cost < candidates[j].cost
		}
		return candidates[i].ruleID < candidates[j].ruleID
	})

	plan := &Plan{Steps: make([]Step, 0, len(candidates))}
	for i, c := range candidates {
		plan.Steps = append(plan.Steps, Step{StepIndex: i, RuleID: c.ruleID, Cost: c.cost})
		plan.TotalCost += c.cost
	}
	return plan, nil
}
