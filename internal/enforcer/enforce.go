// Copyright 2025 Certen Protocol
package enforcer

import (
	"encoding/binary"
	"strconv"
	"time"

	"github.com/capengine/cap-core/internal/capcrypto"
	"github.com/capengine/cap-core/internal/metrics"
	"github.com/capengine/cap-core/internal/orchestrator"
	"github.com/capengine/cap-core/internal/policy"
)

// Options gates how the enforcer behaves for a given deployment.
type Options struct {
	Enforce        bool
	RolloutPercent int // 0..100
	DriftMaxRatio  float64
}

// Verdict is a plan's total cost and ordered rule ids — the comparable
// summary of an orchestrator run used to detect shadow/enforced drift.
type Verdict struct {
	RuleIDs   []string
	TotalCost int
}

func verdictFromPlan(p *orchestrator.Plan) Verdict {
	v := Verdict{TotalCost: p.TotalCost, RuleIDs: make([]string, len(p.Steps))}
	for i, s := range p.Steps {
		v.RuleIDs[i] = s.RuleID
	}
	return v
}

func (v Verdict) equal(other Verdict) bool {
	if v.TotalCost != other.TotalCost || len(v.RuleIDs) != len(other.RuleIDs) {
		return false
	}
	for i := range v.RuleIDs {
		if v.RuleIDs[i] != other.RuleIDs[i] {
			return false
		}
	}
	return true
}

// Result is the outcome of one enforcement decision (§4.14 step 4).
type Result struct {
	Shadow          Verdict
	Enforced        Verdict
	EnforcedApplied bool
	HasDrift        bool
}

// stableHash maps a request id to the big-endian uint64 of the first 8
// bytes of its SHA3-256 digest; ShouldEnforce reduces it mod 100, giving
// deterministic per-request sampling.
func stableHash(requestID string) uint64 {
	sum := capcrypto.SHA3256([]byte(requestID))
	return binary.BigEndian.Uint64(sum[:8])
}

// ShouldEnforce decides sampling for requestID under opts, per §4.14 step 2.
func ShouldEnforce(opts Options, requestID string) bool {
	if !opts.Enforce || opts.RolloutPercent <= 0 {
		return false
	}
	if opts.RolloutPercent >= 100 {
		return true
	}
	return stableHash(requestID)%100 < uint64(opts.RolloutPercent)
}

// Evaluate computes the shadow verdict via shadowPolicy's plan and,
// depending on ShouldEnforce, the enforced verdict via enforcedPolicy's
// plan (by default the same policy — "or in future a distinct execution").
// On a positive decision it also records the outcome on tracker at time at.
func Evaluate(opts Options, requestID string, shadowPolicy, enforcedPolicy *policy.Policy, ctx orchestrator.Context, tracker *DriftTracker, at time.Time) (Result, error) {
	shadowPlan, err := orchestrator.BuildPlan(shadowPolicy, ctx)
	if err != nil {
		return Result{}, err
	}
	result := Result{Shadow: verdictFromPlan(shadowPlan)}

	if !ShouldEnforce(opts, requestID) {
		metrics.EnforcerSamples.WithLabelValues(strconv.FormatBool(false)).Inc()
		return result, nil
	}
	result.EnforcedApplied = true

	enforcedPlan, err := orchestrator.BuildPlan(enforcedPolicy, ctx)
	if err != nil {
		return Result{}, err
	}
	result.Enforced = verdictFromPlan(enforcedPlan)
	result.HasDrift = result.EnforcedApplied && !result.Shadow.equal(result.Enforced)

	metrics.EnforcerSamples.WithLabelValues(strconv.FormatBool(true)).Inc()
	if tracker != nil {
		tracker.Push(at, result.HasDrift)
		metrics.EnforcerDriftRatio.WithLabelValues(shadowPolicy.PolicyID).Set(tracker.DriftRatio(at, defaultQueryWindow))
	}
	return result, nil
}
