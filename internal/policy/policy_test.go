package policy

import "testing"

func samplePolicy() *Policy {
	return &Policy{
		PolicyID: "supply-chain-v1",
		Version:  "1.0.0",
		Rules: []Rule{
			{ID: "r1", Op: OpThreshold, LHS: "supplier_count", RHS: 0.5, LegalBasis: "Art. 5"},
			{ID: "r2", Op: OpRangeMax, LHS: "supplier_count", RHS: 10, LegalBasis: "Art. 5"},
		},
	}
}

func TestOpCost(t *testing.T) {
	cases := map[Op]int{
		OpEq:            1,
		OpRangeMin:      2,
		OpRangeMax:      2,
		OpNonMembership: 10,
		OpThreshold:     20,
	}
	for op, want := range cases {
		if got := op.Cost(); got != want {
			t.Errorf("%s.Cost() = %d, want %d", op, got, want)
		}
	}
}

func TestLintStrictRejectsUnknownOp(t *testing.T) {
	p := samplePolicy()
	p.Rules = append(p.Rules, Rule{ID: "bad", Op: "made_up", LegalBasis: "x"})

	if _, err := Lint(p, LintStrict); err == nil {
		t.Errorf("expected strict lint to fail on unknown op")
	}
}

func TestLintRelaxedDowngradesToWarning(t *testing.T) {
	p := samplePolicy()
	p.Rules = append(p.Rules, Rule{ID: "bad", Op: "made_up", LegalBasis: "x"})

	issues, err := Lint(p, LintRelaxed)
	if err != nil {
		t.Fatalf("relaxed lint should not fail: %v", err)
	}
	if len(issues) == 0 {
		t.Errorf("expected at least one warning")
	}
}

func TestPolicyHashDeterministic(t *testing.T) {
	p := samplePolicy()
	h1, err := Hash(p)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	h2, err := Hash(p)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if h1 != h2 {
		t.Errorf("policy_hash not deterministic")
	}
}

func TestCompileIRHashStableAcrossCompilations(t *testing.T) {
	p := samplePolicy()

	ir1, err := Compile(p)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	ir2, err := Compile(p)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	if ir1.IRHash != ir2.IRHash {
		t.Errorf("ir_hash not stable across compilations")
	}
	if ir1.PolicyHash != ir2.PolicyHash {
		t.Errorf("policy_hash changed across compilations")
	}
}

func TestCompilePolicyHashNeverChangesAcrossReductions(t *testing.T) {
	p := samplePolicy()
	policyHash, err := Hash(p)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	ir, err := Compile(p)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	if ir.PolicyHash != policyHash {
		t.Errorf("IR policy_hash diverged from standalone policy hash")
	}
}
