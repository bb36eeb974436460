// Copyright 2025 Certen Protocol

package policy

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/capengine/cap-core/internal/caperr"
)

// yamlPolicy mirrors Policy's shape for YAML front-end fixtures, matching the
// teacher's pkg/config/anchor_config.go convention of a distinct struct tagged
// for yaml.v3 rather than reusing the JSON-tagged struct directly.
type yamlPolicy struct {
	PolicyID string `yaml:"policy_id"`
	Version  string `yaml:"version"`
	Rules    []struct {
		ID         string      `yaml:"id"`
		Op         string      `yaml:"op"`
		LHS        interface{} `yaml:"lhs"`
		RHS        interface{} `yaml:"rhs"`
		LegalBasis string      `yaml:"legal_basis"`
	} `yaml:"rules"`
}

// LoadYAML reads a policy definition authored as YAML (the human-editable
// front-end format used by operator tooling outside this module's scope) and
// converts it to the canonical Policy struct used for hashing and IR lowering.
func LoadYAML(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, caperr.Wrap(caperr.KindInputFormat, err, "read policy yaml")
	}

	var yp yamlPolicy
	if err := yaml.Unmarshal(data, &yp); err != nil {
		return nil, caperr.Wrap(caperr.KindInputFormat, err, "parse policy yaml")
	}

	p := &Policy{PolicyID: yp.PolicyID, Version: yp.Version}
	for _, r := range yp.Rules {
		p.Rules = append(p.Rules, Rule{
			ID:         r.ID,
			Op:         Op(r.Op),
			LHS:        r.LHS,
			RHS:        r.RHS,
			LegalBasis: r.LegalBasis,
		})
	}
	return p, nil
}
