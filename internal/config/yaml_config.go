// Copyright 2025 Certen Protocol
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration for YAML unmarshalling as a human-readable
// string ("30s", "5m").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

// FileConfig is the secondary, less-frequently-changed configuration layer
// (§4.14 enforcer rollout schedule, §4.6 audit export windows), loaded from
// a YAML file whose `${VAR}` references are substituted from the process
// environment before parsing.
type FileConfig struct {
	Environment string `yaml:"environment"`

	Enforcer struct {
		Enforce        bool    `yaml:"enforce"`
		RolloutPercent int     `yaml:"rollout_percent"`
		DriftMaxRatio  float64 `yaml:"drift_max_ratio"`
		QueryWindow    Duration `yaml:"query_window"`
	} `yaml:"enforcer"`

	Audit struct {
		ExportDefaultWindow Duration `yaml:"export_default_window"`
	} `yaml:"audit"`

	Registry struct {
		Backend string `yaml:"backend"`
		Path    string `yaml:"path"`
	} `yaml:"registry"`
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return match
	})
}

// LoadFileConfig reads and parses a FileConfig from path, expanding
// `${VAR}` environment references first.
func LoadFileConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expanded := substituteEnvVars(string(data))

	var cfg FileConfig
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return &cfg, nil
}

// ApplyFileConfig overlays non-zero FileConfig values onto c.
func (c *Config) ApplyFileConfig(f *FileConfig) {
	if f.Enforcer.RolloutPercent != 0 {
		c.EnforcerRolloutPercent = f.Enforcer.RolloutPercent
	}
	if f.Enforcer.DriftMaxRatio != 0 {
		c.EnforcerDriftMaxRatio = f.Enforcer.DriftMaxRatio
	}
	c.EnforcerEnforce = c.EnforcerEnforce || f.Enforcer.Enforce
	if f.Registry.Backend != "" {
		c.RegistryBackend = f.Registry.Backend
	}
	if f.Registry.Path != "" {
		c.RegistryPath = f.Registry.Path
	}
}
