package v1

import (
	"fmt"
	"os"

	"sigs.k8s.io/yaml"
)

// ResolveSettings tunes how a resolution batch runs.
type ResolveSettings struct {
	// ForceSubBlockTargeting expands reservation and block references down
	// to their individual healthy sub-blocks instead of treating them as one
	// opaque pool
	ForceSubBlockTargeting bool `json:"forceSubBlockTargeting,omitempty" yaml:"forceSubBlockTargeting,omitempty"`
	// MaxConcurrency bounds how many provider calls for sibling identities
	// run at once
	MaxConcurrency int `json:"maxConcurrency,omitempty" yaml:"maxConcurrency,omitempty"`
}

// Config bundles everything one resolution batch needs from the caller.
type Config struct {
	Requirement WorkloadRequirement `json:"requirement" yaml:"requirement"`
	Settings    ResolveSettings     `json:"settings,omitempty" yaml:"settings,omitempty"`
}

// GetDefaultResolveSettings returns settings suitable for interactive use.
func GetDefaultResolveSettings() *ResolveSettings {
	return &ResolveSettings{
		ForceSubBlockTargeting: false,
		MaxConcurrency:         4,
	}
}

// LoadConfig reads a Config from a YAML (or JSON) file and validates it.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	cfg := &Config{Settings: *GetDefaultResolveSettings()}
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file %s: %w", path, err)
	}
	if err := cfg.Requirement.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	if cfg.Settings.MaxConcurrency <= 0 {
		cfg.Settings.MaxConcurrency = GetDefaultResolveSettings().MaxConcurrency
	}
	return cfg, nil
}
