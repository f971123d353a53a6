package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads and parses a workflow configuration from the given YAML file path.
// After parsing, it applies defaults to steps and overrides that don't specify
// their own values.
func Load(path string) (*WorkflowConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg WorkflowConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault searches for a workflow config in standard locations and loads the
// first one found. Search order: ./conveyor.yaml, ~/.conveyor/config.yaml
func LoadDefault() (*WorkflowConfig, error) {
	candidates := []string{"conveyor.yaml"}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".conveyor", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	return nil, fmt.Errorf("no workflow config found (searched: %v)", candidates)
}

// applyDefaults merges workflow-level defaults into steps and per-os overrides,
// and synthesizes an override entry for any declared os that lacks one so that
// matrix expansion always finds a complete override set.
func applyDefaults(cfg *WorkflowConfig) {
	w := &cfg.Workflow

	for name, s := range w.Steps {
		if s.Timeout == "" && w.Defaults.Timeout != "" {
			s.Timeout = w.Defaults.Timeout
			w.Steps[name] = s
		}
	}

	covered := make(map[string]bool)
	for i := range w.Matrix.Include {
		ov := &w.Matrix.Include[i]
		if ov.EnvironmentFile == "" && w.Defaults.EnvironmentFile != "" {
			ov.EnvironmentFile = w.Defaults.EnvironmentFile
		}
		covered[ov.OS] = true
	}
	for _, osName := range w.Matrix.OS {
		if !covered[osName] {
			w.Matrix.Include = append(w.Matrix.Include, OSOverride{
				OS:              osName,
				EnvironmentFile: w.Defaults.EnvironmentFile,
			})
		}
	}
}

// OverrideFor returns the override entry for the given os, or a zero value if
// none exists (possible only for an os absent from the matrix).
func (m *Matrix) OverrideFor(osName string) OSOverride {
	for _, ov := range m.Include {
		if ov.OS == osName {
			return ov
		}
	}
	return OSOverride{OS: osName}
}
