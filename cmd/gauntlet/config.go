package main

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-gauntlet/internal/coordinator"
	"github.com/ahrav/go-gauntlet/internal/domain"
	"github.com/ahrav/go-gauntlet/internal/llm/configuration"
)

// appConfig is the top-level YAML configuration file.
type appConfig struct {
	LLM         configuration.Config `yaml:"llm"`
	Coordinator coordinator.Config   `yaml:"coordinator"`
}

// loadConfig reads the YAML config, layering it over defaults. API keys
// are resolved from the environment after parsing so secrets never live
// in the file.
func loadConfig(path string) (*appConfig, error) {
	cfg := &appConfig{
		LLM:         configuration.Default(),
		Coordinator: coordinator.DefaultConfig(),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.LLM.ResolveAPIKeys()
	return cfg, nil
}

// loadCases reads the JSON test case catalog and validates every entry.
func loadCases(path string) ([]*domain.TestCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cases %s: %w", path, err)
	}
	var cases []*domain.TestCase
	if err := json.Unmarshal(data, &cases); err != nil {
		return nil, fmt.Errorf("failed to parse cases %s: %w", path, err)
	}
	for _, tc := range cases {
		if err := tc.Validate(); err != nil {
			return nil, fmt.Errorf("case %s: %w", tc.ID, err)
		}
	}
	return cases, nil
}

// loadTargets reads the JSON model target catalog.
func loadTargets(path string) ([]*domain.ModelTarget, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read targets %s: %w", path, err)
	}
	var targets []*domain.ModelTarget
	if err := json.Unmarshal(data, &targets); err != nil {
		return nil, fmt.Errorf("failed to parse targets %s: %w", path, err)
	}
	for _, t := range targets {
		if t.ID == "" || t.Provider == "" || t.Model == "" {
			return nil, fmt.Errorf("target %q: id, provider, and model are required", t.ID)
		}
	}
	return targets, nil
}
