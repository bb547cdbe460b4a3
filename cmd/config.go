package cmd

import (
	"fmt"
	"os"

	"github.com/creasty/defaults"
	"github.com/ethpandaops/crashpull/pkg/engine"
	"gopkg.in/yaml.v3"
)

// Environment overrides applied after the config file
const (
	EnvRemoteURL = "CRASHPULL_REMOTE_URL"
	EnvCacheDir  = "CRASHPULL_CACHE_DIR"
)

// LoadConfig loads the engine configuration from a YAML file. A missing file yields the
// defaults. Environment overrides are applied last and the result is validated.
func LoadConfig(path string) (*engine.Config, error) {
	if path == "" {
		path = "config.yaml"
	}

	config := &engine.Config{}

	if err := defaults.Set(config); err != nil {
		return nil, err
	}

	yamlFile, err := os.ReadFile(path) //nolint:gosec // User-provided config file path
	switch {
	case err == nil:
		if err := yaml.Unmarshal(yamlFile, config); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// File doesn't exist, use defaults and environment variables
	default:
		return nil, err
	}

	if v := os.Getenv(EnvRemoteURL); v != "" {
		config.Remote.URL = v
	}

	if v := os.Getenv(EnvCacheDir); v != "" {
		config.Cache.Dir = v
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}
