package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ProjectConfigFilename is the name of the project configuration file.
const ProjectConfigFilename = "modemcheck.yaml"

// FindProjectConfig searches for a modemcheck.yaml file starting from the given
// directory and walking up to parent directories until it finds one or reaches
// the filesystem root.
func FindProjectConfig(startDir string) (string, error) {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ProjectConfigFilename)
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// LoadProjectConfig loads the project configuration from modemcheck.yaml.
// If the file doesn't exist, returns default configuration (not an error).
// If the file exists but is invalid YAML, returns an error.
func LoadProjectConfig(configPath string) (ProjectConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultProjectConfig(), nil
		}
		return ProjectConfig{}, fmt.Errorf("failed to read project config: %w", err)
	}

	var cfg ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return ProjectConfig{}, fmt.Errorf("invalid YAML in %s: %w", configPath, err)
	}

	return applyProjectDefaults(cfg), nil
}

// LocateProject finds the project directory and configuration starting at
// startDir. When no modemcheck.yaml exists, startDir itself is the project
// directory and defaults apply.
func LocateProject(startDir string) (string, ProjectConfig, error) {
	configPath, err := FindProjectConfig(startDir)
	if err != nil || configPath == "" {
		return startDir, DefaultProjectConfig(), nil
	}
	cfg, err := LoadProjectConfig(configPath)
	if err != nil {
		return "", ProjectConfig{}, err
	}
	return filepath.Dir(configPath), cfg, nil
}

// applyProjectDefaults fills in missing fields with default values.
func applyProjectDefaults(cfg ProjectConfig) ProjectConfig {
	defaults := DefaultProjectConfig()

	if cfg.Version == 0 {
		cfg.Version = defaults.Version
	}
	if cfg.ResultsDir == "" {
		cfg.ResultsDir = defaults.ResultsDir
	}
	if cfg.Logs.Emission == "" {
		cfg.Logs.Emission = defaults.Logs.Emission
	}
	if cfg.Logs.Reception == "" {
		cfg.Logs.Reception = defaults.Logs.Reception
	}
	if cfg.Logs.Link == "" {
		cfg.Logs.Link = defaults.Logs.Link
	}
	if cfg.Logs.Harness == "" {
		cfg.Logs.Harness = defaults.Logs.Harness
	}
	if cfg.Matrix == "" && len(cfg.Scenarios) == 0 {
		cfg.Matrix = defaults.Matrix
	}

	return cfg
}

// ProjectConfigExists checks if a modemcheck.yaml file exists in the given directory.
func ProjectConfigExists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ProjectConfigFilename))
	return err == nil
}
