package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// GlobalConfigPath returns the path to the global configuration file.
// MODEMCHECK_CONFIG overrides the default location.
func GlobalConfigPath() (string, error) {
	if p := os.Getenv("MODEMCHECK_CONFIG"); p != "" {
		return p, nil
	}
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get config directory: %w", err)
	}
	return filepath.Join(configDir, "modemcheck", "config.yaml"), nil
}

// LoadGlobalConfig loads the global configuration from ~/.config/modemcheck/config.yaml.
// If the file doesn't exist, returns default configuration (not an error).
// If the file exists but is invalid YAML, returns an error.
func LoadGlobalConfig() (GlobalConfig, error) {
	configPath, err := GlobalConfigPath()
	if err != nil {
		return DefaultGlobalConfig(), nil
	}
	return LoadGlobalConfigFrom(configPath)
}

// LoadGlobalConfigFrom loads a global configuration from an explicit path.
func LoadGlobalConfigFrom(configPath string) (GlobalConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultGlobalConfig(), nil
		}
		return GlobalConfig{}, fmt.Errorf("failed to read global config: %w", err)
	}

	var cfg GlobalConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return GlobalConfig{}, fmt.Errorf("invalid YAML in %s: %w", configPath, err)
	}

	return applyGlobalDefaults(cfg), nil
}

// applyGlobalDefaults fills in missing fields with default values.
func applyGlobalDefaults(cfg GlobalConfig) GlobalConfig {
	defaults := DefaultGlobalConfig()

	if cfg.Version == 0 {
		cfg.Version = defaults.Version
	}
	if cfg.Rzsz == "" {
		cfg.Rzsz = defaults.Rzsz
	}

	if cfg.Link.Provider == "" {
		cfg.Link.Provider = defaults.Link.Provider
	}
	if len(cfg.Link.Command) == 0 {
		cfg.Link.Command = defaults.Link.Command
	}
	if cfg.Link.Wait == 0 {
		cfg.Link.Wait = defaults.Link.Wait
	}

	if cfg.Serial.Speed == 0 {
		cfg.Serial.Speed = defaults.Serial.Speed
	}
	if cfg.Serial.StopBits == 0 {
		cfg.Serial.StopBits = defaults.Serial.StopBits
	}

	if cfg.Timing.Settle == 0 {
		cfg.Timing.Settle = defaults.Timing.Settle
	}
	if cfg.Timing.ReadyTimeout == 0 {
		cfg.Timing.ReadyTimeout = defaults.Timing.ReadyTimeout
	}

	if cfg.Comparator.Kind == "" {
		cfg.Comparator.Kind = defaults.Comparator.Kind
	}
	if cfg.Comparator.Kind == "diff" && len(cfg.Comparator.Command) == 0 {
		cfg.Comparator.Command = defaults.Comparator.Command
	}

	return cfg
}

