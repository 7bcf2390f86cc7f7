package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/Quidge/modemcheck/internal/config"
	"github.com/Quidge/modemcheck/internal/link"
	"github.com/Quidge/modemcheck/internal/orchestrator"
	"github.com/Quidge/modemcheck/internal/validate"
)

// loadConfig loads the merged configuration for the current invocation. The
// project file is searched for from --work-dir, or from the current
// directory.
func loadConfig(flags config.FlagOverrides) (config.MergedConfig, error) {
	startDir := workDir
	if startDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return config.MergedConfig{}, fmt.Errorf("failed to get current directory: %w", err)
		}
		startDir = cwd
	}
	flags.WorkDir = workDir

	cfg, err := config.Load(startDir, flags)
	if err != nil {
		return config.MergedConfig{}, err
	}
	return cfg, nil
}

// newProvider builds the link provider selected by cfg.
func newProvider(cfg config.MergedConfig, probe bool) (link.Provider, error) {
	lc := link.Config{
		Kind:      cfg.Link.Provider,
		Command:   cfg.Link.Command,
		Endpoints: cfg.Link.Endpoints,
		LogPath:   cfg.Logs.Link,
		Wait:      cfg.Link.Wait.D(),
	}
	if probe || cfg.Link.Probe {
		mode, err := cfg.Serial.Mode()
		if err != nil {
			return nil, err
		}
		lc.Probe = mode
	}
	return link.Get(lc)
}

// newOrchestrator builds the orchestrator for cfg. Comparison output goes to
// harnessLog.
func newOrchestrator(cfg config.MergedConfig, harnessLog io.Writer, log *slog.Logger) (*orchestrator.Orchestrator, error) {
	comparator, err := validate.NewComparator(cfg.Comparator.Kind, cfg.Comparator.Command)
	if err != nil {
		return nil, err
	}

	return &orchestrator.Orchestrator{
		Exec:           cfg.Rzsz,
		Speed:          cfg.Serial.Speed,
		StopBits:       cfg.Serial.StopBits,
		Settle:         cfg.Timing.Settle.D(),
		ReadyPattern:   cfg.Timing.ReadyPattern,
		ReadyTimeout:   cfg.Timing.ReadyTimeout.D(),
		ReceiveTimeout: cfg.Timing.ReceiveTimeout.D(),
		Env:            environ(cfg.Env),
		Logs: orchestrator.Logs{
			Emission:  cfg.Logs.Emission,
			Reception: cfg.Logs.Reception,
		},
		Validator: &validate.Validator{
			Comparator: comparator,
			Log:        harnessLog,
		},
		Log: log,
	}, nil
}

// environ converts an environment map into sorted KEY=VALUE pairs.
func environ(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
