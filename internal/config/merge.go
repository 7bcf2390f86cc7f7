package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/Quidge/modemcheck/internal/pathutil"
)

// FlagOverrides contains CLI flag values that override configuration.
type FlagOverrides struct {
	Rzsz       string
	Speed      int
	StopBits   int
	Settle     time.Duration
	Comparator string
	Matrix     string
	WorkDir    string
	History    string
	NoHistory  bool
}

// Merge combines global config, project config, and CLI flag overrides
// following the precedence order: defaults → global → project → flags.
// projectDir anchors every relative path found in the project config.
func Merge(global GlobalConfig, project ProjectConfig, projectDir string, flags FlagOverrides) (MergedConfig, error) {
	merged := MergedConfig{
		ProjectDir: projectDir,
		Link:       global.Link,
		Serial:     global.Serial,
		Timing:     global.Timing,
		Comparator: global.Comparator,
		Matrix:     project.Matrix,
	}

	// Work directory: project → flags
	workDir := projectDir
	if project.WorkDir != "" {
		wd, err := resolve(projectDir, project.WorkDir)
		if err != nil {
			return MergedConfig{}, fmt.Errorf("work_dir: %w", err)
		}
		workDir = wd
	}
	if flags.WorkDir != "" {
		wd, err := filepath.Abs(flags.WorkDir)
		if err != nil {
			return MergedConfig{}, fmt.Errorf("work dir: %w", err)
		}
		workDir = wd
	}
	merged.WorkDir = workDir

	// Transfer executable: global → project → flags
	rzsz := global.Rzsz
	if project.Rzsz != "" {
		rzsz = project.Rzsz
	}
	if flags.Rzsz != "" {
		rzsz = flags.Rzsz
	}
	expanded, err := ExpandPath(rzsz)
	if err != nil {
		return MergedConfig{}, fmt.Errorf("rzsz: %w", err)
	}
	merged.Rzsz = pathutil.ResolveCommand(workDir, expanded)

	if flags.Speed != 0 {
		merged.Serial.Speed = flags.Speed
	}
	if flags.StopBits != 0 {
		merged.Serial.StopBits = flags.StopBits
	}
	if flags.Settle != 0 {
		merged.Timing.Settle = Duration(flags.Settle)
	}
	if flags.Comparator != "" {
		merged.Comparator.Kind = flags.Comparator
		if flags.Comparator == "diff" && len(merged.Comparator.Command) == 0 {
			merged.Comparator.Command = []string{"diff"}
		}
	}
	if flags.Matrix != "" {
		merged.Matrix = flags.Matrix
		merged.Scenarios = nil
	}

	// History database
	merged.HistoryEnabled = !global.History.Disabled && !flags.NoHistory
	historyPath := global.History.Path
	if flags.History != "" {
		historyPath = flags.History
	}
	if historyPath != "" {
		if merged.HistoryPath, err = ExpandPath(historyPath); err != nil {
			return MergedConfig{}, fmt.Errorf("history path: %w", err)
		}
	}

	// Harness-owned files live in the work directory
	if merged.ResultsDir, err = resolve(workDir, project.ResultsDir); err != nil {
		return MergedConfig{}, fmt.Errorf("results_dir: %w", err)
	}
	logs := project.Logs
	for _, p := range []*string{&logs.Emission, &logs.Reception, &logs.Link, &logs.Harness} {
		if *p, err = resolve(workDir, *p); err != nil {
			return MergedConfig{}, fmt.Errorf("logs: %w", err)
		}
	}
	merged.Logs = logs

	if project.Env != nil {
		expandedEnv, err := ExpandEnvMap(project.Env)
		if err != nil {
			return MergedConfig{}, fmt.Errorf("failed to expand environment variables: %w", err)
		}
		merged.Env = expandedEnv
	}

	if flags.Matrix == "" && len(project.Scenarios) > 0 {
		scenarios, err := ExpandScenarioPaths(project.Scenarios, workDir)
		if err != nil {
			return MergedConfig{}, fmt.Errorf("failed to expand scenarios: %w", err)
		}
		merged.Scenarios = scenarios
	}

	if err := Validate(merged); err != nil {
		return MergedConfig{}, err
	}

	return merged, nil
}

// Load loads both global and project configuration, then merges them
// with the provided flag overrides. The project is searched for starting
// at startDir.
func Load(startDir string, flags FlagOverrides) (MergedConfig, error) {
	global, err := LoadGlobalConfig()
	if err != nil {
		return MergedConfig{}, fmt.Errorf("failed to load global config: %w", err)
	}

	projectDir, project, err := LocateProject(startDir)
	if err != nil {
		return MergedConfig{}, fmt.Errorf("failed to load project config: %w", err)
	}

	return Merge(global, project, projectDir, flags)
}
