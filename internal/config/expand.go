package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/Quidge/modemcheck/internal/pathutil"
)

// envVarPattern matches ${VAR} or ${VAR:-default} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ExpandPath expands ${VAR} references and a leading ~ in path.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	return pathutil.ExpandTilde(ExpandEnvVars(path))
}

// ExpandEnvVars expands ${VAR} patterns in a string using environment variables.
// If a variable is not set, it expands to an empty string.
func ExpandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]

		// ${VAR:-default}
		if idx := strings.Index(varName, ":-"); idx != -1 {
			name := varName[:idx]
			defaultVal := varName[idx+2:]
			if val, ok := os.LookupEnv(name); ok {
				return val
			}
			return defaultVal
		}

		return os.Getenv(varName)
	})
}

// ReadFromFile reads the contents of a file and returns it as a string.
// The path is first expanded before reading.
func ReadFromFile(path string) (string, error) {
	expandedPath, err := ExpandPath(path)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(expandedPath)
	if err != nil {
		return "", fmt.Errorf("failed to read file %s: %w", path, err)
	}

	return strings.TrimRight(string(data), "\n\r"), nil
}

// ExpandEnvMap processes a map of EnvVar values, expanding environment
// variables and reading from_file references. Returns a map of string values.
func ExpandEnvMap(envVars map[string]EnvVar) (map[string]string, error) {
	result := make(map[string]string, len(envVars))

	for key, envVar := range envVars {
		var value string
		var err error

		if envVar.FromFile != "" {
			value, err = ReadFromFile(envVar.FromFile)
			if err != nil {
				return nil, fmt.Errorf("failed to expand env var %s: %w", key, err)
			}
		} else {
			value = ExpandEnvVars(envVar.Value)
		}

		result[key] = value
	}

	return result, nil
}

// resolve expands path and anchors it at base when relative.
func resolve(base, path string) (string, error) {
	expanded, err := ExpandPath(path)
	if err != nil {
		return "", err
	}
	return pathutil.ResolveRelative(base, expanded), nil
}

// ExpandScenarioPaths resolves the file paths of each scenario entry
// against baseDir (the work directory).
func ExpandScenarioPaths(entries []ScenarioEntry, baseDir string) ([]ScenarioEntry, error) {
	result := make([]ScenarioEntry, len(entries))
	for i, e := range entries {
		var err error
		out := e
		if out.Source, err = resolve(baseDir, e.Source); err != nil {
			return nil, fmt.Errorf("scenario %d source: %w", i, err)
		}
		if out.Expected, err = resolve(baseDir, e.Expected); err != nil {
			return nil, fmt.Errorf("scenario %d expected: %w", i, err)
		}
		if out.Result, err = resolve(baseDir, e.Result); err != nil {
			return nil, fmt.Errorf("scenario %d result: %w", i, err)
		}
		result[i] = out
	}
	return result, nil
}
