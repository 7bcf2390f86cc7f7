// Package pathutil provides utilities for path resolution and validation.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExpandTilde expands ~ to the user's home directory.
// Returns the path unchanged if it doesn't start with ~.
func ExpandTilde(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	if path == "~" {
		return os.UserHomeDir()
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(home, path[2:]), nil
	}

	return path, nil
}

// ResolveRelative resolves a path relative to a base directory.
// If path is absolute, it is returned unchanged (after cleaning).
// If path is relative, it is joined with base and cleaned.
func ResolveRelative(base, path string) string {
	if path == "" {
		return ""
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Clean(filepath.Join(base, path))
}

// ResolveCommand resolves an executable reference against base. Bare names
// without a separator ("socat", "diff") are left for PATH lookup.
func ResolveCommand(base, command string) string {
	if command == "" || !strings.ContainsRune(command, filepath.Separator) {
		return command
	}
	return ResolveRelative(base, command)
}

// Exists returns true if the path exists on the filesystem.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ExistsAndIsDir returns true if the path exists and is a directory.
func ExistsAndIsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// ExistsAndIsFile returns true if the path exists and is a regular file.
func ExistsAndIsFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// EnsureParent creates the parent directory of path if needed.
func EnsureParent(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// Truncate empties path, creating it (and its parent) if it does not exist.
func Truncate(path string) error {
	if err := EnsureParent(path); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	return f.Close()
}

// OpenAppend opens path for appending, creating it if needed.
func OpenAppend(path string) (*os.File, error) {
	if err := EnsureParent(path); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
}
