// Package gitutil identifies the revision of the implementation under test so
// that each recorded run can be traced back to the code it exercised.
// It uses os/exec to call git commands rather than git libraries.
package gitutil

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

var (
	// ErrNotGitRepo is returned when the directory is not inside a git repository.
	ErrNotGitRepo = errors.New("not a git repository")

	// ErrDetachedHead is returned when the repository is in detached HEAD state.
	ErrDetachedHead = errors.New("repository is in detached HEAD state")

	// ErrNoCommits is returned when the repository has no commit yet.
	ErrNoCommits = errors.New("repository has no commits")
)

// cleanGitEnv returns the environment without GIT_* variables, which would
// otherwise redirect git to another repository (e.g. inside git hooks).
func cleanGitEnv() []string {
	var env []string
	for _, e := range os.Environ() {
		if !strings.HasPrefix(e, "GIT_") {
			env = append(env, e)
		}
	}
	return env
}

// git runs a git subcommand in dir and returns its trimmed standard output.
// If dir is empty, the current working directory is used.
func git(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	cmd.Env = cleanGitEnv()
	out, err := cmd.Output()
	return strings.TrimSpace(string(out)), err
}

// CurrentBranch returns the name of the current branch.
// Returns ErrDetachedHead if the repository is in detached HEAD state.
func CurrentBranch(dir string) (string, error) {
	out, err := git(dir, "symbolic-ref", "--short", "HEAD")
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if IsInsideWorkTree(dir) {
				return "", ErrDetachedHead
			}
			return "", ErrNotGitRepo
		}
		return "", fmt.Errorf("failed to get current branch: %w", err)
	}
	return out, nil
}

// Commit returns the abbreviated hash of HEAD.
func Commit(dir string) (string, error) {
	if !IsInsideWorkTree(dir) {
		return "", ErrNotGitRepo
	}
	out, err := git(dir, "rev-parse", "--short", "HEAD")
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", ErrNoCommits
		}
		return "", fmt.Errorf("failed to get commit: %w", err)
	}
	return out, nil
}

// IsDirty reports whether the work tree has uncommitted changes to tracked
// files.
func IsDirty(dir string) (bool, error) {
	out, err := git(dir, "status", "--porcelain", "--untracked-files=no")
	if err != nil {
		return false, fmt.Errorf("failed to get status: %w", err)
	}
	return out != "", nil
}

// Revision describes HEAD of the repository containing dir as
// "<branch>@<commit>", with a "-dirty" suffix for uncommitted changes. A
// detached HEAD is described by its commit alone.
func Revision(dir string) (string, error) {
	commit, err := Commit(dir)
	if err != nil {
		return "", err
	}

	rev := commit
	branch, err := CurrentBranch(dir)
	switch {
	case err == nil:
		rev = branch + "@" + commit
	case !errors.Is(err, ErrDetachedHead):
		return "", err
	}

	dirty, err := IsDirty(dir)
	if err != nil {
		return "", err
	}
	if dirty {
		rev += "-dirty"
	}
	return rev, nil
}

// IsInsideWorkTree returns true if dir is inside a git work tree.
// If dir is empty, the current working directory is used.
func IsInsideWorkTree(dir string) bool {
	out, err := git(dir, "rev-parse", "--is-inside-work-tree")
	if err != nil {
		return false
	}
	return out == "true"
}
