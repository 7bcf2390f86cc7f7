package gitutil

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// runGit runs a git command in dir and fails the test on error.
func runGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = cleanGitEnv()
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v failed: %v\n%s", args, err, out)
	}
	return strings.TrimSpace(string(out))
}

// setupTestRepo creates a temporary git repository with one commit.
func setupTestRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	dir := t.TempDir()
	runGit(t, dir, "init")
	runGit(t, dir, "config", "user.email", "test@example.com")
	runGit(t, dir, "config", "user.name", "Test User")

	if err := os.WriteFile(filepath.Join(dir, "rzsz.c"), []byte("int main(void) { return 0; }\n"), 0644); err != nil {
		t.Fatalf("failed to write source: %v", err)
	}
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-m", "Initial commit")

	return dir
}

func TestCurrentBranch(t *testing.T) {
	repoDir := setupTestRepo(t)

	t.Run("feature branch", func(t *testing.T) {
		runGit(t, repoDir, "checkout", "-b", "feature/crc")

		branch, err := CurrentBranch(repoDir)
		if err != nil {
			t.Fatalf("CurrentBranch() failed: %v", err)
		}
		if branch != "feature/crc" {
			t.Errorf("CurrentBranch() = %q, want feature/crc", branch)
		}
	})

	t.Run("detached HEAD", func(t *testing.T) {
		head := runGit(t, repoDir, "rev-parse", "HEAD")
		runGit(t, repoDir, "checkout", head)

		_, err := CurrentBranch(repoDir)
		if !errors.Is(err, ErrDetachedHead) {
			t.Errorf("CurrentBranch() error = %v, want ErrDetachedHead", err)
		}
	})

	t.Run("not a git repo", func(t *testing.T) {
		_, err := CurrentBranch(t.TempDir())
		if !errors.Is(err, ErrNotGitRepo) {
			t.Errorf("CurrentBranch() error = %v, want ErrNotGitRepo", err)
		}
	})
}

func TestCommit(t *testing.T) {
	repoDir := setupTestRepo(t)

	commit, err := Commit(repoDir)
	if err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
	if want := runGit(t, repoDir, "rev-parse", "--short", "HEAD"); commit != want {
		t.Errorf("Commit() = %q, want %q", commit, want)
	}

	t.Run("no commits", func(t *testing.T) {
		empty := t.TempDir()
		runGit(t, empty, "init")
		if _, err := Commit(empty); !errors.Is(err, ErrNoCommits) {
			t.Errorf("Commit() error = %v, want ErrNoCommits", err)
		}
	})

	t.Run("not a git repo", func(t *testing.T) {
		if _, err := Commit(t.TempDir()); !errors.Is(err, ErrNotGitRepo) {
			t.Errorf("Commit() error = %v, want ErrNotGitRepo", err)
		}
	})
}

func TestRevision(t *testing.T) {
	repoDir := setupTestRepo(t)
	runGit(t, repoDir, "checkout", "-b", "main-test")
	commit := runGit(t, repoDir, "rev-parse", "--short", "HEAD")

	t.Run("clean branch", func(t *testing.T) {
		rev, err := Revision(repoDir)
		if err != nil {
			t.Fatalf("Revision() failed: %v", err)
		}
		if want := "main-test@" + commit; rev != want {
			t.Errorf("Revision() = %q, want %q", rev, want)
		}
	})

	t.Run("untracked files do not count", func(t *testing.T) {
		if err := os.WriteFile(filepath.Join(repoDir, "tests.log"), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
		dirty, err := IsDirty(repoDir)
		if err != nil {
			t.Fatal(err)
		}
		if dirty {
			t.Error("IsDirty() = true for untracked file only")
		}
	})

	t.Run("dirty", func(t *testing.T) {
		if err := os.WriteFile(filepath.Join(repoDir, "rzsz.c"), []byte("int main(void) { return 1; }\n"), 0644); err != nil {
			t.Fatal(err)
		}
		rev, err := Revision(repoDir)
		if err != nil {
			t.Fatalf("Revision() failed: %v", err)
		}
		if want := "main-test@" + commit + "-dirty"; rev != want {
			t.Errorf("Revision() = %q, want %q", rev, want)
		}
		runGit(t, repoDir, "checkout", "--", "rzsz.c")
	})

	t.Run("detached", func(t *testing.T) {
		runGit(t, repoDir, "checkout", "--detach")
		rev, err := Revision(repoDir)
		if err != nil {
			t.Fatalf("Revision() failed: %v", err)
		}
		if rev != commit {
			t.Errorf("Revision() = %q, want %q", rev, commit)
		}
	})

	t.Run("not a git repo", func(t *testing.T) {
		if _, err := Revision(t.TempDir()); !errors.Is(err, ErrNotGitRepo) {
			t.Errorf("Revision() error = %v, want ErrNotGitRepo", err)
		}
	})
}

func TestIsInsideWorkTree(t *testing.T) {
	repoDir := setupTestRepo(t)

	t.Run("inside work tree", func(t *testing.T) {
		if !IsInsideWorkTree(repoDir) {
			t.Error("IsInsideWorkTree() = false, want true")
		}
	})

	t.Run("subdirectory", func(t *testing.T) {
		subDir := filepath.Join(repoDir, "src")
		if err := os.Mkdir(subDir, 0755); err != nil {
			t.Fatal(err)
		}

		if !IsInsideWorkTree(subDir) {
			t.Error("IsInsideWorkTree() = false for subdir, want true")
		}
	})

	t.Run("not a git repo", func(t *testing.T) {
		if IsInsideWorkTree(t.TempDir()) {
			t.Error("IsInsideWorkTree() = true for non-git dir, want false")
		}
	})
}
