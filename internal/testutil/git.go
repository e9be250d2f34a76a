// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"errors"
	"os/exec"
	"strings"
	"testing"
)

// InitGitRepo creates a git repository in dir with files committed on
// branch master and returns the commit hash. The test is skipped when git is
// not installed.
func InitGitRepo(t testing.TB, dir string, files map[string]string) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	Git(t, dir, "init", "--quiet", "--initial-branch=master")
	Git(t, dir, "config", "user.email", "build@example.com")
	Git(t, dir, "config", "user.name", "build")
	Git(t, dir, "config", "commit.gpgsign", "false")
	for rel, content := range files {
		MustWriteFile(t, dir, rel, content)
	}
	return Commit(t, dir, "initial")
}

// Commit stages everything in dir, commits it and returns the new hash.
func Commit(t testing.TB, dir, message string) string {
	t.Helper()
	Git(t, dir, "add", "--all")
	Git(t, dir, "commit", "--quiet", "--allow-empty", "-m", message)
	return Git(t, dir, "rev-parse", "HEAD")
}

// Git runs git in dir and returns its trimmed standard output.
func Git(t testing.TB, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		var stderr string
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			stderr = string(ee.Stderr)
		}
		t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, stderr)
	}
	return strings.TrimSpace(string(out))
}
