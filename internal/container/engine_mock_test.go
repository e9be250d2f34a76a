// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"testing"
)

type (
	// mockCommandRecorder captures arguments passed to exec.Command for verification.
	// It uses the TestHelperProcess pattern to simulate command execution.
	mockCommandRecorder struct {
		mu          sync.Mutex
		invocations [][]string
		exitCode    int
		stdout      string
		stderr      string
	}
)

// commandFunc returns an ExecCommandFunc that records invocations and runs TestHelperProcess.
func (m *mockCommandRecorder) commandFunc() ExecCommandFunc {
	return func(ctx context.Context, name string, args ...string) *exec.Cmd {
		m.mu.Lock()
		m.invocations = append(m.invocations, append([]string{name}, args...))
		m.mu.Unlock()

		cs := []string{"-test.run=TestHelperProcess", "--", name}
		cs = append(cs, args...)
		cmd := exec.CommandContext(ctx, os.Args[0], cs...)
		cmd.Env = []string{
			"GO_WANT_HELPER_PROCESS=1",
			fmt.Sprintf("GO_HELPER_EXIT_CODE=%d", m.exitCode),
			"GO_HELPER_STDOUT=" + m.stdout,
			"GO_HELPER_STDERR=" + m.stderr,
		}
		return cmd
	}
}

func (m *mockCommandRecorder) lastArgs(t *testing.T) []string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.invocations) == 0 {
		t.Fatal("no commands were invoked")
	}
	return m.invocations[len(m.invocations)-1]
}

func (m *mockCommandRecorder) assertLastCommand(t *testing.T, want string) {
	t.Helper()
	if got := strings.Join(m.lastArgs(t), " "); got != want {
		t.Errorf("command = %q, want %q", got, want)
	}
}

// TestHelperProcess is not a real test; it is the fake engine binary.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	if stdout := os.Getenv("GO_HELPER_STDOUT"); stdout != "" {
		fmt.Fprint(os.Stdout, stdout)
	}
	if stderr := os.Getenv("GO_HELPER_STDERR"); stderr != "" {
		fmt.Fprint(os.Stderr, stderr)
	}

	exitCode := 0
	if code := os.Getenv("GO_HELPER_EXIT_CODE"); code != "" {
		fmt.Sscanf(code, "%d", &exitCode)
	}
	os.Exit(exitCode)
}

func newMockDocker(m *mockCommandRecorder) *DockerEngine {
	return NewDockerEngine(WithBinaryPath("docker"), WithExecCommand(m.commandFunc()))
}

func newMockPodman(m *mockCommandRecorder) *PodmanEngine {
	return NewPodmanEngine(
		WithBinaryPath("podman"),
		WithExecCommand(m.commandFunc()),
		WithVolumeFormatter(selinuxLabeler(func() bool { return true })),
	)
}
