// SPDX-License-Identifier: MPL-2.0

package runner

import (
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/buildmatrix/buildmatrix/pkg/platform"
	"github.com/buildmatrix/buildmatrix/pkg/workflow"
)

// ErrNoShell is returned when no usable shell is found on the host.
var ErrNoShell = errors.New("no shell found")

type (
	// LookPathFunc resolves an executable name the way exec.LookPath does.
	LookPathFunc func(file string) (string, error)

	// NativeRunner executes scripts with the host shell.
	NativeRunner struct {
		lookPath LookPathFunc
		goos     string
	}

	// NativeOption configures a NativeRunner.
	NativeOption func(*NativeRunner)
)

// WithLookPath replaces exec.LookPath for shell resolution.
func WithLookPath(fn LookPathFunc) NativeOption {
	return func(r *NativeRunner) { r.lookPath = fn }
}

// WithPlatform overrides the host platform family used to pick the default shell.
func WithPlatform(family string) NativeOption {
	return func(r *NativeRunner) { r.goos = family }
}

// NewNativeRunner creates a new native runner.
func NewNativeRunner(opts ...NativeOption) *NativeRunner {
	r := &NativeRunner{lookPath: exec.LookPath, goos: platform.HostFamily()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name returns the runner name.
func (r *NativeRunner) Name() string {
	return string(ModeNative)
}

// Available returns whether a default shell exists.
func (r *NativeRunner) Available() bool {
	_, err := r.resolveShell("")
	return err == nil
}

// Validate checks that the script is non-empty and its shell resolvable.
func (r *NativeRunner) Validate(ctx *ExecutionContext) error {
	if strings.TrimSpace(ctx.Script) == "" {
		return ErrEmptyScript
	}
	if ok, errs := ctx.Shell.IsValid(); !ok {
		return errs[0]
	}
	_, err := r.resolveShell(ctx.Shell)
	return err
}

// Execute runs the script with the selected shell.
func (r *NativeRunner) Execute(ctx *ExecutionContext) *Result {
	argv, err := r.Command(ctx.Shell, ctx.Script)
	if err != nil {
		return NewErrorResult(1, err)
	}

	cmd := exec.CommandContext(ctx.context(), argv[0], argv[1:]...)
	cmd.Dir = ctx.WorkDir
	cmd.Env = hostEnv(ctx.Env)
	cmd.Stdin = ctx.Stdin
	cmd.Stdout = ctx.Stdout
	cmd.Stderr = ctx.Stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return NewExitCodeResult(ExitCode(exitErr.ExitCode()))
		}
		return NewErrorResult(1, fmt.Errorf("failed to execute script: %w", err))
	}

	return NewSuccessResult()
}

// Command returns the argv that runs script with shell on this host.
func (r *NativeRunner) Command(shell workflow.Shell, script string) ([]string, error) {
	path, err := r.resolveShell(shell)
	if err != nil {
		return nil, err
	}
	argv := append([]string{path}, ShellArgs(path)...)
	return append(argv, script), nil
}

// resolveShell finds the executable for shell, or the platform default when empty.
func (r *NativeRunner) resolveShell(shell workflow.Shell) (string, error) {
	var candidates []string
	switch {
	case shell != "":
		candidates = []string{string(shell)}
		if shell == workflow.ShellPwsh {
			candidates = append(candidates, string(workflow.ShellPowerShell))
		}
	case r.goos == platform.Windows:
		candidates = []string{"pwsh", "powershell", "cmd"}
	default:
		candidates = []string{"bash", "sh"}
	}

	for _, c := range candidates {
		if path, err := r.lookPath(c); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w (tried %s)", ErrNoShell, strings.Join(candidates, ", "))
}

// ShellArgs returns the arguments placed between a shell and its script.
// POSIX shells stop at the first failing command.
func ShellArgs(shellPath string) []string {
	base := strings.TrimSuffix(filepath.Base(shellPath), ".exe")

	switch workflow.Shell(strings.ToLower(base)) {
	case workflow.ShellCmd:
		return []string{"/D", "/C"}
	case workflow.ShellPwsh, workflow.ShellPowerShell:
		return []string{"-NoProfile", "-NonInteractive", "-Command"}
	case workflow.ShellBash:
		return []string{"--noprofile", "--norc", "-eo", "pipefail", "-c"}
	default:
		return []string{"-e", "-c"}
	}
}
