// SPDX-License-Identifier: MPL-2.0

// Package runner provides the step execution environments: the host shell, an
// embedded POSIX interpreter, and container images.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	"github.com/buildmatrix/buildmatrix/pkg/workflow"
)

// Runner mode constants for the different execution environments.
const (
	ModeNative    Mode = "native"
	ModeVirtual   Mode = "virtual"
	ModeContainer Mode = "container"
)

var (
	// ErrInvalidMode is the sentinel error wrapped by InvalidModeError.
	ErrInvalidMode = errors.New("invalid runner mode")

	// ErrRunnerNotRegistered is returned when no runner is registered for a mode.
	ErrRunnerNotRegistered = errors.New("runner not registered")

	// ErrRunnerNotAvailable is returned when a registered runner cannot run on this host.
	ErrRunnerNotAvailable = errors.New("runner not available")

	// ErrEmptyScript is returned when a step has nothing to execute.
	ErrEmptyScript = errors.New("script has no content to execute")
)

type (
	// ExecutionContext contains all information needed to execute a script.
	ExecutionContext struct {
		// Context is the Go context for cancellation
		Context context.Context
		// Script is the script body
		Script string
		// Shell overrides the default shell (empty selects the platform default)
		Shell workflow.Shell
		// WorkDir is the host working directory (the job workspace)
		WorkDir string
		// Env holds variables layered over the inherited environment. Container
		// runs do not inherit the host environment.
		Env map[string]string
		// Stdin is where to read standard input
		Stdin io.Reader
		// Stdout is where to write standard output
		Stdout io.Writer
		// Stderr is where to write standard error
		Stderr io.Writer

		// Image is the container image (container mode only)
		Image string
		// Platform is the image platform, e.g. "linux/386" (container mode only)
		Platform string
		// Volumes are extra "host:container" mounts (container mode only)
		Volumes []string
		// ContainerWorkDir is where WorkDir is mounted inside the container
		ContainerWorkDir string
	}

	// Result contains the result of a script execution.
	Result struct {
		// ExitCode is the exit code of the script
		ExitCode ExitCode
		// Error contains an infrastructure error, if any
		Error error
		// Output contains captured stdout (when run through Capture)
		Output string
		// ErrOutput contains captured stderr (when run through Capture)
		ErrOutput string
	}

	// Runner defines the interface for script execution.
	Runner interface {
		// Name returns the runner name
		Name() string
		// Available returns whether this runner can run on the current system
		Available() bool
		// Validate checks if the script can be executed with this runner
		Validate(ctx *ExecutionContext) error
		// Execute runs the script
		Execute(ctx *ExecutionContext) *Result
	}

	// Mode identifies the type of runner.
	Mode string

	// InvalidModeError is returned for an unknown Mode.
	InvalidModeError struct {
		Value Mode
	}

	// Registry holds the runners keyed by mode.
	Registry struct {
		runners map[Mode]Runner
	}
)

func (c *ExecutionContext) context() context.Context {
	if c.Context == nil {
		return context.Background()
	}
	return c.Context
}

// Success returns true if the script executed successfully.
func (r *Result) Success() bool {
	return r.ExitCode.IsSuccess() && r.Error == nil
}

// Err returns the result as an error: the infrastructure error if any,
// otherwise an ExitError for non-zero exits.
func (r *Result) Err() error {
	if r.Error != nil {
		return r.Error
	}
	if !r.ExitCode.IsSuccess() {
		return &ExitError{Code: r.ExitCode}
	}
	return nil
}

// String returns the mode name.
func (m Mode) String() string { return string(m) }

// IsValid returns whether the Mode is a known runner mode.
func (m Mode) IsValid() (bool, []error) {
	switch m {
	case ModeNative, ModeVirtual, ModeContainer:
		return true, nil
	default:
		return false, []error{&InvalidModeError{Value: m}}
	}
}

func (e *InvalidModeError) Error() string {
	return fmt.Sprintf("invalid runner mode %q (valid: native, virtual, container)", e.Value)
}

func (e *InvalidModeError) Unwrap() error { return ErrInvalidMode }

// NewRegistry creates a new runner registry.
func NewRegistry() *Registry {
	return &Registry{
		runners: make(map[Mode]Runner),
	}
}

// Register adds a runner to the registry.
func (r *Registry) Register(mode Mode, rn Runner) {
	r.runners[mode] = rn
}

// Get returns a runner by mode.
func (r *Registry) Get(mode Mode) (Runner, error) {
	rn, ok := r.runners[mode]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunnerNotRegistered, mode)
	}
	return rn, nil
}

// Available returns the modes whose runners can run on this system, sorted.
func (r *Registry) Available() []Mode {
	var modes []Mode
	for mode, rn := range r.runners {
		if rn.Available() {
			modes = append(modes, mode)
		}
	}
	slices.Sort(modes)
	return modes
}

// Execute runs the script with the runner registered for mode.
func (r *Registry) Execute(mode Mode, ctx *ExecutionContext) *Result {
	rn, err := r.Get(mode)
	if err != nil {
		return NewErrorResult(1, err)
	}

	if !rn.Available() {
		return NewErrorResult(1, fmt.Errorf("%w: %s is not available on this system", ErrRunnerNotAvailable, rn.Name()))
	}

	if err := rn.Validate(ctx); err != nil {
		return NewErrorResult(1, err)
	}

	return rn.Execute(ctx)
}

// Capture runs the script through rn with stdout and stderr captured into the Result.
// The caller's writers are left untouched.
func Capture(rn Runner, ctx *ExecutionContext) *Result {
	var stdout, stderr bytes.Buffer
	captured := *ctx
	captured.Stdout = &stdout
	captured.Stderr = &stderr

	result := rn.Execute(&captured)
	result.Output = stdout.String()
	result.ErrOutput = stderr.String()
	return result
}

// EnvToSlice converts a map of environment variables to a sorted KEY=VALUE slice.
func EnvToSlice(env map[string]string) []string {
	result := make([]string, 0, len(env))
	for _, k := range slices.Sorted(maps.Keys(env)) {
		result = append(result, k+"="+env[k])
	}
	return result
}

// hostEnv returns the process environment with env layered on top.
func hostEnv(env map[string]string) []string {
	return append(os.Environ(), EnvToSlice(env)...)
}
