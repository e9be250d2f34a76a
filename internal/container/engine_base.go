// SPDX-License-Identifier: MPL-2.0

package container

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"maps"
	"os/exec"
	"slices"
	"strings"
	"time"

	"github.com/buildmatrix/buildmatrix/internal/issue"
)

// probeTimeout bounds the availability check of an engine.
const probeTimeout = 10 * time.Second

type (
	// ExecCommandFunc is the function signature for creating exec.Cmd.
	// This allows injection of mock implementations for testing.
	ExecCommandFunc func(ctx context.Context, name string, arg ...string) *exec.Cmd

	// VolumeFormatFunc formats a "host:container[:options]" volume spec for the -v flag.
	// Podman uses this to add SELinux labels.
	VolumeFormatFunc func(volume string) string

	// BaseCLIEngineOption configures a BaseCLIEngine.
	BaseCLIEngineOption func(*BaseCLIEngine)

	// BaseCLIEngine implements Engine over a docker-compatible CLI. Docker and
	// Podman embed it and differ only in name, probes and volume formatting.
	BaseCLIEngine struct {
		name            string
		binaryPath      string
		execCommand     ExecCommandFunc
		volumeFormatter VolumeFormatFunc
		probes          cliProbes
	}

	// cliProbes are the engine-specific commands behind Available, Version
	// and ImageExists.
	cliProbes struct {
		// versionFormat is the --format template of "version"
		versionFormat string
		// imageExists is the subcommand that exits 0 for a local image and 1
		// for a missing one
		imageExists []string
	}

	// VolumeMount is a parsed volume mount specification.
	VolumeMount struct {
		HostPath      string
		ContainerPath string
		ReadOnly      bool
		SELinux       string
	}
)

// WithName sets the engine name used in error messages.
func WithName(name string) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.name = name
	}
}

// WithBinaryPath overrides the engine binary resolved from PATH.
func WithBinaryPath(path string) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.binaryPath = path
	}
}

// WithExecCommand sets a custom exec command function for testing.
func WithExecCommand(fn ExecCommandFunc) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.execCommand = fn
	}
}

// WithVolumeFormatter sets a custom volume formatter function.
func WithVolumeFormatter(fn VolumeFormatFunc) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.volumeFormatter = fn
	}
}

func withProbes(p cliProbes) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.probes = p
	}
}

// NewBaseCLIEngine creates a new base engine with the given binary path.
func NewBaseCLIEngine(binaryPath string, opts ...BaseCLIEngineOption) *BaseCLIEngine {
	e := &BaseCLIEngine{
		binaryPath:      binaryPath,
		execCommand:     exec.CommandContext,
		volumeFormatter: func(v string) string { return v },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BinaryPath returns the path to the container engine binary.
func (e *BaseCLIEngine) BinaryPath() string {
	return e.binaryPath
}

// RunArgs constructs arguments for a container run command.
// Environment variables are emitted in key order so the command line is stable.
//
// Generated command: <binary> run [options] <image> [command...]
func (e *BaseCLIEngine) RunArgs(opts RunOptions) []string {
	args := []string{"run"}

	if opts.Remove {
		args = append(args, "--rm")
	}
	if opts.Name != "" {
		args = append(args, "--name", opts.Name)
	}
	if opts.Platform != "" {
		args = append(args, "--platform", opts.Platform)
	}
	if opts.WorkDir != "" {
		args = append(args, "-w", opts.WorkDir)
	}
	if opts.Stdin != nil {
		args = append(args, "-i")
	}

	for _, k := range slices.Sorted(maps.Keys(opts.Env)) {
		args = append(args, "-e", k+"="+opts.Env[k])
	}

	for _, v := range opts.Volumes {
		args = append(args, "-v", e.volumeFormatter(v))
	}

	args = append(args, opts.Image)
	return append(args, opts.Command...)
}

// Available reports whether the binary exists and the engine answers a
// version query within probeTimeout.
func (e *BaseCLIEngine) Available() bool {
	if e.binaryPath == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()
	_, err := e.Version(ctx)
	return err == nil
}

// Version returns the engine version reported by the CLI.
func (e *BaseCLIEngine) Version(ctx context.Context) (string, error) {
	out, err := e.RunCommandWithOutput(ctx, "version", "--format", e.probes.versionFormat)
	if err != nil {
		return "", fmt.Errorf("failed to get %s version: %w", e.name, err)
	}
	return strings.TrimSpace(out), nil
}

// ImageExists reports whether image is present locally. Failures other than
// a missing image are returned as errors.
func (e *BaseCLIEngine) ImageExists(ctx context.Context, image string) (bool, error) {
	err := e.RunCommandStatus(ctx, append(slices.Clone(e.probes.imageExists), image)...)
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return false, nil
	}
	return false, err
}

// PullArgs constructs arguments for an image pull command.
func (e *BaseCLIEngine) PullArgs(image string) []string {
	return []string{"pull", image}
}

// CreateCommand creates an exec.Cmd for the given arguments.
func (e *BaseCLIEngine) CreateCommand(ctx context.Context, args ...string) *exec.Cmd {
	return e.execCommand(ctx, e.binaryPath, args...)
}

// RunCommandStatus executes a command and returns only the error status.
func (e *BaseCLIEngine) RunCommandStatus(ctx context.Context, args ...string) error {
	cmd := e.CreateCommand(ctx, args...)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("command %s %v failed: %w", e.binaryPath, args, err)
	}
	return nil
}

// RunCommandWithOutput executes a command with stdout captured to a buffer.
func (e *BaseCLIEngine) RunCommandWithOutput(ctx context.Context, args ...string) (string, error) {
	cmd := e.CreateCommand(ctx, args...)
	var out bytes.Buffer
	cmd.Stdout = &out

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("command %s %v failed: %w", e.binaryPath, args, err)
	}

	return out.String(), nil
}

// Run runs a command in a container and returns the result.
// A non-zero exit code is captured in RunResult.ExitCode (not returned as error).
// Only infrastructure failures (binary not found, etc.) set RunResult.Error.
func (e *BaseCLIEngine) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	if strings.TrimSpace(opts.Image) == "" {
		return nil, runContainerError(e.name, opts, errors.New("no image specified"))
	}

	cmd := e.CreateCommand(ctx, e.RunArgs(opts)...)
	cmd.Stdin = opts.Stdin
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr

	result := &RunResult{}
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = 1
			result.Error = runContainerError(e.name, opts, err)
		}
	}

	return result, nil
}

// Pull fetches an image, wrapping failures in an actionable error.
func (e *BaseCLIEngine) Pull(ctx context.Context, image string) error {
	var stderr bytes.Buffer
	cmd := e.CreateCommand(ctx, e.PullArgs(image)...)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return pullImageError(e.name, image, err)
	}
	return nil
}

// FormatVolumeMount formats a volume mount as a string for -v flag.
func FormatVolumeMount(mount VolumeMount) string {
	var result strings.Builder
	result.WriteString(mount.HostPath)
	result.WriteString(":")
	result.WriteString(mount.ContainerPath)

	var options []string
	if mount.ReadOnly {
		options = append(options, "ro")
	}
	if mount.SELinux != "" {
		options = append(options, mount.SELinux)
	}

	if len(options) > 0 {
		result.WriteString(":")
		result.WriteString(strings.Join(options, ","))
	}

	return result.String()
}

// ParseVolumeMount parses a "host:container[:options]" volume string.
// Options can include ro, rw, z and Z.
func ParseVolumeMount(volume string) (VolumeMount, error) {
	mount := VolumeMount{}

	parts := strings.Split(volume, ":")
	if len(parts) < 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
		return mount, fmt.Errorf("invalid volume mount %q: want host:container[:options]", volume)
	}
	mount.HostPath = parts[0]
	mount.ContainerPath = parts[1]

	if len(parts) >= 3 {
		for opt := range strings.SplitSeq(parts[2], ",") {
			switch opt {
			case "ro":
				mount.ReadOnly = true
			case "z", "Z":
				mount.SELinux = opt
			}
		}
	}

	return mount, nil
}

func runContainerError(engine string, opts RunOptions, cause error) error {
	return issue.NewErrorContext().
		WithOperation("run container").
		WithResource(opts.Image).
		WithSuggestion("Verify the image exists (try: "+engine+" images)").
		WithSuggestion("Check that volume mount paths exist on the host").
		WithIssue(issue.ContainerEngineNotFoundId).
		Wrap(cause).
		BuildError()
}

func pullImageError(engine, image string, cause error) error {
	return issue.NewErrorContext().
		WithOperation("pull container image").
		WithResource(image).
		WithSuggestion("Check the image name and tag").
		WithSuggestion("Verify registry access (try: "+engine+" pull "+image+")").
		Wrap(cause).
		BuildError()
}
