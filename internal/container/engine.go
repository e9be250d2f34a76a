// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"fmt"
	"io"
)

const (
	// EngineTypePodman selects the podman CLI.
	EngineTypePodman EngineType = "podman"
	// EngineTypeDocker selects the docker CLI.
	EngineTypeDocker EngineType = "docker"
)

var (
	// ErrEngineNotAvailable is the sentinel wrapped by EngineNotAvailableError.
	ErrEngineNotAvailable = errors.New("container engine not available")

	// ErrInvalidEngineType is the sentinel wrapped by InvalidEngineTypeError.
	ErrInvalidEngineType = errors.New("invalid container engine type")
)

type (
	// Engine defines the interface for container operations.
	Engine interface {
		// Name returns the engine name (docker or podman)
		Name() string
		// Available checks if the engine is available on the system
		Available() bool
		// Version returns the engine version
		Version(ctx context.Context) (string, error)
		// Run runs a command in a fresh container
		Run(ctx context.Context, opts RunOptions) (*RunResult, error)
		// ImageExists checks if an image is present locally
		ImageExists(ctx context.Context, image string) (bool, error)
		// Pull fetches an image from its registry
		Pull(ctx context.Context, image string) error
	}

	// EngineType identifies the container engine type.
	EngineType string

	// InvalidEngineTypeError is returned for an unknown EngineType.
	InvalidEngineTypeError struct {
		Value EngineType
	}

	// RunOptions contains options for running a container.
	RunOptions struct {
		// Image is the image to run
		Image string
		// Command is the command to run
		Command []string
		// WorkDir is the working directory inside the container
		WorkDir string
		// Env contains environment variables
		Env map[string]string
		// Volumes are volume mounts in "host:container[:options]" format
		Volumes []string
		// Remove automatically removes the container after exit
		Remove bool
		// Name is the container name
		Name string
		// Platform selects the image variant (e.g. "linux/386")
		Platform string
		// Stdin is the standard input
		Stdin io.Reader
		// Stdout is where to write standard output
		Stdout io.Writer
		// Stderr is where to write standard error
		Stderr io.Writer
	}

	// RunResult contains the result of running a container.
	RunResult struct {
		// ExitCode is the exit code of the containerized command
		ExitCode int
		// Error is set for infrastructure failures (engine binary missing, etc.)
		Error error
	}

	// EngineNotAvailableError is returned when no usable container engine is found.
	EngineNotAvailableError struct {
		Engine string
		Reason string
	}
)

// String returns the engine type name.
func (t EngineType) String() string { return string(t) }

// IsValid returns whether the EngineType is a known engine.
func (t EngineType) IsValid() (bool, []error) {
	switch t {
	case EngineTypePodman, EngineTypeDocker:
		return true, nil
	default:
		return false, []error{&InvalidEngineTypeError{Value: t}}
	}
}

func (e *InvalidEngineTypeError) Error() string {
	return fmt.Sprintf("invalid container engine %q (valid: podman, docker)", e.Value)
}

func (e *InvalidEngineTypeError) Unwrap() error { return ErrInvalidEngineType }

func (e *EngineNotAvailableError) Error() string {
	return fmt.Sprintf("container engine '%s' is not available: %s", e.Engine, e.Reason)
}

func (e *EngineNotAvailableError) Unwrap() error { return ErrEngineNotAvailable }

// NewEngine creates a container engine based on preference, falling back to the
// other engine when the preferred one is not usable.
func NewEngine(preferredType EngineType, opts ...BaseCLIEngineOption) (Engine, error) {
	if ok, errs := preferredType.IsValid(); !ok {
		return nil, errs[0]
	}

	podman := NewPodmanEngine(opts...)
	docker := NewDockerEngine(opts...)

	candidates := []Engine{podman, docker}
	fallback := "docker"
	if preferredType == EngineTypeDocker {
		candidates = []Engine{docker, podman}
		fallback = "podman"
	}

	for _, engine := range candidates {
		if engine.Available() {
			return engine, nil
		}
	}

	return nil, &EngineNotAvailableError{
		Engine: string(preferredType),
		Reason: fmt.Sprintf("%s is not installed or not accessible, and %s fallback is also not available", preferredType, fallback),
	}
}

// AutoDetectEngine tries to find an available container engine.
func AutoDetectEngine(opts ...BaseCLIEngineOption) (Engine, error) {
	// Podman first: it is the common choice on rootless build hosts
	if podman := NewPodmanEngine(opts...); podman.Available() {
		return podman, nil
	}
	if docker := NewDockerEngine(opts...); docker.Available() {
		return docker, nil
	}

	return nil, &EngineNotAvailableError{
		Engine: "any",
		Reason: "no container engine (podman or docker) is available on this system",
	}
}
