// SPDX-License-Identifier: MPL-2.0

package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/buildmatrix/buildmatrix/internal/container"
	"github.com/buildmatrix/buildmatrix/internal/logging"
	"github.com/buildmatrix/buildmatrix/pkg/workflow"
)

const (
	// DefaultContainerWorkDir is where the job workspace is mounted.
	DefaultContainerWorkDir = "/workspace"
)

// ErrNoImage is returned when a container step has no image.
var ErrNoImage = errors.New("no container image specified")

type (
	// ContainerRunner executes scripts inside a fresh container per step.
	ContainerRunner struct {
		engine container.Engine
		retry  container.Retry
	}

	// ContainerOption configures a ContainerRunner.
	ContainerOption func(*ContainerRunner)
)

// WithRetry replaces the policy for transient engine failures.
func WithRetry(policy container.Retry) ContainerOption {
	return func(r *ContainerRunner) { r.retry = policy }
}

// NewContainerRunner creates a container runner backed by engine.
func NewContainerRunner(engine container.Engine, opts ...ContainerOption) *ContainerRunner {
	r := &ContainerRunner{engine: engine, retry: container.DefaultRetry}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name returns the runner name.
func (r *ContainerRunner) Name() string {
	return string(ModeContainer)
}

// Engine returns the underlying container engine.
func (r *ContainerRunner) Engine() container.Engine {
	return r.engine
}

// Available returns whether the container engine can be used.
func (r *ContainerRunner) Available() bool {
	return r.engine != nil && r.engine.Available()
}

// Validate checks that a script and an image are set.
func (r *ContainerRunner) Validate(ctx *ExecutionContext) error {
	if strings.TrimSpace(ctx.Script) == "" {
		return ErrEmptyScript
	}
	if strings.TrimSpace(ctx.Image) == "" {
		return ErrNoImage
	}
	if ctx.Shell != "" && !ctx.Shell.IsPOSIX() {
		return fmt.Errorf("container runner cannot run %s scripts in Linux images", ctx.Shell)
	}
	return nil
}

// Execute runs the script in the context's image with the workspace mounted.
func (r *ContainerRunner) Execute(ctx *ExecutionContext) *Result {
	if err := r.Validate(ctx); err != nil {
		return NewErrorResult(1, err)
	}

	if err := r.EnsureImage(ctx.context(), ctx.Image); err != nil {
		return NewErrorResult(1, err)
	}

	mountPoint := ctx.ContainerWorkDir
	if mountPoint == "" {
		mountPoint = DefaultContainerWorkDir
	}

	opts := container.RunOptions{
		Image:    ctx.Image,
		Platform: ctx.Platform,
		Command:  containerCommand(ctx.Shell, ctx.Script),
		WorkDir:  mountPoint,
		Env:      ctx.Env,
		Remove:   true,
		Stdin:    ctx.Stdin,
		Stdout:   ctx.Stdout,
		Stderr:   ctx.Stderr,
	}
	if ctx.WorkDir != "" {
		opts.Volumes = append(opts.Volumes, ctx.WorkDir+":"+mountPoint)
	}
	opts.Volumes = append(opts.Volumes, ctx.Volumes...)

	result, err := r.runWithRetry(ctx.context(), opts)
	if err != nil {
		return NewErrorResult(1, err)
	}
	if result.Error != nil {
		return NewErrorResult(ExitCode(result.ExitCode), result.Error)
	}
	return NewExitCodeResult(ExitCode(result.ExitCode))
}

// EnsureImage pulls image unless it is already present, retrying transient failures.
func (r *ContainerRunner) EnsureImage(ctx context.Context, image string) error {
	exists, err := r.engine.ImageExists(ctx, image)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	logging.FromContext(ctx).Info("pulling image", "image", image, "engine", r.engine.Name())
	return r.retry.Do(ctx, func(int) error {
		return r.engine.Pull(ctx, image)
	})
}

// runWithRetry wraps engine.Run with retries for transient engine failures.
// Stderr is buffered per attempt so engine noise from a retried attempt does
// not reach the caller; the final attempt's stderr is always flushed.
func (r *ContainerRunner) runWithRetry(ctx context.Context, opts container.RunOptions) (*container.RunResult, error) {
	logger := logging.FromContext(ctx)
	originalStderr := opts.Stderr

	var lastResult *container.RunResult
	var lastStderr *bytes.Buffer
	err := r.retry.Do(ctx, func(attempt int) error {
		var stderrBuf bytes.Buffer
		opts.Stderr = &stderrBuf
		lastStderr = &stderrBuf

		result, err := r.engine.Run(ctx, opts)
		if err != nil {
			if container.IsTransientError(err) {
				logger.Debug("transient container error", "attempt", attempt+1, "error", err)
			}
			return err
		}
		lastResult = result

		if result.ExitCode != 0 && container.IsTransientExitCode(result.ExitCode) {
			logger.Debug("transient container exit code", "attempt", attempt+1, "exit_code", result.ExitCode)
			return fmt.Errorf("%w: engine exited with %d", container.ErrTransient, result.ExitCode)
		}
		return nil
	})

	if lastStderr != nil {
		flushStderr(originalStderr, lastStderr)
	}

	// Transient exit codes that survive every retry are reported as the
	// script's exit status, not as an infrastructure error.
	if err != nil && lastResult != nil && container.IsTransientExitCode(lastResult.ExitCode) && ctx.Err() == nil {
		return lastResult, nil
	}
	if err != nil {
		return nil, err
	}
	return lastResult, nil
}

func flushStderr(dst io.Writer, src *bytes.Buffer) {
	if dst == nil || src.Len() == 0 {
		return
	}
	_, _ = io.Copy(dst, src)
}

func containerCommand(shell workflow.Shell, script string) []string {
	if shell == workflow.ShellBash {
		return []string{"bash", "-eo", "pipefail", "-c", script}
	}
	return []string{"/bin/sh", "-e", "-c", script}
}
