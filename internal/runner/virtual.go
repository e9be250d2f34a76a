// SPDX-License-Identifier: MPL-2.0

package runner

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// VirtualRunner executes scripts with the embedded mvdan/sh interpreter.
// External commands still resolve through the inherited PATH.
type VirtualRunner struct{}

// NewVirtualRunner creates a new virtual runner.
func NewVirtualRunner() *VirtualRunner {
	return &VirtualRunner{}
}

// Name returns the runner name.
func (r *VirtualRunner) Name() string {
	return string(ModeVirtual)
}

// Available returns true: the interpreter is built in.
func (r *VirtualRunner) Available() bool {
	return true
}

// Validate checks the script parses as POSIX/bash shell.
func (r *VirtualRunner) Validate(ctx *ExecutionContext) error {
	if strings.TrimSpace(ctx.Script) == "" {
		return ErrEmptyScript
	}
	if ctx.Shell != "" && !ctx.Shell.IsPOSIX() {
		return fmt.Errorf("virtual runner cannot run %s scripts", ctx.Shell)
	}
	if _, err := ParseScript(ctx.Script); err != nil {
		return err
	}
	return nil
}

// Execute runs the script in-process with errexit set.
func (r *VirtualRunner) Execute(ctx *ExecutionContext) *Result {
	prog, err := ParseScript(ctx.Script)
	if err != nil {
		return NewErrorResult(1, err)
	}

	workDir := ctx.WorkDir
	if workDir == "" {
		if workDir, err = os.Getwd(); err != nil {
			return NewErrorResult(1, fmt.Errorf("failed to resolve working directory: %w", err))
		}
	}

	sh, err := interp.New(
		interp.Dir(workDir),
		interp.Env(expand.ListEnviron(hostEnv(ctx.Env)...)),
		interp.StdIO(ctx.Stdin, ctx.Stdout, ctx.Stderr),
		interp.Params("-e"),
	)
	if err != nil {
		return NewErrorResult(1, fmt.Errorf("failed to create interpreter: %w", err))
	}

	if err := sh.Run(ctx.context(), prog); err != nil {
		var exitStatus interp.ExitStatus
		if errors.As(err, &exitStatus) {
			return NewExitCodeResult(ExitCode(exitStatus))
		}
		return NewErrorResult(1, fmt.Errorf("script execution failed: %w", err))
	}

	return NewSuccessResult()
}

// ParseScript parses a bash-dialect script.
func ParseScript(script string) (*syntax.File, error) {
	prog, err := syntax.NewParser(syntax.Variant(syntax.LangBash)).Parse(strings.NewReader(script), "script")
	if err != nil {
		return nil, fmt.Errorf("script syntax error: %w", err)
	}
	return prog, nil
}
