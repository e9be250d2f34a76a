// SPDX-License-Identifier: MPL-2.0

package workflow

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// ActionCheckout retrieves the source tree into the job workspace.
	ActionCheckout Action = "checkout"
	// ActionSetupInterpreter provisions the interpreter for the entry.
	ActionSetupInterpreter Action = "setup-interpreter"
	// ActionInstall installs packages into the provisioned interpreter.
	ActionInstall Action = "install"
	// ActionRun executes a script.
	ActionRun Action = "run"
	// ActionUploadArtifact publishes files under the job's artifact name.
	ActionUploadArtifact Action = "upload-artifact"
)

const (
	ShellBash       Shell = "bash"
	ShellSh         Shell = "sh"
	ShellPwsh       Shell = "pwsh"
	ShellPowerShell Shell = "powershell"
	ShellCmd        Shell = "cmd"
)

var (
	// ErrUnknownAction is returned when a step's uses value names no known action.
	ErrUnknownAction = errors.New("unknown action")
	// ErrInvalidShell is returned when a step names an unsupported shell.
	ErrInvalidShell = errors.New("invalid shell")

	// actionAliases maps hosted-CI action references (without version) to
	// the built-in action that provides the same behavior.
	actionAliases = map[string]Action{
		"actions/checkout":        ActionCheckout,
		"actions/setup-python":    ActionSetupInterpreter,
		"actions/upload-artifact": ActionUploadArtifact,
	}
)

type (
	// Action identifies what a step does.
	Action string

	// Shell names the shell a run step is executed with.
	Shell string

	// UnknownActionError is returned when a uses reference cannot be resolved.
	UnknownActionError struct {
		Uses string
	}

	// InvalidShellError is returned when a Shell value is not supported.
	InvalidShellError struct {
		Value Shell
	}
)

// Error implements the error interface.
func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("unknown action %q (available: checkout, setup-interpreter, install, upload-artifact, actions/checkout@*, actions/setup-python@*, actions/upload-artifact@*)", e.Uses)
}

// Unwrap returns ErrUnknownAction for errors.Is() compatibility.
func (e *UnknownActionError) Unwrap() error { return ErrUnknownAction }

// Error implements the error interface.
func (e *InvalidShellError) Error() string {
	return fmt.Sprintf("invalid shell %q (valid: bash, sh, pwsh, powershell, cmd)", e.Value)
}

// Unwrap returns ErrInvalidShell for errors.Is() compatibility.
func (e *InvalidShellError) Unwrap() error { return ErrInvalidShell }

// ResolveAction maps a uses reference to a built-in action. Built-in names
// are accepted as-is; hosted-CI references are matched without their
// @version suffix.
func ResolveAction(uses string) (Action, error) {
	switch a := Action(strings.TrimSpace(uses)); a {
	case ActionCheckout, ActionSetupInterpreter, ActionInstall, ActionUploadArtifact:
		return a, nil
	}

	ref, _, _ := strings.Cut(strings.TrimSpace(uses), "@")
	if a, ok := actionAliases[strings.ToLower(ref)]; ok {
		return a, nil
	}
	return "", &UnknownActionError{Uses: uses}
}

// Action returns the action the step performs. A run step whose every
// command line is a pip install is classified as ActionInstall so its
// failures are reported as installation failures. Unknown uses references
// yield "".
func (s Step) Action() Action {
	if s.Uses != "" {
		a, err := ResolveAction(s.Uses)
		if err != nil {
			return ""
		}
		return a
	}
	if s.Run == "" {
		return ""
	}
	if isInstallScript(s.Run) {
		return ActionInstall
	}
	return ActionRun
}

func isInstallScript(script string) bool {
	seen := false
	for line := range strings.SplitSeq(script, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch {
		case len(fields) >= 2 && fields[0] == "pip" && fields[1] == "install":
		case len(fields) >= 2 && fields[0] == "pip3" && fields[1] == "install":
		case len(fields) >= 4 && strings.HasPrefix(fields[0], "python") && fields[1] == "-m" && fields[2] == "pip" && fields[3] == "install":
		default:
			return false
		}
		seen = true
	}
	return seen
}

// IsValid returns whether the Shell is supported (or empty, meaning the
// platform default), and a list of validation errors if it is not.
func (s Shell) IsValid() (bool, []error) {
	switch s {
	case "", ShellBash, ShellSh, ShellPwsh, ShellPowerShell, ShellCmd:
		return true, nil
	default:
		return false, []error{&InvalidShellError{Value: s}}
	}
}

// IsPOSIX reports whether the shell accepts POSIX sh syntax.
func (s Shell) IsPOSIX() bool {
	return s == ShellBash || s == ShellSh
}

// String returns the string representation of the Shell.
func (s Shell) String() string { return string(s) }
