// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"os/exec"
	"strings"
)

const (
	// ExitCodeEngineError is the generic engine failure exit code (docker/podman run).
	ExitCodeEngineError = 125
	// ExitCodeCannotInvoke is returned when the contained command cannot be invoked.
	ExitCodeCannotInvoke = 126
)

// ErrTransient marks a failure on the engine side that may succeed on retry.
var ErrTransient = errors.New("transient container engine failure")

var transientMessages = []string{
	// rootless Podman races and OCI runtime errors
	"ping_group_range",
	"OCI runtime error",
	// network errors during image pull
	"Temporary failure resolving",
	"Could not resolve host",
	"connection timed out",
	"connection refused",
	"TLS handshake timeout",
	// overlay mount races
	"error creating overlay mount",
	"error mounting layer",
}

// IsTransientExitCode reports whether a container run exit code signals an
// engine-side failure rather than a failure of the contained command.
func IsTransientExitCode(code int) bool {
	return code == ExitCodeEngineError || code == ExitCodeCannotInvoke
}

// IsTransientError reports whether err is a transient container engine error
// that may succeed on retry. Context cancellation is never transient.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == ExitCodeEngineError {
		return true
	}

	errStr := err.Error()
	for _, msg := range transientMessages {
		if strings.Contains(errStr, msg) {
			return true
		}
	}
	return false
}
