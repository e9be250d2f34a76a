// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"strconv"
)

// ExitError makes the process exit with Code once the command returns. RunE
// handlers use it instead of calling os.Exit so deferred cleanup still runs.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return "exit status " + strconv.Itoa(e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return 1
}
