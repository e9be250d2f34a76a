// SPDX-License-Identifier: MPL-2.0

//go:build windows

package trigger

import (
	"errors"
	"slices"
	"syscall"
)

// fatalErrnos are ERROR_TOO_MANY_OPEN_FILES, ERROR_INVALID_HANDLE (the .git
// directory went away) and ERROR_NOT_ENOUGH_MEMORY.
var fatalErrnos = []syscall.Errno{4, 6, 8}

func isFatalFsnotifyError(err error) bool {
	return slices.ContainsFunc(fatalErrnos, func(e syscall.Errno) bool { return errors.Is(err, e) })
}
