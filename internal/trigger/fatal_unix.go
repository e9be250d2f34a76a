// SPDX-License-Identifier: MPL-2.0

//go:build !windows

package trigger

import (
	"errors"
	"slices"
	"syscall"
)

// fatalErrnos mean the kernel ran out of inotify watches or descriptors.
var fatalErrnos = []syscall.Errno{syscall.ENOSPC, syscall.EMFILE, syscall.ENFILE}

func isFatalFsnotifyError(err error) bool {
	return slices.ContainsFunc(fatalErrnos, func(e syscall.Errno) bool { return errors.Is(err, e) })
}
