// SPDX-License-Identifier: MPL-2.0

package platform

import "strings"

// IsWindowsReservedName reports whether name is a device name Windows refuses
// as a file name. Everything after the first dot is ignored, so "nul.tar.gz"
// is reserved too.
func IsWindowsReservedName(name string) bool {
	base, _, _ := strings.Cut(strings.ToUpper(name), ".")
	switch base {
	case "CON", "PRN", "AUX", "NUL":
		return true
	}
	if len(base) == 4 && (strings.HasPrefix(base, "COM") || strings.HasPrefix(base, "LPT")) {
		return base[3] >= '1' && base[3] <= '9'
	}
	return false
}
