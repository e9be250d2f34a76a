// SPDX-License-Identifier: MPL-2.0

package platform

import (
	"runtime"
	"strings"
)

// OS name constants for runtime.GOOS comparisons.
const (
	Windows = "windows"
	Darwin  = "darwin"
	Linux   = "linux"
)

// Architecture names as used by interpreter provisioning.
const (
	ArchX64   = "x64"
	ArchX86   = "x86"
	ArchARM64 = "arm64"
)

// Family returns the GOOS value of the operating-system family a runner label
// refers to, or "" when the label is not recognized. Matching is
// case-insensitive: "macOS-latest" and "macos-14" both map to Darwin.
func Family(label string) string {
	l := strings.ToLower(strings.TrimSpace(label))
	switch {
	case strings.HasPrefix(l, "windows"):
		return Windows
	case strings.HasPrefix(l, "macos"), strings.HasPrefix(l, "osx"), strings.HasPrefix(l, "darwin"):
		return Darwin
	case strings.HasPrefix(l, "ubuntu"), strings.HasPrefix(l, "linux"), strings.HasPrefix(l, "debian"):
		return Linux
	default:
		return ""
	}
}

// HostFamily returns the family of the running host.
func HostFamily() string {
	return runtime.GOOS
}

// ArchFromGOARCH converts a GOARCH value into the x64/x86/arm64 vocabulary.
// Unknown values are returned unchanged.
func ArchFromGOARCH(goarch string) string {
	switch goarch {
	case "amd64":
		return ArchX64
	case "386":
		return ArchX86
	case "arm64":
		return ArchARM64
	default:
		return goarch
	}
}

// PointerBits returns the pointer width an architecture name implies, or 0
// for unknown architectures.
func PointerBits(arch string) int {
	switch strings.ToLower(arch) {
	case ArchX64, ArchARM64, "amd64", "x86_64", "aarch64":
		return 64
	case ArchX86, "386", "i386", "i686":
		return 32
	default:
		return 0
	}
}
