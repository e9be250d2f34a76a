// SPDX-License-Identifier: MPL-2.0

// Package toolchain provisions the interpreter a build job runs with: it locates
// an interpreter of the requested version and pointer width, creates a per-job
// virtual environment and exposes it on PATH for the following steps.
package toolchain

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/buildmatrix/buildmatrix/pkg/platform"
	"github.com/buildmatrix/buildmatrix/pkg/workflow"
)

// VenvDirName is the virtual environment directory inside a job workspace.
const VenvDirName = ".venv"

// probeScript prints "<major>.<minor>.<micro> <pointer bits>".
const probeScript = `import struct, sys; print("%d.%d.%d %d" % (sys.version_info[0], sys.version_info[1], sys.version_info[2], struct.calcsize("P") * 8))`

var (
	// ErrInterpreterNotFound is the sentinel wrapped by InterpreterNotFoundError.
	ErrInterpreterNotFound = errors.New("interpreter not found")

	// ErrMalformedProbe is returned when an interpreter probe prints unexpected output.
	ErrMalformedProbe = errors.New("malformed interpreter probe output")
)

type (
	// Request describes the interpreter a job needs.
	Request struct {
		// Version is the requested release ("3.12" or "3.12.4")
		Version string
		// Architecture is x64, x86 or arm64
		Architecture string
		// OS is the runner label of the matrix entry
		OS string
		// WorkDir is the job workspace; the virtual environment is created inside it
		WorkDir string
		// Matrix is the full matrix entry, used to resolve image templates
		Matrix workflow.Values
	}

	// Interpreter is a provisioned interpreter.
	Interpreter struct {
		// Path is the interpreter executable inside the virtual environment
		Path string
		// Version is the full version the interpreter reported
		Version string
		// Bits is the reported pointer width
		Bits int
		// VenvDir is the virtual environment root
		VenvDir string
		// Env holds the variables later steps must run with (PATH, VIRTUAL_ENV)
		Env map[string]string
		// Image and Platform are set when the interpreter lives in a container image
		Image    string
		Platform string
	}

	// Provisioner provisions an interpreter for a request.
	Provisioner interface {
		Provision(ctx context.Context, req Request) (*Interpreter, error)
	}

	// InterpreterNotFoundError is returned when no candidate matches the request.
	InterpreterNotFoundError struct {
		Version      string
		Architecture string
		Tried        []string
	}

	probeResult struct {
		version string
		bits    int
	}
)

func (e *InterpreterNotFoundError) Error() string {
	msg := fmt.Sprintf("no interpreter for version %s (%s)", e.Version, e.Architecture)
	if len(e.Tried) > 0 {
		msg += "; tried " + strings.Join(e.Tried, ", ")
	}
	return msg
}

func (e *InterpreterNotFoundError) Unwrap() error { return ErrInterpreterNotFound }

// VersionMatches reports whether reported satisfies the requested version:
// every component of want must equal the corresponding component of reported.
func VersionMatches(want, reported string) bool {
	wantParts := strings.Split(strings.TrimSpace(want), ".")
	gotParts := strings.Split(strings.TrimSpace(reported), ".")
	if want == "" || len(wantParts) > len(gotParts) {
		return false
	}
	for i, p := range wantParts {
		if p != gotParts[i] {
			return false
		}
	}
	return true
}

// ContainerPlatform maps an architecture to a Linux image platform, or "" when unknown.
func ContainerPlatform(arch string) string {
	switch strings.ToLower(arch) {
	case platform.ArchX64:
		return "linux/amd64"
	case platform.ArchX86:
		return "linux/386"
	case platform.ArchARM64:
		return "linux/arm64"
	default:
		return ""
	}
}

func (p probeResult) satisfies(req Request) bool {
	if !VersionMatches(req.Version, p.version) {
		return false
	}
	want := platform.PointerBits(req.Architecture)
	return want == 0 || want == p.bits
}

// parseProbe reads the last non-empty line printed by probeScript.
func parseProbe(output string) (probeResult, error) {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])

	fields := strings.Fields(last)
	if len(fields) != 2 {
		return probeResult{}, fmt.Errorf("%w: %q", ErrMalformedProbe, last)
	}
	bits, err := strconv.Atoi(fields[1])
	if err != nil {
		return probeResult{}, fmt.Errorf("%w: %q", ErrMalformedProbe, last)
	}
	return probeResult{version: fields[0], bits: bits}, nil
}

func majorMinor(version string) string {
	parts := strings.Split(version, ".")
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return strings.Join(parts, ".")
}
