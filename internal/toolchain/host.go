// SPDX-License-Identifier: MPL-2.0

package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/buildmatrix/buildmatrix/internal/logging"
	"github.com/buildmatrix/buildmatrix/pkg/platform"
)

type (
	// CommandFunc runs argv in dir and returns its standard output.
	CommandFunc func(ctx context.Context, dir string, argv ...string) (string, error)

	// LookPathFunc resolves an executable name the way exec.LookPath does.
	LookPathFunc func(file string) (string, error)

	// HostProvisioner provisions interpreters installed on the host.
	HostProvisioner struct {
		run      CommandFunc
		lookPath LookPathFunc
		family   string
	}

	// HostOption configures a HostProvisioner.
	HostOption func(*HostProvisioner)
)

// WithCommand replaces process execution (probes and venv creation).
func WithCommand(fn CommandFunc) HostOption {
	return func(p *HostProvisioner) { p.run = fn }
}

// WithLookPath replaces exec.LookPath.
func WithLookPath(fn LookPathFunc) HostOption {
	return func(p *HostProvisioner) { p.lookPath = fn }
}

// WithFamily overrides the host platform family.
func WithFamily(family string) HostOption {
	return func(p *HostProvisioner) { p.family = family }
}

// NewHostProvisioner creates a provisioner for host interpreters.
func NewHostProvisioner(opts ...HostOption) *HostProvisioner {
	p := &HostProvisioner{run: runCommand, lookPath: exec.LookPath, family: platform.HostFamily()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Candidates returns the commands tried, in order, for a version and architecture.
// On Windows the py launcher is asked for the exact release and width first.
func Candidates(version, arch, family string) [][]string {
	mm := majorMinor(version)
	var out [][]string
	if family == platform.Windows {
		flag := "-" + mm
		switch platform.PointerBits(arch) {
		case 32:
			flag += "-32"
		case 64:
			flag += "-64"
		}
		out = append(out, []string{"py", flag})
		return append(out, []string{"python"}, []string{"python3"})
	}
	return append(out, []string{"python" + mm}, []string{"python3"}, []string{"python"})
}

// Provision locates a matching host interpreter and creates the job's virtual environment.
func (p *HostProvisioner) Provision(ctx context.Context, req Request) (*Interpreter, error) {
	logger := logging.FromContext(ctx)

	var tried []string
	for _, argv := range Candidates(req.Version, req.Architecture, p.family) {
		tried = append(tried, strings.Join(argv, " "))

		path, err := p.lookPath(argv[0])
		if err != nil {
			continue
		}
		cmd := append([]string{path}, argv[1:]...)

		out, err := p.run(ctx, req.WorkDir, append(cmd, "-c", probeScript)...)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Debug("interpreter probe failed", "candidate", strings.Join(argv, " "), "error", err)
			continue
		}
		probe, err := parseProbe(out)
		if err != nil || !probe.satisfies(req) {
			logger.Debug("interpreter rejected", "candidate", strings.Join(argv, " "), "reported", strings.TrimSpace(out))
			continue
		}

		return p.createVenv(ctx, req, cmd, probe)
	}

	return nil, &InterpreterNotFoundError{Version: req.Version, Architecture: req.Architecture, Tried: tried}
}

func (p *HostProvisioner) createVenv(ctx context.Context, req Request, cmd []string, probe probeResult) (*Interpreter, error) {
	venvDir := filepath.Join(req.WorkDir, VenvDirName)
	if _, err := p.run(ctx, req.WorkDir, append(cmd, "-m", "venv", venvDir)...); err != nil {
		return nil, fmt.Errorf("create virtual environment %s: %w", venvDir, err)
	}

	binDir, exe := filepath.Join(venvDir, "bin"), "python"
	if p.family == platform.Windows {
		binDir, exe = filepath.Join(venvDir, "Scripts"), "python.exe"
	}

	logging.FromContext(ctx).Info("interpreter ready", "version", probe.version, "bits", probe.bits, "venv", venvDir)

	return &Interpreter{
		Path:    filepath.Join(binDir, exe),
		Version: probe.version,
		Bits:    probe.bits,
		VenvDir: venvDir,
		Env: map[string]string{
			"PATH":        binDir + string(os.PathListSeparator) + os.Getenv("PATH"),
			"VIRTUAL_ENV": venvDir,
		},
	}, nil
}

func runCommand(ctx context.Context, dir string, argv ...string) (string, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && stderr.Len() > 0 {
			return "", fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return "", err
	}
	return string(out), nil
}
