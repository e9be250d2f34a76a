// SPDX-License-Identifier: MPL-2.0

package toolchain

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/buildmatrix/buildmatrix/internal/runner"
	"github.com/buildmatrix/buildmatrix/pkg/workflow"
)

type scriptedRunner struct {
	stdout   string
	stderr   string
	exitCode runner.ExitCode
	last     *runner.ExecutionContext
}

func (r *scriptedRunner) Name() string { return "scripted" }
func (r *scriptedRunner) Available() bool { return true }
func (r *scriptedRunner) Validate(*runner.ExecutionContext) error { return nil }
func (r *scriptedRunner) Execute(ctx *runner.ExecutionContext) *runner.Result {
	r.last = ctx
	_, _ = io.WriteString(ctx.Stdout, r.stdout)
	_, _ = io.WriteString(ctx.Stderr, r.stderr)
	return runner.NewExitCodeResult(r.exitCode)
}

func TestContainerProvisionerImage(t *testing.T) {
	t.Parallel()

	p := NewContainerProvisioner(&scriptedRunner{}, map[string]string{
		"ubuntu-latest": "ghcr.io/acme/py:${{ matrix.python-version }}-${{ matrix.extra }}",
	})

	tests := []struct {
		name string
		req  Request
		want string
	}{
		{
			name: "default template",
			req:  Request{Version: "3.12", OS: "macOS-latest", Matrix: workflow.Values{"python-version": "3.12"}},
			want: "python:3.12-slim",
		},
		{
			name: "configured label is case-insensitive",
			req:  Request{Version: "3.12", OS: "Ubuntu-Latest", Matrix: workflow.Values{"python-version": "3.12", "extra": "toml"}},
			want: "ghcr.io/acme/py:3.12-toml",
		},
		{
			name: "version fills a missing matrix key",
			req:  Request{Version: "3.9", OS: "windows-latest"},
			want: "python:3.9-slim",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := p.Image(tt.req)
			if err != nil {
				t.Fatalf("Image() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Image() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestContainerProvisionerProvision(t *testing.T) {
	t.Parallel()

	rn := &scriptedRunner{stdout: "3.8.18 32\n"}
	p := NewContainerProvisioner(rn, nil)
	workDir := t.TempDir()

	interp, err := p.Provision(context.Background(), Request{
		Version:      "3.8",
		Architecture: "x86",
		OS:           "windows-2019",
		WorkDir:      workDir,
		Matrix:       workflow.Values{"python-version": "3.8"},
	})
	if err != nil {
		t.Fatalf("Provision() error = %v", err)
	}

	if interp.Image != "python:3.8-slim" || interp.Platform != "linux/386" {
		t.Errorf("interpreter = %+v", interp)
	}
	if interp.Path != "/workspace/.venv/bin/python" {
		t.Errorf("Path = %q", interp.Path)
	}
	if !strings.HasPrefix(interp.Env["PATH"], "/workspace/.venv/bin:") {
		t.Errorf("PATH = %q", interp.Env["PATH"])
	}

	if rn.last.WorkDir != workDir || rn.last.Platform != "linux/386" {
		t.Errorf("execution context = %+v", rn.last)
	}
	if !strings.Contains(rn.last.Script, "-m venv /workspace/.venv") {
		t.Errorf("script = %q", rn.last.Script)
	}
}

func TestContainerProvisionerRejectsWidth(t *testing.T) {
	t.Parallel()

	p := NewContainerProvisioner(&scriptedRunner{stdout: "3.12.4 64\n"}, nil)

	_, err := p.Provision(context.Background(), Request{Version: "3.12", Architecture: "x86", OS: "ubuntu-latest"})
	if !errors.Is(err, ErrInterpreterNotFound) {
		t.Fatalf("Provision() error = %v, want ErrInterpreterNotFound", err)
	}
}

func TestContainerProvisionerFailure(t *testing.T) {
	t.Parallel()

	p := NewContainerProvisioner(&scriptedRunner{stderr: "No module named venv", exitCode: 1}, nil)

	_, err := p.Provision(context.Background(), Request{Version: "3.12", OS: "ubuntu-latest"})
	if !errors.Is(err, runner.ErrNonZeroExit) {
		t.Fatalf("Provision() error = %v, want ErrNonZeroExit", err)
	}
	if !strings.Contains(err.Error(), "No module named venv") {
		t.Errorf("error %q should carry stderr", err)
	}
}
