// SPDX-License-Identifier: MPL-2.0

package container

import (
	"bytes"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/buildmatrix/buildmatrix/internal/issue"
)

func TestRunArgs(t *testing.T) {
	t.Parallel()

	e := NewBaseCLIEngine("docker")
	got := e.RunArgs(RunOptions{
		Image:    "python:3.12-slim",
		Command:  []string{"sh", "-c", "python -V"},
		WorkDir:  "/workspace",
		Env:      map[string]string{"PATH": "/workspace/.venv/bin:/usr/bin", "CI": "true"},
		Volumes:  []string{"/tmp/job:/workspace"},
		Remove:   true,
		Name:     "bm-1",
		Platform: "linux/386",
	})

	want := []string{
		"run", "--rm", "--name", "bm-1", "--platform", "linux/386", "-w", "/workspace",
		"-e", "CI=true", "-e", "PATH=/workspace/.venv/bin:/usr/bin",
		"-v", "/tmp/job:/workspace",
		"python:3.12-slim", "sh", "-c", "python -V",
	}
	if !slices.Equal(got, want) {
		t.Errorf("RunArgs() =\n%v\nwant\n%v", got, want)
	}
}

func TestPodmanRunLabelsVolumes(t *testing.T) {
	t.Parallel()

	m := &mockCommandRecorder{}
	e := newMockPodman(m)

	res, err := e.Run(t.Context(), RunOptions{
		Image:   "python:3.8-slim",
		Command: []string{"true"},
		Volumes: []string{"/src:/workspace", "/cache:/cache:ro"},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.ExitCode != 0 || res.Error != nil {
		t.Fatalf("Run() = %+v, want success", res)
	}
	m.assertLastCommand(t, "podman run -v /src:/workspace:z -v /cache:/cache:ro,z python:3.8-slim true")
}

func TestRunCapturesExitCode(t *testing.T) {
	t.Parallel()

	m := &mockCommandRecorder{exitCode: 3, stdout: "building\n"}
	e := newMockDocker(m)

	var stdout bytes.Buffer
	res, err := e.Run(t.Context(), RunOptions{Image: "python:3.12-slim", Command: []string{"false"}, Stdout: &stdout})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", res.ExitCode)
	}
	if res.Error != nil {
		t.Errorf("Error = %v, want nil for a command failure", res.Error)
	}
	if stdout.String() != "building\n" {
		t.Errorf("stdout = %q", stdout.String())
	}
}

func TestRunWithoutImage(t *testing.T) {
	t.Parallel()

	m := &mockCommandRecorder{}
	_, err := newMockDocker(m).Run(t.Context(), RunOptions{Command: []string{"true"}})
	if err == nil {
		t.Fatal("expected error for missing image")
	}
	if len(m.invocations) != 0 {
		t.Errorf("engine invoked %d times, want 0", len(m.invocations))
	}
}

func TestPullFailureIsActionable(t *testing.T) {
	t.Parallel()

	m := &mockCommandRecorder{exitCode: 1, stderr: "manifest unknown"}
	err := newMockDocker(m).Pull(t.Context(), "python:9.9-slim")
	if err == nil {
		t.Fatal("expected pull error")
	}
	m.assertLastCommand(t, "docker pull python:9.9-slim")

	var ae *issue.ActionableError
	if !errors.As(err, &ae) {
		t.Fatalf("error %T is not an ActionableError", err)
	}
	if ae.Resource != "python:9.9-slim" {
		t.Errorf("Resource = %q", ae.Resource)
	}
	if !strings.Contains(err.Error(), "manifest unknown") {
		t.Errorf("error %q does not carry engine stderr", err)
	}
}

func TestImageExists(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		exitCode int
		want     bool
		wantErr  bool
	}{
		{"present", 0, true, false},
		{"absent", 1, false, false},
		{"engine failure", 125, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			docker := &mockCommandRecorder{exitCode: tt.exitCode}
			got, err := newMockDocker(docker).ImageExists(t.Context(), "python:3.12-slim")
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Errorf("docker ImageExists() = %v, %v; want %v", got, err, tt.want)
			}
			docker.assertLastCommand(t, "docker image inspect python:3.12-slim")

			podman := &mockCommandRecorder{exitCode: tt.exitCode}
			got, err = newMockPodman(podman).ImageExists(t.Context(), "python:3.12-slim")
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Errorf("podman ImageExists() = %v, %v; want %v", got, err, tt.want)
			}
			podman.assertLastCommand(t, "podman image exists python:3.12-slim")
		})
	}
}

func TestVersion(t *testing.T) {
	t.Parallel()

	m := &mockCommandRecorder{stdout: "5.2.1\n"}
	got, err := newMockPodman(m).Version(t.Context())
	if err != nil {
		t.Fatalf("Version() error = %v", err)
	}
	if got != "5.2.1" {
		t.Errorf("Version() = %q, want 5.2.1", got)
	}
	m.assertLastCommand(t, "podman version --format {{.Version}}")

	d := &mockCommandRecorder{stdout: "27.1.0\n"}
	if !newMockDocker(d).Available() {
		t.Error("docker with answering server reported unavailable")
	}
	d.assertLastCommand(t, "docker version --format {{.Server.Version}}")
}

func TestAvailableWithoutBinary(t *testing.T) {
	t.Parallel()

	if NewDockerEngine(WithBinaryPath("")).Available() {
		t.Error("docker without binary reported available")
	}
	if NewPodmanEngine(WithBinaryPath("")).Available() {
		t.Error("podman without binary reported available")
	}
}

func TestSELinuxLabeler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		volume string
		want   string
	}{
		{"/src:/workspace", "/src:/workspace:z"},
		{"/src:/workspace:ro", "/src:/workspace:ro,z"},
		{"/src:/workspace:Z", "/src:/workspace:Z"},
		{"/src:/workspace:ro,z", "/src:/workspace:ro,z"},
		{"named", "named"},
	}

	label := selinuxLabeler(func() bool { return true })
	for _, tt := range tests {
		if got := label(tt.volume); got != tt.want {
			t.Errorf("label(%q) = %q, want %q", tt.volume, got, tt.want)
		}
	}

	if got := selinuxLabeler(func() bool { return false })("/src:/workspace"); got != "/src:/workspace" {
		t.Errorf("disabled labeler changed volume: %q", got)
	}
}

func TestVolumeMountRoundTrip(t *testing.T) {
	t.Parallel()

	mount, err := ParseVolumeMount("/data:/workspace:ro,Z")
	if err != nil {
		t.Fatalf("ParseVolumeMount() error = %v", err)
	}
	want := VolumeMount{HostPath: "/data", ContainerPath: "/workspace", ReadOnly: true, SELinux: "Z"}
	if mount != want {
		t.Errorf("ParseVolumeMount() = %+v, want %+v", mount, want)
	}
	if got := FormatVolumeMount(mount); got != "/data:/workspace:ro,Z" {
		t.Errorf("FormatVolumeMount() = %q", got)
	}

	for _, bad := range []string{"", "/data", ":/workspace", "/data:"} {
		if _, err := ParseVolumeMount(bad); err == nil {
			t.Errorf("ParseVolumeMount(%q) succeeded, want error", bad)
		}
	}
}

func TestEngineType(t *testing.T) {
	t.Parallel()

	for _, et := range []EngineType{EngineTypeDocker, EngineTypePodman} {
		if ok, errs := et.IsValid(); !ok {
			t.Errorf("%s.IsValid() = false, %v", et, errs)
		}
	}

	ok, errs := EngineType("containerd").IsValid()
	if ok || len(errs) != 1 || !errors.Is(errs[0], ErrInvalidEngineType) {
		t.Errorf("IsValid(containerd) = %v, %v", ok, errs)
	}

	if _, err := NewEngine("containerd"); !errors.Is(err, ErrInvalidEngineType) {
		t.Errorf("NewEngine(containerd) error = %v, want ErrInvalidEngineType", err)
	}
}

func TestEngineNotAvailableError(t *testing.T) {
	t.Parallel()

	err := error(&EngineNotAvailableError{Engine: "podman", Reason: "not installed"})
	if !errors.Is(err, ErrEngineNotAvailable) {
		t.Error("EngineNotAvailableError does not wrap ErrEngineNotAvailable")
	}
	if got := err.Error(); got != "container engine 'podman' is not available: not installed" {
		t.Errorf("Error() = %q", got)
	}
}
