// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/buildmatrix/buildmatrix/internal/issue"
	"github.com/buildmatrix/buildmatrix/internal/logging"
	"github.com/buildmatrix/buildmatrix/internal/testutil"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	return testutil.MustWriteFile(t, dir, ConfigFileName+"."+ConfigFileExt, content)
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, source, err := NewProvider().LoadWithSource(context.Background(), LoadOptions{ConfigDirPath: t.TempDir()})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if source != "" {
		t.Errorf("source = %q, want empty", source)
	}
	if cfg.Runner != RunnerNative || cfg.ContainerEngine != ContainerEnginePodman {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.Artifacts.Backend != ArtifactBackendLocal || cfg.Log.Level != logging.LevelInfo {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadFromConfigDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeConfig(t, dir, `
runner: "container"
container_engine: "docker"
max_parallel: 2
keep_workspace: true
artifacts: {
	backend: "s3"
	s3: {
		endpoint: "localhost:9000"
		bucket: "build-artifacts"
		use_ssl: false
	}
}
container: images: "ubuntu-latest": "python:${{ matrix.python-version }}-bookworm"
log: format: "json"
`)

	cfg, source, err := NewProvider().LoadWithSource(context.Background(), LoadOptions{ConfigDirPath: dir})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if source != path {
		t.Errorf("source = %q, want %q", source, path)
	}
	if cfg.Runner != RunnerContainer || cfg.ContainerEngine != ContainerEngineDocker {
		t.Errorf("runner/engine = %q/%q", cfg.Runner, cfg.ContainerEngine)
	}
	if cfg.MaxParallel != 2 || !cfg.KeepWorkspace {
		t.Errorf("max_parallel/keep_workspace = %d/%v", cfg.MaxParallel, cfg.KeepWorkspace)
	}
	if cfg.Artifacts.S3.Endpoint != "localhost:9000" || cfg.Artifacts.S3.UseSSL {
		t.Errorf("s3 = %+v", cfg.Artifacts.S3)
	}
	if cfg.Artifacts.S3.Region != "us-east-1" {
		t.Errorf("region default lost on merge: %q", cfg.Artifacts.S3.Region)
	}
	if cfg.Container.Images["ubuntu-latest"] == "" {
		t.Errorf("images = %v", cfg.Container.Images)
	}
	if cfg.Log.Format != logging.FormatJSON || cfg.Log.Level != logging.LevelInfo {
		t.Errorf("log = %+v", cfg.Log)
	}
}

func TestLoadSchemaViolation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeConfig(t, dir, `runner: "ssh"`)

	_, err := NewProvider().Load(context.Background(), LoadOptions{ConfigDirPath: dir})
	if err == nil {
		t.Fatal("Load() expected error")
	}
	var ae *issue.ActionableError
	if !errors.As(err, &ae) || ae.IssueId != issue.ConfigLoadFailedId {
		t.Errorf("error = %v, want ActionableError linked to the config guide", err)
	}
	if !strings.Contains(err.Error(), "runner") {
		t.Errorf("error %q does not mention the field", err)
	}
}

func TestLoadIncompleteS3(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeConfig(t, dir, `artifacts: backend: "s3"`)

	_, err := NewProvider().Load(context.Background(), LoadOptions{ConfigDirPath: dir})
	if !errors.Is(err, ErrIncompleteS3Config) {
		t.Errorf("Load() error = %v, want ErrIncompleteS3Config", err)
	}
}

func TestLoadExplicitFileMissing(t *testing.T) {
	t.Parallel()

	_, err := NewProvider().Load(context.Background(), LoadOptions{ConfigFilePath: filepath.Join(t.TempDir(), "nope.cue")})
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("Load() error = %v, want not found", err)
	}
}

func TestLoadCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewProvider().Load(ctx, LoadOptions{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Load() error = %v, want context.Canceled", err)
	}
}

//nolint:paralleltest // mutates process environment
func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `runner: "virtual"`)

	t.Cleanup(testutil.MustSetenv(t, "BUILDMATRIX_RUNNER", "container"))
	t.Cleanup(testutil.MustSetenv(t, "BUILDMATRIX_MAX_PARALLEL", "3"))
	t.Cleanup(testutil.MustSetenv(t, "BUILDMATRIX_ARTIFACTS_S3_SECRET_KEY", "s3cr3t"))

	cfg, err := NewProvider().Load(context.Background(), LoadOptions{ConfigDirPath: dir})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Runner != RunnerContainer {
		t.Errorf("Runner = %q, want env override container", cfg.Runner)
	}
	if cfg.MaxParallel != 3 {
		t.Errorf("MaxParallel = %d, want 3", cfg.MaxParallel)
	}
	if cfg.Artifacts.S3.SecretKey != "s3cr3t" {
		t.Errorf("SecretKey = %q", cfg.Artifacts.S3.SecretKey)
	}
}

//nolint:paralleltest // mutates process environment
func TestLoadEnvOverrideInvalid(t *testing.T) {
	t.Cleanup(testutil.MustSetenv(t, "BUILDMATRIX_CONTAINER_ENGINE", "lxc"))

	_, err := NewProvider().Load(context.Background(), LoadOptions{ConfigDirPath: t.TempDir()})
	if !errors.Is(err, ErrInvalidContainerEngine) {
		t.Errorf("Load() error = %v, want ErrInvalidContainerEngine", err)
	}
}

func TestGeneratedConfigLoads(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.WorkDir = "/var/tmp/bm"
	cfg.Container.Images = map[string]string{"ubuntu-latest": "python:3.12"}

	dir := t.TempDir()
	writeConfig(t, dir, GenerateCUE(cfg))

	got, err := NewProvider().Load(context.Background(), LoadOptions{ConfigDirPath: dir})
	if err != nil {
		t.Fatalf("Load() of generated config error: %v\n%s", err, GenerateCUE(cfg))
	}
	if got.WorkDir != "/var/tmp/bm" || got.Container.Images["ubuntu-latest"] != "python:3.12" {
		t.Errorf("loaded = %+v", got)
	}
}

//nolint:paralleltest // uses the package-level config dir override
func TestCreateDefaultConfig(t *testing.T) {
	dir := t.TempDir()
	configDirOverride = dir
	t.Cleanup(func() { configDirOverride = "" })

	path, err := CreateDefaultConfig(false)
	if err != nil {
		t.Fatalf("CreateDefaultConfig() error: %v", err)
	}
	if path != filepath.Join(dir, "config.cue") {
		t.Errorf("path = %q", path)
	}

	if err := os.WriteFile(path, []byte(`runner: "virtual"`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := CreateDefaultConfig(false); err != nil {
		t.Fatal(err)
	}
	if got := testutil.MustReadFile(t, path); got != `runner: "virtual"` {
		t.Errorf("existing config overwritten without force: %q", got)
	}

	if _, err := CreateDefaultConfig(true); err != nil {
		t.Fatal(err)
	}
	if got := testutil.MustReadFile(t, path); !strings.Contains(got, `runner: "native"`) {
		t.Errorf("force did not rewrite config: %q", got)
	}
}

func TestConfigIsValid(t *testing.T) {
	t.Parallel()

	if ok, errs := DefaultConfig().IsValid(); !ok {
		t.Fatalf("DefaultConfig().IsValid() = %v", errs)
	}

	cfg := DefaultConfig()
	cfg.Runner = "ssh"
	cfg.UI.ColorScheme = "neon"
	cfg.MaxParallel = -1

	ok, errs := cfg.IsValid()
	if ok || len(errs) != 1 {
		t.Fatalf("IsValid() = %v, %v", ok, errs)
	}
	var invalid *InvalidConfigError
	if !errors.As(errs[0], &invalid) || len(invalid.FieldErrors) != 3 {
		t.Fatalf("errs[0] = %v", errs[0])
	}
	if !errors.Is(errs[0], ErrInvalidConfig) {
		t.Error("error does not wrap ErrInvalidConfig")
	}
}
