// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/lipgloss"

	"github.com/buildmatrix/buildmatrix/internal/config"
	"github.com/buildmatrix/buildmatrix/internal/logging"
	"github.com/buildmatrix/buildmatrix/internal/testutil"
	"github.com/buildmatrix/buildmatrix/pkg/workflow"
)

type (
	// stubConfig serves a fixed configuration without touching the filesystem.
	stubConfig struct {
		cfg *config.Config
	}

	testApp struct {
		app    *App
		stdout *bytes.Buffer
		stderr *bytes.Buffer
		dir    string
	}

	jobReport struct {
		Index        int    `json:"index"`
		State        string `json:"state"`
		ErrorKind    string `json:"error_kind"`
		ArtifactName string `json:"artifact_name"`
	}

	decodedReport struct {
		RunID     string      `json:"run_id"`
		Succeeded bool        `json:"succeeded"`
		Jobs      []jobReport `json:"jobs"`
	}
)

func (s stubConfig) Load(_ context.Context, _ config.LoadOptions) (*config.Config, error) {
	c := *s.cfg
	return &c, nil
}

func (s stubConfig) LoadWithSource(ctx context.Context, opts config.LoadOptions) (*config.Config, string, error) {
	c, err := s.Load(ctx, opts)
	return c, "", err
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Runner = config.RunnerVirtual
	cfg.WorkDir = t.TempDir()
	cfg.Artifacts.Local.Dir = t.TempDir()
	cfg.Log.Level = logging.LevelError

	ta := &testApp{stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}, dir: t.TempDir()}
	ta.app = NewApp(Dependencies{Config: stubConfig{cfg: cfg}, Stdout: ta.stdout, Stderr: ta.stderr})
	return ta
}

func (ta *testApp) execute(t *testing.T, args ...string) error {
	t.Helper()
	ta.stdout.Reset()
	ta.stderr.Reset()

	root := NewRootCommand(ta.app)
	root.SetArgs(append(args, "-C", ta.dir))
	root.SetOut(ta.stdout)
	root.SetErr(ta.stderr)
	return root.ExecuteContext(t.Context())
}

// writeWorkflow stores w as buildmatrix.toml in the project directory.
func (ta *testApp) writeWorkflow(t *testing.T, w *workflow.Workflow) {
	t.Helper()
	data, err := workflow.Generate(w, workflow.FormatTOML)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	testutil.MustWriteFile(t, ta.dir, "buildmatrix.toml", string(data))
}

// shellWorkflow builds two entries with a plain shell build step, runnable by
// the virtual runner without an interpreter.
func shellWorkflow(build string) *workflow.Workflow {
	return &workflow.Workflow{
		Name:    "Shell",
		Product: "tool",
		Strategy: workflow.Strategy{
			Matrix: workflow.Matrix{
				Axes: []workflow.Axis{
					{Name: workflow.KeyOS, Values: []string{"ubuntu-latest", "macOS-latest"}},
					{Name: workflow.KeyArchitecture, Values: []string{"x64"}},
					{Name: workflow.KeyInterpreterVersion, Values: []string{"3.12"}},
				},
			},
		},
		Steps: []workflow.Step{
			{Name: "Checkout", Uses: string(workflow.ActionCheckout)},
			{Name: "Build", Run: build},
			{
				Name: "Upload",
				Uses: string(workflow.ActionUploadArtifact),
				With: map[string]string{"path": "out.txt", "if-no-files-found": "error"},
			},
		},
	}
}

func TestMatrixDefaultWorkflow(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t)
	if err := ta.execute(t, "matrix", "--json"); err != nil {
		t.Fatalf("matrix error = %v", err)
	}

	var entries []jobReport
	if err := json.Unmarshal(ta.stdout.Bytes(), &entries); err != nil {
		t.Fatalf("decode: %v\n%s", err, ta.stdout)
	}
	want := []string{
		"gallery-dl-windows-latest-x64-3.12",
		"gallery-dl-macOS-latest-x64-3.12",
		"gallery-dl-ubuntu-latest-x64-3.12",
		"gallery-dl-windows-2019-x86-3.8",
	}
	if len(entries) != len(want) {
		t.Fatalf("matrix = %d entries, want %d", len(entries), len(want))
	}
	for i, e := range entries {
		if e.ArtifactName != want[i] || e.Index != i {
			t.Errorf("entry %d = %+v, want %s", i, e, want[i])
		}
	}
}

func TestMatrixOnlySelector(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t)
	if err := ta.execute(t, "matrix", "--json", "--only", "architecture=x86"); err != nil {
		t.Fatalf("matrix error = %v", err)
	}
	var entries []jobReport
	if err := json.Unmarshal(ta.stdout.Bytes(), &entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 1 || entries[0].Index != 3 {
		t.Errorf("entries = %+v, want the windows-2019 entry", entries)
	}

	if err := ta.execute(t, "matrix", "--only", "architecture"); err == nil {
		t.Error("selector without value accepted")
	}
}

func TestInitAndValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		format string
		file   string
	}{
		{"cue", "buildmatrix.cue"},
		{"toml", "buildmatrix.toml"},
		{"yaml", filepath.Join(".github", "workflows", "executables.yml")},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			t.Parallel()

			ta := newTestApp(t)
			if err := ta.execute(t, "init", "--format", tt.format); err != nil {
				t.Fatalf("init error = %v", err)
			}
			if _, err := os.Stat(filepath.Join(ta.dir, tt.file)); err != nil {
				t.Fatalf("init did not write %s: %v", tt.file, err)
			}
			if got := discoverWorkflow(ta.dir); got != filepath.Join(ta.dir, tt.file) {
				t.Errorf("discoverWorkflow() = %q", got)
			}

			if err := ta.execute(t, "init", "--format", tt.format); !errors.Is(err, ErrWorkflowExists) {
				t.Errorf("second init error = %v, want ErrWorkflowExists", err)
			}
			if err := ta.execute(t, "init", "--format", tt.format, "--force"); err != nil {
				t.Errorf("init --force error = %v", err)
			}

			if err := ta.execute(t, "validate"); err != nil {
				t.Fatalf("validate error = %v", err)
			}
			if !bytes.Contains(ta.stdout.Bytes(), []byte("4 jobs")) {
				t.Errorf("validate output = %q", ta.stdout)
			}
		})
	}
}

func TestDiscoveryOrder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if got := discoverWorkflow(dir); got != "" {
		t.Fatalf("discoverWorkflow(empty) = %q", got)
	}
	testutil.MustWriteFile(t, dir, ".github/workflows/executables.yml", "name: x\n")
	testutil.MustWriteFile(t, dir, "buildmatrix.toml", "name = 'x'\n")
	if got := discoverWorkflow(dir); got != filepath.Join(dir, "buildmatrix.toml") {
		t.Errorf("discoverWorkflow() = %q, want the toml file", got)
	}
	testutil.MustWriteFile(t, dir, "buildmatrix.cue", "name: \"x\"\n")
	if got := discoverWorkflow(dir); got != filepath.Join(dir, "buildmatrix.cue") {
		t.Errorf("discoverWorkflow() = %q, want the cue file", got)
	}
}

func TestValidateRejectsInvalidWorkflow(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t)
	testutil.MustWriteFile(t, ta.dir, "broken.toml", "name = ''\nproduct = 'p'\n")

	err := ta.execute(t, "validate", "-f", "broken.toml")
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 1 {
		t.Fatalf("validate error = %v, want exit code 1", err)
	}

	if err := ta.execute(t, "validate", "-f", "missing.cue"); err == nil {
		t.Error("missing workflow file accepted")
	}
}

func TestRunPublishesArtifacts(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t)
	ta.writeWorkflow(t, shellWorkflow(`echo "${{ matrix.os }}" > out.txt`))

	if err := ta.execute(t, "run", "--json"); err != nil {
		t.Fatalf("run error = %v\nstderr: %s", err, ta.stderr)
	}

	var report decodedReport
	if err := json.Unmarshal(ta.stdout.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v\n%s", err, ta.stdout)
	}
	if !report.Succeeded || len(report.Jobs) != 2 {
		t.Fatalf("report = %+v", report)
	}
	for _, j := range report.Jobs {
		if j.State != "succeeded" {
			t.Errorf("job %d state = %s", j.Index, j.State)
		}
	}

	if err := ta.execute(t, "artifacts", "list", report.RunID, "--json"); err != nil {
		t.Fatalf("artifacts list error = %v", err)
	}
	var arts []struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(ta.stdout.Bytes(), &arts); err != nil {
		t.Fatalf("decode artifacts: %v\n%s", err, ta.stdout)
	}
	if len(arts) != 2 {
		t.Fatalf("artifacts = %+v, want 2", arts)
	}

	dest := t.TempDir()
	if err := ta.execute(t, "artifacts", "fetch", report.RunID, "tool-ubuntu-latest-x64-3.12", dest); err != nil {
		t.Fatalf("artifacts fetch error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dest, "out.txt"))
	if err != nil || string(data) != "ubuntu-latest\n" {
		t.Errorf("fetched out.txt = %q, %v", data, err)
	}
}

func TestRunReportsFailedJob(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t)
	ta.writeWorkflow(t, shellWorkflow(`if [ "${{ matrix.os }}" = "macOS-latest" ]; then exit 3; fi
echo ok > out.txt`))

	err := ta.execute(t, "run", "--json")
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 1 {
		t.Fatalf("run error = %v, want exit code 1", err)
	}

	var report decodedReport
	if err := json.Unmarshal(ta.stdout.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v\n%s", err, ta.stdout)
	}
	if report.Succeeded {
		t.Error("report marked as succeeded")
	}
	states := map[string]jobReport{}
	for _, j := range report.Jobs {
		states[j.ArtifactName] = j
	}
	if j := states["tool-ubuntu-latest-x64-3.12"]; j.State != "succeeded" {
		t.Errorf("sibling job = %+v, want succeeded", j)
	}
	if j := states["tool-macOS-latest-x64-3.12"]; j.State != "failed" || j.ErrorKind != "package" {
		t.Errorf("failing job = %+v, want failed with package kind", j)
	}
}

func TestRunTableSummary(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t)
	ta.writeWorkflow(t, shellWorkflow("echo ok > out.txt"))

	if err := ta.execute(t, "run", "--only", "os=ubuntu-latest"); err != nil {
		t.Fatalf("run error = %v", err)
	}
	out := ta.stdout.String()
	for _, want := range []string{"(ubuntu-latest, x64, 3.12)", "tool-ubuntu-latest-x64-3.12", "1 jobs succeeded"} {
		if !bytes.Contains([]byte(out), []byte(want)) {
			t.Errorf("summary lacks %q:\n%s", want, out)
		}
	}
}

func TestParseSelector(t *testing.T) {
	t.Parallel()

	sel, err := parseSelector([]string{"os=ubuntu-latest", " architecture = x64 "})
	if err != nil {
		t.Fatalf("parseSelector() error = %v", err)
	}
	if sel["os"] != "ubuntu-latest" || sel["architecture"] != "x64" {
		t.Errorf("parseSelector() = %v", sel)
	}
	if _, err := parseSelector([]string{"=x"}); err == nil {
		t.Error("empty key accepted")
	}
	if sel, _ := parseSelector(nil); sel != nil {
		t.Errorf("parseSelector(nil) = %v", sel)
	}
}

func TestExitCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, 0},
		{"plain error", errors.New("boom"), 1},
		{"exit error", &ExitError{Code: 3}, 3},
		{"wrapped exit error", fmt.Errorf("run: %w", &ExitError{Code: 2, Err: errors.New("job failed")}), 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFormatBytes(t *testing.T) {
	t.Parallel()

	tests := map[int64]string{0: "0 B", 1023: "1023 B", 1024: "1.0 KiB", 5 << 20: "5.0 MiB"}
	for in, want := range tests {
		if got := formatBytes(in); got != want {
			t.Errorf("formatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}

//nolint:paralleltest // switches the process-wide lipgloss background
func TestColorScheme(t *testing.T) {
	wasDark := lipgloss.HasDarkBackground()
	t.Cleanup(func() { lipgloss.SetHasDarkBackground(wasDark) })

	tests := []struct {
		scheme config.ColorScheme
		style  string
		dark   bool
	}{
		{config.ColorSchemeDark, "dark", true},
		{config.ColorSchemeLight, "light", false},
	}
	for _, tt := range tests {
		if got := applyColorScheme(tt.scheme); got != tt.style {
			t.Errorf("applyColorScheme(%s) = %q, want %q", tt.scheme, got, tt.style)
		}
		if lipgloss.HasDarkBackground() != tt.dark {
			t.Errorf("after %s: HasDarkBackground() = %v, want %v", tt.scheme, !tt.dark, tt.dark)
		}
	}
	if got := applyColorScheme(config.ColorSchemeAuto); got != "auto" {
		t.Errorf("applyColorScheme(auto) = %q, want auto", got)
	}

	cfg := config.DefaultConfig()
	cfg.UI.ColorScheme = config.ColorSchemeLight
	cfg.Log.Level = logging.LevelError
	app := NewApp(Dependencies{Config: stubConfig{cfg: cfg}, Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}})
	if _, _, err := app.setup(t.Context()); err != nil {
		t.Fatalf("setup() error = %v", err)
	}
	if app.guideStyle != "light" || lipgloss.HasDarkBackground() {
		t.Errorf("configured light scheme not applied: guide style %q, dark background %v", app.guideStyle, lipgloss.HasDarkBackground())
	}
}

func TestConfigSetters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key, value string
		wantErr    bool
		check      func(*config.Config) bool
	}{
		{"runner", "container", false, func(c *config.Config) bool { return c.Runner == config.RunnerContainer }},
		{"runner", "vm", true, nil},
		{"max_parallel", "3", false, func(c *config.Config) bool { return c.MaxParallel == 3 }},
		{"max_parallel", "-1", true, nil},
		{"keep_workspace", "true", false, func(c *config.Config) bool { return c.KeepWorkspace }},
		{"log.level", "debug", false, func(c *config.Config) bool { return c.Log.Level == logging.LevelDebug }},
		{"log.level", "loud", true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Parallel()

			cfg := config.DefaultConfig()
			err := configSetters[tt.key](cfg, tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("set %s=%s error = %v, wantErr %v", tt.key, tt.value, err, tt.wantErr)
			}
			if tt.check != nil && !tt.check(cfg) {
				t.Errorf("set %s=%s not applied", tt.key, tt.value)
			}
		})
	}

	ta := newTestApp(t)
	if err := ta.execute(t, "config", "set", "nope", "1"); err == nil {
		t.Error("unknown key accepted")
	}
}
