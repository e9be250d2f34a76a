// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/buildmatrix/buildmatrix/internal/artifact"
	"github.com/buildmatrix/buildmatrix/internal/config"
	"github.com/buildmatrix/buildmatrix/internal/issue"
	"github.com/buildmatrix/buildmatrix/internal/pipeline"
	"github.com/buildmatrix/buildmatrix/internal/scheduler"
	"github.com/buildmatrix/buildmatrix/internal/source"
	"github.com/buildmatrix/buildmatrix/pkg/workflow"
)

type (
	runOptions struct {
		file          string
		runner        string
		maxParallel   int
		failFast      bool
		keepWorkspace bool
		only          []string
		source        string
		revision      string
		json          bool
	}

	// runReport is the machine-readable result of a run.
	runReport struct {
		RunID     string             `json:"run_id"`
		Workflow  string             `json:"workflow"`
		Ref       string             `json:"ref,omitempty"`
		Revision  string             `json:"revision,omitempty"`
		Succeeded bool               `json:"succeeded"`
		Duration  time.Duration      `json:"duration"`
		Jobs      []pipeline.Summary `json:"jobs"`
	}
)

func newRunCommand(app *App) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Build every matrix entry of the workflow",
		Long: `Expand the workflow's matrix and run one job per entry. Jobs run in
parallel and never affect each other unless --fail-fast is set. The command
exits with status 1 when any job fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("max-parallel") {
				opts.maxParallel = -1
			}
			return app.run(cmd.Context(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.file, "file", "f", "", "workflow file (default: discovered in the project directory)")
	f.StringVar(&opts.runner, "runner", "", "step runner: native, virtual or container (default from config)")
	f.IntVar(&opts.maxParallel, "max-parallel", 0, "maximum jobs in flight, 0 for unbounded")
	f.BoolVar(&opts.failFast, "fail-fast", false, "cancel remaining jobs when one fails")
	f.BoolVar(&opts.keepWorkspace, "keep-workspace", false, "keep job workspaces after the run")
	f.StringArrayVar(&opts.only, "only", nil, "run only entries matching key=value (repeatable)")
	f.StringVar(&opts.source, "source", "", "repository path or URL to build (default: the project directory)")
	f.StringVar(&opts.revision, "revision", "", "ref or commit to check out (default: HEAD)")
	f.BoolVar(&opts.json, "json", false, "print the run report as JSON")
	return cmd
}

func (a *App) run(ctx context.Context, opts runOptions) error {
	ctx, cfg, err := a.setup(ctx)
	if err != nil {
		return err
	}
	w, err := loadWorkflow(opts.file, a.flags.dir)
	if err != nil {
		return err
	}
	sel, err := parseSelector(opts.only)
	if err != nil {
		return err
	}

	fetcher, info := a.sourceFor(opts.source, opts.revision)
	report, err := a.execute(ctx, cfg, w, opts, sel, fetcher, info)
	if err != nil {
		return err
	}
	return a.finishRun(report, opts.json)
}

// sourceFor returns the fetcher for a run and the revision it starts from.
// Repositories are checked out through git so jobs see committed state
// only; plain directories are copied.
func (a *App) sourceFor(src, rev string) (source.Fetcher, pipeline.RunInfo) {
	if src == "" {
		src = a.flags.dir
	}
	if !source.IsRemote(src) {
		if _, err := source.GitDir(src); err != nil {
			return source.DirFetcher{Dir: src}, pipeline.RunInfo{}
		}
	}

	var info pipeline.RunInfo
	if rev == "" && !source.IsRemote(src) {
		if head, err := source.Head(src); err == nil {
			info.Ref, info.Revision = head.Ref, head.Commit
		}
	}
	return source.NewGitFetcher(src, rev), info
}

// execute plans and runs the workflow and returns the report. Job failures
// are part of the report, not the error.
func (a *App) execute(ctx context.Context, cfg *config.Config, w *workflow.Workflow, opts runOptions, sel workflow.Values, fetcher source.Fetcher, info pipeline.RunInfo) (*runReport, error) {
	jobs, err := pipeline.Plan(w, sel)
	if err != nil {
		return nil, planError(w, err)
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("no matrix entry matches %v", opts.only)
	}

	mode := cfg.Runner
	if opts.runner != "" {
		mode = config.RunnerMode(opts.runner)
	}
	rn, prov, err := a.newRuntime(ctx, cfg, mode)
	if err != nil {
		return nil, err
	}

	store, err := artifact.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	workDir, err := cfg.ResolvedWorkDir()
	if err != nil {
		return nil, err
	}

	var output io.Writer = a.stdout
	if opts.json {
		output = a.stderr
	}
	exec, err := pipeline.NewExecutor(w, rn, prov, store,
		pipeline.WithWorkDir(workDir),
		pipeline.WithKeepWorkspace(opts.keepWorkspace || cfg.KeepWorkspace),
		pipeline.WithOutput(output),
	)
	if err != nil {
		return nil, err
	}

	info.ID = uuid.NewString()
	info.Source = fetcher

	schedOpts := scheduler.Options{
		MaxParallel: cfg.MaxParallel,
		FailFast:    opts.failFast || w.Strategy.FailFast,
	}
	if w.Strategy.MaxParallel > 0 {
		schedOpts.MaxParallel = w.Strategy.MaxParallel
	}
	if opts.maxParallel >= 0 {
		schedOpts.MaxParallel = opts.maxParallel
	}

	log := logger(ctx).With("run", info.ID)
	log.Info("run started", "workflow", workflowName(w), "jobs", len(jobs), "runner", rn.Name(), "max_parallel", schedOpts.MaxParallel)

	started := time.Now()
	results := scheduler.Schedule(ctx, jobs, schedOpts, func(ctx context.Context, job *pipeline.Job) error {
		return exec.Run(ctx, job, info)
	})

	report := &runReport{
		RunID:     info.ID,
		Workflow:  workflowName(w),
		Ref:       info.Ref,
		Revision:  info.Revision,
		Succeeded: scheduler.Err(results) == nil,
		Duration:  time.Since(started),
	}
	for _, r := range results {
		report.Jobs = append(report.Jobs, r.Summary)
		if report.Revision == "" && r.Summary.Revision != "" {
			report.Revision = r.Summary.Revision
		}
	}
	log.Info("run finished", "succeeded", report.Succeeded, "duration", report.Duration)
	return report, nil
}

// finishRun prints the report and turns job failures into exit status 1.
func (a *App) finishRun(report *runReport, asJSON bool) error {
	if asJSON {
		if err := writeJSON(a.stdout, report); err != nil {
			return err
		}
	} else {
		renderRunSummary(a.stdout, report)
	}

	if report.Succeeded {
		return nil
	}
	failed := 0
	for _, j := range report.Jobs {
		if j.State != pipeline.StateSucceeded {
			failed++
		}
	}
	err := issue.NewErrorContext().
		WithOperation("run workflow").
		WithResource(report.RunID).
		WithSuggestion("Re-run a single entry with --only key=value --keep-workspace to inspect it").
		WithIssue(issue.JobsFailedId).
		Wrap(&scheduler.FailedError{Failed: failed, Total: len(report.Jobs)}).
		BuildError()
	if !asJSON {
		a.renderIssue(err)
	}
	return &ExitError{Code: 1, Err: err}
}

func workflowName(w *workflow.Workflow) string {
	if w.FilePath == "" {
		return w.Name + " (built-in)"
	}
	return w.Name + " (" + filepath.Base(w.FilePath) + ")"
}
