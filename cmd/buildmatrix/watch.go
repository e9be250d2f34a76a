// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/buildmatrix/buildmatrix/internal/pipeline"
	"github.com/buildmatrix/buildmatrix/internal/source"
	"github.com/buildmatrix/buildmatrix/internal/trigger"
)

func newWatchCommand(app *App) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the workflow on every push to the repository",
		Long: `Watch the project repository's branches and run the workflow whenever a
branch matching the workflow's on.branches patterns moves to a new commit.
Each run checks out exactly the pushed commit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("max-parallel") {
				opts.maxParallel = -1
			}
			return app.watch(cmd.Context(), opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.file, "file", "f", "", "workflow file (default: discovered in the project directory)")
	f.StringVar(&opts.runner, "runner", "", "step runner: native, virtual or container (default from config)")
	f.IntVar(&opts.maxParallel, "max-parallel", 0, "maximum jobs in flight, 0 for unbounded")
	f.BoolVar(&opts.failFast, "fail-fast", false, "cancel remaining jobs when one fails")
	f.StringArrayVar(&opts.only, "only", nil, "run only entries matching key=value (repeatable)")
	return cmd
}

func (a *App) watch(ctx context.Context, opts runOptions) error {
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

	log := logger(ctx)
	if !w.On.Push {
		log.Warn("workflow does not declare a push trigger; watching anyway")
	}

	tw, err := trigger.New(trigger.Config{
		RepoDir:  a.flags.dir,
		Branches: w.On.Branches,
		OnPush: func(ctx context.Context, p trigger.Push) error {
			info := pipeline.RunInfo{Ref: p.Ref, Revision: p.Revision}
			report, err := a.execute(ctx, cfg, w, opts, sel, source.NewGitFetcher(a.flags.dir, p.Revision), info)
			if err != nil {
				return err
			}
			if err := a.finishRun(report, false); err != nil {
				log.Error("run failed", "run", report.RunID, "error", a.formatError(err))
			}
			return nil
		},
	})
	if err != nil {
		return err
	}

	branches := "all branches"
	if len(w.On.Branches) > 0 {
		branches = strings.Join(w.On.Branches, ", ")
	}
	log.Info("watching for pushes", "repository", a.flags.dir, "branches", branches)
	return tw.Run(ctx)
}
