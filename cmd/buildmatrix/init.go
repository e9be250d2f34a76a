// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/buildmatrix/buildmatrix/pkg/workflow"
)

// ErrWorkflowExists is returned by init when the target file exists.
var ErrWorkflowExists = errors.New("workflow file already exists")

func newInitCommand(app *App) *cobra.Command {
	var (
		format string
		force  bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the built-in workflow to the project",
		Long: `Write the built-in workflow in the chosen format:
  cue   buildmatrix.cue
  toml  buildmatrix.toml
  yaml  .github/workflows/executables.yml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.initWorkflow(workflow.Format(format), force)
		},
	}
	cmd.Flags().StringVar(&format, "format", string(workflow.FormatCUE), "file format: cue, toml or yaml")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func (a *App) initWorkflow(format workflow.Format, force bool) error {
	if ok, errs := format.IsValid(); !ok {
		return errs[0]
	}

	var name string
	for _, candidate := range workflowCandidates {
		if f, err := workflow.FormatFromPath(candidate); err == nil && f == format {
			name = candidate
			break
		}
	}
	path := filepath.Join(a.flags.dir, name)

	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%w: %s (use --force to overwrite)", ErrWorkflowExists, path)
	}

	data, err := workflow.Generate(workflow.Default(), format)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, SuccessStyle.Render("✓ wrote ")+CmdStyle.Render(path))
	return nil
}
