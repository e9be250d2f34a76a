// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/buildmatrix/buildmatrix/internal/pipeline"
	"github.com/buildmatrix/buildmatrix/pkg/workflow"
)

func newValidateCommand(app *App) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a workflow file and its matrix",
		Long: `Parse the workflow, check it against the schema, expand the matrix and
verify that every entry publishes a distinct artifact name.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.validate(file)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "workflow file (default: discovered in the project directory)")
	return cmd
}

func (a *App) validate(file string) error {
	w, err := loadWorkflow(file, a.flags.dir)
	if err != nil {
		var invalid *workflow.InvalidWorkflowError
		if errors.As(err, &invalid) {
			fmt.Fprintln(a.stderr, ErrorStyle.Render("✗ "+invalid.FilePath))
			for _, fe := range invalid.Errors {
				fmt.Fprintln(a.stderr, "  • "+fe.Error())
			}
			return &ExitError{Code: 1, Err: err}
		}
		return err
	}

	jobs, err := pipeline.Plan(w, nil)
	if err != nil {
		return planError(w, err)
	}
	fmt.Fprintln(a.stdout, SuccessStyle.Render("✓ "+workflowName(w))+SubtitleStyle.Render(fmt.Sprintf(" expands to %d jobs", len(jobs))))
	return nil
}
