// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/buildmatrix/buildmatrix/internal/matrix"
	"github.com/buildmatrix/buildmatrix/internal/pipeline"
)

type matrixEntry struct {
	Index        int          `json:"index"`
	Label        string       `json:"label"`
	Matrix       matrix.Entry `json:"matrix"`
	ArtifactName string       `json:"artifact_name"`
}

func newMatrixCommand(app *App) *cobra.Command {
	var (
		file   string
		only   []string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "matrix",
		Short: "Show the expanded build matrix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.showMatrix(cmd.Context(), file, only, asJSON)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "workflow file (default: discovered in the project directory)")
	cmd.Flags().StringArrayVar(&only, "only", nil, "show only entries matching key=value (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the entries as JSON")
	return cmd
}

func (a *App) showMatrix(_ context.Context, file string, only []string, asJSON bool) error {
	w, err := loadWorkflow(file, a.flags.dir)
	if err != nil {
		return err
	}
	sel, err := parseSelector(only)
	if err != nil {
		return err
	}
	jobs, err := pipeline.Plan(w, sel)
	if err != nil {
		return planError(w, err)
	}

	entries := make([]matrixEntry, len(jobs))
	for i, j := range jobs {
		entries[i] = matrixEntry{Index: j.Index, Label: j.Label(), Matrix: j.Entry, ArtifactName: j.ArtifactName}
	}
	if asJSON {
		return writeJSON(a.stdout, entries)
	}

	t := newTable("#", "Entry", "Artifact")
	for _, e := range entries {
		t.Row(strconv.Itoa(e.Index), e.Matrix.String(), CmdStyle.Render(e.ArtifactName))
	}
	fmt.Fprintln(a.stdout, TitleStyle.Render(workflowName(w))+" "+SubtitleStyle.Render(fmt.Sprintf("%d jobs", len(entries))))
	fmt.Fprintln(a.stdout, t.Render())
	return nil
}
