// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/buildmatrix/buildmatrix/internal/issue"
	"github.com/buildmatrix/buildmatrix/internal/matrix"
	"github.com/buildmatrix/buildmatrix/pkg/workflow"
)

// workflowCandidates are looked up, in order, when no workflow file is given.
var workflowCandidates = []string{
	"buildmatrix.cue",
	"buildmatrix.toml",
	filepath.Join(".github", "workflows", "executables.yml"),
}

// discoverWorkflow returns the first candidate present in dir, or "".
func discoverWorkflow(dir string) string {
	for _, name := range workflowCandidates {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// loadWorkflow reads the workflow at path (relative to dir), or the first
// discovered one, falling back to the built-in default.
func loadWorkflow(path, dir string) (*workflow.Workflow, error) {
	if path == "" {
		path = discoverWorkflow(dir)
		if path == "" {
			return workflow.Default(), nil
		}
	} else if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}

	if _, err := os.Stat(path); err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("load workflow").
			WithResource(path).
			WithSuggestions(
				"Check the --file path",
				"Run 'buildmatrix init' to write the built-in workflow",
			).
			WithIssue(issue.WorkflowNotFoundId).
			Wrap(err).
			BuildError()
	}

	w, err := workflow.Parse(path)
	if err != nil {
		id := issue.WorkflowParseErrorId
		var invalid *workflow.InvalidWorkflowError
		if errors.As(err, &invalid) {
			id = issue.InvalidMatrixId
		}
		return nil, issue.NewErrorContext().
			WithOperation("parse workflow").
			WithResource(path).
			WithSuggestion("Run 'buildmatrix validate' for the full list of problems").
			WithIssue(id).
			Wrap(err).
			BuildError()
	}
	return w, nil
}

// planError decorates matrix expansion failures with guidance.
func planError(w *workflow.Workflow, err error) error {
	resource := w.FilePath
	if resource == "" {
		resource = "built-in workflow"
	}
	ctx := issue.NewErrorContext().
		WithOperation("expand build matrix").
		WithResource(resource).
		WithIssue(issue.InvalidMatrixId)
	switch {
	case errors.Is(err, matrix.ErrNameCollision):
		ctx.WithSuggestion("Include every matrix key that varies in the upload step's name")
	case errors.Is(err, matrix.ErrMissingKey):
		ctx.WithSuggestion("Every entry needs os, architecture and python-version")
	}
	return ctx.Wrap(err).BuildError()
}

// parseSelector parses repeated key=value flags into matrix values.
func parseSelector(pairs []string) (workflow.Values, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	sel := make(workflow.Values, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid selector %q, expected key=value", p)
		}
		sel[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return sel, nil
}
