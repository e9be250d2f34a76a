// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"fmt"

	"github.com/buildmatrix/buildmatrix/internal/matrix"
	"github.com/buildmatrix/buildmatrix/pkg/workflow"
)

// Plan expands the workflow's matrix into queued jobs, in expansion order.
// Entries not matching every key of only are dropped; job indexes keep their
// position in the full expansion. Artifact names must be unique.
func Plan(w *workflow.Workflow, only workflow.Values) ([]*Job, error) {
	entries, err := matrix.Expand(w.Strategy.Matrix)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(entries))
	seen := make(map[string]int, len(entries))
	for i, e := range entries {
		name, err := ArtifactName(w, e)
		if err != nil {
			return nil, err
		}
		if first, ok := seen[name]; ok {
			return nil, &matrix.NameCollisionError{Name: name, First: first, Second: i}
		}
		seen[name] = i
		names[i] = name
	}

	var jobs []*Job
	for i, e := range entries {
		if len(only) > 0 && !e.Matches(only) {
			continue
		}
		jobs = append(jobs, NewJob(i, e, names[i]))
	}
	return jobs, nil
}

// ArtifactName returns the name the entry's job publishes under: the
// interpolated name of the workflow's first upload step, or
// {product}-{os}-{architecture}-{python-version} when that step sets none.
func ArtifactName(w *workflow.Workflow, e matrix.Entry) (string, error) {
	for _, s := range w.Steps {
		if s.Action() != workflow.ActionUploadArtifact || s.With["name"] == "" {
			continue
		}
		name, err := workflow.Interpolate(s.With["name"], workflow.Scope{Matrix: e.Map()})
		if err != nil {
			return "", fmt.Errorf("artifact name of %s: %w", e.Label(), err)
		}
		if name != "" {
			return name, nil
		}
		break
	}
	product := w.Product
	if product == "" {
		product = workflow.DefaultProduct
	}
	return matrix.ArtifactName(product, e), nil
}
