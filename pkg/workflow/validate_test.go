// SPDX-License-Identifier: MPL-2.0

package workflow

import (
	"errors"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()

	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestDefaultFiresOnEveryPush(t *testing.T) {
	t.Parallel()

	on := Default().On
	if !on.Push || len(on.Branches) != 0 {
		t.Errorf("Default().On = %+v, want push without branch filters", on)
	}

	for _, format := range []Format{FormatCUE, FormatTOML, FormatYAML} {
		data, err := Generate(Default(), format)
		if err != nil {
			t.Fatalf("Generate(%s) error: %v", format, err)
		}
		w, err := ParseBytes(data, "buildmatrix."+string(format), format)
		if err != nil {
			t.Fatalf("ParseBytes(%s) error: %v\n%s", format, err, data)
		}
		if !w.On.Push || len(w.On.Branches) != 0 {
			t.Errorf("%s round trip On = %+v", format, w.On)
		}
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		mutate    func(w *Workflow)
		wantField string
	}{
		{"empty name", func(w *Workflow) { w.Name = " " }, "name"},
		{"bad product", func(w *Workflow) { w.Product = "a/b" }, "product"},
		{"bad branch pattern", func(w *Workflow) { w.On.Branches = []string{"release/[x"} }, "on.branches[0]"},
		{"negative max parallel", func(w *Workflow) { w.Strategy.MaxParallel = -1 }, "strategy.max_parallel"},
		{"empty matrix", func(w *Workflow) { w.Strategy.Matrix = Matrix{} }, "strategy.matrix"},
		{"duplicate axis", func(w *Workflow) {
			w.Strategy.Matrix.Axes = append(w.Strategy.Matrix.Axes, Axis{Name: "os", Values: []string{"x"}})
		}, "strategy.matrix.axes[4].name"},
		{"axis without values", func(w *Workflow) { w.Strategy.Matrix.Axes[1].Values = nil }, "strategy.matrix.axes[1].values"},
		{"empty include", func(w *Workflow) { w.Strategy.Matrix.Include = append(w.Strategy.Matrix.Include, Values{}) }, "strategy.matrix.include[2]"},
		{"no steps", func(w *Workflow) { w.Steps = nil }, "steps"},
		{"uses and run", func(w *Workflow) { w.Steps[0].Run = "true" }, "steps[0]"},
		{"neither uses nor run", func(w *Workflow) { w.Steps[3].Run = "" }, "steps[3]"},
		{"unknown action", func(w *Workflow) { w.Steps[0].Uses = "actions/cache@v4" }, "steps[0].uses"},
		{"bad shell", func(w *Workflow) { w.Steps[3].Shell = "fish" }, "steps[3].shell"},
		{"bad env name", func(w *Workflow) { w.Steps[3].Env = map[string]string{"1X": "y"} }, "steps[3].env"},
		{"bad expression", func(w *Workflow) { w.Steps[3].Run = "echo ${{ secrets.x }}" }, "steps[3].run"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := Default()
			tt.mutate(w)

			err := w.Validate()
			if !errors.Is(err, ErrInvalidWorkflow) {
				t.Fatalf("Validate() = %v, want ErrInvalidWorkflow", err)
			}

			var invalid *InvalidWorkflowError
			if !errors.As(err, &invalid) {
				t.Fatalf("error %T is not *InvalidWorkflowError", err)
			}
			found := false
			for _, e := range invalid.Errors {
				var fe *FieldError
				if errors.As(e, &fe) && fe.Field == tt.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("no error for field %q in: %v", tt.wantField, err)
			}
		})
	}
}

func TestInvalidWorkflowErrorMessage(t *testing.T) {
	t.Parallel()

	w := Default()
	w.FilePath = "buildmatrix.cue"
	w.Name = ""
	w.Steps = nil

	msg := w.Validate().Error()
	for _, want := range []string{"buildmatrix.cue", "2 problems", "name: must not be empty", "steps: at least one step"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q does not contain %q", msg, want)
		}
	}
}
