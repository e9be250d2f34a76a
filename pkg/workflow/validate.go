// SPDX-License-Identifier: MPL-2.0

package workflow

import (
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

var (
	// ErrInvalidWorkflow is the sentinel wrapped by InvalidWorkflowError.
	ErrInvalidWorkflow = errors.New("invalid workflow")

	productPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
	keyPattern     = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	envPattern     = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

type (
	// FieldError describes one problem at a field path such as
	// "steps[2].uses".
	FieldError struct {
		Field string
		Err   error
	}

	// InvalidWorkflowError aggregates every problem found in a workflow.
	// It wraps ErrInvalidWorkflow for errors.Is() compatibility.
	InvalidWorkflowError struct {
		FilePath string
		Errors   []error
	}
)

// Error implements the error interface.
func (e *FieldError) Error() string {
	return e.Field + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *FieldError) Unwrap() error { return e.Err }

// Error implements the error interface.
func (e *InvalidWorkflowError) Error() string {
	var b strings.Builder
	b.WriteString("invalid workflow")
	if e.FilePath != "" {
		b.WriteString(" ")
		b.WriteString(e.FilePath)
	}
	if len(e.Errors) == 1 {
		b.WriteString(": ")
		b.WriteString(e.Errors[0].Error())
		return b.String()
	}
	fmt.Fprintf(&b, " (%d problems):", len(e.Errors))
	for _, err := range e.Errors {
		b.WriteString("\n  - ")
		b.WriteString(err.Error())
	}
	return b.String()
}

// Unwrap returns ErrInvalidWorkflow for errors.Is() compatibility.
func (e *InvalidWorkflowError) Unwrap() error { return ErrInvalidWorkflow }

// Validate checks the workflow and returns an *InvalidWorkflowError listing
// every problem found, or nil.
func (w *Workflow) Validate() error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, &FieldError{Field: field, Err: fmt.Errorf(format, args...)})
	}

	if strings.TrimSpace(w.Name) == "" {
		add("name", "must not be empty")
	}
	if !productPattern.MatchString(w.Product) {
		add("product", "%q must start with a letter or digit and contain only letters, digits, '.', '_' or '-'", w.Product)
	}

	for i, p := range w.On.Branches {
		if !doublestar.ValidatePattern(p) {
			add(fmt.Sprintf("on.branches[%d]", i), "invalid pattern %q", p)
		}
	}

	if w.Strategy.MaxParallel < 0 {
		add("strategy.max_parallel", "must be >= 0, got %d", w.Strategy.MaxParallel)
	}
	errs = append(errs, validateMatrix(w.Strategy.Matrix)...)

	if len(w.Steps) == 0 {
		add("steps", "at least one step is required")
	}
	for i := range w.Steps {
		errs = append(errs, validateStep(fmt.Sprintf("steps[%d]", i), &w.Steps[i])...)
	}

	if len(errs) == 0 {
		return nil
	}
	return &InvalidWorkflowError{FilePath: w.FilePath, Errors: errs}
}

func validateMatrix(m Matrix) []error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, &FieldError{Field: field, Err: fmt.Errorf(format, args...)})
	}

	if len(m.Axes) == 0 && len(m.Include) == 0 {
		add("strategy.matrix", "declares no axes and no include entries")
	}

	seen := make(map[string]bool, len(m.Axes))
	for i, a := range m.Axes {
		field := fmt.Sprintf("strategy.matrix.axes[%d]", i)
		if !keyPattern.MatchString(a.Name) {
			add(field+".name", "invalid key %q", a.Name)
		}
		if seen[a.Name] {
			add(field+".name", "duplicate axis %q", a.Name)
		}
		seen[a.Name] = true
		if len(a.Values) == 0 {
			add(field+".values", "axis %q has no values", a.Name)
		}
	}

	for _, list := range []struct {
		name  string
		items []Values
	}{{"include", m.Include}, {"exclude", m.Exclude}} {
		for i, v := range list.items {
			field := fmt.Sprintf("strategy.matrix.%s[%d]", list.name, i)
			if len(v) == 0 {
				add(field, "must set at least one key")
			}
			for k := range v {
				if !keyPattern.MatchString(k) {
					add(field, "invalid key %q", k)
				}
			}
		}
	}
	return errs
}

func validateStep(field string, s *Step) []error {
	var errs []error
	add := func(sub, format string, args ...any) {
		errs = append(errs, &FieldError{Field: field + sub, Err: fmt.Errorf(format, args...)})
	}

	switch {
	case s.Uses == "" && s.Run == "":
		add("", "one of uses or run is required")
	case s.Uses != "" && s.Run != "":
		add("", "uses and run are mutually exclusive")
	case s.Uses != "":
		if _, err := ResolveAction(s.Uses); err != nil {
			errs = append(errs, &FieldError{Field: field + ".uses", Err: err})
		}
	}

	if ok, shellErrs := s.Shell.IsValid(); !ok {
		for _, err := range shellErrs {
			errs = append(errs, &FieldError{Field: field + ".shell", Err: err})
		}
	}
	for k := range s.Env {
		if !envPattern.MatchString(k) {
			add(".env", "invalid variable name %q", k)
		}
	}

	exprs := stepExpressions(s)
	for _, sub := range slices.Sorted(maps.Keys(exprs)) {
		if err := CheckExpressions(exprs[sub]); err != nil {
			errs = append(errs, &FieldError{Field: field + sub, Err: err})
		}
	}
	return errs
}

func stepExpressions(s *Step) map[string]string {
	out := map[string]string{".name": s.Name, ".run": s.Run}
	for k, v := range s.With {
		out[".with."+k] = v
	}
	for k, v := range s.Env {
		out[".env."+k] = v
	}
	return out
}
