// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"errors"
	"fmt"
)

// Step error kinds, one per class of failure a job can end with.
const (
	StepKindCheckout  StepKind = "checkout"
	StepKindProvision StepKind = "provision"
	StepKindInstall   StepKind = "install"
	StepKindPackage   StepKind = "package"
	StepKindUpload    StepKind = "upload"
	// StepKindStep covers failures outside the build actions: workspace
	// preparation, cancellation and unknown actions.
	StepKindStep StepKind = "step"
)

var (
	// ErrNoSource is returned by a checkout step when the run has no source.
	ErrNoSource = errors.New("run has no source to check out")

	// ErrJobCanceled is the cause recorded for jobs stopped by cancellation.
	ErrJobCanceled = errors.New("job canceled")
)

type (
	// StepKind classifies a step failure.
	StepKind string

	// StepError is the error a job fails with.
	StepError struct {
		Kind StepKind
		// Step is the step's display name
		Step  string
		Cause error
	}
)

func (e *StepError) Error() string {
	return fmt.Sprintf("%s failed at step %q: %v", e.Kind, e.Step, e.Cause)
}

func (e *StepError) Unwrap() error { return e.Cause }

// KindOf returns the kind of the StepError in err's chain, or "".
func KindOf(err error) StepKind {
	var se *StepError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
