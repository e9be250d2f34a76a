// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"strconv"
	"strings"
)

type (
	// ActionableError is a user-facing error: the operation that failed, the
	// resource it touched and hints on how to recover. A linked catalog guide
	// is rendered below the message by the CLI.
	//
	//	return issue.NewErrorContext().
	//		WithOperation("load workflow").
	//		WithResource("./buildmatrix.cue").
	//		WithSuggestion("Run 'buildmatrix init' to create one").
	//		WithIssue(issue.WorkflowNotFoundId).
	//		Wrap(err).
	//		BuildError()
	ActionableError struct {
		// Operation is a verb phrase such as "publish artifact"
		Operation   string
		Resource    string
		Suggestions []string
		Cause       error
		// IssueId is zero when no guide applies
		IssueId Id
	}

	// ErrorContext accumulates the parts of an ActionableError.
	ErrorContext struct {
		err ActionableError
	}
)

// NewErrorContext starts an empty ErrorContext.
func NewErrorContext() *ErrorContext {
	return &ErrorContext{}
}

// WithOperation sets the failed operation. It is required.
func (c *ErrorContext) WithOperation(op string) *ErrorContext {
	c.err.Operation = op
	return c
}

// WithResource sets the file, path or entity involved.
func (c *ErrorContext) WithResource(res string) *ErrorContext {
	c.err.Resource = res
	return c
}

// WithSuggestion appends a recovery hint.
func (c *ErrorContext) WithSuggestion(sug string) *ErrorContext {
	return c.WithSuggestions(sug)
}

// WithSuggestions appends several recovery hints.
func (c *ErrorContext) WithSuggestions(sugs ...string) *ErrorContext {
	c.err.Suggestions = append(c.err.Suggestions, sugs...)
	return c
}

// WithIssue links a catalog guide.
func (c *ErrorContext) WithIssue(id Id) *ErrorContext {
	c.err.IssueId = id
	return c
}

// Wrap sets the underlying cause.
func (c *ErrorContext) Wrap(err error) *ErrorContext {
	c.err.Cause = err
	return c
}

// Build returns a copy of the accumulated error, or nil without an operation.
func (c *ErrorContext) Build() *ActionableError {
	if c.err.Operation == "" {
		return nil
	}
	ae := c.err
	ae.Suggestions = append([]string(nil), c.err.Suggestions...)
	return &ae
}

// BuildError is Build typed as error, so a missing operation yields a nil
// interface rather than a typed nil.
func (c *ErrorContext) BuildError() error {
	if ae := c.Build(); ae != nil {
		return ae
	}
	return nil
}

func (e *ActionableError) Error() string {
	parts := []string{"failed to " + e.Operation}
	if e.Resource != "" {
		parts = append(parts, e.Resource)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *ActionableError) Unwrap() error { return e.Cause }

// Format renders the message followed by one bulleted line per suggestion.
// verbose appends the numbered chain of wrapped causes.
func (e *ActionableError) Format(verbose bool) string {
	var b strings.Builder
	b.WriteString(e.Error())

	if len(e.Suggestions) > 0 {
		b.WriteString("\n")
		for _, s := range e.Suggestions {
			b.WriteString("\n  • " + s)
		}
	}

	if verbose && e.Cause != nil {
		b.WriteString("\n\nError chain:")
		for depth, err := 1, e.Cause; err != nil; depth, err = depth+1, errors.Unwrap(err) {
			b.WriteString("\n  " + strconv.Itoa(depth) + ". " + err.Error())
		}
	}

	return b.String()
}

// Issue returns the linked catalog guide, or nil.
func (e *ActionableError) Issue() *Issue {
	if e.IssueId == 0 {
		return nil
	}
	return Get(e.IssueId)
}

// IssueOf walks err's chain and returns the first linked catalog guide, or nil.
func IssueOf(err error) *Issue {
	var ae *ActionableError
	for errors.As(err, &ae) {
		if guide := ae.Issue(); guide != nil {
			return guide
		}
		err = ae.Cause
	}
	return nil
}
