// SPDX-License-Identifier: MPL-2.0

package workflow

import (
	"errors"
	"fmt"
	"strings"
)

const (
	exprOpen  = "${{"
	exprClose = "}}"
)

var (
	// ErrUnknownContext is returned when an expression references a context
	// other than matrix, env or run.
	ErrUnknownContext = errors.New("unknown expression context")
	// ErrMalformedExpression is returned for unterminated or empty expressions.
	ErrMalformedExpression = errors.New("malformed expression")
)

type (
	// Scope holds the values expressions can reference.
	Scope struct {
		Matrix map[string]string
		Env    map[string]string
		Run    RunContext
	}

	// RunContext describes the run being executed.
	RunContext struct {
		ID       string
		Revision string
		Ref      string
	}

	// ExpressionError reports a failure to evaluate one expression.
	ExpressionError struct {
		Expr string
		Err  error
	}
)

// Error implements the error interface.
func (e *ExpressionError) Error() string {
	return fmt.Sprintf("expression %q: %v", e.Expr, e.Err)
}

// Unwrap returns the underlying sentinel.
func (e *ExpressionError) Unwrap() error { return e.Err }

// Interpolate replaces every ${{ context.key }} expression in s.
//
// Supported references are matrix.<key>, env.<key>, run.id, run.revision and
// run.ref. A matrix or env key that is not set evaluates to the empty string.
func Interpolate(s string, scope Scope) (string, error) {
	if !strings.Contains(s, exprOpen) {
		return s, nil
	}

	var b strings.Builder
	rest := s
	for {
		start := strings.Index(rest, exprOpen)
		if start < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		b.WriteString(rest[:start])
		rest = rest[start+len(exprOpen):]

		end := strings.Index(rest, exprClose)
		if end < 0 {
			return "", &ExpressionError{Expr: exprOpen + rest, Err: ErrMalformedExpression}
		}
		expr := strings.TrimSpace(rest[:end])
		rest = rest[end+len(exprClose):]

		v, err := scope.lookup(expr)
		if err != nil {
			return "", &ExpressionError{Expr: expr, Err: err}
		}
		b.WriteString(v)
	}
}

// InterpolateMap applies Interpolate to every value of m.
func InterpolateMap(m map[string]string, scope Scope) (map[string]string, error) {
	if m == nil {
		return nil, nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		iv, err := Interpolate(v, scope)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = iv
	}
	return out, nil
}

func (s Scope) lookup(expr string) (string, error) {
	ctx, key, ok := strings.Cut(expr, ".")
	if !ok || ctx == "" || key == "" {
		return "", ErrMalformedExpression
	}

	switch ctx {
	case "matrix":
		return s.Matrix[key], nil
	case "env":
		return s.Env[key], nil
	case "run":
		switch key {
		case "id":
			return s.Run.ID, nil
		case "revision":
			return s.Run.Revision, nil
		case "ref":
			return s.Run.Ref, nil
		}
		return "", fmt.Errorf("%w: run.%s", ErrUnknownContext, key)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownContext, ctx)
	}
}

// CheckExpressions verifies that every expression in s is well formed and
// references a known context, without evaluating it.
func CheckExpressions(s string) error {
	_, err := Interpolate(s, Scope{})
	return err
}
