// SPDX-License-Identifier: MPL-2.0

package workflow

import (
	"errors"
	"testing"
)

func TestInterpolate(t *testing.T) {
	t.Parallel()

	scope := Scope{
		Matrix: map[string]string{"os": "windows-latest", "architecture": "x64", "python-version": "3.12", "python-packages": ""},
		Env:    map[string]string{"HOME": "/home/build"},
		Run:    RunContext{ID: "run-1", Revision: "abc123", Ref: "refs/heads/master"},
	}

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{name: "no expressions", input: "python ./scripts/pyinstaller.py", want: "python ./scripts/pyinstaller.py"},
		{
			name:  "artifact name",
			input: "gallery-dl-${{ matrix.os }}-${{ matrix.architecture }}-${{ matrix.python-version }}",
			want:  "gallery-dl-windows-latest-x64-3.12",
		},
		{name: "no spaces", input: "${{matrix.os}}", want: "windows-latest"},
		{name: "empty matrix value", input: "pyyaml ${{ matrix.python-packages }} pyinstaller", want: "pyyaml  pyinstaller"},
		{name: "missing matrix key", input: "[${{ matrix.nope }}]", want: "[]"},
		{name: "env", input: "${{ env.HOME }}/dist", want: "/home/build/dist"},
		{name: "run context", input: "${{ run.id }}@${{ run.revision }} ${{ run.ref }}", want: "run-1@abc123 refs/heads/master"},
		{name: "unknown context", input: "${{ secrets.token }}", wantErr: ErrUnknownContext},
		{name: "unknown run field", input: "${{ run.number }}", wantErr: ErrUnknownContext},
		{name: "unterminated", input: "x ${{ matrix.os ", wantErr: ErrMalformedExpression},
		{name: "no key", input: "${{ matrix }}", wantErr: ErrMalformedExpression},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Interpolate(tt.input, scope)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Interpolate(%q) error = %v, want %v", tt.input, err, tt.wantErr)
				}
				var exprErr *ExpressionError
				if !errors.As(err, &exprErr) {
					t.Errorf("error %T is not *ExpressionError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Interpolate(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Interpolate(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestInterpolateMap(t *testing.T) {
	t.Parallel()

	scope := Scope{Matrix: map[string]string{"os": "macOS-latest"}}

	got, err := InterpolateMap(map[string]string{"name": "a-${{ matrix.os }}", "path": "dist"}, scope)
	if err != nil {
		t.Fatalf("InterpolateMap() error: %v", err)
	}
	if got["name"] != "a-macOS-latest" || got["path"] != "dist" {
		t.Errorf("InterpolateMap() = %v", got)
	}

	if _, err := InterpolateMap(map[string]string{"bad": "${{ vars.x }}"}, scope); !errors.Is(err, ErrUnknownContext) {
		t.Errorf("InterpolateMap() error = %v, want ErrUnknownContext", err)
	}

	if got, err := InterpolateMap(nil, scope); got != nil || err != nil {
		t.Errorf("InterpolateMap(nil) = %v, %v", got, err)
	}
}
