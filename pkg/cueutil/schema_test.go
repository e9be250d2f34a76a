// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"strings"
	"testing"
)

const testSchema = `
#Job: {
	name:     string
	parallel: int & >=0
	enabled:  bool
	label?:   string
}
`

type testJob struct {
	Name     string `json:"name"`
	Parallel int    `json:"parallel"`
	Enabled  bool   `json:"enabled"`
	Label    string `json:"label,omitempty"`
}

func TestNewSchema(t *testing.T) {
	t.Parallel()

	if _, err := NewSchema([]byte(testSchema), "#Missing"); err == nil || !strings.Contains(err.Error(), "#Missing") {
		t.Errorf("NewSchema(#Missing) error = %v, want lookup error", err)
	}
	if _, err := NewSchema([]byte(`#Job: {`), "#Job"); err == nil {
		t.Error("NewSchema() accepted a schema that does not compile")
	}

	s := MustSchema(testSchema, "#Job")
	if s.Definition() != "#Job" {
		t.Errorf("Definition() = %q", s.Definition())
	}
}

func TestDecode(t *testing.T) {
	t.Parallel()

	schema := MustSchema(testSchema, "#Job")

	tests := []struct {
		name    string
		data    string
		opts    []Option
		want    testJob
		wantErr string
	}{
		{
			name: "valid document",
			data: "name: \"build\"\nparallel: 4\nenabled: true\nlabel: \"nightly\"\n",
			want: testJob{Name: "build", Parallel: 4, Enabled: true, Label: "nightly"},
		},
		{
			name:    "constraint violation names file and field",
			data:    "name: \"build\"\nparallel: -1\nenabled: true\n",
			opts:    []Option{WithFilename("job.cue")},
			wantErr: "job.cue",
		},
		{
			name:    "incomplete document",
			data:    `name: "build"`,
			wantErr: "<input>",
		},
		{
			name:    "size limit",
			data:    `name: "` + strings.Repeat("a", 64) + `"`,
			opts:    []Option{WithMaxFileSize(16)},
			wantErr: "exceeds maximum",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Decode[testJob](schema, []byte(tt.data), tt.opts...)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Decode() error = %v, want it to mention %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if *got != tt.want {
				t.Errorf("Decode() = %+v, want %+v", *got, tt.want)
			}
		})
	}
}

func TestCheckPartial(t *testing.T) {
	t.Parallel()

	schema := MustSchema(testSchema, "#Job")
	if _, err := schema.Check([]byte(`name: "build"`), Partial()); err != nil {
		t.Errorf("Check(Partial) error = %v", err)
	}
	if _, err := schema.Check([]byte(`parallel: "many"`), Partial()); err == nil {
		t.Error("Check(Partial) accepted a type conflict")
	}
}
