// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// Schema is a CUE definition documents are checked against. A cue.Context is
// not safe for concurrent use, so every check compiles into a fresh one and a
// Schema can be shared freely.
type Schema struct {
	source     []byte
	definition string
}

// NewSchema returns the schema for definition (e.g. "#Workflow") in src. It
// fails when src does not compile or does not declare definition.
func NewSchema(src []byte, definition string) (*Schema, error) {
	s := &Schema{source: src, definition: definition}
	if _, err := s.compile(cuecontext.New()); err != nil {
		return nil, err
	}
	return s, nil
}

// MustSchema is NewSchema for embedded schemas.
func MustSchema(src, definition string) *Schema {
	s, err := NewSchema([]byte(src), definition)
	if err != nil {
		panic(err)
	}
	return s
}

// Definition returns the definition path the schema checks against.
func (s *Schema) Definition() string { return s.definition }

// Check unifies data with the definition and validates the result. Unless
// Partial is given every field must be concrete. Errors name the file and the
// path of the offending field.
func (s *Schema) Check(data []byte, opts ...Option) (cue.Value, error) {
	o := newCheckOptions(opts)
	if err := CheckFileSize(data, o.maxFileSize, o.filename); err != nil {
		return cue.Value{}, err
	}

	ctx := cuecontext.New()
	def, err := s.compile(ctx)
	if err != nil {
		return cue.Value{}, err
	}
	doc := ctx.CompileBytes(data, cue.Filename(o.filename))
	if doc.Err() != nil {
		return cue.Value{}, FormatError(doc.Err(), o.filename)
	}

	unified := def.Unify(doc)
	if err := unified.Validate(cue.Concrete(!o.partial)); err != nil {
		return cue.Value{}, FormatError(err, o.filename)
	}
	return unified, nil
}

// Decode checks data against s and decodes it into a new T.
func Decode[T any](s *Schema, data []byte, opts ...Option) (*T, error) {
	v, err := s.Check(data, opts...)
	if err != nil {
		return nil, err
	}
	var out T
	if err := v.Decode(&out); err != nil {
		return nil, FormatError(err, newCheckOptions(opts).filename)
	}
	return &out, nil
}

func (s *Schema) compile(ctx *cue.Context) (cue.Value, error) {
	root := ctx.CompileBytes(s.source)
	if root.Err() != nil {
		return cue.Value{}, fmt.Errorf("compile schema: %w", root.Err())
	}
	def := root.LookupPath(cue.ParsePath(s.definition))
	if def.Err() != nil {
		return cue.Value{}, fmt.Errorf("schema definition %s not found: %w", s.definition, def.Err())
	}
	return def, nil
}
