// SPDX-License-Identifier: MPL-2.0

package workflow

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/buildmatrix/buildmatrix/pkg/cueutil"
	"github.com/pelletier/go-toml/v2"
)

const (
	FormatCUE  Format = "cue"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

var (
	//go:embed workflow_schema.cue
	workflowSchema string

	cueSchema = cueutil.MustSchema(workflowSchema, "#Workflow")

	// ErrUnsupportedFormat is returned for files whose extension maps to no
	// known workflow format.
	ErrUnsupportedFormat = errors.New("unsupported workflow format")
)

type (
	// Format is a workflow file format.
	Format string

	// UnsupportedFormatError is returned when a format cannot be parsed or
	// generated.
	UnsupportedFormatError struct {
		Value string
	}
)

// Error implements the error interface.
func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported workflow format %q (valid: cue, yaml, toml)", e.Value)
}

// Unwrap returns ErrUnsupportedFormat for errors.Is() compatibility.
func (e *UnsupportedFormatError) Unwrap() error { return ErrUnsupportedFormat }

// IsValid returns whether the Format is known, and a list of validation
// errors if it is not.
func (f Format) IsValid() (bool, []error) {
	switch f {
	case FormatCUE, FormatYAML, FormatTOML:
		return true, nil
	default:
		return false, []error{&UnsupportedFormatError{Value: string(f)}}
	}
}

// String returns the string representation of the Format.
func (f Format) String() string { return string(f) }

// FormatFromPath infers the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		return FormatCUE, nil
	case ".yml", ".yaml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", &UnsupportedFormatError{Value: filepath.Ext(path)}
	}
}

// Parse reads and validates the workflow at path.
func Parse(path string) (*Workflow, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow at %s: %w", path, err)
	}
	return ParseBytes(data, path, format)
}

// ParseBytes decodes workflow content in the given format and validates it.
// path is used for error messages only.
func ParseBytes(data []byte, path string, format Format) (*Workflow, error) {
	var (
		w   *Workflow
		err error
	)
	switch format {
	case FormatCUE:
		w, err = parseCUE(data, path)
	case FormatYAML:
		w, err = parseGitHubYAML(data, path)
	case FormatTOML:
		w, err = parseTOML(data, path)
	default:
		return nil, &UnsupportedFormatError{Value: string(format)}
	}
	if err != nil {
		return nil, err
	}

	w.FilePath = path
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return w, nil
}

func parseCUE(data []byte, path string) (*Workflow, error) {
	return cueutil.Decode[Workflow](cueSchema, data, cueutil.WithFilename(path))
}

func parseTOML(data []byte, path string) (*Workflow, error) {
	if err := cueutil.CheckFileSize(data, cueutil.DefaultMaxFileSize, path); err != nil {
		return nil, err
	}

	var w Workflow
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&w); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return nil, fmt.Errorf("%s:%d:%d: %s", path, row, col, derr.Error())
		}
		var serr *toml.StrictMissingError
		if errors.As(err, &serr) {
			return nil, fmt.Errorf("%s: %s", path, serr.String())
		}
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &w, nil
}
