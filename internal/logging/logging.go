// SPDX-License-Identifier: MPL-2.0

// Package logging builds the structured logger used across a run and carries
// it through context.Context.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
)

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"

	FormatText   Format = "text"
	FormatJSON   Format = "json"
	FormatLogfmt Format = "logfmt"
)

var (
	// ErrInvalidLevel is returned when a Level value is not recognized.
	ErrInvalidLevel = errors.New("invalid log level")
	// ErrInvalidFormat is returned when a Format value is not recognized.
	ErrInvalidFormat = errors.New("invalid log format")
)

type (
	// Level is a log verbosity threshold.
	Level string

	// Format selects the log line encoding.
	Format string

	// InvalidLevelError is returned when a Level value is not recognized.
	InvalidLevelError struct {
		Value Level
	}

	// InvalidFormatError is returned when a Format value is not recognized.
	InvalidFormatError struct {
		Value Format
	}

	// Options configures New.
	Options struct {
		Level  Level
		Format Format
		Prefix string
	}

	ctxKey struct{}
)

// Error implements the error interface.
func (e *InvalidLevelError) Error() string {
	return fmt.Sprintf("invalid log level %q (valid: debug, info, warn, error)", e.Value)
}

// Unwrap returns ErrInvalidLevel for errors.Is() compatibility.
func (e *InvalidLevelError) Unwrap() error { return ErrInvalidLevel }

// Error implements the error interface.
func (e *InvalidFormatError) Error() string {
	return fmt.Sprintf("invalid log format %q (valid: text, json, logfmt)", e.Value)
}

// Unwrap returns ErrInvalidFormat for errors.Is() compatibility.
func (e *InvalidFormatError) Unwrap() error { return ErrInvalidFormat }

// IsValid returns whether the Level is recognized, and a list of validation
// errors if it is not.
func (l Level) IsValid() (bool, []error) {
	switch l {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return true, nil
	default:
		return false, []error{&InvalidLevelError{Value: l}}
	}
}

// String returns the string representation of the Level.
func (l Level) String() string { return string(l) }

// IsValid returns whether the Format is recognized, and a list of validation
// errors if it is not.
func (f Format) IsValid() (bool, []error) {
	switch f {
	case FormatText, FormatJSON, FormatLogfmt:
		return true, nil
	default:
		return false, []error{&InvalidFormatError{Value: f}}
	}
}

// String returns the string representation of the Format.
func (f Format) String() string { return string(f) }

// New creates a logger writing to w. Empty options fall back to info level
// and text format.
func New(w io.Writer, opts Options) (*log.Logger, error) {
	level := log.InfoLevel
	if opts.Level != "" {
		if ok, errs := opts.Level.IsValid(); !ok {
			return nil, errs[0]
		}
		parsed, err := log.ParseLevel(string(opts.Level))
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		level = parsed
	}

	formatter := log.TextFormatter
	switch opts.Format {
	case "", FormatText:
	case FormatJSON:
		formatter = log.JSONFormatter
	case FormatLogfmt:
		formatter = log.LogfmtFormatter
	default:
		return nil, &InvalidFormatError{Value: opts.Format}
	}

	return log.NewWithOptions(w, log.Options{
		Level:           level,
		Prefix:          opts.Prefix,
		Formatter:       formatter,
		ReportTimestamp: formatter != log.TextFormatter,
		TimeFormat:      time.RFC3339,
	}), nil
}

// Discard returns a logger that drops every record.
func Discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger *log.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the logger carried by ctx, or the package default
// logger when none is set.
func FromContext(ctx context.Context) *log.Logger {
	if logger, ok := ctx.Value(ctxKey{}).(*log.Logger); ok && logger != nil {
		return logger
	}
	return log.Default()
}
