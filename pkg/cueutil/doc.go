// SPDX-License-Identifier: MPL-2.0

// Package cueutil checks documents against embedded CUE schemas.
//
//	//go:embed workflow_schema.cue
//	var workflowSchema string
//
//	var schema = cueutil.MustSchema(workflowSchema, "#Workflow")
//
//	w, err := cueutil.Decode[Workflow](schema, data, cueutil.WithFilename(path))
//
// Validation and decode errors are rendered by FormatError as
// "<file>: <field path>: <message>".
package cueutil
