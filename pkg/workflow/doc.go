// SPDX-License-Identifier: MPL-2.0

// Package workflow defines build workflows: a matrix strategy, the ordered
// step sequence executed for every matrix entry, and the trigger that starts
// a run.
//
// Workflows are read from three formats. CUE is the native format and is
// validated against an embedded schema. YAML documents in the hosted-CI
// layout (on / jobs / strategy / steps) are imported so an existing
// workflow file can be run locally. TOML is accepted as an alternative
// plain-data format. All three decode into the same Workflow value.
//
// Step fields may reference the entry being built, the environment and the
// run itself through ${{ context.key }} expressions; see Interpolate.
package workflow
