// SPDX-License-Identifier: MPL-2.0

// Package matrix expands a workflow matrix into the ordered list of entries a
// run builds, one job per entry.
//
// Expansion is the cartesian product of the base axes (the first declared
// axis is the outermost loop) with exclude items removed, followed by the
// include items appended verbatim. The result is deterministic: expanding
// the same matrix twice yields identical entries in identical order.
package matrix
