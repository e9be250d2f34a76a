// SPDX-License-Identifier: MPL-2.0

// Package issue provides user-facing error handling: ActionableError carries
// the failed operation, the resource involved and remediation hints, and the
// issue catalog holds Markdown guides for the failure classes a run can hit.
package issue
