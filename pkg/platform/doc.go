// SPDX-License-Identifier: MPL-2.0

// Package platform maps runner labels and host properties onto each other.
//
// Workflow matrices name runners with hosted-CI style labels such as
// "windows-latest", "macOS-latest" or "ubuntu-22.04". This package resolves a
// label to its operating-system family, reports the host's family and
// architecture in the same vocabulary, and guards generated file names
// against names Windows refuses to create.
package platform
