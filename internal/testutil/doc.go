// SPDX-License-Identifier: MPL-2.0

// Package testutil provides helpers shared by the test suites: environment
// overrides (MustSetenv), filesystem and git fixtures (MustWriteFile,
// InitGitRepo), a controllable clock (FakeClock) and a semaphore bounding
// concurrent container tests.
package testutil
