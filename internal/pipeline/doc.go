// SPDX-License-Identifier: MPL-2.0

// Package pipeline runs the step sequence of one build job.
//
// Plan turns a workflow into queued jobs, one per matrix entry. An Executor
// takes a job through checkout, interpreter setup, installation, the build
// script and artifact upload inside a private workspace. A failing step ends
// only its own job; jobs share no mutable state, so any number of them can run
// concurrently on one Executor.
package pipeline
