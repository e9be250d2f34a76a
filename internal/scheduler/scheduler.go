// SPDX-License-Identifier: MPL-2.0

// Package scheduler runs the jobs of a build run in parallel. Jobs share no
// state: each one runs in its own workspace and reports its own outcome.
package scheduler

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/buildmatrix/buildmatrix/internal/logging"
	"github.com/buildmatrix/buildmatrix/internal/pipeline"
)

// ErrSiblingFailed is the cancellation cause seen by jobs stopped under fail-fast.
var ErrSiblingFailed = errors.New("sibling job failed")

type (
	// Options controls scheduling.
	Options struct {
		// MaxParallel bounds the number of jobs in flight; 0 means unbounded.
		MaxParallel int
		// FailFast cancels every other job when one fails.
		FailFast bool
	}

	// JobFunc runs one job. It must move the job to a terminal state, also
	// when ctx is already done.
	JobFunc func(ctx context.Context, job *pipeline.Job) error

	// Result is the outcome of one scheduled job.
	Result struct {
		Job     *pipeline.Job
		Summary pipeline.Summary
		Err     error
	}

	// FailedError reports the jobs of a run that did not succeed.
	FailedError struct {
		Failed int
		Total  int
	}
)

func (e *FailedError) Error() string {
	return fmt.Sprintf("%d of %d jobs failed", e.Failed, e.Total)
}

// Schedule runs fn for every job and returns one result per job, in job
// order. Without FailFast a failing job never affects its siblings.
func Schedule(ctx context.Context, jobs []*pipeline.Job, opts Options, fn JobFunc) []Result {
	logger := logging.FromContext(ctx)

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var g errgroup.Group
	if opts.MaxParallel > 0 {
		g.SetLimit(opts.MaxParallel)
	}

	results := make([]Result, len(jobs))
	for i, job := range jobs {
		g.Go(func() error {
			err := fn(ctx, job)
			results[i] = Result{Job: job, Err: err}
			if err != nil && opts.FailFast && ctx.Err() == nil {
				logger.Warn("fail-fast: canceling remaining jobs", "failed", job.Label())
				cancel(fmt.Errorf("%w: %s", ErrSiblingFailed, job.Label()))
			}
			return nil
		})
	}
	_ = g.Wait()

	for i := range results {
		results[i].Summary = results[i].Job.Summary()
	}
	return results
}

// Err returns a *FailedError when any result failed.
func Err(results []Result) error {
	failed := 0
	for _, r := range results {
		if r.Err != nil || r.Summary.State != pipeline.StateSucceeded {
			failed++
		}
	}
	if failed == 0 {
		return nil
	}
	return &FailedError{Failed: failed, Total: len(results)}
}
