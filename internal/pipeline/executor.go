// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"github.com/buildmatrix/buildmatrix/internal/artifact"
	"github.com/buildmatrix/buildmatrix/internal/logging"
	bmrunner "github.com/buildmatrix/buildmatrix/internal/runner"
	"github.com/buildmatrix/buildmatrix/internal/source"
	"github.com/buildmatrix/buildmatrix/internal/toolchain"
	"github.com/buildmatrix/buildmatrix/pkg/workflow"
)

type (
	// Clock supplies step and job timestamps.
	Clock interface {
		Now() time.Time
	}

	// RunInfo identifies the run a job belongs to.
	RunInfo struct {
		// ID is the run identifier; workspaces and artifacts are grouped by it
		ID string
		// Ref and Revision describe the triggering push, when known
		Ref      string
		Revision string
		// Source provides the tree checkout steps retrieve
		Source source.Fetcher
	}

	// Executor runs jobs of one workflow.
	Executor struct {
		workflow      *workflow.Workflow
		runner        bmrunner.Runner
		provisioner   toolchain.Provisioner
		store         artifact.Store
		workDir       string
		keepWorkspace bool
		clock         Clock
		output        *syncWriter
		goos          string
	}

	// ExecutorOption configures an Executor.
	ExecutorOption func(*Executor)

	// imageResolver is implemented by provisioners that run jobs in container images.
	imageResolver interface {
		Image(req toolchain.Request) (string, error)
	}

	realClock struct{}
)

func (realClock) Now() time.Time { return time.Now() }

// WithWorkDir sets the root of job workspaces.
func WithWorkDir(dir string) ExecutorOption {
	return func(e *Executor) { e.workDir = dir }
}

// WithKeepWorkspace leaves workspaces on disk after jobs finish.
func WithKeepWorkspace(keep bool) ExecutorOption {
	return func(e *Executor) { e.keepWorkspace = keep }
}

// WithClock replaces the wall clock.
func WithClock(c Clock) ExecutorOption {
	return func(e *Executor) { e.clock = c }
}

// WithOutput sends step output, prefixed with the job label, to w.
func WithOutput(w io.Writer) ExecutorOption {
	return func(e *Executor) { e.output = &syncWriter{w: w} }
}

// WithHostOS overrides the host operating system used to pick quoting rules.
func WithHostOS(goos string) ExecutorOption {
	return func(e *Executor) { e.goos = goos }
}

// NewExecutor creates an executor running steps through rn. Interpreters come
// from prov and artifacts go to store.
func NewExecutor(w *workflow.Workflow, rn bmrunner.Runner, prov toolchain.Provisioner, store artifact.Store, opts ...ExecutorOption) (*Executor, error) {
	switch {
	case w == nil:
		return nil, errors.New("executor needs a workflow")
	case rn == nil:
		return nil, errors.New("executor needs a runner")
	case prov == nil:
		return nil, errors.New("executor needs an interpreter provisioner")
	case store == nil:
		return nil, errors.New("executor needs an artifact store")
	}

	e := &Executor{
		workflow:    w,
		runner:      rn,
		provisioner: prov,
		store:       store,
		workDir:     os.TempDir(),
		clock:       realClock{},
		output:      &syncWriter{w: io.Discard},
		goos:        runtime.GOOS,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Workspace returns the directory a job of run runID works in.
func (e *Executor) Workspace(runID string, job *Job) string {
	return filepath.Join(e.workDir, runID, strconv.Itoa(job.Index))
}

// Run executes the workflow steps for job and returns the job's failure, if
// any. A job whose context is already done is failed without starting.
func (e *Executor) Run(ctx context.Context, job *Job, info RunInfo) error {
	logger := logging.FromContext(ctx).WithPrefix(job.Label()).With("job", job.Index, "artifact", job.ArtifactName)
	ctx = logging.WithLogger(ctx, logger)

	if ctx.Err() != nil {
		err := &StepError{Kind: StepKindStep, Step: "start", Cause: canceled(ctx)}
		if ferr := job.Fail(e.clock.Now(), err); ferr != nil {
			return ferr
		}
		e.skipFrom(job, 0)
		logger.Warn("job canceled before start")
		return err
	}
	if err := job.Start(e.clock.Now()); err != nil {
		return err
	}
	logger.Info("job started", "matrix", job.Entry.String())

	r, err := e.newJobRun(job, info, logger)
	if err != nil {
		return e.finish(job, logger, &StepError{Kind: StepKindStep, Step: "prepare workspace", Cause: err})
	}
	defer r.close()

	for i, step := range e.workflow.Steps {
		name := r.stepName(step)
		if ctx.Err() != nil {
			e.skipFrom(job, i)
			return e.finish(job, logger, &StepError{Kind: StepKindStep, Step: name, Cause: canceled(ctx)})
		}

		stepLogger := logger.With("step", name)
		stepLogger.Info("step started")
		started := e.clock.Now()

		kind, err := r.runStep(logging.WithLogger(ctx, stepLogger), step)
		if err != nil && ctx.Err() != nil {
			err = fmt.Errorf("%w (%v)", canceled(ctx), err)
		}

		result := StepResult{Name: name, Action: step.Action(), Outcome: OutcomeSuccess, Duration: e.clock.Now().Sub(started)}
		if err != nil {
			result.Outcome = OutcomeFailure
			result.Error = err.Error()
			result.Allowed = step.ContinueOnError
		}
		job.recordStep(result)

		if err == nil {
			stepLogger.Info("step succeeded", "duration", result.Duration)
			continue
		}
		if step.ContinueOnError {
			stepLogger.Warn("step failed, continuing", "error", err)
			continue
		}
		stepLogger.Error("step failed", "kind", kind, "error", err)
		e.skipFrom(job, i+1)
		return e.finish(job, logger, &StepError{Kind: kind, Step: name, Cause: err})
	}

	return e.finish(job, logger, nil)
}

func (e *Executor) finish(job *Job, logger *log.Logger, err error) error {
	now := e.clock.Now()
	if err != nil {
		if ferr := job.Fail(now, err); ferr != nil {
			return errors.Join(err, ferr)
		}
		logger.Error("job failed", "error", err)
		return err
	}
	if ferr := job.Succeed(now); ferr != nil {
		return ferr
	}
	logger.Info("job succeeded", "duration", job.Summary().Duration)
	return nil
}

// skipFrom records the steps from index i on as skipped.
func (e *Executor) skipFrom(job *Job, i int) {
	for _, step := range e.workflow.Steps[i:] {
		job.recordStep(StepResult{Name: step.DisplayName(), Action: step.Action(), Outcome: OutcomeSkipped})
	}
}

func canceled(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrJobCanceled, context.Cause(ctx))
}

func (e *Executor) containerMode() bool {
	return e.runner.Name() == string(bmrunner.ModeContainer)
}

func cloneEnv(env map[string]string) map[string]string {
	out := make(map[string]string, len(env))
	maps.Copy(out, env)
	return out
}
