// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"sync"
	"time"

	"github.com/buildmatrix/buildmatrix/internal/artifact"
	"github.com/buildmatrix/buildmatrix/internal/matrix"
	"github.com/buildmatrix/buildmatrix/internal/source"
	"github.com/buildmatrix/buildmatrix/pkg/workflow"
)

// Step outcomes.
const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	// OutcomeSkipped marks steps not reached because an earlier step failed.
	OutcomeSkipped Outcome = "skipped"
)

type (
	// Outcome is the result of one step.
	Outcome string

	// StepResult records one executed (or skipped) step.
	StepResult struct {
		Name     string          `json:"name"`
		Action   workflow.Action `json:"action"`
		Outcome  Outcome         `json:"outcome"`
		Duration time.Duration   `json:"duration"`
		Error    string          `json:"error,omitempty"`
		// Allowed is set when a failure was ignored through continue-on-error
		Allowed bool `json:"allowed,omitempty"`
	}

	// Job is one matrix entry's build. Its state only moves forward:
	// Queued -> Running -> Succeeded|Failed, or Queued -> Failed when it is
	// cancelled before it starts. All methods are safe for concurrent use.
	Job struct {
		Index        int
		Entry        matrix.Entry
		ArtifactName string

		mu         sync.Mutex
		state      State
		steps      []StepResult
		startedAt  time.Time
		finishedAt time.Time
		err        error
		revision   source.Revision
		artifact   *artifact.Artifact
	}

	// Summary is an immutable snapshot of a job.
	Summary struct {
		Index        int                `json:"index"`
		Label        string             `json:"label"`
		Matrix       matrix.Entry       `json:"matrix"`
		ArtifactName string             `json:"artifact_name"`
		State        State              `json:"state"`
		Steps        []StepResult       `json:"steps"`
		StartedAt    time.Time          `json:"started_at,omitzero"`
		FinishedAt   time.Time          `json:"finished_at,omitzero"`
		Duration     time.Duration      `json:"duration"`
		Revision     string             `json:"revision,omitempty"`
		Artifact     *artifact.Artifact `json:"artifact,omitempty"`
		Error        string             `json:"error,omitempty"`
		ErrorKind    StepKind           `json:"error_kind,omitempty"`
	}
)

// NewJob creates a queued job.
func NewJob(index int, entry matrix.Entry, artifactName string) *Job {
	return &Job{Index: index, Entry: entry, ArtifactName: artifactName}
}

// Label returns the entry label used as log prefix.
func (j *Job) Label() string { return j.Entry.Label() }

// State returns the current state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Err returns the failure cause of a failed job.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Steps returns a copy of the recorded step results.
func (j *Job) Steps() []StepResult {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]StepResult(nil), j.steps...)
}

// Start moves a queued job to Running.
func (j *Job) Start(now time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StateRunning); err != nil {
		return err
	}
	j.startedAt = now
	return nil
}

// Succeed moves a running job to Succeeded.
func (j *Job) Succeed(now time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StateSucceeded); err != nil {
		return err
	}
	j.finishedAt = now
	return nil
}

// Fail moves a queued or running job to Failed with cause.
func (j *Job) Fail(now time.Time, cause error) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StateFailed); err != nil {
		return err
	}
	j.finishedAt = now
	j.err = cause
	return nil
}

// Summary returns a snapshot of the job.
func (j *Job) Summary() Summary {
	j.mu.Lock()
	defer j.mu.Unlock()

	s := Summary{
		Index:        j.Index,
		Label:        j.Entry.Label(),
		Matrix:       j.Entry,
		ArtifactName: j.ArtifactName,
		State:        j.state,
		Steps:        append([]StepResult(nil), j.steps...),
		StartedAt:    j.startedAt,
		FinishedAt:   j.finishedAt,
		Revision:     j.revision.Commit,
		Artifact:     j.artifact,
	}
	if !j.startedAt.IsZero() && !j.finishedAt.IsZero() {
		s.Duration = j.finishedAt.Sub(j.startedAt)
	}
	if j.err != nil {
		s.Error = j.err.Error()
		s.ErrorKind = KindOf(j.err)
	}
	return s
}

func (j *Job) transitionLocked(to State) error {
	if !canTransition(j.state, to) {
		return &TransitionError{From: j.state, To: to}
	}
	j.state = to
	return nil
}

func (j *Job) recordStep(r StepResult) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.steps = append(j.steps, r)
}

func (j *Job) setRevision(rev source.Revision) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.revision = rev
}

func (j *Job) setArtifact(a *artifact.Artifact) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.artifact = a
}
