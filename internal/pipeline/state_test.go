// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/buildmatrix/buildmatrix/internal/matrix"
	"github.com/buildmatrix/buildmatrix/pkg/workflow"
)

func testEntry() matrix.Entry {
	return matrix.NewEntry(workflow.Values{
		workflow.KeyOS:                 "ubuntu-latest",
		workflow.KeyArchitecture:       "x64",
		workflow.KeyInterpreterVersion: "3.12",
		workflow.KeyExtraPackages:      "secretstorage",
	}, []string{workflow.KeyOS, workflow.KeyArchitecture, workflow.KeyInterpreterVersion, workflow.KeyExtraPackages})
}

func TestJobLifecycle(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cause := errors.New("boom")

	tests := []struct {
		name    string
		ops     func(j *Job) error
		want    State
		wantErr error
	}{
		{"start then succeed", func(j *Job) error {
			if err := j.Start(now); err != nil {
				return err
			}
			return j.Succeed(now.Add(time.Minute))
		}, StateSucceeded, nil},
		{"start then fail", func(j *Job) error {
			if err := j.Start(now); err != nil {
				return err
			}
			return j.Fail(now, cause)
		}, StateFailed, nil},
		{"fail while queued", func(j *Job) error { return j.Fail(now, cause) }, StateFailed, nil},
		{"succeed while queued", func(j *Job) error { return j.Succeed(now) }, StateQueued, ErrInvalidTransition},
		{"start twice", func(j *Job) error {
			_ = j.Start(now)
			return j.Start(now)
		}, StateRunning, ErrInvalidTransition},
		{"terminal is final", func(j *Job) error {
			_ = j.Fail(now, cause)
			return j.Start(now)
		}, StateFailed, ErrInvalidTransition},
		{"no second outcome", func(j *Job) error {
			_ = j.Start(now)
			_ = j.Succeed(now)
			return j.Fail(now, cause)
		}, StateSucceeded, ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			j := NewJob(0, testEntry(), "a")
			err := tt.ops(j)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if got := j.State(); got != tt.want {
				t.Errorf("State() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestJobSummary(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	j := NewJob(2, testEntry(), "gallery-dl-ubuntu-latest-x64-3.12")
	_ = j.Start(start)
	_ = j.Fail(start.Add(90*time.Second), &StepError{Kind: StepKindInstall, Step: "Install", Cause: errors.New("pip exited 1")})

	s := j.Summary()
	if s.Duration != 90*time.Second || s.State != StateFailed || s.ErrorKind != StepKindInstall {
		t.Errorf("Summary() = %+v", s)
	}
	if s.Label != "(ubuntu-latest, x64, 3.12, secretstorage)" {
		t.Errorf("Label = %q", s.Label)
	}
}

func TestStateValidate(t *testing.T) {
	t.Parallel()

	for _, s := range []State{StateQueued, StateRunning, StateSucceeded, StateFailed} {
		if err := s.Validate(); err != nil {
			t.Errorf("%s.Validate() = %v", s, err)
		}
	}
	if err := State(9).Validate(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Validate() = %v, want ErrInvalidState", err)
	}
	if !StateFailed.IsTerminal() || StateRunning.IsTerminal() {
		t.Error("IsTerminal mismatch")
	}
}
