// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"mvdan.cc/sh/v3/syntax"

	"github.com/buildmatrix/buildmatrix/internal/artifact"
	"github.com/buildmatrix/buildmatrix/internal/logging"
	bmrunner "github.com/buildmatrix/buildmatrix/internal/runner"
	"github.com/buildmatrix/buildmatrix/internal/toolchain"
	"github.com/buildmatrix/buildmatrix/pkg/platform"
	"github.com/buildmatrix/buildmatrix/pkg/workflow"
)

// ErrNoUploadPath is returned by an upload step without a path.
var ErrNoUploadPath = errors.New("upload step needs a path")

// jobRun is the mutable state of one executing job. It is owned by a single
// goroutine.
type jobRun struct {
	e         *Executor
	job       *Job
	info      RunInfo
	logger    *log.Logger
	workspace string
	scope     workflow.Scope
	env       map[string]string
	image     string
	platform  string
	stdout    *prefixWriter
	stderr    *prefixWriter
}

func (e *Executor) newJobRun(job *Job, info RunInfo, logger *log.Logger) (*jobRun, error) {
	ws := e.Workspace(info.ID, job)
	if err := os.RemoveAll(ws); err != nil {
		return nil, fmt.Errorf("clear workspace: %w", err)
	}
	if err := os.MkdirAll(ws, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	visible := ws
	if e.containerMode() {
		visible = bmrunner.DefaultContainerWorkDir
	}

	r := &jobRun{
		e:         e,
		job:       job,
		info:      info,
		logger:    logger,
		workspace: ws,
		scope: workflow.Scope{
			Matrix: job.Entry.Map(),
			Run:    workflow.RunContext{ID: info.ID, Ref: info.Ref, Revision: info.Revision},
		},
		env: map[string]string{
			"CI":                        "true",
			"BUILDMATRIX":               "true",
			"BUILDMATRIX_RUN_ID":        info.ID,
			"BUILDMATRIX_JOB_INDEX":     strconv.Itoa(job.Index),
			"BUILDMATRIX_WORKSPACE":     visible,
			"BUILDMATRIX_ARTIFACT_NAME": job.ArtifactName,
		},
		stdout: newPrefixWriter(e.output, "["+job.Label()+"] "),
		stderr: newPrefixWriter(e.output, "["+job.Label()+"] "),
	}
	if info.Revision != "" {
		r.env["BUILDMATRIX_REVISION"] = info.Revision
	}
	logger.Debug("workspace ready", "dir", ws)
	return r, nil
}

func (r *jobRun) close() {
	r.stdout.Flush()
	r.stderr.Flush()
	if r.e.keepWorkspace {
		r.logger.Info("keeping workspace", "dir", r.workspace)
		return
	}
	if err := os.RemoveAll(r.workspace); err != nil {
		r.logger.Warn("could not remove workspace", "dir", r.workspace, "error", err)
	}
}

func (r *jobRun) stepName(step workflow.Step) string {
	name, err := workflow.Interpolate(step.DisplayName(), r.scope)
	if err != nil {
		return step.DisplayName()
	}
	return name
}

// runStep dispatches a step to its action and returns the failure kind.
func (r *jobRun) runStep(ctx context.Context, step workflow.Step) (StepKind, error) {
	env, err := workflow.InterpolateMap(step.Env, r.scope)
	if err != nil {
		return StepKindStep, err
	}
	r.scope.Env = env
	defer func() { r.scope.Env = nil }()

	with, err := workflow.InterpolateMap(step.With, r.scope)
	if err != nil {
		return StepKindStep, err
	}

	switch action := step.Action(); action {
	case workflow.ActionCheckout:
		return StepKindCheckout, r.checkout(ctx)
	case workflow.ActionSetupInterpreter:
		return StepKindProvision, r.setupInterpreter(ctx, with)
	case workflow.ActionInstall:
		if step.Run != "" {
			return StepKindInstall, r.script(ctx, step, env)
		}
		return StepKindInstall, r.install(ctx, step, with, env)
	case workflow.ActionRun:
		return StepKindPackage, r.script(ctx, step, env)
	case workflow.ActionUploadArtifact:
		return StepKindUpload, r.upload(ctx, with)
	default:
		if step.Uses != "" {
			_, err := workflow.ResolveAction(step.Uses)
			return StepKindStep, err
		}
		return StepKindStep, fmt.Errorf("step %q has neither uses nor run", step.DisplayName())
	}
}

func (r *jobRun) checkout(ctx context.Context) error {
	if r.info.Source == nil {
		return ErrNoSource
	}
	rev, err := r.info.Source.Fetch(ctx, r.workspace)
	if err != nil {
		return err
	}
	r.job.setRevision(rev)
	if rev.Commit != "" {
		if r.scope.Run.Revision == "" {
			r.scope.Run.Revision = rev.Commit
		}
		r.env["BUILDMATRIX_REVISION"] = rev.Commit
		logging.FromContext(ctx).Info("checked out", "revision", rev.Short(), "ref", rev.Ref)
	}
	return nil
}

func (r *jobRun) request(with map[string]string) toolchain.Request {
	req := toolchain.Request{
		Version:      r.job.Entry.InterpreterVersion(),
		Architecture: r.job.Entry.Architecture(),
		OS:           r.job.Entry.OS(),
		WorkDir:      r.workspace,
		Matrix:       r.job.Entry.Map(),
	}
	if v := strings.TrimSpace(with["python-version"]); v != "" {
		req.Version = v
	}
	if a := strings.TrimSpace(with["architecture"]); a != "" {
		req.Architecture = a
	}
	return req
}

func (r *jobRun) setupInterpreter(ctx context.Context, with map[string]string) error {
	interp, err := r.e.provisioner.Provision(ctx, r.request(with))
	if err != nil {
		return err
	}
	maps.Copy(r.env, interp.Env)
	if interp.Image != "" {
		r.image = interp.Image
		r.platform = interp.Platform
	}
	return nil
}

// install runs the package installer with the step's package list.
func (r *jobRun) install(ctx context.Context, step workflow.Step, with, env map[string]string) error {
	packages := strings.Fields(with["packages"])
	if len(packages) == 0 {
		logging.FromContext(ctx).Info("nothing to install")
		return nil
	}

	posix := r.posix(step.Shell)
	args := make([]string, 0, len(packages)+4)
	args = append(args, "python", "-m", "pip", "install")
	for _, p := range packages {
		q, err := quoteArg(p, posix)
		if err != nil {
			return err
		}
		args = append(args, q)
	}
	return r.exec(ctx, step.Shell, strings.Join(args, " "), env)
}

func (r *jobRun) script(ctx context.Context, step workflow.Step, env map[string]string) error {
	script, err := workflow.Interpolate(step.Run, r.scope)
	if err != nil {
		return err
	}
	return r.exec(ctx, step.Shell, script, env)
}

func (r *jobRun) exec(ctx context.Context, shell workflow.Shell, script string, stepEnv map[string]string) error {
	env := cloneEnv(r.env)
	maps.Copy(env, stepEnv)

	ec := &bmrunner.ExecutionContext{
		Context:  ctx,
		Script:   script,
		Shell:    shell,
		WorkDir:  r.workspace,
		Env:      env,
		Stdout:   r.stdout,
		Stderr:   r.stderr,
		Image:    r.image,
		Platform: r.platform,
	}
	if r.e.containerMode() && ec.Image == "" {
		image, err := r.resolveImage()
		if err != nil {
			return err
		}
		ec.Image = image
		ec.Platform = toolchain.ContainerPlatform(r.job.Entry.Architecture())
	}

	if err := r.e.runner.Validate(ec); err != nil {
		return err
	}
	result := r.e.runner.Execute(ec)
	r.stdout.Flush()
	r.stderr.Flush()
	return result.Err()
}

func (r *jobRun) resolveImage() (string, error) {
	resolver, ok := r.e.provisioner.(imageResolver)
	if !ok {
		return "", bmrunner.ErrNoImage
	}
	return resolver.Image(r.request(nil))
}

func (r *jobRun) upload(ctx context.Context, with map[string]string) error {
	var patterns []string
	for line := range strings.SplitSeq(with["path"], "\n") {
		if p := strings.TrimSpace(line); p != "" {
			patterns = append(patterns, p)
		}
	}
	if len(patterns) == 0 {
		return ErrNoUploadPath
	}

	name := strings.TrimSpace(with["name"])
	if name == "" {
		name = r.job.ArtifactName
	}

	art, err := r.e.store.Publish(ctx, artifact.UploadRequest{
		RunID:          r.info.ID,
		Name:           name,
		BaseDir:        r.workspace,
		Patterns:       patterns,
		IfNoFilesFound: artifact.IfNoFilesFound(strings.TrimSpace(with["if-no-files-found"])),
	})
	if err != nil {
		return err
	}
	if art != nil {
		r.job.setArtifact(art)
		logging.FromContext(ctx).Info("artifact published", "name", art.Name, "files", len(art.Files), "bytes", art.Size)
	}
	return nil
}

// posix reports whether scripts for shell run in a POSIX shell.
func (r *jobRun) posix(shell workflow.Shell) bool {
	if shell != "" {
		return shell.IsPOSIX()
	}
	return r.e.runner.Name() != string(bmrunner.ModeNative) || r.e.goos != platform.Windows
}

// quoteArg quotes s for a shell command line. Package specifiers such as
// requests[socks] contain glob characters in POSIX shells.
func quoteArg(s string, posix bool) (string, error) {
	if posix {
		return syntax.Quote(s, syntax.LangPOSIX)
	}
	if strings.ContainsAny(s, " \t\"&|<>^%") {
		return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`, nil
	}
	return s, nil
}
