// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"

	"github.com/buildmatrix/buildmatrix/internal/config"
	"github.com/buildmatrix/buildmatrix/internal/container"
	"github.com/buildmatrix/buildmatrix/internal/issue"
	"github.com/buildmatrix/buildmatrix/internal/logging"
	"github.com/buildmatrix/buildmatrix/internal/runner"
	"github.com/buildmatrix/buildmatrix/internal/toolchain"
)

type (
	// App wires CLI services and shared dependencies. Command handlers receive
	// it and build runtime pieces from the configuration it loads.
	App struct {
		Config config.Provider
		stdout io.Writer
		stderr io.Writer

		// newRuntime builds the step runner and interpreter provisioner for a mode
		newRuntime func(ctx context.Context, cfg *config.Config, mode config.RunnerMode) (runner.Runner, toolchain.Provisioner, error)

		// guideStyle is the glamour style for issue guides, set from ui.color_scheme
		guideStyle string

		flags globalFlags
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults.
	Dependencies struct {
		Config config.Provider
		Stdout io.Writer
		Stderr io.Writer
	}

	globalFlags struct {
		verbose  bool
		cfgFile  string
		dir      string
		logLevel string
	}
)

// NewApp creates the CLI composition root.
func NewApp(deps Dependencies) *App {
	app := &App{
		Config:     deps.Config,
		stdout:     deps.Stdout,
		stderr:     deps.Stderr,
		newRuntime: newRuntime,
		guideStyle: "auto",
	}
	if app.Config == nil {
		app.Config = config.NewProvider()
	}
	if app.stdout == nil {
		app.stdout = os.Stdout
	}
	if app.stderr == nil {
		app.stderr = os.Stderr
	}
	return app
}

// setup loads the configuration and returns a context carrying the logger
// configured by it.
func (a *App) setup(ctx context.Context) (context.Context, *config.Config, error) {
	cfg, err := a.Config.Load(ctx, config.LoadOptions{ConfigFilePath: a.flags.cfgFile})
	if err != nil {
		return ctx, nil, err
	}
	if a.flags.verbose {
		cfg.UI.Verbose = true
	}
	a.guideStyle = applyColorScheme(cfg.UI.ColorScheme)

	opts := logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format}
	switch {
	case a.flags.logLevel != "":
		opts.Level = logging.Level(a.flags.logLevel)
	case cfg.UI.Verbose:
		opts.Level = logging.LevelDebug
	}
	logger, err := logging.New(a.stderr, opts)
	if err != nil {
		return ctx, nil, err
	}
	return logging.WithLogger(ctx, logger), cfg, nil
}

// verbose reports whether errors should be shown with their full chain.
func (a *App) verbose() bool { return a.flags.verbose }

// formatError formats an error for user display, using the actionable form
// with suggestions when available.
func (a *App) formatError(err error) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(a.verbose())
	}
	return err.Error()
}

// renderIssue prints the catalog guide linked to err, if any.
func (a *App) renderIssue(err error) {
	guide := issue.IssueOf(err)
	if guide == nil {
		return
	}
	if rendered, rerr := guide.Render(a.guideStyle); rerr == nil {
		fmt.Fprint(a.stderr, rendered)
	}
}

// newRuntime builds the runner registry and returns the runner for mode
// together with the matching interpreter provisioner.
func newRuntime(ctx context.Context, cfg *config.Config, mode config.RunnerMode) (runner.Runner, toolchain.Provisioner, error) {
	if ok, errs := mode.IsValid(); !ok {
		return nil, nil, errs[0]
	}

	reg := runner.NewRegistry()
	reg.Register(runner.ModeNative, runner.NewNativeRunner())
	reg.Register(runner.ModeVirtual, runner.NewVirtualRunner())

	if mode == config.RunnerContainer {
		engine, err := container.NewEngine(container.EngineType(cfg.ContainerEngine))
		if err != nil {
			return nil, nil, issue.NewErrorContext().
				WithOperation("start container runner").
				WithResource(string(cfg.ContainerEngine)).
				WithSuggestions(
					"Install podman or docker and make sure it is on PATH",
					"Use --runner native to build with host interpreters",
				).
				WithIssue(issue.ContainerEngineNotFoundId).
				Wrap(err).
				BuildError()
		}
		reg.Register(runner.ModeContainer, runner.NewContainerRunner(engine))
	}

	rn, err := reg.Get(runner.Mode(mode))
	if err == nil && !rn.Available() {
		err = fmt.Errorf("%w: %s", runner.ErrRunnerNotAvailable, mode)
	}
	if err != nil {
		return nil, nil, issue.NewErrorContext().
			WithOperation("select runner").
			WithResource(string(mode)).
			WithIssue(issue.RunnerNotAvailableId).
			Wrap(err).
			BuildError()
	}

	logging.FromContext(ctx).Debug("runner selected", "runner", rn.Name())

	if mode == config.RunnerContainer {
		return rn, toolchain.NewContainerProvisioner(rn, cfg.Container.Images), nil
	}
	return rn, toolchain.NewHostProvisioner(), nil
}

// logger returns the logger carried by ctx.
func logger(ctx context.Context) *log.Logger { return logging.FromContext(ctx) }
