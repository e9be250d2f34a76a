// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// NewRootCommand creates the buildmatrix command tree bound to app.
func NewRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "buildmatrix",
		Short: "Build standalone executables across a platform matrix",
		Long: TitleStyle.Render("buildmatrix") + SubtitleStyle.Render(" - build standalone executables across a platform matrix") + `

buildmatrix expands a workflow's matrix of operating systems, architectures
and interpreter versions into independent jobs. Each job checks out the
sources, provisions the interpreter, installs the packaging dependencies,
builds the executable and publishes it as a named artifact.

` + SubtitleStyle.Render("Examples:") + `
  buildmatrix matrix                  Show the jobs of the current workflow
  buildmatrix run                     Build every matrix entry
  buildmatrix run --only os=ubuntu-latest
  buildmatrix artifacts list <run-id>
  buildmatrix watch                   Build on every push`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.BoolVarP(&app.flags.verbose, "verbose", "v", false, "enable verbose output")
	pf.StringVar(&app.flags.cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/buildmatrix/config.cue)")
	pf.StringVarP(&app.flags.dir, "dir", "C", ".", "project directory")
	pf.StringVar(&app.flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(
		newRunCommand(app),
		newMatrixCommand(app),
		newValidateCommand(app),
		newInitCommand(app),
		newWatchCommand(app),
		newArtifactsCommand(app),
		newConfigCommand(app),
	)
	return root
}

func versionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the CLI and exits with the command's exit code.
func Execute() {
	app := NewApp(Dependencies{})
	if err := fang.Execute(
		context.Background(),
		NewRootCommand(app),
		fang.WithVersion(versionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(exitCode(err))
	}
}
