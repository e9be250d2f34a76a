// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/buildmatrix/buildmatrix/internal/config"
	"github.com/buildmatrix/buildmatrix/internal/logging"
)

// newConfigCommand creates the `buildmatrix config` command tree.
func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage buildmatrix configuration",
		Long: `Manage buildmatrix configuration.

Configuration is stored in:
  - Linux: ~/.config/buildmatrix/config.cue
  - macOS: ~/Library/Application Support/buildmatrix/config.cue
  - Windows: %APPDATA%\buildmatrix\config.cue

Every key can be overridden with a BUILDMATRIX_ environment variable, for
example BUILDMATRIX_ARTIFACTS_BACKEND=s3.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.showConfig(cmd.Context())
		},
	})

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create the default configuration file",
		RunE: func(_ *cobra.Command, _ []string) error {
			return app.initConfig(force)
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cfgCmd.AddCommand(initCmd)

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show the configuration file path",
		RunE: func(_ *cobra.Command, _ []string) error {
			path, err := config.ConfigFilePath()
			if err != nil {
				return err
			}
			fmt.Fprintln(app.stdout, path)
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:       "set <key> <value>",
		Short:     "Set a configuration value",
		Args:      cobra.ExactArgs(2),
		ValidArgs: slices.Sorted(maps.Keys(configSetters)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.setConfigValue(cmd.Context(), args[0], args[1])
		},
	})

	return cfgCmd
}

func (a *App) showConfig(ctx context.Context) error {
	cfg, path, err := a.Config.LoadWithSource(ctx, config.LoadOptions{ConfigFilePath: a.flags.cfgFile})
	if err != nil {
		a.renderIssue(err)
		return err
	}
	a.guideStyle = applyColorScheme(cfg.UI.ColorScheme)

	if path == "" {
		path = SubtitleStyle.Render("(using defaults)")
	}
	fmt.Fprintln(a.stdout, TitleStyle.Render("Current Configuration"))
	fmt.Fprintf(a.stdout, "%s: %s\n\n", CmdStyle.Render("Config file"), path)
	fmt.Fprint(a.stdout, config.GenerateCUE(cfg))
	return nil
}

func (a *App) initConfig(force bool) error {
	path, err := config.CreateDefaultConfig(force)
	if err != nil {
		return fmt.Errorf("failed to create config: %w", err)
	}
	fmt.Fprintf(a.stdout, "%s Configuration at %s\n", SuccessStyle.Render("✓"), path)
	return nil
}

// configSetters apply one key of `config set`, validating typed values.
var configSetters = map[string]func(cfg *config.Config, value string) error{
	"runner": func(cfg *config.Config, v string) error {
		cfg.Runner = config.RunnerMode(v)
		return firstError(cfg.Runner.IsValid())
	},
	"container_engine": func(cfg *config.Config, v string) error {
		cfg.ContainerEngine = config.ContainerEngine(v)
		return firstError(cfg.ContainerEngine.IsValid())
	},
	"max_parallel": func(cfg *config.Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("max_parallel must be a non-negative integer, got %q", v)
		}
		cfg.MaxParallel = n
		return nil
	},
	"work_dir": func(cfg *config.Config, v string) error {
		cfg.WorkDir = v
		return nil
	},
	"keep_workspace": func(cfg *config.Config, v string) error {
		b, err := strconv.ParseBool(v)
		cfg.KeepWorkspace = b
		return err
	},
	"artifacts.backend": func(cfg *config.Config, v string) error {
		cfg.Artifacts.Backend = config.ArtifactBackend(v)
		return firstError(cfg.Artifacts.Backend.IsValid())
	},
	"artifacts.local.dir": func(cfg *config.Config, v string) error {
		cfg.Artifacts.Local.Dir = v
		return nil
	},
	"log.level": func(cfg *config.Config, v string) error {
		cfg.Log.Level = logging.Level(v)
		return firstError(cfg.Log.Level.IsValid())
	},
	"log.format": func(cfg *config.Config, v string) error {
		cfg.Log.Format = logging.Format(v)
		return firstError(cfg.Log.Format.IsValid())
	},
	"ui.color_scheme": func(cfg *config.Config, v string) error {
		cfg.UI.ColorScheme = config.ColorScheme(v)
		return firstError(cfg.UI.ColorScheme.IsValid())
	},
	"ui.verbose": func(cfg *config.Config, v string) error {
		b, err := strconv.ParseBool(v)
		cfg.UI.Verbose = b
		return err
	},
}

func (a *App) setConfigValue(ctx context.Context, key, value string) error {
	set, ok := configSetters[key]
	if !ok {
		return fmt.Errorf("unknown configuration key %q (valid: %v)", key, slices.Sorted(maps.Keys(configSetters)))
	}
	cfg, err := a.Config.Load(ctx, config.LoadOptions{ConfigFilePath: a.flags.cfgFile})
	if err != nil {
		return err
	}
	if err := set(cfg, value); err != nil {
		return err
	}
	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	fmt.Fprintf(a.stdout, "%s Set %s = %s\n", SuccessStyle.Render("✓"), key, value)
	return nil
}

func firstError(ok bool, errs []error) error {
	if ok || len(errs) == 0 {
		return nil
	}
	return errs[0]
}
