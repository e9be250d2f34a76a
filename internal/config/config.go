// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/spf13/viper"

	"github.com/buildmatrix/buildmatrix/internal/issue"
	"github.com/buildmatrix/buildmatrix/pkg/cueutil"
	"github.com/buildmatrix/buildmatrix/pkg/platform"
)

const (
	// AppName is the application name.
	AppName = "buildmatrix"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
	// EnvPrefix prefixes environment variable overrides.
	EnvPrefix = "BUILDMATRIX"
)

//go:embed config_schema.cue
var configSchema string

var (
	cueSchema = cueutil.MustSchema(configSchema, "#Config")

	// configDirOverride pins ConfigDir in tests; os.UserHomeDir ignores HOME
	// on Windows.
	configDirOverride string
)

// ConfigDir returns the buildmatrix configuration directory using platform-specific
// conventions: Windows uses %APPDATA%, macOS uses ~/Library/Application Support,
// and Linux/others use $XDG_CONFIG_HOME (defaulting to ~/.config).
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	if configDirOverride != "" {
		return configDirOverride, nil
	}

	var configDir string

	switch runtime.GOOS {
	case platform.Windows:
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case platform.Darwin:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support")
	default:
		configDir = os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(configDir, AppName), nil
}

// ConfigFilePath returns the path of the config file inside ConfigDir.
func ConfigFilePath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName+"."+ConfigFileExt), nil
}

// CacheDir returns the directory holding default workspaces and artifacts.
func CacheDir() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to get cache directory: %w", err)
	}
	return filepath.Join(dir, AppName), nil
}

// ResolvedWorkDir returns WorkDir, or <cache dir>/work when unset.
func (c *Config) ResolvedWorkDir() (string, error) {
	if c.WorkDir != "" {
		return c.WorkDir, nil
	}
	dir, err := CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "work"), nil
}

// ResolvedArtifactDir returns Artifacts.Local.Dir, or <cache dir>/artifacts
// when unset.
func (c *Config) ResolvedArtifactDir() (string, error) {
	if c.Artifacts.Local.Dir != "" {
		return c.Artifacts.Local.Dir, nil
	}
	dir, err := CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "artifacts"), nil
}

// loadWithOptions performs option-driven config loading without mutating
// package-level state. It returns the config and the file it was read from
// ("" when only defaults and environment apply).
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := newViper()

	resolvedPath := ""
	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Use 'buildmatrix config show' to see the effective configuration").
				WithIssue(issue.ConfigLoadFailedId).
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		resolvedPath = opts.ConfigFilePath
	} else {
		cfgDir, err := configDirWithOverride(opts.ConfigDirPath)
		if err != nil {
			return nil, "", err
		}
		for _, candidate := range []string{
			filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt),
			ConfigFileName + "." + ConfigFileExt,
		} {
			if fileExists(candidate) {
				resolvedPath = candidate
				break
			}
		}
	}

	if resolvedPath != "" {
		if err := loadCUEIntoViper(v, resolvedPath); err != nil {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(resolvedPath).
				WithSuggestion("Check that the file contains valid CUE syntax").
				WithSuggestion("Verify the configuration values match the expected schema").
				WithIssue(issue.ConfigLoadFailedId).
				Wrap(err).
				BuildError()
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}

	// Environment overrides bypass the CUE schema, so the typed values are
	// checked again here.
	if ok, errs := cfg.IsValid(); !ok {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(resolvedPath).
			WithSuggestion("Check " + EnvPrefix + "_* environment variables for typos").
			WithIssue(issue.ConfigLoadFailedId).
			Wrap(errs[0]).
			BuildError()
	}

	return &cfg, resolvedPath, nil
}

// newViper returns a Viper instance with every key defaulted and bound to
// its BUILDMATRIX_ environment variable.
func newViper() *viper.Viper {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("runner", defaults.Runner)
	v.SetDefault("container_engine", defaults.ContainerEngine)
	v.SetDefault("max_parallel", defaults.MaxParallel)
	v.SetDefault("work_dir", defaults.WorkDir)
	v.SetDefault("keep_workspace", defaults.KeepWorkspace)
	v.SetDefault("artifacts.backend", defaults.Artifacts.Backend)
	v.SetDefault("artifacts.local.dir", defaults.Artifacts.Local.Dir)
	v.SetDefault("artifacts.s3.endpoint", defaults.Artifacts.S3.Endpoint)
	v.SetDefault("artifacts.s3.bucket", defaults.Artifacts.S3.Bucket)
	v.SetDefault("artifacts.s3.access_key", defaults.Artifacts.S3.AccessKey)
	v.SetDefault("artifacts.s3.secret_key", defaults.Artifacts.S3.SecretKey)
	v.SetDefault("artifacts.s3.region", defaults.Artifacts.S3.Region)
	v.SetDefault("artifacts.s3.use_ssl", defaults.Artifacts.S3.UseSSL)
	v.SetDefault("container.images", defaults.Container.Images)
	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.format", defaults.Log.Format)
	v.SetDefault("ui.color_scheme", defaults.UI.ColorScheme)
	v.SetDefault("ui.verbose", defaults.UI.Verbose)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// configDirWithOverride resolves the configuration directory, honoring
// explicit provider options before platform defaults.
func configDirWithOverride(configDirPath string) (string, error) {
	if configDirPath != "" {
		return configDirPath, nil
	}

	return ConfigDir()
}

// loadCUEIntoViper checks a config file against #Config and merges it into v.
// Every field is optional, so the file is checked as a partial document.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	values, err := cueutil.Decode[map[string]any](cueSchema, data, cueutil.WithFilename(path), cueutil.Partial())
	if err != nil {
		return err
	}
	if err := v.MergeConfigMap(*values); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

// fileExists checks if a file exists and is not a directory
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

// CreateDefaultConfig writes the default config file. An existing file is
// left untouched unless force is set. It returns the path written.
func CreateDefaultConfig(force bool) (string, error) {
	cfgPath, err := ConfigFilePath()
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(cfgPath); err == nil && !force {
		return cfgPath, nil
	}

	if err := Save(DefaultConfig()); err != nil {
		return "", err
	}
	return cfgPath, nil
}

// Save writes cfg to the config file.
func Save(cfg *Config) error {
	cfgPath, err := ConfigFilePath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, []byte(GenerateCUE(cfg)), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GenerateCUE generates a CUE representation of the configuration.
// Credentials are never written; supply them through the environment.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// buildmatrix configuration file\n")
	sb.WriteString("// Every key can be overridden with BUILDMATRIX_<KEY> (dots become underscores).\n\n")

	fmt.Fprintf(&sb, "runner: %q\n", cfg.Runner)
	fmt.Fprintf(&sb, "container_engine: %q\n", cfg.ContainerEngine)
	fmt.Fprintf(&sb, "max_parallel: %d\n", cfg.MaxParallel)
	if cfg.WorkDir != "" {
		fmt.Fprintf(&sb, "work_dir: %q\n", cfg.WorkDir)
	}
	fmt.Fprintf(&sb, "keep_workspace: %v\n", cfg.KeepWorkspace)

	sb.WriteString("\nartifacts: {\n")
	fmt.Fprintf(&sb, "\tbackend: %q\n", cfg.Artifacts.Backend)
	if cfg.Artifacts.Local.Dir != "" {
		fmt.Fprintf(&sb, "\tlocal: dir: %q\n", cfg.Artifacts.Local.Dir)
	}
	sb.WriteString("\ts3: {\n")
	if cfg.Artifacts.S3.Endpoint != "" {
		fmt.Fprintf(&sb, "\t\tendpoint: %q\n", cfg.Artifacts.S3.Endpoint)
	}
	if cfg.Artifacts.S3.Bucket != "" {
		fmt.Fprintf(&sb, "\t\tbucket: %q\n", cfg.Artifacts.S3.Bucket)
	}
	fmt.Fprintf(&sb, "\t\tregion: %q\n", cfg.Artifacts.S3.Region)
	fmt.Fprintf(&sb, "\t\tuse_ssl: %v\n", cfg.Artifacts.S3.UseSSL)
	sb.WriteString("\t}\n}\n")

	if len(cfg.Container.Images) > 0 {
		sb.WriteString("\ncontainer: images: {\n")
		for _, label := range slices.Sorted(maps.Keys(cfg.Container.Images)) {
			fmt.Fprintf(&sb, "\t%q: %q\n", label, cfg.Container.Images[label])
		}
		sb.WriteString("}\n")
	}

	sb.WriteString("\nlog: {\n")
	fmt.Fprintf(&sb, "\tlevel: %q\n", cfg.Log.Level)
	fmt.Fprintf(&sb, "\tformat: %q\n", cfg.Log.Format)
	sb.WriteString("}\n")

	sb.WriteString("\nui: {\n")
	fmt.Fprintf(&sb, "\tcolor_scheme: %q\n", cfg.UI.ColorScheme)
	fmt.Fprintf(&sb, "\tverbose: %v\n", cfg.UI.Verbose)
	sb.WriteString("}\n")

	return sb.String()
}
