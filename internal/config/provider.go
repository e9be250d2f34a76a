// SPDX-License-Identifier: MPL-2.0

package config

import "context"

type (
	// LoadOptions selects where configuration is read from.
	LoadOptions struct {
		// ConfigFilePath, when set, is the only file considered.
		ConfigFilePath string
		// ConfigDirPath replaces the user configuration directory.
		ConfigDirPath string
	}

	// Provider loads the effective configuration. The CLI receives one through
	// its dependencies so tests can supply a fixed Config.
	Provider interface {
		Load(ctx context.Context, opts LoadOptions) (*Config, error)
		// LoadWithSource is Load that also reports the file the configuration
		// was read from, or "" when only defaults and environment apply.
		LoadWithSource(ctx context.Context, opts LoadOptions) (*Config, string, error)
	}

	loaderFunc func(ctx context.Context, opts LoadOptions) (*Config, string, error)
)

// NewProvider returns the provider backed by CUE files, defaults and
// BUILDMATRIX_* environment variables.
func NewProvider() Provider {
	return loaderFunc(loadWithOptions)
}

func (f loaderFunc) Load(ctx context.Context, opts LoadOptions) (*Config, error) {
	cfg, _, err := f(ctx, opts)
	return cfg, err
}

func (f loaderFunc) LoadWithSource(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	return f(ctx, opts)
}
