// SPDX-License-Identifier: MPL-2.0

// Package config handles application configuration using Viper with CUE as the file format.
//
// Configuration is loaded from ~/.config/buildmatrix/config.cue (or the XDG equivalent on
// Linux, ~/Library/Application Support/buildmatrix/config.cue on macOS,
// %APPDATA%\buildmatrix\config.cue on Windows), falling back to ./config.cue. Every key can
// be overridden from the environment with the BUILDMATRIX_ prefix, nested keys joined by
// underscores (BUILDMATRIX_ARTIFACTS_S3_ENDPOINT).
//
// Files are validated against the embedded CUE schema (config_schema.cue) before being
// merged over the defaults.
package config
