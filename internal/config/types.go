// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/buildmatrix/buildmatrix/internal/logging"
)

const (
	// ContainerEnginePodman uses Podman as the container runtime.
	ContainerEnginePodman ContainerEngine = "podman"
	// ContainerEngineDocker uses Docker as the container runtime.
	ContainerEngineDocker ContainerEngine = "docker"

	// RunnerNative runs steps in the host shell.
	// Defined locally to avoid coupling config to internal/runner.
	RunnerNative RunnerMode = "native"
	// RunnerVirtual runs steps in the embedded mvdan/sh interpreter.
	RunnerVirtual RunnerMode = "virtual"
	// RunnerContainer runs steps inside a container (Docker/Podman).
	RunnerContainer RunnerMode = "container"

	// ArtifactBackendLocal stores artifacts on the local filesystem.
	ArtifactBackendLocal ArtifactBackend = "local"
	// ArtifactBackendS3 stores artifacts in an S3-compatible object store.
	ArtifactBackendS3 ArtifactBackend = "s3"

	// ColorSchemeAuto detects the terminal color scheme automatically.
	ColorSchemeAuto ColorScheme = "auto"
	// ColorSchemeDark forces dark color scheme.
	ColorSchemeDark ColorScheme = "dark"
	// ColorSchemeLight forces light color scheme.
	ColorSchemeLight ColorScheme = "light"
)

var (
	// ErrInvalidContainerEngine is returned when a ContainerEngine value is not recognized.
	ErrInvalidContainerEngine = errors.New("invalid container engine")
	// ErrInvalidRunnerMode is returned when a RunnerMode value is not recognized.
	ErrInvalidRunnerMode = errors.New("invalid runner mode")
	// ErrInvalidArtifactBackend is returned when an ArtifactBackend value is not recognized.
	ErrInvalidArtifactBackend = errors.New("invalid artifact backend")
	// ErrInvalidColorScheme is returned when a ColorScheme value is not recognized.
	ErrInvalidColorScheme = errors.New("invalid color scheme")
	// ErrIncompleteS3Config is returned when the s3 backend is selected without
	// an endpoint or bucket.
	ErrIncompleteS3Config = errors.New("incomplete s3 artifact config")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// ContainerEngine specifies which container runtime to use.
	ContainerEngine string

	// InvalidContainerEngineError is returned when a ContainerEngine value is not recognized.
	// It wraps ErrInvalidContainerEngine for errors.Is() compatibility.
	InvalidContainerEngineError struct {
		Value ContainerEngine
	}

	// RunnerMode selects the environment steps are executed in.
	RunnerMode string

	// InvalidRunnerModeError is returned when a RunnerMode value is not recognized.
	InvalidRunnerModeError struct {
		Value RunnerMode
	}

	// ArtifactBackend selects where artifacts are published.
	ArtifactBackend string

	// InvalidArtifactBackendError is returned when an ArtifactBackend value is not recognized.
	InvalidArtifactBackendError struct {
		Value ArtifactBackend
	}

	// ColorScheme specifies the terminal color scheme preference.
	ColorScheme string

	// InvalidColorSchemeError is returned when a ColorScheme value is not recognized.
	// It wraps ErrInvalidColorScheme for errors.Is() compatibility.
	InvalidColorSchemeError struct {
		Value ColorScheme
	}

	// InvalidConfigError is returned when a Config has invalid fields.
	// It wraps ErrInvalidConfig for errors.Is() compatibility and collects
	// field-level validation errors from all sub-components.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config holds the application configuration.
	Config struct {
		// Runner is the default step execution environment.
		Runner RunnerMode `json:"runner" mapstructure:"runner"`
		// ContainerEngine specifies whether to use "podman" or "docker".
		ContainerEngine ContainerEngine `json:"container_engine" mapstructure:"container_engine"`
		// MaxParallel bounds concurrently running jobs; 0 means unbounded.
		MaxParallel int `json:"max_parallel" mapstructure:"max_parallel"`
		// WorkDir is the root of per-job workspaces. Empty uses the user cache dir.
		WorkDir string `json:"work_dir" mapstructure:"work_dir"`
		// KeepWorkspace leaves job workspaces on disk after the run.
		KeepWorkspace bool `json:"keep_workspace" mapstructure:"keep_workspace"`
		// Artifacts configures where artifacts are published.
		Artifacts ArtifactsConfig `json:"artifacts" mapstructure:"artifacts"`
		// Container configures the container runner.
		Container ContainerConfig `json:"container" mapstructure:"container"`
		// Log configures the structured logger.
		Log LogConfig `json:"log" mapstructure:"log"`
		// UI configures the user interface.
		UI UIConfig `json:"ui" mapstructure:"ui"`
	}

	// ArtifactsConfig selects and configures the artifact store.
	ArtifactsConfig struct {
		Backend ArtifactBackend `json:"backend" mapstructure:"backend"`
		Local   LocalConfig     `json:"local" mapstructure:"local"`
		S3      S3Config        `json:"s3" mapstructure:"s3"`
	}

	// LocalConfig configures the filesystem artifact store.
	LocalConfig struct {
		// Dir is the store root. Empty uses the user cache dir.
		Dir string `json:"dir" mapstructure:"dir"`
	}

	// S3Config configures the S3-compatible artifact store.
	S3Config struct {
		Endpoint  string `json:"endpoint" mapstructure:"endpoint"`
		Bucket    string `json:"bucket" mapstructure:"bucket"`
		AccessKey string `json:"access_key" mapstructure:"access_key"`
		SecretKey string `json:"secret_key" mapstructure:"secret_key"`
		Region    string `json:"region" mapstructure:"region"`
		UseSSL    bool   `json:"use_ssl" mapstructure:"use_ssl"`
	}

	// ContainerConfig configures the container runner.
	ContainerConfig struct {
		// Images maps runner labels to container images. Labels without an
		// entry use python:<version>-slim.
		Images map[string]string `json:"images" mapstructure:"images"`
	}

	// LogConfig configures the structured logger.
	LogConfig struct {
		Level  logging.Level  `json:"level" mapstructure:"level"`
		Format logging.Format `json:"format" mapstructure:"format"`
	}

	// UIConfig configures the user interface.
	UIConfig struct {
		// ColorScheme sets the color scheme
		ColorScheme ColorScheme `json:"color_scheme" mapstructure:"color_scheme"`
		// Verbose enables verbose output
		Verbose bool `json:"verbose" mapstructure:"verbose"`
	}
)

// IsValid returns whether the Config has valid fields, collecting the
// field-level errors of every sub-component.
func (c Config) IsValid() (bool, []error) {
	var errs []error
	collect := func(ok bool, fieldErrs []error) {
		if !ok {
			errs = append(errs, fieldErrs...)
		}
	}

	collect(c.Runner.IsValid())
	collect(c.ContainerEngine.IsValid())
	collect(c.Artifacts.Backend.IsValid())
	collect(c.Log.Level.IsValid())
	collect(c.Log.Format.IsValid())
	collect(c.UI.ColorScheme.IsValid())
	if c.MaxParallel < 0 {
		errs = append(errs, fmt.Errorf("max_parallel must be >= 0, got %d", c.MaxParallel))
	}
	if c.Artifacts.Backend == ArtifactBackendS3 && (strings.TrimSpace(c.Artifacts.S3.Endpoint) == "" || strings.TrimSpace(c.Artifacts.S3.Bucket) == "") {
		errs = append(errs, fmt.Errorf("%w: artifacts.s3.endpoint and artifacts.s3.bucket are required", ErrIncompleteS3Config))
	}

	if len(errs) > 0 {
		return false, []error{&InvalidConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidConfigError.
func (e *InvalidConfigError) Error() string {
	msgs := make([]string, len(e.FieldErrors))
	for i, err := range e.FieldErrors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("invalid config: %s", strings.Join(msgs, "; "))
}

// Unwrap returns ErrInvalidConfig and the field errors for errors.Is()
// compatibility.
func (e *InvalidConfigError) Unwrap() []error {
	return append([]error{ErrInvalidConfig}, e.FieldErrors...)
}

// Error implements the error interface for InvalidContainerEngineError.
func (e *InvalidContainerEngineError) Error() string {
	return fmt.Sprintf("invalid container engine %q (valid: podman, docker)", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidContainerEngineError) Unwrap() error {
	return ErrInvalidContainerEngine
}

// String returns the string representation of the ContainerEngine.
func (ce ContainerEngine) String() string { return string(ce) }

// IsValid returns whether the ContainerEngine is one of the defined container engines,
// and a list of validation errors if it is not.
func (ce ContainerEngine) IsValid() (bool, []error) {
	switch ce {
	case ContainerEnginePodman, ContainerEngineDocker:
		return true, nil
	default:
		return false, []error{&InvalidContainerEngineError{Value: ce}}
	}
}

// Error implements the error interface for InvalidRunnerModeError.
func (e *InvalidRunnerModeError) Error() string {
	return fmt.Sprintf("invalid runner %q (valid: native, virtual, container)", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidRunnerModeError) Unwrap() error {
	return ErrInvalidRunnerMode
}

// String returns the string representation of the RunnerMode.
func (m RunnerMode) String() string { return string(m) }

// IsValid returns whether the RunnerMode is one of the defined modes,
// and a list of validation errors if it is not.
func (m RunnerMode) IsValid() (bool, []error) {
	switch m {
	case RunnerNative, RunnerVirtual, RunnerContainer:
		return true, nil
	default:
		return false, []error{&InvalidRunnerModeError{Value: m}}
	}
}

// Error implements the error interface for InvalidArtifactBackendError.
func (e *InvalidArtifactBackendError) Error() string {
	return fmt.Sprintf("invalid artifact backend %q (valid: local, s3)", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidArtifactBackendError) Unwrap() error {
	return ErrInvalidArtifactBackend
}

// String returns the string representation of the ArtifactBackend.
func (b ArtifactBackend) String() string { return string(b) }

// IsValid returns whether the ArtifactBackend is known, and a list of
// validation errors if it is not.
func (b ArtifactBackend) IsValid() (bool, []error) {
	switch b {
	case ArtifactBackendLocal, ArtifactBackendS3:
		return true, nil
	default:
		return false, []error{&InvalidArtifactBackendError{Value: b}}
	}
}

// Error implements the error interface for InvalidColorSchemeError.
func (e *InvalidColorSchemeError) Error() string {
	return fmt.Sprintf("invalid color scheme %q (valid: auto, dark, light)", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidColorSchemeError) Unwrap() error {
	return ErrInvalidColorScheme
}

// String returns the string representation of the ColorScheme.
func (cs ColorScheme) String() string { return string(cs) }

// IsValid returns whether the ColorScheme is one of the defined color schemes,
// and a list of validation errors if it is not.
func (cs ColorScheme) IsValid() (bool, []error) {
	switch cs {
	case ColorSchemeAuto, ColorSchemeDark, ColorSchemeLight:
		return true, nil
	default:
		return false, []error{&InvalidColorSchemeError{Value: cs}}
	}
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Runner:          RunnerNative,
		ContainerEngine: ContainerEnginePodman,
		MaxParallel:     0,
		Artifacts: ArtifactsConfig{
			Backend: ArtifactBackendLocal,
			S3: S3Config{
				Region: "us-east-1",
				UseSSL: true,
			},
		},
		Container: ContainerConfig{
			Images: map[string]string{},
		},
		Log: LogConfig{
			Level:  logging.LevelInfo,
			Format: logging.FormatText,
		},
		UI: UIConfig{
			ColorScheme: ColorSchemeAuto,
		},
	}
}
