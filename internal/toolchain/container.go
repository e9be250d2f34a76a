// SPDX-License-Identifier: MPL-2.0

package toolchain

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"github.com/buildmatrix/buildmatrix/internal/logging"
	"github.com/buildmatrix/buildmatrix/internal/runner"
	"github.com/buildmatrix/buildmatrix/pkg/workflow"
)

const (
	// DefaultImageTemplate is used for runner labels without a configured image.
	DefaultImageTemplate = "python:${{ matrix.python-version }}-slim"

	containerVenvDir = runner.DefaultContainerWorkDir + "/" + VenvDirName
	containerPath    = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"
)

// ContainerProvisioner provisions interpreters shipped in container images.
// The virtual environment is created inside the mounted workspace so later
// steps, each in a fresh container, find it at the same path.
type ContainerProvisioner struct {
	runner runner.Runner
	images map[string]string
}

// NewContainerProvisioner creates a provisioner that probes images through rn.
// images maps runner labels to image templates; labels match case-insensitively.
func NewContainerProvisioner(rn runner.Runner, images map[string]string) *ContainerProvisioner {
	return &ContainerProvisioner{runner: rn, images: images}
}

// Image resolves the image for a request's runner label.
func (p *ContainerProvisioner) Image(req Request) (string, error) {
	tmpl := DefaultImageTemplate
	for label, image := range p.images {
		if strings.EqualFold(label, req.OS) {
			tmpl = image
			break
		}
	}

	matrix := map[string]string(req.Matrix)
	if _, ok := matrix["python-version"]; !ok && req.Version != "" {
		matrix = make(map[string]string, len(req.Matrix)+1)
		maps.Copy(matrix, req.Matrix)
		matrix["python-version"] = req.Version
	}

	image, err := workflow.Interpolate(tmpl, workflow.Scope{Matrix: matrix})
	if err != nil {
		return "", fmt.Errorf("image template for %s: %w", req.OS, err)
	}
	if strings.TrimSpace(image) == "" {
		return "", fmt.Errorf("image template for %s: %w", req.OS, runner.ErrNoImage)
	}
	return image, nil
}

// Provision creates the virtual environment in the image and verifies the interpreter.
func (p *ContainerProvisioner) Provision(ctx context.Context, req Request) (*Interpreter, error) {
	image, err := p.Image(req)
	if err != nil {
		return nil, err
	}
	plat := ContainerPlatform(req.Architecture)

	script := fmt.Sprintf("python -m venv %s && %s/bin/python -c '%s'", containerVenvDir, containerVenvDir, probeScript)
	result := runner.Capture(p.runner, &runner.ExecutionContext{
		Context:  ctx,
		Script:   script,
		WorkDir:  req.WorkDir,
		Image:    image,
		Platform: plat,
	})
	if err := result.Err(); err != nil {
		if msg := strings.TrimSpace(result.ErrOutput); msg != "" {
			return nil, fmt.Errorf("provision %s: %w: %s", image, err, msg)
		}
		return nil, fmt.Errorf("provision %s: %w", image, err)
	}

	probe, err := parseProbe(result.Output)
	if err != nil {
		return nil, fmt.Errorf("provision %s: %w", image, err)
	}
	if !probe.satisfies(req) {
		logging.FromContext(ctx).Debug("image interpreter rejected", "image", image, "version", probe.version, "bits", probe.bits)
		return nil, &InterpreterNotFoundError{Version: req.Version, Architecture: req.Architecture, Tried: []string{image}}
	}

	logging.FromContext(ctx).Info("interpreter ready", "image", image, "version", probe.version, "bits", probe.bits)

	return &Interpreter{
		Path:     containerVenvDir + "/bin/python",
		Version:  probe.version,
		Bits:     probe.bits,
		VenvDir:  containerVenvDir,
		Image:    image,
		Platform: plat,
		Env: map[string]string{
			"PATH":        containerVenvDir + "/bin:" + containerPath,
			"VIRTUAL_ENV": containerVenvDir,
		},
	}, nil
}
