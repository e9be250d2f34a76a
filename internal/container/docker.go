// SPDX-License-Identifier: MPL-2.0

package container

import "os/exec"

// DockerEngine runs containers through the docker CLI.
type DockerEngine struct {
	*BaseCLIEngine
}

// NewDockerEngine creates a docker engine. Its version probe asks the server,
// so a stopped daemon makes the engine unavailable.
func NewDockerEngine(opts ...BaseCLIEngineOption) *DockerEngine {
	path, _ := exec.LookPath("docker")
	base := []BaseCLIEngineOption{
		WithName(string(EngineTypeDocker)),
		withProbes(cliProbes{versionFormat: "{{.Server.Version}}", imageExists: []string{"image", "inspect"}}),
	}
	return &DockerEngine{BaseCLIEngine: NewBaseCLIEngine(path, append(base, opts...)...)}
}

// Name returns the engine name.
func (e *DockerEngine) Name() string { return string(EngineTypeDocker) }
