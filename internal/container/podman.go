// SPDX-License-Identifier: MPL-2.0

package container

import (
	"os"
	"os/exec"
	"strings"
)

// PodmanEngine runs containers through the podman CLI.
type PodmanEngine struct {
	*BaseCLIEngine
}

// NewPodmanEngine creates a podman engine. When SELinux is enforcing, volume
// mounts without a label get :z.
func NewPodmanEngine(opts ...BaseCLIEngineOption) *PodmanEngine {
	path, _ := exec.LookPath("podman")
	base := []BaseCLIEngineOption{
		WithName(string(EngineTypePodman)),
		WithVolumeFormatter(selinuxLabeler(isSELinuxEnabled)),
		withProbes(cliProbes{versionFormat: "{{.Version}}", imageExists: []string{"image", "exists"}}),
	}
	return &PodmanEngine{BaseCLIEngine: NewBaseCLIEngine(path, append(base, opts...)...)}
}

// Name returns the engine name.
func (e *PodmanEngine) Name() string { return string(EngineTypePodman) }

func isSELinuxEnabled() bool {
	data, err := os.ReadFile("/sys/fs/selinux/enforce")
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(data)) == "1"
}

// selinuxLabeler returns a volume formatter that appends the :z label when
// enabled reports true and the volume carries no SELinux label yet.
func selinuxLabeler(enabled func() bool) VolumeFormatFunc {
	return func(volume string) string {
		if !enabled() {
			return volume
		}

		parts := strings.Split(volume, ":")
		if len(parts) < 2 {
			return volume
		}

		if len(parts) >= 3 {
			for opt := range strings.SplitSeq(parts[len(parts)-1], ",") {
				if opt == "z" || opt == "Z" {
					return volume
				}
			}
			return volume + ",z"
		}

		return volume + ":z"
	}
}
