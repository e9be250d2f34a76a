// SPDX-License-Identifier: MPL-2.0

// Package container provides a unified abstraction layer for container engines (Docker/Podman).
//
// The Engine interface defines the operations the container runner needs: Run, ImageExists and
// Pull. DockerEngine and PodmanEngine both embed BaseCLIEngine for shared CLI argument
// construction and command execution.
//
// Engine selection uses NewEngine(EngineType) with automatic fallback if the preferred engine
// is unavailable, or AutoDetectEngine() for preference-less detection (Podman is tried first).
//
// Only Linux container images are supported.
package container
