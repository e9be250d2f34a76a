// SPDX-License-Identifier: MPL-2.0

package artifact

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/buildmatrix/buildmatrix/internal/testutil"
)

const (
	minioImage     = "minio/minio:RELEASE.2025-04-22T22-12-26Z"
	minioAccessKey = "buildmatrix"
	minioSecretKey = "buildmatrix-secret"
)

// checkTestcontainersAvailable safely checks if a container provider answers.
func checkTestcontainersAvailable() (available bool) {
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		return false
	}
	defer provider.Close()
	return true
}

func startMinio(t *testing.T) string {
	t.Helper()

	sem := testutil.ContainerSemaphore()
	sem <- struct{}{}
	t.Cleanup(func() { <-sem })

	ctx := context.Background()
	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        minioImage,
			ExposedPorts: []string{"9000/tcp"},
			Env: map[string]string{
				"MINIO_ROOT_USER":     minioAccessKey,
				"MINIO_ROOT_PASSWORD": minioSecretKey,
			},
			Cmd:        []string{"server", "/data"},
			WaitingFor: wait.ForHTTP("/minio/health/live").WithPort("9000/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start minio: %v", err)
	}
	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })

	endpoint, err := ctr.PortEndpoint(ctx, "9000/tcp", "")
	if err != nil {
		t.Fatalf("minio endpoint: %v", err)
	}
	return endpoint
}

func TestMinioStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if !checkTestcontainersAvailable() {
		t.Skip("skipping minio integration tests: testcontainers provider not available")
	}

	ctx := context.Background()
	store, err := NewMinioStore(ctx, MinioConfig{
		Endpoint:  startMinio(t),
		Bucket:    "artifacts",
		AccessKey: minioAccessKey,
		SecretKey: minioSecretKey,
	})
	if err != nil {
		t.Fatalf("NewMinioStore() error = %v", err)
	}

	ws := newWorkspace(t)
	art, err := store.Publish(ctx, UploadRequest{RunID: "run-1", Name: "myapp-ubuntu-latest-x64-3.12", BaseDir: ws, Patterns: []string{"dist", "!**/*.pdb"}})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(art.Files) != 2 {
		t.Errorf("Publish() files = %+v", art.Files)
	}

	if _, err := store.Publish(ctx, UploadRequest{RunID: "run-1", Name: art.Name, BaseDir: ws, Patterns: []string{"dist"}}); !errors.Is(err, ErrArtifactExists) {
		t.Errorf("second Publish() error = %v, want ErrArtifactExists", err)
	}

	list, err := store.List(ctx, "run-1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 || list[0].Name != art.Name {
		t.Errorf("List() = %+v", list)
	}

	dest := t.TempDir()
	if _, err := store.Fetch(ctx, "run-1", art.Name, dest); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got := testutil.MustReadFile(t, filepath.Join(dest, "lib", "core.dll")); got != "dll" {
		t.Errorf("fetched core.dll = %q", got)
	}

	if _, err := store.Fetch(ctx, "run-1", "missing", t.TempDir()); !errors.Is(err, ErrArtifactNotFound) {
		t.Errorf("Fetch(missing) error = %v, want ErrArtifactNotFound", err)
	}
}

func TestMinioConfigValidate(t *testing.T) {
	t.Parallel()

	if err := (MinioConfig{}).Validate(); err == nil {
		t.Error("empty config should fail validation")
	}
	if err := (MinioConfig{Endpoint: "localhost:9000", Bucket: "b"}).Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}
