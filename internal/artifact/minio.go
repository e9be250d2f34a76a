// SPDX-License-Identifier: MPL-2.0

package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/buildmatrix/buildmatrix/internal/issue"
)

const manifestSuffix = "." + ManifestName

type (
	// MinioConfig configures an S3-compatible store.
	MinioConfig struct {
		Endpoint  string
		Bucket    string
		AccessKey string
		SecretKey string
		Region    string
		UseSSL    bool
	}

	// MinioStore keeps artifacts in an S3-compatible bucket. Files live under
	// <run-id>/<name>/<path>; the manifest is <run-id>/<name>.artifact.json and is
	// uploaded after the files.
	MinioStore struct {
		client *minio.Client
		bucket string
		now    func() time.Time

		mu       sync.Mutex
		inflight map[string]struct{}
	}
)

// Validate checks the required fields.
func (c MinioConfig) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Endpoint) == "" {
		missing = append(missing, "endpoint")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		missing = append(missing, "bucket")
	}
	if len(missing) > 0 {
		return fmt.Errorf("s3 artifact store: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// NewMinioStore connects to the endpoint and creates the bucket when missing.
func NewMinioStore(ctx context.Context, cfg MinioConfig) (*MinioStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, storeUnavailableError(cfg.Endpoint, err)
	}

	s, err := NewMinioStoreWithClient(client, cfg.Bucket)
	if err != nil {
		return nil, err
	}
	if err := s.ensureBucket(ctx, cfg.Region); err != nil {
		return nil, storeUnavailableError(cfg.Endpoint, err)
	}
	return s, nil
}

// NewMinioStoreWithClient wraps an existing client. The bucket must exist.
func NewMinioStoreWithClient(client *minio.Client, bucket string) (*MinioStore, error) {
	if client == nil {
		return nil, errors.New("minio client is required")
	}
	return &MinioStore{client: client, bucket: bucket, now: time.Now, inflight: make(map[string]struct{})}, nil
}

// Publish uploads the matched files, then the manifest.
func (s *MinioStore) Publish(ctx context.Context, req UploadRequest) (*Artifact, error) {
	matches, ok, err := prepare(ctx, req)
	if err != nil || !ok {
		return nil, err
	}

	release, err := s.reserve(ctx, req.RunID, req.Name)
	if err != nil {
		return nil, err
	}
	defer release()

	art := &Artifact{RunID: req.RunID, Name: req.Name, Files: []File{}, CreatedAt: s.now().UTC()}
	for _, m := range matches {
		f, err := s.putFile(ctx, objectKey(req.RunID, req.Name, m.Path), m.Source)
		if err != nil {
			return nil, fmt.Errorf("upload %s: %w", m.Path, err)
		}
		f.Path = m.Path
		art.Files = append(art.Files, f)
		art.Size += f.Size
	}

	data, err := json.MarshalIndent(art, "", "  ")
	if err != nil {
		return nil, err
	}
	_, err = s.client.PutObject(ctx, s.bucket, manifestKey(req.RunID, req.Name), bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return nil, fmt.Errorf("upload manifest: %w", err)
	}
	return art, nil
}

// List returns the artifacts of a run sorted by name.
func (s *MinioStore) List(ctx context.Context, runID string) ([]Artifact, error) {
	var out []Artifact
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: runID + "/"}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		name, ok := strings.CutSuffix(strings.TrimPrefix(obj.Key, runID+"/"), manifestSuffix)
		if !ok || strings.Contains(name, "/") {
			continue
		}
		art, err := s.manifest(ctx, runID, name)
		if err != nil {
			return nil, err
		}
		out = append(out, *art)
	}
	slices.SortFunc(out, func(a, b Artifact) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// Fetch downloads an artifact into dest, verifying each file against the manifest.
func (s *MinioStore) Fetch(ctx context.Context, runID, name, dest string) (*Artifact, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	art, err := s.manifest(ctx, runID, name)
	if err != nil {
		return nil, err
	}

	for _, f := range art.Files {
		target, err := destPath(dest, f.Path)
		if err != nil {
			return nil, err
		}
		obj, err := s.client.GetObject(ctx, s.bucket, objectKey(runID, name, f.Path), minio.GetObjectOptions{})
		if err != nil {
			return nil, fmt.Errorf("download %s: %w", f.Path, err)
		}
		err = writeVerified(obj, target, f)
		_ = obj.Close()
		if err != nil {
			return nil, err
		}
	}
	return art, nil
}

// reserve claims run/name for this process and fails when the manifest already exists.
func (s *MinioStore) reserve(ctx context.Context, runID, name string) (func(), error) {
	key := manifestKey(runID, name)

	s.mu.Lock()
	if _, busy := s.inflight[key]; busy {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s in run %s", ErrArtifactExists, name, runID)
	}
	s.inflight[key] = struct{}{}
	s.mu.Unlock()

	release := func() {
		s.mu.Lock()
		delete(s.inflight, key)
		s.mu.Unlock()
	}

	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	switch {
	case err == nil:
		release()
		return nil, fmt.Errorf("%w: %s in run %s", ErrArtifactExists, name, runID)
	case minio.ToErrorResponse(err).Code == "NoSuchKey":
		return release, nil
	default:
		release()
		return nil, fmt.Errorf("check artifact %s: %w", name, err)
	}
}

func (s *MinioStore) putFile(ctx context.Context, key, src string) (File, error) {
	size, sum, err := hashFile(src)
	if err != nil {
		return File{}, err
	}
	in, err := os.Open(src)
	if err != nil {
		return File{}, err
	}
	defer func() { _ = in.Close() }()

	_, err = s.client.PutObject(ctx, s.bucket, key, in, size, minio.PutObjectOptions{
		ContentType:  "application/octet-stream",
		UserMetadata: map[string]string{"Sha256": sum},
	})
	if err != nil {
		return File{}, err
	}
	return File{Size: size, SHA256: sum}, nil
}

func (s *MinioStore) manifest(ctx context.Context, runID, name string) (*Artifact, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, manifestKey(runID, name), minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = obj.Close() }()

	var art Artifact
	if err := json.NewDecoder(obj).Decode(&art); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: %s in run %s", ErrArtifactNotFound, name, runID)
		}
		return nil, fmt.Errorf("read manifest of %s: %w", name, err)
	}
	return &art, nil
}

func (s *MinioStore) ensureBucket(ctx context.Context, region string) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: region})
}

func objectKey(runID, name, file string) string {
	return path.Join(runID, name, file)
}

func manifestKey(runID, name string) string {
	return runID + "/" + name + manifestSuffix
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

func storeUnavailableError(endpoint string, cause error) error {
	return issue.NewErrorContext().
		WithOperation("connect to artifact store").
		WithResource(endpoint).
		WithSuggestion("Check artifacts.s3.endpoint and the credentials in your config").
		WithSuggestion("Use artifacts.backend \"local\" to publish to the filesystem instead").
		WithIssue(issue.ArtifactStoreUnavailableId).
		Wrap(cause).
		BuildError()
}
