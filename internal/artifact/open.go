// SPDX-License-Identifier: MPL-2.0

package artifact

import (
	"context"

	"github.com/buildmatrix/buildmatrix/internal/config"
)

// Open returns the store selected by cfg.Artifacts.Backend.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	if cfg.Artifacts.Backend == config.ArtifactBackendS3 {
		s3 := cfg.Artifacts.S3
		return NewMinioStore(ctx, MinioConfig{
			Endpoint:  s3.Endpoint,
			Bucket:    s3.Bucket,
			AccessKey: s3.AccessKey,
			SecretKey: s3.SecretKey,
			Region:    s3.Region,
			UseSSL:    s3.UseSSL,
		})
	}

	dir, err := cfg.ResolvedArtifactDir()
	if err != nil {
		return nil, err
	}
	return NewLocalStore(dir), nil
}
