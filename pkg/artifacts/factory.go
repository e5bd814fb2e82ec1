package artifacts

import (
	"context"
	"fmt"

	"github.com/agentos-dev/agentkernel/pkg/config"
)

// NewBackendFromConfig builds the artifact backend cfg selects. An empty
// backend name means "fs".
func NewBackendFromConfig(ctx context.Context, cfg config.ArtifactConfig) (Backend, error) {
	var (
		backend Backend
		err     error
	)
	switch cfg.Backend {
	case config.ArtifactBackendFS, "":
		backend, err = NewFileBackend(cfg.Dir)
	case config.ArtifactBackendMemory:
		backend = NewMemoryBackend()
	case config.ArtifactBackendS3:
		backend, err = newS3BackendFromConfig(ctx, cfg)
	case config.ArtifactBackendGCS:
		backend, err = newGCSBackendFromConfig(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported artifact backend: %s", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Compress {
		backend = NewCompressedBackend(backend)
	}
	return backend, nil
}

func newS3BackendFromConfig(ctx context.Context, cfg config.ArtifactConfig) (Backend, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("KERNEL_ARTIFACT_S3_BUCKET is required for S3 storage")
	}
	region := cfg.S3Region
	if region == "" {
		region = "us-east-1"
	}
	return NewS3Backend(ctx, S3Config{
		Bucket:   cfg.S3Bucket,
		Region:   region,
		Endpoint: cfg.S3Endpoint,
		Prefix:   cfg.S3Prefix,
	})
}
