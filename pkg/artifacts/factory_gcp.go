//go:build gcp

package artifacts

import (
	"context"
	"fmt"

	"github.com/agentos-dev/agentkernel/pkg/config"
)

func newGCSBackendFromConfig(ctx context.Context, cfg config.ArtifactConfig) (Backend, error) {
	if cfg.GCSBucket == "" {
		return nil, fmt.Errorf("KERNEL_ARTIFACT_GCS_BUCKET is required for GCS storage")
	}
	return NewGCSBackend(ctx, GCSConfig{
		Bucket: cfg.GCSBucket,
		Prefix: cfg.GCSPrefix,
	})
}
