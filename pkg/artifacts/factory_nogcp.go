//go:build !gcp

package artifacts

import (
	"context"
	"fmt"

	"github.com/agentos-dev/agentkernel/pkg/config"
)

func newGCSBackendFromConfig(ctx context.Context, cfg config.ArtifactConfig) (Backend, error) {
	return nil, fmt.Errorf("GCS storage is not enabled in this build (use -tags gcp)")
}
