package artifacts

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/agentos-dev/agentkernel/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBackendFromConfig_DefaultFS(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "artifacts")

	b, err := NewBackendFromConfig(context.Background(), config.ArtifactConfig{Dir: dir})
	require.NoError(t, err)

	fs, ok := b.(*FileBackend)
	require.True(t, ok, "expected *FileBackend, got %T", b)
	assert.Equal(t, dir, fs.Root())
	assert.DirExists(t, filepath.Join(dir, "sha256"))
}

func TestNewBackendFromConfig_Memory(t *testing.T) {
	b, err := NewBackendFromConfig(context.Background(), config.ArtifactConfig{Backend: config.ArtifactBackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryBackend{}, b)
}

func TestNewBackendFromConfig_Compressed(t *testing.T) {
	b, err := NewBackendFromConfig(context.Background(), config.ArtifactConfig{
		Backend:  config.ArtifactBackendMemory,
		Compress: true,
	})
	require.NoError(t, err)
	assert.IsType(t, &CompressedBackend{}, b)
}

func TestNewBackendFromConfig_S3MissingBucket(t *testing.T) {
	_, err := NewBackendFromConfig(context.Background(), config.ArtifactConfig{Backend: config.ArtifactBackendS3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KERNEL_ARTIFACT_S3_BUCKET is required")
}

func TestNewBackendFromConfig_GCSMissingBucket(t *testing.T) {
	_, err := NewBackendFromConfig(context.Background(), config.ArtifactConfig{Backend: config.ArtifactBackendGCS})
	require.Error(t, err)
	// Builds without the gcp tag report that GCS is unavailable instead.
	if strings.Contains(err.Error(), "GCS storage is not enabled") {
		return
	}
	assert.Contains(t, err.Error(), "KERNEL_ARTIFACT_GCS_BUCKET is required")
}

func TestNewBackendFromConfig_Unsupported(t *testing.T) {
	_, err := NewBackendFromConfig(context.Background(), config.ArtifactConfig{Backend: "azure"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported artifact backend")
}
