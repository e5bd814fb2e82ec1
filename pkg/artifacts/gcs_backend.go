//go:build gcp

package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GCSBackend stores blobs as objects named <prefix>sha256/<hash>.
type GCSBackend struct {
	client *storage.Client
	bucket string
	prefix string
}

var _ Backend = (*GCSBackend)(nil)

// GCSConfig holds configuration for GCSBackend.
type GCSConfig struct {
	Bucket string
	Prefix string // Optional key prefix
}

// NewGCSBackend creates a GCS-backed artifact backend using ADC.
func NewGCSBackend(ctx context.Context, cfg GCSConfig) (*GCSBackend, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSBackend{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (b *GCSBackend) object(hash string) (*storage.ObjectHandle, error) {
	if !validHash(hash) {
		return nil, fmt.Errorf("invalid hash: %q", hash)
	}
	return b.client.Bucket(b.bucket).Object(b.prefix + algoSegment + "/" + hash), nil
}

// Put implements Backend. The DoesNotExist precondition makes concurrent
// writers of the same hash race harmlessly.
func (b *GCSBackend) Put(ctx context.Context, hash string, data []byte) error {
	obj, err := b.object(hash)
	if err != nil {
		return err
	}
	w := obj.If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		if exists, herr := b.Has(ctx, hash); herr == nil && exists {
			return nil
		}
		return fmt.Errorf("gcs close failed: %w", err)
	}
	return nil
}

// Get implements Backend.
func (b *GCSBackend) Get(ctx context.Context, hash string) ([]byte, bool, error) {
	obj, err := b.object(hash)
	if err != nil {
		return nil, false, err
	}
	reader, err := obj.NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("gcs get failed for %s: %w", hash, err)
	}
	defer func() { _ = reader.Close() }()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, false, fmt.Errorf("gcs read failed for %s: %w", hash, err)
	}
	return data, true, nil
}

// Has implements Backend.
func (b *GCSBackend) Has(ctx context.Context, hash string) (bool, error) {
	obj, err := b.object(hash)
	if err != nil {
		return false, err
	}
	_, err = obj.Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("gcs attrs error: %w", err)
	}
	return true, nil
}

// Delete implements Backend.
func (b *GCSBackend) Delete(ctx context.Context, hash string) (bool, error) {
	obj, err := b.object(hash)
	if err != nil {
		return false, err
	}
	err = obj.Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("gcs delete failed for %s: %w", hash, err)
	}
	return true, nil
}

// Close closes the GCS client.
func (b *GCSBackend) Close() error {
	return b.client.Close()
}
