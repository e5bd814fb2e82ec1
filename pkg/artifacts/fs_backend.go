package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileBackend stores one file per hash under <root>/sha256/<hash>.
// Writes go to a temp file in the same directory and are renamed into
// place, so readers never see partial blobs.
type FileBackend struct {
	root string
}

var _ Backend = (*FileBackend)(nil)

// NewFileBackend creates a filesystem backend rooted at root.
func NewFileBackend(root string) (*FileBackend, error) {
	//nolint:gosec // G301: 0755 is intentional for shared artifact directory
	if err := os.MkdirAll(filepath.Join(root, algoSegment), 0755); err != nil {
		return nil, fmt.Errorf("failed to ensure artifact dir: %w", err)
	}
	return &FileBackend{root: root}, nil
}

// Root returns the directory the backend writes under.
func (b *FileBackend) Root() string { return b.root }

func (b *FileBackend) path(hash string) (string, error) {
	if !validHash(hash) {
		return "", fmt.Errorf("invalid hash: %q", hash)
	}
	return filepath.Join(b.root, algoSegment, hash), nil
}

// Put implements Backend.
func (b *FileBackend) Put(ctx context.Context, hash string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := b.path(hash)
	if err != nil {
		return err
	}

	// Idempotent: the content under a hash never changes.
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), hash+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp blob: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close blob: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to commit blob: %w", err)
	}
	return nil
}

// Get implements Backend.
func (b *FileBackend) Get(ctx context.Context, hash string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	path, err := b.path(hash)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(path) //nolint:gosec // hash validated as hex
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read blob: %w", err)
	}
	return data, true, nil
}

// Has implements Backend.
func (b *FileBackend) Has(ctx context.Context, hash string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	path, err := b.path(hash)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat blob: %w", err)
}

// Delete implements Backend.
func (b *FileBackend) Delete(ctx context.Context, hash string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	path, err := b.path(hash)
	if err != nil {
		return false, err
	}
	err = os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to delete blob: %w", err)
	}
	return true, nil
}
