// Package artifacts provides content-addressed, deduplicated artifact
// storage with per-run attribution metadata.
package artifacts

import (
	"context"
	"sync"
)

// Backend is the byte-storage capability set the artifact store is
// polymorphic over. Writing the same hash twice must be an idempotent
// no-op, and a reader must never observe a partially written blob.
type Backend interface {
	// Put stores data under hash.
	Put(ctx context.Context, hash string, data []byte) error
	// Get returns the blob for hash; ok is false when absent.
	Get(ctx context.Context, hash string) (data []byte, ok bool, err error)
	// Has reports whether a blob exists for hash.
	Has(ctx context.Context, hash string) (bool, error)
	// Delete removes the blob and reports whether it existed.
	Delete(ctx context.Context, hash string) (bool, error)
}

// MemoryBackend keeps blobs in a map. Used for tests and ephemeral runs.
type MemoryBackend struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

var _ Backend = (*MemoryBackend)(nil)

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{blobs: make(map[string][]byte)}
}

// Put implements Backend.
func (b *MemoryBackend) Put(ctx context.Context, hash string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	// Content-addressed: if it exists, it's the same content
	if _, exists := b.blobs[hash]; exists {
		return nil
	}
	b.blobs[hash] = append([]byte(nil), data...)
	return nil
}

// Get implements Backend.
func (b *MemoryBackend) Get(ctx context.Context, hash string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, ok := b.blobs[hash]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), data...), true, nil
}

// Has implements Backend.
func (b *MemoryBackend) Has(ctx context.Context, hash string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.blobs[hash]
	return ok, nil
}

// Delete implements Backend.
func (b *MemoryBackend) Delete(ctx context.Context, hash string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.blobs[hash]
	delete(b.blobs, hash)
	return ok, nil
}

// Len returns the number of stored blobs.
func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.blobs)
}
