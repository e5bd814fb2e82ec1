package artifacts

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Metadata describes one stored artifact.
type Metadata struct {
	Handle    Handle    `json:"handle"`
	SizeBytes int64     `json:"size_bytes"`
	MimeType  string    `json:"mime_type"`
	CreatedAt time.Time `json:"created_at"`
	RunID     string    `json:"run_id"`
}

// Store is a content-addressed artifact store. Blobs live in a Backend;
// the metadata index lives in memory. Identical content stored twice
// shares one blob, and the metadata entry reflects the latest store call.
type Store struct {
	backend Backend
	clock   func() time.Time
	logger  *slog.Logger

	mu   sync.RWMutex
	meta map[string]Metadata
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for CreatedAt.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// WithLogger sets the store's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// NewStore creates a store over backend.
func NewStore(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		clock:   time.Now,
		logger:  slog.Default(),
		meta:    make(map[string]Metadata),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "artifacts")
	return s
}

// Store writes data and records its metadata, returning the content handle.
func (s *Store) Store(ctx context.Context, data []byte, mimeType, runID string) (Handle, error) {
	hash := HashBytes(data)
	handle := HandleFor(hash)

	exists, err := s.backend.Has(ctx, hash)
	if err != nil {
		return "", fmt.Errorf("artifact exists check failed: %w", err)
	}
	if !exists {
		if err := s.backend.Put(ctx, hash, data); err != nil {
			return "", fmt.Errorf("artifact put failed: %w", err)
		}
	}

	m := Metadata{
		Handle:    handle,
		SizeBytes: int64(len(data)),
		MimeType:  mimeType,
		CreatedAt: s.clock().UTC(),
		RunID:     runID,
	}
	s.mu.Lock()
	s.meta[hash] = m
	s.mu.Unlock()

	s.logger.Debug("artifact stored",
		"handle", handle.String(),
		"size_bytes", m.SizeBytes,
		"run_id", runID,
		"deduplicated", exists,
	)
	return handle, nil
}

// Retrieve returns the bytes behind handle. A malformed or unknown handle
// reports ok=false without an error.
func (s *Store) Retrieve(ctx context.Context, handle Handle) ([]byte, bool, error) {
	hash, ok := ParseHandle(string(handle))
	if !ok {
		return nil, false, nil
	}
	data, found, err := s.backend.Get(ctx, hash)
	if err != nil {
		return nil, false, fmt.Errorf("artifact get failed: %w", err)
	}
	return data, found, nil
}

// Has reports whether the blob behind handle exists.
func (s *Store) Has(ctx context.Context, handle Handle) (bool, error) {
	hash, ok := ParseHandle(string(handle))
	if !ok {
		return false, nil
	}
	return s.backend.Has(ctx, hash)
}

// Delete removes the blob and its metadata, reporting whether the artifact
// existed in either.
func (s *Store) Delete(ctx context.Context, handle Handle) (bool, error) {
	hash, ok := ParseHandle(string(handle))
	if !ok {
		return false, nil
	}
	existed, err := s.backend.Delete(ctx, hash)
	if err != nil {
		return false, fmt.Errorf("artifact delete failed: %w", err)
	}

	s.mu.Lock()
	_, hadMeta := s.meta[hash]
	delete(s.meta, hash)
	s.mu.Unlock()

	existed = existed || hadMeta
	s.logger.Debug("artifact deleted", "handle", handle.String(), "existed", existed)
	return existed, nil
}

// Metadata returns the metadata recorded for handle.
func (s *Store) Metadata(handle Handle) (Metadata, bool) {
	hash, ok := ParseHandle(string(handle))
	if !ok {
		return Metadata{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.meta[hash]
	return m, ok
}

// ListMetadata returns all metadata ordered by creation time, then handle.
func (s *Store) ListMetadata() []Metadata {
	return s.filter(func(Metadata) bool { return true })
}

// ListByRun returns the metadata of artifacts attributed to runID.
func (s *Store) ListByRun(runID string) []Metadata {
	return s.filter(func(m Metadata) bool { return m.RunID == runID })
}

// Count returns the number of artifacts with metadata.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.meta)
}

// TotalBytes sums the recorded sizes of all artifacts.
func (s *Store) TotalBytes() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total int64
	for _, m := range s.meta {
		total += m.SizeBytes
	}
	return total
}

func (s *Store) filter(keep func(Metadata) bool) []Metadata {
	s.mu.RLock()
	out := make([]Metadata, 0, len(s.meta))
	for _, m := range s.meta {
		if keep(m) {
			out = append(out, m)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Handle < out[j].Handle
	})
	return out
}
