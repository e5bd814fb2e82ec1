package artifacts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestStore() (*Store, *MemoryBackend) {
	backend := NewMemoryBackend()
	clock := &stepClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return NewStore(backend, WithClock(clock.Now)), backend
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore()
	data := []byte(`{"diff":"+1 -1"}`)

	h, err := s.Store(ctx, data, "application/json", "run-1")
	require.NoError(t, err)
	assert.Equal(t, HandleFor(HashBytes(data)), h)
	assert.Regexp(t, `^artifact://sha256/[0-9a-f]{64}$`, h.String())

	got, found, err := s.Retrieve(ctx, h)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, data, got)

	ok, err := s.Has(ctx, h)
	require.NoError(t, err)
	assert.True(t, ok)

	m, ok := s.Metadata(h)
	require.True(t, ok)
	assert.Equal(t, int64(len(data)), m.SizeBytes)
	assert.Equal(t, "application/json", m.MimeType)
	assert.Equal(t, "run-1", m.RunID)
	assert.Equal(t, h, m.Handle)
}

func TestStore_DeduplicatesAcrossRuns(t *testing.T) {
	ctx := context.Background()
	s, backend := newTestStore()
	data := []byte("shared artifact content")

	h1, err := s.Store(ctx, data, "text/plain", "r1")
	require.NoError(t, err)
	h2, err := s.Store(ctx, data, "text/plain", "r2")
	require.NoError(t, err)

	assert.Equal(t, h1.String(), h2.String())
	assert.Equal(t, 1, backend.Len())
	assert.Equal(t, 1, s.Count())

	// The later store call owns the metadata entry.
	assert.Empty(t, s.ListByRun("r1"))
	byR2 := s.ListByRun("r2")
	require.Len(t, byR2, 1)
	assert.Equal(t, h1, byR2[0].Handle)
}

func TestStore_ListMetadataOrderedByCreation(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore()

	var handles []Handle
	for _, body := range []string{"c", "a", "b"} {
		h, err := s.Store(ctx, []byte(body), "text/plain", "run")
		require.NoError(t, err)
		handles = append(handles, h)
	}

	list := s.ListMetadata()
	require.Len(t, list, 3)
	for i, m := range list {
		assert.Equal(t, handles[i], m.Handle)
	}
	assert.Equal(t, int64(3), s.TotalBytes())
}

func TestStore_MalformedHandles(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore()

	for _, h := range []Handle{"", "artifact://", "artifact://md5/abc", "file:///tmp/x", "artifact://sha256/XYZ"} {
		data, found, err := s.Retrieve(ctx, h)
		require.NoError(t, err, h)
		assert.False(t, found, h)
		assert.Nil(t, data, h)

		existed, err := s.Delete(ctx, h)
		require.NoError(t, err, h)
		assert.False(t, existed, h)

		_, ok := s.Metadata(h)
		assert.False(t, ok, h)
	}
}

func TestStore_SingleSegmentHandleFallback(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore()
	data := []byte("legacy")

	h, err := s.Store(ctx, data, "text/plain", "run")
	require.NoError(t, err)

	legacy := Handle(HandleScheme + h.Hash())
	got, found, err := s.Retrieve(ctx, legacy)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, data, got)
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore()

	h, err := s.Store(ctx, []byte("gone soon"), "text/plain", "run")
	require.NoError(t, err)

	existed, err := s.Delete(ctx, h)
	require.NoError(t, err)
	assert.True(t, existed)

	_, ok := s.Metadata(h)
	assert.False(t, ok)
	_, found, err := s.Retrieve(ctx, h)
	require.NoError(t, err)
	assert.False(t, found)

	existed, err = s.Delete(ctx, h)
	require.NoError(t, err)
	assert.False(t, existed)
	assert.Zero(t, s.Count())
}

func TestStore_DeleteWithEvictedBlob(t *testing.T) {
	ctx := context.Background()
	s, backend := newTestStore()

	h, err := s.Store(ctx, []byte("evicted"), "text/plain", "run")
	require.NoError(t, err)
	_, err = backend.Delete(ctx, h.Hash())
	require.NoError(t, err)

	existed, err := s.Delete(ctx, h)
	require.NoError(t, err)
	assert.True(t, existed, "metadata alone means the artifact existed")
	_, ok := s.Metadata(h)
	assert.False(t, ok)

	existed, err = s.Delete(ctx, h)
	require.NoError(t, err)
	assert.False(t, existed)
}

type failingBackend struct{ *MemoryBackend }

var errBackendDown = errors.New("backend down")

func (failingBackend) Has(context.Context, string) (bool, error) { return false, errBackendDown }

func TestStore_BackendFailureLeavesNoMetadata(t *testing.T) {
	s := NewStore(failingBackend{MemoryBackend: NewMemoryBackend()})

	_, err := s.Store(context.Background(), []byte("x"), "text/plain", "run")
	require.Error(t, err)
	assert.ErrorIs(t, err, errBackendDown)
	assert.Zero(t, s.Count())
}

func TestStore_ConcurrentIdenticalStores(t *testing.T) {
	ctx := context.Background()
	s, backend := newTestStore()
	data := []byte("contended")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Store(ctx, data, "text/plain", "run")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, backend.Len())
	assert.Equal(t, 1, s.Count())
}
