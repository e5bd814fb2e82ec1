package artifacts

import (
	"context"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Blob frame tags. The first byte of every blob a CompressedBackend writes
// says how the rest is encoded.
const (
	frameRaw  byte = 0
	frameZstd byte = 2
)

// zstd.Encoder and zstd.Decoder are safe for concurrent use when driven
// through EncodeAll/DecodeAll.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("artifacts: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("artifacts: zstd decoder initialization failed: " + err.Error())
	}
}

// CompressedBackend compresses blobs at rest in an inner backend. Hashes are
// always computed by the caller over the uncompressed content, so handles
// do not change when compression is switched on. Content that does not
// shrink is stored raw.
type CompressedBackend struct {
	inner Backend
}

var _ Backend = (*CompressedBackend)(nil)

// NewCompressedBackend wraps inner.
func NewCompressedBackend(inner Backend) *CompressedBackend {
	return &CompressedBackend{inner: inner}
}

// Put implements Backend.
func (b *CompressedBackend) Put(ctx context.Context, hash string, data []byte) error {
	return b.inner.Put(ctx, hash, encodeFrame(data))
}

// Get implements Backend.
func (b *CompressedBackend) Get(ctx context.Context, hash string) ([]byte, bool, error) {
	framed, ok, err := b.inner.Get(ctx, hash)
	if err != nil || !ok {
		return nil, ok, err
	}
	data, err := decodeFrame(framed)
	if err != nil {
		return nil, false, fmt.Errorf("blob %s: %w", hash, err)
	}
	return data, true, nil
}

// Has implements Backend.
func (b *CompressedBackend) Has(ctx context.Context, hash string) (bool, error) {
	return b.inner.Has(ctx, hash)
}

// Delete implements Backend.
func (b *CompressedBackend) Delete(ctx context.Context, hash string) (bool, error) {
	return b.inner.Delete(ctx, hash)
}

func encodeFrame(data []byte) []byte {
	compressed := zstdEncoder.EncodeAll(data, make([]byte, 1, len(data)/2+1))
	if len(compressed)-1 < len(data) {
		compressed[0] = frameZstd
		return compressed
	}
	out := make([]byte, 0, len(data)+1)
	out = append(out, frameRaw)
	return append(out, data...)
}

func decodeFrame(framed []byte) ([]byte, error) {
	if len(framed) == 0 {
		return nil, fmt.Errorf("empty blob frame")
	}
	switch framed[0] {
	case frameRaw:
		return append([]byte(nil), framed[1:]...), nil
	case frameZstd:
		data, err := zstdDecoder.DecodeAll(framed[1:], nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decompression: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unknown blob frame tag %d", framed[0])
	}
}
