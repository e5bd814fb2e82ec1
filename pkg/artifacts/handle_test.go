package artifacts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashBytes_KnownVector(t *testing.T) {
	// sha256("abc")
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", HashBytes([]byte("abc")))
}

func TestParseHandle(t *testing.T) {
	hash := HashBytes([]byte("abc"))

	tests := []struct {
		name   string
		handle string
		want   string
		ok     bool
	}{
		{"canonical", "artifact://sha256/" + hash, hash, true},
		{"single segment", "artifact://" + hash, hash, true},
		{"empty", "", "", false},
		{"scheme only", "artifact://", "", false},
		{"wrong scheme", "blob://sha256/" + hash, "", false},
		{"wrong algorithm", "artifact://md5/" + hash, "", false},
		{"uppercase hex", "artifact://sha256/" + strings.ToUpper(hash), "", false},
		{"short hash", "artifact://sha256/abc", "", false},
		{"extra segment", "artifact://sha256/" + hash + "/x", "", false},
		{"single segment garbage", "artifact://not-a-hash", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseHandle(tt.handle)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHandle_Hash(t *testing.T) {
	hash := HashBytes([]byte("x"))
	assert.Equal(t, hash, HandleFor(hash).Hash())
	assert.Empty(t, Handle("garbage").Hash())
}
