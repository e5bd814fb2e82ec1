package artifacts

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HandleScheme prefixes every artifact handle.
const HandleScheme = "artifact://"

const algoSegment = "sha256"

// Handle is the content-derived identifier of an artifact:
// artifact://sha256/<64 lowercase hex chars>.
type Handle string

func (h Handle) String() string { return string(h) }

// Hash returns the hash component, or "" when h is malformed.
func (h Handle) Hash() string {
	hash, _ := ParseHandle(string(h))
	return hash
}

// HashBytes returns the lowercase hex SHA-256 digest of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HandleFor builds the canonical handle for a hash.
func HandleFor(hash string) Handle {
	return Handle(HandleScheme + algoSegment + "/" + hash)
}

// ParseHandle extracts the hash from a handle. It accepts the canonical
// artifact://sha256/<hex> form and the older single-segment
// artifact://<hex> form. Anything else reports ok=false.
func ParseHandle(handle string) (hash string, ok bool) {
	rest, found := strings.CutPrefix(handle, HandleScheme)
	if !found || rest == "" {
		return "", false
	}
	if algo, h, two := strings.Cut(rest, "/"); two {
		if algo != algoSegment || !validHash(h) {
			return "", false
		}
		return h, true
	}
	if !validHash(rest) {
		return "", false
	}
	return rest, true
}

// validHash accepts 64 lowercase hex characters. Backends use the hash as
// a file or object name, so nothing else may pass.
func validHash(h string) bool {
	if len(h) != sha256.Size*2 {
		return false
	}
	for i := 0; i < len(h); i++ {
		c := h[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
