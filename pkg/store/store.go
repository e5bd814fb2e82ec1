// Package store persists kernel state outside the process: JSON snapshot
// documents by key and one append-only event log per run.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agentos-dev/agentkernel/pkg/contracts"
	"github.com/gowebpki/jcs"
)

// ErrInvalidKey is returned for state keys and run ids that cannot be used
// as storage names.
var ErrInvalidKey = errors.New("invalid key")

// StateStore is the persistence surface the kernel's collaborators write
// snapshots and event logs through.
type StateStore interface {
	// PutState stores value as JSON under key, replacing any previous value.
	PutState(ctx context.Context, key string, value any) error
	// GetState decodes the value under key into dst. ok is false when the
	// key does not exist.
	GetState(ctx context.Context, key string, dst any) (ok bool, err error)
	// AppendEvent appends ev to the log of runID.
	AppendEvent(ctx context.Context, runID string, ev contracts.Event) error
	// Events returns the log of runID in append order. An unknown run has
	// an empty log.
	Events(ctx context.Context, runID string) ([]contracts.Event, error)
	// Keys lists the stored state keys in lexical order.
	Keys(ctx context.Context) ([]string, error)
	Close() error
}

var keyPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]*$`)

// MaxRunIDLen bounds run ids so that their encoded file names stay within
// common file system limits.
const MaxRunIDLen = 120

func checkKey(kind, key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("%w: %s %q", ErrInvalidKey, kind, key)
	}
	return nil
}

// CheckRunID reports whether runID can key an event log in every store.
// Any printable UTF-8 id up to MaxRunIDLen bytes is accepted.
func CheckRunID(runID string) error {
	switch {
	case runID == "":
		return fmt.Errorf("%w: run id is empty", ErrInvalidKey)
	case len(runID) > MaxRunIDLen:
		return fmt.Errorf("%w: run id %q is longer than %d bytes", ErrInvalidKey, runID, MaxRunIDLen)
	case !utf8.ValidString(runID):
		return fmt.Errorf("%w: run id %q is not valid UTF-8", ErrInvalidKey, runID)
	case strings.IndexFunc(runID, unicode.IsControl) >= 0:
		return fmt.Errorf("%w: run id %q contains control characters", ErrInvalidKey, runID)
	}
	return nil
}

// encodeEvent renders ev as RFC 8785 canonical JSON, so a persisted log is
// byte-stable across writers.
func encodeEvent(ev contracts.Event) ([]byte, error) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize event: %w", err)
	}
	return canonical, nil
}

func decodeEvent(line []byte) (contracts.Event, error) {
	var ev contracts.Event
	if err := json.Unmarshal(line, &ev); err != nil {
		return contracts.Event{}, fmt.Errorf("decode event: %w", err)
	}
	return ev, nil
}
