package store

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/agentos-dev/agentkernel/pkg/contracts"
)

// FileStateStore keeps one JSON document per key under <dir>/state and one
// newline-delimited event log per run under <dir>/events.
type FileStateStore struct {
	dir string
	mu  sync.Mutex
}

var _ StateStore = (*FileStateStore)(nil)

// NewFileStateStore creates the directory layout under dir.
func NewFileStateStore(dir string) (*FileStateStore, error) {
	for _, sub := range []string{"state", "events"} {
		//nolint:gosec // G301: state directory is shared with operators
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return nil, fmt.Errorf("failed to create state dir: %w", err)
		}
	}
	return &FileStateStore{dir: dir}, nil
}

// Dir returns the root directory.
func (s *FileStateStore) Dir() string { return s.dir }

func (s *FileStateStore) statePath(key string) string {
	return filepath.Join(s.dir, "state", key+".json")
}

func (s *FileStateStore) eventsPath(runID string) string {
	return filepath.Join(s.dir, "events", runFileName(runID)+".ndjson")
}

// encodedPrefix marks hex-encoded run file names. It is outside the key
// alphabet, so encoded names never collide with plain ones.
const encodedPrefix = "~"

// runFileName keeps ids that are already safe file names and hex-encodes
// the rest, which also keeps case-insensitive file systems collision free.
func runFileName(runID string) string {
	if keyPattern.MatchString(runID) {
		return runID
	}
	return encodedPrefix + hex.EncodeToString([]byte(runID))
}

func runIDFromFileName(name string) (string, bool) {
	encoded, ok := strings.CutPrefix(name, encodedPrefix)
	if !ok {
		return name, keyPattern.MatchString(name)
	}
	raw, err := hex.DecodeString(encoded)
	if err != nil || CheckRunID(string(raw)) != nil {
		return "", false
	}
	return string(raw), true
}

// PutState implements StateStore. The document is written to a temp file
// and renamed into place.
func (s *FileStateStore) PutState(ctx context.Context, key string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkKey("state key", key); err != nil {
		return err
	}
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state %s: %w", key, err)
	}

	path := s.statePath(key)
	tmp, err := os.CreateTemp(filepath.Dir(path), key+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp state: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close state: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to commit state: %w", err)
	}
	return nil
}

// GetState implements StateStore.
func (s *FileStateStore) GetState(ctx context.Context, key string, dst any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := checkKey("state key", key); err != nil {
		return false, err
	}
	data, err := os.ReadFile(s.statePath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read state: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode state %s: %w", key, err)
	}
	return true, nil
}

// AppendEvent implements StateStore.
func (s *FileStateStore) AppendEvent(ctx context.Context, runID string, ev contracts.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := CheckRunID(runID); err != nil {
		return err
	}
	line, err := encodeEvent(ev)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	//nolint:gosec // G302: event logs are readable by operators
	f, err := os.OpenFile(s.eventsPath(runID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open event log: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to append event: %w", err)
	}
	return f.Close()
}

// Events implements StateStore.
func (s *FileStateStore) Events(ctx context.Context, runID string) ([]contracts.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := CheckRunID(runID); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.eventsPath(runID))
	if errors.Is(err, fs.ErrNotExist) {
		return []contracts.Event{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read event log: %w", err)
	}

	events := []contracts.Event{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for n := 1; scanner.Scan(); n++ {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		ev, err := decodeEvent(line)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", runID, n, err)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan event log: %w", err)
	}
	return events, nil
}

// Runs lists the run ids that have an event log.
func (s *FileStateStore) Runs(ctx context.Context) ([]string, error) {
	return s.list(ctx, "events", ".ndjson", runIDFromFileName)
}

// Keys implements StateStore.
func (s *FileStateStore) Keys(ctx context.Context) ([]string, error) {
	return s.list(ctx, "state", ".json", func(name string) (string, bool) {
		return name, keyPattern.MatchString(name)
	})
}

func (s *FileStateStore) list(ctx context.Context, sub, ext string, decode func(string) (string, bool)) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(s.dir, sub))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", sub, err)
	}
	names := []string{}
	for _, e := range entries {
		base, ok := strings.CutSuffix(e.Name(), ext)
		if e.IsDir() || !ok {
			continue
		}
		name, ok := decode(base)
		if !ok {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Close implements StateStore.
func (s *FileStateStore) Close() error { return nil }
