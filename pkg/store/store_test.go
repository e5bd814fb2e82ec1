package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/agentos-dev/agentkernel/pkg/config"
	"github.com/agentos-dev/agentkernel/pkg/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

type doc struct {
	Name  string   `json:"name"`
	Count int      `json:"count"`
	Tags  []string `json:"tags"`
}

func sampleEvents(runID string) []contracts.Event {
	env := contracts.RunEnvelope{RunID: runID, AgentID: "agent", Objective: "obj", PolicyProfile: "default",
		Budget: contracts.Budget{MaxTimeMs: 1000, MaxTokens: 10}, CreatedAt: t0}
	return []contracts.Event{
		{RunID: runID, StepID: 0, Type: contracts.EventRunStarted, Timestamp: t0, AgentID: "agent",
			Payload: contracts.RunStarted{Envelope: env}},
		{RunID: runID, StepID: 1, Type: contracts.EventToolCalled, Timestamp: t0.Add(time.Second), AgentID: "agent",
			Payload: contracts.ToolCalled{ToolName: "grep", Arguments: json.RawMessage(`{"pattern":"<b>"}`)}},
		{RunID: runID, StepID: 2, Type: contracts.EventRunCompleted, Timestamp: t0.Add(2 * time.Second), AgentID: "agent",
			Payload: contracts.RunCompleted{FinalStatus: contracts.RunStatusCompleted, Output: "done"}},
	}
}

func newSQLiteStore(t *testing.T) *SQLStateStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	s := NewSQLStateStore(db, SQLite)
	require.NoError(t, s.Init(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func stores(t *testing.T) map[string]StateStore {
	t.Helper()
	fs, err := NewFileStateStore(t.TempDir())
	require.NoError(t, err)
	return map[string]StateStore{
		"file":   fs,
		"sqlite": newSQLiteStore(t),
	}
}

func TestStateStores_StateRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			var got doc
			ok, err := s.GetState(ctx, "agent_state", &got)
			require.NoError(t, err)
			assert.False(t, ok)

			want := doc{Name: "a", Count: 1, Tags: []string{"x"}}
			require.NoError(t, s.PutState(ctx, "agent_state", want))
			ok, err = s.GetState(ctx, "agent_state", &got)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, want, got)

			want.Count = 2
			require.NoError(t, s.PutState(ctx, "agent_state", want))
			require.NoError(t, s.PutState(ctx, "run_index", []string{}))
			ok, err = s.GetState(ctx, "agent_state", &got)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, 2, got.Count)

			keys, err := s.Keys(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"agent_state", "run_index"}, keys)
		})
	}
}

func TestStateStores_EventLogRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			empty, err := s.Events(ctx, "unknown-run")
			require.NoError(t, err)
			assert.Empty(t, empty)

			runID := "3f2c8a4e-1b7d-4c55-9a0e-6d1f2b3c4d5e"
			for _, ev := range sampleEvents(runID) {
				require.NoError(t, s.AppendEvent(ctx, runID, ev))
			}

			got, err := s.Events(ctx, runID)
			require.NoError(t, err)
			require.Len(t, got, 3)
			for i, ev := range got {
				assert.Equal(t, i, ev.StepID)
				assert.Equal(t, runID, ev.RunID)
			}
			started, ok := got[0].Payload.(contracts.RunStarted)
			require.True(t, ok)
			assert.Equal(t, "obj", started.Envelope.Objective)
			called := got[1].Payload.(contracts.ToolCalled)
			assert.JSONEq(t, `{"pattern":"<b>"}`, string(called.Arguments))
			assert.True(t, got[2].Timestamp.Equal(t0.Add(2*time.Second)))
		})
	}
}

func TestStateStores_RejectInvalidKeys(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for _, bad := range []string{"", "../escape", "Upper", "a/b", ".hidden"} {
				assert.ErrorIs(t, s.PutState(ctx, bad, 1), ErrInvalidKey, bad)
				_, err := s.GetState(ctx, bad, new(int))
				assert.ErrorIs(t, err, ErrInvalidKey, bad)
			}
			for _, bad := range []string{"", "run\n1", "run\x00", strings.Repeat("r", MaxRunIDLen+1)} {
				assert.ErrorIs(t, s.AppendEvent(ctx, bad, contracts.Event{}), ErrInvalidKey, bad)
				_, err := s.Events(ctx, bad)
				assert.ErrorIs(t, err, ErrInvalidKey, bad)
			}
		})
	}
}

func TestStateStores_AcceptAnyPrintableRunID(t *testing.T) {
	ctx := context.Background()
	ids := []string{"Run-A1", "run-a1", "../escape", "a/b", "run-1"}
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for _, id := range ids {
				for _, ev := range sampleEvents(id) {
					require.NoError(t, s.AppendEvent(ctx, id, ev), id)
				}
			}
			for _, id := range ids {
				got, err := s.Events(ctx, id)
				require.NoError(t, err, id)
				require.Len(t, got, 3, id)
				assert.Equal(t, id, got[0].RunID)
			}
		})
	}
}

func TestFileStateStore_EncodesUnsafeRunIDs(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStateStore(t.TempDir())
	require.NoError(t, err)

	for _, id := range []string{"Run-A1", "../escape", "run-1"} {
		require.NoError(t, s.AppendEvent(ctx, id, sampleEvents(id)[0]))
	}

	entries, err := os.ReadDir(filepath.Join(s.Dir(), "events"))
	require.NoError(t, err)
	var files []string
	for _, e := range entries {
		files = append(files, e.Name())
	}
	assert.ElementsMatch(t, []string{"~52756e2d4131.ndjson", "~2e2e2f657363617065.ndjson", "run-1.ndjson"}, files)

	top, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	assert.Len(t, top, 2, "nothing is written outside state/ and events/")

	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"../escape", "Run-A1", "run-1"}, runs)
}

func TestFileStateStore_CanonicalLines(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStateStore(t.TempDir())
	require.NoError(t, err)

	for _, ev := range sampleEvents("run-1") {
		require.NoError(t, s.AppendEvent(ctx, "run-1", ev))
	}

	data, err := os.ReadFile(filepath.Join(s.Dir(), "events", "run-1.ndjson"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)

	// Keys are sorted and HTML is not escaped.
	assert.True(t, strings.HasPrefix(lines[1], `{"agent_id":"agent","arguments":{"pattern":"<b>"}`), lines[1])

	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"run-1"}, runs)
}

func TestFileStateStore_CorruptLine(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStateStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "events", "bad.ndjson"), []byte("{not json}\n"), 0600))

	_, err = s.Events(ctx, "bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}

func TestSQLStateStore_DuplicateStepRejected(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	ev := sampleEvents("run")[0]

	require.NoError(t, s.AppendEvent(ctx, "run", ev))
	assert.Error(t, s.AppendEvent(ctx, "run", ev))
}

func TestNewFromConfig(t *testing.T) {
	ctx := context.Background()

	fs, err := NewFromConfig(ctx, config.StateConfig{Backend: config.StateBackendFile, Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileStateStore{}, fs)

	lite, err := NewFromConfig(ctx, config.StateConfig{Backend: config.StateBackendSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	assert.IsType(t, &SQLStateStore{}, lite)
	require.NoError(t, lite.PutState(ctx, "control_state", map[string]int{"active_runs": 1}))
	require.NoError(t, lite.Close())

	_, err = NewFromConfig(ctx, config.StateConfig{Backend: config.StateBackendPostgres})
	assert.ErrorContains(t, err, "KERNEL_STATE_DSN is required")

	_, err = NewFromConfig(ctx, config.StateConfig{Backend: "etcd"})
	assert.ErrorContains(t, err, "unsupported state backend")
}
