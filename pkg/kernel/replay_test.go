package kernel

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/agentos-dev/agentkernel/pkg/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordedRun(t *testing.T) (contracts.RunState, []contracts.Event) {
	t.Helper()
	m := NewManager(WithClock(newTestClock(time.Second).Now))
	newRunningRun(t, m, "run")
	for _, p := range []contracts.Payload{
		contracts.ToolCalled{ToolName: "read", Arguments: json.RawMessage(`{"path":"a.go"}`)},
		contracts.ToolResult{ToolName: "read", Result: json.RawMessage(`"ok"`)},
		contracts.ArtifactCreated{URI: "artifact://sha256/ab", SizeBytes: 3, MimeType: "text/plain"},
	} {
		_, err := m.Append("run", p)
		require.NoError(t, err)
	}
	_, err := m.Fail("run", contracts.RunError{Code: "E", Message: "boom", Retryable: true})
	require.NoError(t, err)

	st, err := m.Get("run")
	require.NoError(t, err)
	events, err := m.Events("run")
	require.NoError(t, err)
	return st, events
}

func TestReplay_RebuildsState(t *testing.T) {
	want, events := recordedRun(t)

	got, err := Replay(events)
	require.NoError(t, err)

	assert.Equal(t, want.Status, got.Status)
	assert.Equal(t, want.Step, got.Step)
	assert.Equal(t, want.ToolCalls, got.ToolCalls)
	assert.Equal(t, want.ArtifactsCreated, got.ArtifactsCreated)
	assert.Equal(t, want.Errors, got.Errors)
	assert.Equal(t, want.Error, got.Error)
	assert.Equal(t, want.StartedAt, got.StartedAt)
	assert.Equal(t, want.FinishedAt, got.FinishedAt)
	assert.Equal(t, want.Envelope, got.Envelope)
	assert.Len(t, got.Events, len(events))
}

func TestReplay_ThroughJSON(t *testing.T) {
	want, events := recordedRun(t)

	decoded := make([]contracts.Event, len(events))
	for i, ev := range events {
		raw, err := json.Marshal(ev)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &decoded[i]))
	}

	got, err := Replay(decoded)
	require.NoError(t, err)
	assert.Equal(t, want.Status, got.Status)
	assert.Equal(t, want.ToolCalls, got.ToolCalls)
	assert.True(t, want.FinishedAt.Equal(*got.FinishedAt))
}

func TestReplay_RejectsMalformedLogs(t *testing.T) {
	_, events := recordedRun(t)

	tests := []struct {
		name   string
		mutate func([]contracts.Event) []contracts.Event
	}{
		{"empty", func([]contracts.Event) []contracts.Event { return nil }},
		{"missing start", func(evs []contracts.Event) []contracts.Event { return evs[1:] }},
		{"gap in steps", func(evs []contracts.Event) []contracts.Event {
			return append(append([]contracts.Event{}, evs[:2]...), evs[3:]...)
		}},
		{"foreign run", func(evs []contracts.Event) []contracts.Event {
			evs[2].RunID = "other"
			return evs
		}},
		{"failed through run.completed", func(evs []contracts.Event) []contracts.Event {
			last := len(evs) - 1
			evs[last].Type = contracts.EventRunCompleted
			evs[last].Payload = contracts.RunCompleted{FinalStatus: contracts.RunStatusFailed}
			return evs
		}},
		{"type mismatch", func(evs []contracts.Event) []contracts.Event {
			evs[1].Type = contracts.EventMetricRecorded
			return evs
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cp := make([]contracts.Event, len(events))
			for i := range events {
				cp[i] = events[i].Clone()
			}
			_, err := Replay(tt.mutate(cp))
			assert.ErrorIs(t, err, ErrInvalidEventLog)
		})
	}
}

func TestReplay_RunningRun(t *testing.T) {
	m := NewManager()
	newRunningRun(t, m, "run")
	_, err := m.Append("run", contracts.ToolCalled{ToolName: "ls"})
	require.NoError(t, err)
	events, _ := m.Events("run")

	st, err := Replay(events)
	require.NoError(t, err)
	assert.Equal(t, contracts.RunStatusRunning, st.Status)
	assert.Nil(t, st.FinishedAt)

	restored := NewManager()
	require.NoError(t, restored.Restore(st))
	ev, err := restored.Append("run", contracts.ToolCalled{ToolName: "ls"})
	require.NoError(t, err)
	assert.Equal(t, 2, ev.StepID)
}

func TestReplay_LifecycleEventsBeforeTheEndAreNotTerminal(t *testing.T) {
	m := NewManager(WithClock(newTestClock(time.Second).Now))
	newRunningRun(t, m, "run")
	for _, p := range []contracts.Payload{
		contracts.RunFailed{Error: contracts.RunError{Code: "TOOL_ERROR"}},
		contracts.ToolCalled{ToolName: "read"},
		contracts.RunCompleted{FinalStatus: contracts.RunStatusCompleted, Output: "partial"},
	} {
		_, err := m.Append("run", p)
		require.NoError(t, err)
	}
	_, err := m.Complete("run", "done")
	require.NoError(t, err)

	want, _ := m.Get("run")
	events, _ := m.Events("run")
	got, err := Replay(events)
	require.NoError(t, err)

	assert.Equal(t, contracts.RunStatusCompleted, got.Status)
	assert.Equal(t, want.Errors, got.Errors)
	assert.Equal(t, 1, got.Errors)
	assert.Nil(t, got.Error)
	assert.Equal(t, want.FinishedAt, got.FinishedAt)
	assert.Equal(t, want.Step, got.Step)

	running, err := Replay(events[:3])
	require.NoError(t, err)
	assert.Equal(t, contracts.RunStatusRunning, running.Status)
	assert.Equal(t, 1, running.Errors)
}
