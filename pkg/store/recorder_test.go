package store

import (
	"context"
	"errors"
	"testing"

	"github.com/agentos-dev/agentkernel/pkg/contracts"
	"github.com/agentos-dev/agentkernel/pkg/kernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_PersistsManagerEvents(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileStateStore(t.TempDir())
	require.NoError(t, err)

	rec := NewRecorder(fs)
	m := kernel.NewManager()
	m.On(rec.Record)

	env := sampleEvents("run-1")[0].Payload.(contracts.RunStarted).Envelope
	_, err = m.Create(env)
	require.NoError(t, err)
	_, err = m.Start("run-1")
	require.NoError(t, err)
	_, err = m.Append("run-1", contracts.ToolCalled{ToolName: "ls"})
	require.NoError(t, err)
	_, err = m.Complete("run-1", "ok")
	require.NoError(t, err)

	assert.Equal(t, int64(3), rec.Recorded())
	assert.Zero(t, rec.Failures())

	persisted, err := fs.Events(ctx, "run-1")
	require.NoError(t, err)
	replayed, err := kernel.Replay(persisted)
	require.NoError(t, err)

	live, err := m.Get("run-1")
	require.NoError(t, err)
	assert.Equal(t, live.Status, replayed.Status)
	assert.Equal(t, live.ToolCalls, replayed.ToolCalls)
	assert.Equal(t, live.Step, replayed.Step)
}

type brokenStore struct{ StateStore }

func (brokenStore) AppendEvent(context.Context, string, contracts.Event) error {
	return errors.New("disk full")
}

func TestRecorder_FailuresDoNotReachKernel(t *testing.T) {
	rec := NewRecorder(brokenStore{})
	m := kernel.NewManager()
	m.On(rec.Record)

	env := sampleEvents("run-2")[0].Payload.(contracts.RunStarted).Envelope
	_, err := m.Create(env)
	require.NoError(t, err)
	_, err = m.Start("run-2")
	require.NoError(t, err)

	assert.Equal(t, int64(1), rec.Failures())
	assert.Zero(t, rec.Recorded())
}
