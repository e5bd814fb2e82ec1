package snapshot

import (
	"context"
	"fmt"
)

// Fixed state keys written by Checkpoint.
const (
	KeyAgentState   = "agent_state"
	KeySessionState = "session_state"
	KeyRunIndex     = "run_index"
	KeyControlState = "control_state"
)

// StateWriter persists JSON-shaped values by key.
type StateWriter interface {
	PutState(ctx context.Context, key string, value any) error
}

// StateReader reads values written by a StateWriter. ok is false when the
// key was never written.
type StateReader interface {
	GetState(ctx context.Context, key string, dst any) (ok bool, err error)
}

// Snapshot bundles the four views persisted together.
type Snapshot struct {
	Agent    AgentState      `json:"agent"`
	Session  SessionState    `json:"session"`
	RunIndex []RunIndexEntry `json:"run_index"`
	Control  ControlState    `json:"control"`
}

// Checkpoint writes every view of snap under its fixed key.
func Checkpoint(ctx context.Context, w StateWriter, snap Snapshot) error {
	index := snap.RunIndex
	if index == nil {
		index = []RunIndexEntry{}
	}
	writes := []struct {
		key   string
		value any
	}{
		{KeyAgentState, snap.Agent},
		{KeySessionState, snap.Session},
		{KeyRunIndex, index},
		{KeyControlState, snap.Control},
	}
	for _, kv := range writes {
		if err := w.PutState(ctx, kv.key, kv.value); err != nil {
			return fmt.Errorf("checkpoint %s: %w", kv.key, err)
		}
	}
	return nil
}

// Load reads back whatever views a previous Checkpoint wrote. Missing keys
// leave the corresponding view zero; found lists the keys that were present.
func Load(ctx context.Context, r StateReader) (snap Snapshot, found []string, err error) {
	reads := []struct {
		key string
		dst any
	}{
		{KeyAgentState, &snap.Agent},
		{KeySessionState, &snap.Session},
		{KeyRunIndex, &snap.RunIndex},
		{KeyControlState, &snap.Control},
	}
	for _, rd := range reads {
		ok, err := r.GetState(ctx, rd.key, rd.dst)
		if err != nil {
			return Snapshot{}, nil, fmt.Errorf("load %s: %w", rd.key, err)
		}
		if ok {
			found = append(found, rd.key)
		}
	}
	return snap, found, nil
}
