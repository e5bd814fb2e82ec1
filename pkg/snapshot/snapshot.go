// Package snapshot folds run states, artifact counts and policy outcomes
// into read-only views for persistence, display and audits. The builders
// are pure functions of their inputs.
package snapshot

import (
	"sort"
	"time"

	"github.com/agentos-dev/agentkernel/pkg/contracts"
	"github.com/google/uuid"
)

// ControllerMode tags how the controller drives the agent.
type ControllerMode string

const (
	ModeAutonomous ControllerMode = "autonomous"
	ModeSupervised ControllerMode = "supervised"
	ModeManual     ControllerMode = "manual"
)

// Valid reports whether m is a known controller mode.
func (m ControllerMode) Valid() bool {
	switch m {
	case ModeAutonomous, ModeSupervised, ModeManual:
		return true
	}
	return false
}

// AgentMode is the agent's own operating mode.
type AgentMode string

const (
	AgentIdle      AgentMode = "idle"
	AgentPlanning  AgentMode = "planning"
	AgentExecuting AgentMode = "executing"
	AgentWaiting   AgentMode = "waiting"
	AgentError     AgentMode = "error"
)

// DefaultInterface is the session channel used when none is given.
const DefaultInterface = "cli"

// ControlState summarises the controller's view of all runs.
type ControlState struct {
	ActiveRuns       int            `json:"active_runs"`
	CompletedRuns    int            `json:"completed_runs"`
	ArtifactCount    int            `json:"artifact_count"`
	PolicyViolations int            `json:"policy_violations"`
	Mode             ControllerMode `json:"mode"`
	LastAuditAt      *time.Time     `json:"last_audit_at"`
	NextAuditAt      *time.Time     `json:"next_audit_at"`
}

// ControlInputs are the externally supplied parts of a ControlState.
type ControlInputs struct {
	ArtifactCount    int
	PolicyViolations int
	Mode             ControllerMode
	LastAuditAt      *time.Time
	NextAuditAt      *time.Time
}

// BuildControlState partitions runs into active and finished counts.
func BuildControlState(runs []contracts.RunState, in ControlInputs) ControlState {
	cs := ControlState{
		ArtifactCount:    in.ArtifactCount,
		PolicyViolations: in.PolicyViolations,
		Mode:             in.Mode,
		LastAuditAt:      copyTime(in.LastAuditAt),
		NextAuditAt:      copyTime(in.NextAuditAt),
	}
	if cs.Mode == "" {
		cs.Mode = ModeAutonomous
	}
	for _, r := range runs {
		switch {
		case r.Status.IsActive():
			cs.ActiveRuns++
		case r.Status.IsTerminal():
			cs.CompletedRuns++
		}
	}
	return cs
}

// DecisionRecord is one entry of the agent's recent-decision log.
type DecisionRecord struct {
	At      time.Time `json:"at"`
	RunID   string    `json:"run_id,omitempty"`
	Summary string    `json:"summary"`
}

// AgentState is the agent's self-state.
type AgentState struct {
	Mode            AgentMode             `json:"mode"`
	Objective       *string               `json:"objective"`
	MemoryKeys      []string              `json:"memory_keys"`
	RecentDecisions []DecisionRecord      `json:"recent_decisions"`
	Usage           contracts.BudgetUsage `json:"usage"`
}

// AgentInputs holds optional overrides; zero values take defaults.
type AgentInputs struct {
	Mode            AgentMode
	Objective       *string
	MemoryKeys      []string
	RecentDecisions []DecisionRecord
	Usage           contracts.BudgetUsage
}

// BuildAgentState fills every unset field with its default.
func BuildAgentState(in AgentInputs) AgentState {
	as := AgentState{
		Mode:            in.Mode,
		MemoryKeys:      append([]string{}, in.MemoryKeys...),
		RecentDecisions: append([]DecisionRecord{}, in.RecentDecisions...),
		Usage:           in.Usage,
	}
	if as.Mode == "" {
		as.Mode = AgentIdle
	}
	if in.Objective != nil {
		obj := *in.Objective
		as.Objective = &obj
	}
	return as
}

// SessionState describes one interaction session.
type SessionState struct {
	SessionID      string         `json:"session_id"`
	AgentID        string         `json:"agent_id"`
	Interface      string         `json:"interface"`
	StartedAt      time.Time      `json:"started_at"`
	LastActivityAt time.Time      `json:"last_activity_at"`
	ActiveRunID    *string        `json:"active_run_id"`
	Context        map[string]any `json:"context"`
}

// SessionInputs holds the caller-supplied session fields.
type SessionInputs struct {
	SessionID   string
	AgentID     string
	Interface   string
	ActiveRunID *string
	Context     map[string]any
}

// BuildSessionState stamps start and last activity with now and generates
// a session id when none is given.
func BuildSessionState(in SessionInputs, now time.Time) SessionState {
	ss := SessionState{
		SessionID:      in.SessionID,
		AgentID:        in.AgentID,
		Interface:      in.Interface,
		StartedAt:      now,
		LastActivityAt: now,
		Context:        make(map[string]any, len(in.Context)),
	}
	if ss.SessionID == "" {
		ss.SessionID = uuid.NewString()
	}
	if ss.Interface == "" {
		ss.Interface = DefaultInterface
	}
	if in.ActiveRunID != nil {
		id := *in.ActiveRunID
		ss.ActiveRunID = &id
	}
	for k, v := range in.Context {
		ss.Context[k] = v
	}
	return ss
}

// RunIndexEntry is the compact projection of one run.
type RunIndexEntry struct {
	RunID      string              `json:"run_id"`
	AgentID    string              `json:"agent_id"`
	Objective  string              `json:"objective"`
	Status     contracts.RunStatus `json:"status"`
	StartedAt  *time.Time          `json:"started_at"`
	FinishedAt *time.Time          `json:"finished_at"`
}

// BuildRunIndex projects runs into index entries ordered by start time,
// then run id. Runs that never started sort first.
func BuildRunIndex(runs []contracts.RunState) []RunIndexEntry {
	out := make([]RunIndexEntry, 0, len(runs))
	for _, r := range runs {
		out = append(out, RunIndexEntry{
			RunID:      r.Envelope.RunID,
			AgentID:    r.Envelope.AgentID,
			Objective:  r.Envelope.Objective,
			Status:     r.Status,
			StartedAt:  copyTime(r.StartedAt),
			FinishedAt: copyTime(r.FinishedAt),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].StartedAt, out[j].StartedAt
		switch {
		case a == nil && b != nil:
			return true
		case a != nil && b == nil:
			return false
		case a != nil && b != nil && !a.Equal(*b):
			return a.Before(*b)
		}
		return out[i].RunID < out[j].RunID
	})
	return out
}

// CountPolicyViolations counts policy.decision events that denied.
func CountPolicyViolations(events []contracts.Event) int {
	n := 0
	for _, ev := range events {
		if p, ok := ev.Payload.(contracts.PolicyDecisionRecorded); ok && p.Decision == contracts.DecisionDeny {
			n++
		}
	}
	return n
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
