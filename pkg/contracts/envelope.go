package contracts

import "time"

// RunEnvelope is the immutable descriptor of one agent execution.
// A retry gets a new envelope; an envelope is never mutated after creation.
type RunEnvelope struct {
	RunID         string    `json:"run_id"`
	ParentRunID   string    `json:"parent_run_id,omitempty"`
	AgentID       string    `json:"agent_id"`
	BaseRef       string    `json:"base_ref"`
	Repo          string    `json:"repo"`
	Objective     string    `json:"objective"`
	PolicyProfile string    `json:"policy_profile"`
	Budget        Budget    `json:"budget"`
	CreatedAt     time.Time `json:"created_at"`
}

// Budget holds the resource ceilings of a run. MaxToolCalls and
// MaxArtifactsMB are optional; nil means unconstrained.
type Budget struct {
	MaxTimeMs      int64    `json:"max_time_ms" yaml:"max_time_ms"`
	MaxTokens      int64    `json:"max_tokens" yaml:"max_tokens"`
	MaxToolCalls   *int64   `json:"max_tool_calls,omitempty" yaml:"max_tool_calls,omitempty"`
	MaxArtifactsMB *float64 `json:"max_artifacts_mb,omitempty" yaml:"max_artifacts_mb,omitempty"`
}

// MaxTime returns the time ceiling as a Duration.
func (b Budget) MaxTime() time.Duration {
	return time.Duration(b.MaxTimeMs) * time.Millisecond
}

// Clone returns a copy that shares no pointers with b.
func (b Budget) Clone() Budget {
	out := b
	if b.MaxToolCalls != nil {
		v := *b.MaxToolCalls
		out.MaxToolCalls = &v
	}
	if b.MaxArtifactsMB != nil {
		v := *b.MaxArtifactsMB
		out.MaxArtifactsMB = &v
	}
	return out
}

// Clone returns a deep copy of the envelope.
func (e RunEnvelope) Clone() RunEnvelope {
	out := e
	out.Budget = e.Budget.Clone()
	return out
}

// Int64 returns a pointer to v. Handy for optional budget ceilings.
func Int64(v int64) *int64 { return &v }

// Float64 returns a pointer to v.
func Float64(v float64) *float64 { return &v }
