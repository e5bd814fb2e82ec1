package contracts

import (
	"encoding/json"
	"time"
)

// EventType tags the kind of an agent event.
type EventType string

const (
	EventRunStarted       EventType = "run.started"
	EventRunCompleted     EventType = "run.completed"
	EventRunFailed        EventType = "run.failed"
	EventToolCalled       EventType = "tool.called"
	EventToolResult       EventType = "tool.result"
	EventArtifactCreated  EventType = "artifact.created"
	EventPolicyDecision   EventType = "policy.decision"
	EventPolicyApproval   EventType = "policy.approval"
	EventMetricRecorded   EventType = "metric.recorded"
	EventLLMStepCompleted EventType = "llm.step_completed"
	EventLLMUsage         EventType = "llm.usage"
)

// EventTypes lists every event kind in a stable order.
var EventTypes = []EventType{
	EventRunStarted,
	EventRunCompleted,
	EventRunFailed,
	EventToolCalled,
	EventToolResult,
	EventArtifactCreated,
	EventPolicyDecision,
	EventPolicyApproval,
	EventMetricRecorded,
	EventLLMStepCompleted,
	EventLLMUsage,
}

// Event is one immutable entry of a run's event log. The header fields are
// stamped by the run manager; Payload carries the kind-specific data.
type Event struct {
	RunID     string    `json:"run_id"`
	StepID    int       `json:"step_id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	AgentID   string    `json:"agent_id"`
	Payload   Payload   `json:"-"`
}

// Payload is the closed set of event bodies. The unexported method keeps
// the set sealed to this package.
type Payload interface {
	EventType() EventType
	isPayload()
}

// RunStarted records the start of a run with a copy of its envelope.
type RunStarted struct {
	Envelope RunEnvelope `json:"envelope"`
}

// RunCompleted is recorded for both completion and cancellation;
// FinalStatus tells them apart.
type RunCompleted struct {
	FinalStatus RunStatus `json:"final_status"`
	Output      string    `json:"output,omitempty"`
	Reason      string    `json:"reason,omitempty"`
}

// RunFailed records the structured error of a failed run.
type RunFailed struct {
	Error RunError `json:"error"`
}

// ToolCalled records a tool invocation requested by the agent.
type ToolCalled struct {
	ToolName  string          `json:"tool_name"`
	CallID    string          `json:"call_id,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ToolResult records the outcome of a tool invocation.
type ToolResult struct {
	ToolName   string          `json:"tool_name"`
	CallID     string          `json:"call_id,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	IsError    bool            `json:"is_error"`
	DurationMs int64           `json:"duration_ms"`
}

// ArtifactCreated records an artifact persisted by the run.
type ArtifactCreated struct {
	URI       string `json:"uri"`
	SizeBytes int64  `json:"size_bytes"`
	MimeType  string `json:"mime_type"`
}

// PolicyDecisionRecorded records a policy evaluation outcome.
type PolicyDecisionRecorded struct {
	Action   string         `json:"action"`
	Scope    string         `json:"scope"`
	Decision PolicyDecision `json:"decision"`
	Reason   string         `json:"reason"`
}

// PolicyApproval records the resolution of a REQUIRE_APPROVAL decision.
type PolicyApproval struct {
	Action   string `json:"action"`
	Scope    string `json:"scope"`
	Approved bool   `json:"approved"`
	Approver string `json:"approver,omitempty"`
	Comment  string `json:"comment,omitempty"`
}

// MetricRecorded records an arbitrary numeric observation.
type MetricRecorded struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
}

// LLMStepCompleted records one step of the orchestration loop.
type LLMStepCompleted struct {
	StepNumber    int    `json:"step_number"`
	FinishReason  string `json:"finish_reason"`
	ToolCallCount int    `json:"tool_call_count"`
}

// LLMUsage carries a token usage snapshot reported by the orchestration loop.
type LLMUsage struct {
	Model string     `json:"model,omitempty"`
	Usage TokenUsage `json:"usage"`
}

// TokenUsage counts tokens for one model interaction.
type TokenUsage struct {
	InputTokens       int64 `json:"input_tokens"`
	OutputTokens      int64 `json:"output_tokens"`
	ReasoningTokens   int64 `json:"reasoning_tokens,omitempty"`
	CachedInputTokens int64 `json:"cached_input_tokens,omitempty"`
}

// Total is input plus output plus reasoning tokens. Cached input tokens are
// already part of InputTokens.
func (u TokenUsage) Total() int64 {
	return u.InputTokens + u.OutputTokens + u.ReasoningTokens
}

// Add returns the field-wise sum of u and o.
func (u TokenUsage) Add(o TokenUsage) TokenUsage {
	return TokenUsage{
		InputTokens:       u.InputTokens + o.InputTokens,
		OutputTokens:      u.OutputTokens + o.OutputTokens,
		ReasoningTokens:   u.ReasoningTokens + o.ReasoningTokens,
		CachedInputTokens: u.CachedInputTokens + o.CachedInputTokens,
	}
}

func (RunStarted) EventType() EventType             { return EventRunStarted }
func (RunCompleted) EventType() EventType           { return EventRunCompleted }
func (RunFailed) EventType() EventType              { return EventRunFailed }
func (ToolCalled) EventType() EventType             { return EventToolCalled }
func (ToolResult) EventType() EventType             { return EventToolResult }
func (ArtifactCreated) EventType() EventType        { return EventArtifactCreated }
func (PolicyDecisionRecorded) EventType() EventType { return EventPolicyDecision }
func (PolicyApproval) EventType() EventType         { return EventPolicyApproval }
func (MetricRecorded) EventType() EventType         { return EventMetricRecorded }
func (LLMStepCompleted) EventType() EventType       { return EventLLMStepCompleted }
func (LLMUsage) EventType() EventType               { return EventLLMUsage }

func (RunStarted) isPayload()             {}
func (RunCompleted) isPayload()           {}
func (RunFailed) isPayload()              {}
func (ToolCalled) isPayload()             {}
func (ToolResult) isPayload()             {}
func (ArtifactCreated) isPayload()        {}
func (PolicyDecisionRecorded) isPayload() {}
func (PolicyApproval) isPayload()         {}
func (MetricRecorded) isPayload()         {}
func (LLMStepCompleted) isPayload()       {}
func (LLMUsage) isPayload()               {}

// Clone returns a deep copy of the event.
func (e Event) Clone() Event {
	out := e
	out.Payload = clonePayload(e.Payload)
	return out
}

func clonePayload(p Payload) Payload {
	switch v := p.(type) {
	case RunStarted:
		v.Envelope = v.Envelope.Clone()
		return v
	case RunFailed:
		v.Error = v.Error.Clone()
		return v
	case ToolCalled:
		v.Arguments = cloneRaw(v.Arguments)
		return v
	case ToolResult:
		v.Result = cloneRaw(v.Result)
		return v
	default:
		// Remaining payloads hold only value fields.
		return p
	}
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}
