package contracts

import "time"

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are possible.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	}
	return false
}

// IsActive reports whether the run is pending or running.
func (s RunStatus) IsActive() bool {
	return s == RunStatusPending || s == RunStatusRunning
}

// Valid reports whether s is one of the known statuses.
func (s RunStatus) Valid() bool {
	return s.IsActive() || s.IsTerminal()
}

// RunError is the structured error recorded when a run fails.
type RunError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Clone returns a copy of the error with its own details map.
func (e RunError) Clone() RunError {
	out := e
	if e.Details != nil {
		out.Details = make(map[string]any, len(e.Details))
		for k, v := range e.Details {
			out.Details[k] = v
		}
	}
	return out
}

// RunState is the mutable record of a run, owned by the run manager.
type RunState struct {
	Envelope         RunEnvelope `json:"envelope"`
	Status           RunStatus   `json:"status"`
	Step             int         `json:"step"`
	Events           []Event     `json:"events"`
	StartedAt        *time.Time  `json:"started_at"`
	FinishedAt       *time.Time  `json:"finished_at"`
	Error            *RunError   `json:"error"`
	ToolCalls        int         `json:"tool_calls"`
	ArtifactsCreated int         `json:"artifacts_created"`
	Errors           int         `json:"errors"`
}

// RunID is shorthand for s.Envelope.RunID.
func (s RunState) RunID() string { return s.Envelope.RunID }

// Clone returns a deep copy of the state.
func (s RunState) Clone() RunState {
	out := s
	out.Envelope = s.Envelope.Clone()
	out.Events = make([]Event, len(s.Events))
	for i := range s.Events {
		out.Events[i] = s.Events[i].Clone()
	}
	if s.StartedAt != nil {
		t := *s.StartedAt
		out.StartedAt = &t
	}
	if s.FinishedAt != nil {
		t := *s.FinishedAt
		out.FinishedAt = &t
	}
	if s.Error != nil {
		e := s.Error.Clone()
		out.Error = &e
	}
	return out
}

// RunSummary is the terminal projection of a run, computed once at the
// terminal transition.
type RunSummary struct {
	RunID            string    `json:"run_id"`
	Status           RunStatus `json:"status"`
	DurationMs       int64     `json:"duration_ms"`
	ToolCalls        int       `json:"tool_calls"`
	ArtifactsCreated int       `json:"artifacts_created"`
	Errors           int       `json:"errors"`
}
