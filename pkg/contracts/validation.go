package contracts

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalid is wrapped by ValidationResult.Err.
var ErrInvalid = errors.New("contracts: validation failed")

// FieldError names one violated field.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (f FieldError) String() string {
	return fmt.Sprintf("field=%s reason=%s", f.Field, f.Reason)
}

// ValidationResult lists every violated field, not only the first.
type ValidationResult struct {
	Errors []FieldError `json:"errors,omitempty"`
}

// Valid reports whether no field was violated.
func (r ValidationResult) Valid() bool { return len(r.Errors) == 0 }

// Err returns nil for a valid result, otherwise an error wrapping
// ErrInvalid that names every violated field.
func (r ValidationResult) Err() error {
	if r.Valid() {
		return nil
	}
	parts := make([]string, len(r.Errors))
	for i, fe := range r.Errors {
		parts[i] = fe.String()
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(parts, "; "))
}

func (r *ValidationResult) add(field, reason string) {
	r.Errors = append(r.Errors, FieldError{Field: field, Reason: reason})
}

func (r *ValidationResult) merge(prefix string, o ValidationResult) {
	for _, fe := range o.Errors {
		r.add(prefix+fe.Field, fe.Reason)
	}
}

// ValidateEnvelope checks a run envelope.
func ValidateEnvelope(env RunEnvelope) ValidationResult {
	var r ValidationResult
	if strings.TrimSpace(env.RunID) == "" {
		r.add("run_id", "empty")
	}
	if env.ParentRunID != "" && env.ParentRunID == env.RunID {
		r.add("parent_run_id", "equals run_id")
	}
	if strings.TrimSpace(env.AgentID) == "" {
		r.add("agent_id", "empty")
	}
	if strings.TrimSpace(env.Objective) == "" {
		r.add("objective", "empty")
	}
	if strings.TrimSpace(env.PolicyProfile) == "" {
		r.add("policy_profile", "empty")
	}
	if env.CreatedAt.IsZero() {
		r.add("created_at", "zero")
	}
	r.merge("budget.", ValidateBudget(env.Budget))
	return r
}

// ValidateBudget checks that every set ceiling is positive.
func ValidateBudget(b Budget) ValidationResult {
	var r ValidationResult
	if b.MaxTimeMs <= 0 {
		r.add("max_time_ms", "must be positive")
	}
	if b.MaxTokens <= 0 {
		r.add("max_tokens", "must be positive")
	}
	if b.MaxToolCalls != nil && *b.MaxToolCalls < 0 {
		r.add("max_tool_calls", "must not be negative")
	}
	if b.MaxArtifactsMB != nil && *b.MaxArtifactsMB < 0 {
		r.add("max_artifacts_mb", "must not be negative")
	}
	return r
}

// ValidateRule checks a single policy rule.
func ValidateRule(rule PolicyRule) ValidationResult {
	var r ValidationResult
	if strings.TrimSpace(rule.Action) == "" {
		r.add("action", "empty")
	}
	if rule.Scope == "" {
		r.add("scope", "empty")
	}
	if !rule.Decision.Valid() {
		r.add("decision", fmt.Sprintf("unknown value %q", rule.Decision))
	}
	return r
}

// ValidateProfile checks a profile and every rule in it.
func ValidateProfile(p PolicyProfile) ValidationResult {
	var r ValidationResult
	if strings.TrimSpace(p.Name) == "" {
		r.add("name", "empty")
	}
	for i, rule := range p.Rules {
		r.merge(fmt.Sprintf("rules[%d].", i), ValidateRule(rule))
	}
	r.merge("budget.", ValidateBudget(p.Budget))
	return r
}

// ValidateEvent checks the header and payload consistency of an event.
func ValidateEvent(e Event) ValidationResult {
	var r ValidationResult
	if e.RunID == "" {
		r.add("run_id", "empty")
	}
	if e.StepID < 0 {
		r.add("step_id", "negative")
	}
	if e.Timestamp.IsZero() {
		r.add("timestamp", "zero")
	}
	if e.AgentID == "" {
		r.add("agent_id", "empty")
	}
	switch {
	case e.Payload == nil:
		r.add("payload", "nil")
	case e.Payload.EventType() != e.Type:
		r.add("type", fmt.Sprintf("%q does not match payload %q", e.Type, e.Payload.EventType()))
	}
	if p, ok := e.Payload.(ArtifactCreated); ok {
		if p.URI == "" {
			r.add("uri", "empty")
		}
		if p.SizeBytes < 0 {
			r.add("size_bytes", "negative")
		}
	}
	return r
}
