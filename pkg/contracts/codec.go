package contracts

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownEventType is returned when decoding an event whose type tag is
// not part of the closed event set.
var ErrUnknownEventType = errors.New("contracts: unknown event type")

type eventHeader Event

var headerKeys = []string{"run_id", "step_id", "type", "timestamp", "agent_id"}

// MarshalJSON encodes the event as one flat object: the header fields
// merged with the payload's fields.
func (e Event) MarshalJSON() ([]byte, error) {
	header, err := json.Marshal(eventHeader(e))
	if err != nil {
		return nil, err
	}
	fields := make(map[string]json.RawMessage)
	if e.Payload != nil {
		if e.Payload.EventType() != e.Type {
			return nil, fmt.Errorf("contracts: event type %q does not match payload %q", e.Type, e.Payload.EventType())
		}
		body, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, fmt.Errorf("contracts: marshal %s payload: %w", e.Type, err)
		}
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, fmt.Errorf("contracts: flatten %s payload: %w", e.Type, err)
		}
	}
	var head map[string]json.RawMessage
	if err := json.Unmarshal(header, &head); err != nil {
		return nil, err
	}
	for _, k := range headerKeys {
		fields[k] = head[k]
	}
	return json.Marshal(fields)
}

// UnmarshalJSON decodes a flat event object, dispatching the payload on
// the type tag.
func (e *Event) UnmarshalJSON(data []byte) error {
	var head eventHeader
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	payload, err := DecodePayload(head.Type, data)
	if err != nil {
		return err
	}
	*e = Event(head)
	e.Payload = payload
	return nil
}

// DecodePayload decodes the payload of the given event type from a JSON
// object. Header keys in data are ignored.
func DecodePayload(t EventType, data []byte) (Payload, error) {
	switch t {
	case EventRunStarted:
		return decodeInto[RunStarted](data)
	case EventRunCompleted:
		return decodeInto[RunCompleted](data)
	case EventRunFailed:
		return decodeInto[RunFailed](data)
	case EventToolCalled:
		return decodeInto[ToolCalled](data)
	case EventToolResult:
		return decodeInto[ToolResult](data)
	case EventArtifactCreated:
		return decodeInto[ArtifactCreated](data)
	case EventPolicyDecision:
		return decodeInto[PolicyDecisionRecorded](data)
	case EventPolicyApproval:
		return decodeInto[PolicyApproval](data)
	case EventMetricRecorded:
		return decodeInto[MetricRecorded](data)
	case EventLLMStepCompleted:
		return decodeInto[LLMStepCompleted](data)
	case EventLLMUsage:
		return decodeInto[LLMUsage](data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, t)
	}
}

func decodeInto[T Payload](data []byte) (Payload, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("contracts: decode %s payload: %w", v.EventType(), err)
	}
	return v, nil
}
