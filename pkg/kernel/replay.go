package kernel

import (
	"fmt"

	"github.com/agentos-dev/agentkernel/pkg/contracts"
)

// Replay rebuilds a run state from its persisted event log. The log must
// open with run.started and carry step ids 0..n-1 for a single run.
// A run.completed or run.failed event finishes the run only when it closes
// the log; earlier ones were appended while running and only move the
// counters. Counters are re-derived with the same rules the manager applies
// when recording.
func Replay(events []contracts.Event) (contracts.RunState, error) {
	if len(events) == 0 {
		return contracts.RunState{}, fmt.Errorf("%w: empty log", ErrInvalidEventLog)
	}
	started, ok := events[0].Payload.(contracts.RunStarted)
	if !ok {
		return contracts.RunState{}, fmt.Errorf("%w: first event is %s, want %s",
			ErrInvalidEventLog, events[0].Type, contracts.EventRunStarted)
	}

	runID := events[0].RunID
	startedAt := events[0].Timestamp
	state := contracts.RunState{
		Envelope:  started.Envelope.Clone(),
		Status:    contracts.RunStatusRunning,
		Events:    make([]contracts.Event, 0, len(events)),
		StartedAt: &startedAt,
	}

	for i, ev := range events {
		if ev.RunID != runID {
			return contracts.RunState{}, fmt.Errorf("%w: step %d belongs to run %s, want %s",
				ErrInvalidEventLog, i, ev.RunID, runID)
		}
		if ev.StepID != i {
			return contracts.RunState{}, fmt.Errorf("%w: step id %d at position %d", ErrInvalidEventLog, ev.StepID, i)
		}
		if ev.Payload == nil || ev.Payload.EventType() != ev.Type {
			return contracts.RunState{}, fmt.Errorf("%w: step %d payload does not match type %s",
				ErrInvalidEventLog, i, ev.Type)
		}
		if i == len(events)-1 && i > 0 {
			if err := finishReplay(&state, ev, i); err != nil {
				return contracts.RunState{}, err
			}
		}
		applyEvent(&state, ev)
	}
	return state, nil
}

// finishReplay applies the terminal transition carried by the closing event
// of a log, if it carries one.
func finishReplay(state *contracts.RunState, ev contracts.Event, step int) error {
	finished := ev.Timestamp
	switch p := ev.Payload.(type) {
	case contracts.RunCompleted:
		if !CanTransition(state.Status, p.FinalStatus) || p.FinalStatus == contracts.RunStatusFailed {
			return fmt.Errorf("%w: step %d final status %q", ErrInvalidEventLog, step, p.FinalStatus)
		}
		state.Status = p.FinalStatus
		state.FinishedAt = &finished
	case contracts.RunFailed:
		state.Status = contracts.RunStatusFailed
		runErr := p.Error.Clone()
		state.Error = &runErr
		state.FinishedAt = &finished
	}
	return nil
}
