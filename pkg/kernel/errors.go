package kernel

import (
	"errors"
	"fmt"

	"github.com/agentos-dev/agentkernel/pkg/contracts"
)

var (
	// ErrRunNotFound is returned for run ids unknown to the manager.
	ErrRunNotFound = errors.New("run not found")
	// ErrRunExists is returned when creating a run whose id is taken.
	ErrRunExists = errors.New("run already exists")
	// ErrInvalidTransition is wrapped by *InvalidTransitionError.
	ErrInvalidTransition = errors.New("invalid run transition")
	// ErrRunNotRunning is wrapped by *NotRunningError.
	ErrRunNotRunning = errors.New("run is not running")
	// ErrInvalidEventLog is returned by Replay for logs that cannot be folded.
	ErrInvalidEventLog = errors.New("invalid event log")
)

// InvalidTransitionError identifies a disallowed status change.
type InvalidTransitionError struct {
	RunID string
	From  contracts.RunStatus
	To    contracts.RunStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition for run %s: %s -> %s", e.RunID, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// NotRunningError is returned by Append outside the running status.
type NotRunningError struct {
	RunID  string
	Status contracts.RunStatus
}

func (e *NotRunningError) Error() string {
	return fmt.Sprintf("cannot append to run %s: status is %s, want running", e.RunID, e.Status)
}

func (e *NotRunningError) Unwrap() error { return ErrRunNotRunning }

func notFound(runID string) error {
	return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
}
