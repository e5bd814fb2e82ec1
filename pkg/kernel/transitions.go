package kernel

import "github.com/agentos-dev/agentkernel/pkg/contracts"

// transitions is the complete lifecycle table. Terminal statuses have no
// entry.
var transitions = map[contracts.RunStatus][]contracts.RunStatus{
	contracts.RunStatusPending: {
		contracts.RunStatusRunning,
		contracts.RunStatusCancelled,
	},
	contracts.RunStatusRunning: {
		contracts.RunStatusCompleted,
		contracts.RunStatusFailed,
		contracts.RunStatusCancelled,
	},
}

// CanTransition reports whether from -> to is in the lifecycle table.
func CanTransition(from, to contracts.RunStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the statuses reachable from from in one step.
func AllowedTransitions(from contracts.RunStatus) []contracts.RunStatus {
	return append([]contracts.RunStatus(nil), transitions[from]...)
}
