// Package budget assembles budget usage for a run from the run manager's
// counters and event log, merged with token counts reported by the
// orchestration loop, and checks it against the run's ceilings.
package budget

import (
	"time"

	"github.com/agentos-dev/agentkernel/pkg/contracts"
)

const bytesPerMB = 1024 * 1024

// Assemble folds a run state into its budget usage as of now. Elapsed time
// runs from start to finish (or to now while the run is active) and is
// zero for runs that never started. Tokens sum the llm.usage events in the
// log; artifact megabytes sum the artifact.created sizes.
func Assemble(state contracts.RunState, now time.Time) contracts.BudgetUsage {
	var usage contracts.BudgetUsage

	if state.StartedAt != nil {
		end := now
		if state.FinishedAt != nil {
			end = *state.FinishedAt
		}
		if elapsed := end.Sub(*state.StartedAt).Milliseconds(); elapsed > 0 {
			usage.ElapsedMs = elapsed
		}
	}

	var artifactBytes int64
	for _, ev := range state.Events {
		switch p := ev.Payload.(type) {
		case contracts.LLMUsage:
			usage.Tokens += p.Usage.Total()
		case contracts.ArtifactCreated:
			artifactBytes += p.SizeBytes
		}
	}
	usage.ToolCalls = int64(state.ToolCalls)
	usage.ArtifactsMB = float64(artifactBytes) / bytesPerMB
	return usage
}
