package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentos-dev/agentkernel/pkg/budget"
	"github.com/agentos-dev/agentkernel/pkg/kernel"
)

func newReplayCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "replay RUN_ID",
		Short: "Rebuild a run from its persisted event log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := args[0]
			st, err := a.state(cmd.Context())
			if err != nil {
				return err
			}
			events, err := st.Events(cmd.Context(), runID)
			if err != nil {
				return err
			}
			if len(events) == 0 {
				return fmt.Errorf("run %s has no recorded events", runID)
			}
			state, err := kernel.Replay(events)
			if err != nil {
				return err
			}

			m := kernel.NewManager(kernel.WithLogger(a.logger))
			if err := m.Restore(state); err != nil {
				return err
			}
			summary, finished := m.Summary(runID)

			if a.jsonOut {
				out := map[string]any{"state": state}
				if finished {
					out["summary"] = summary
				}
				return a.printJSON(out)
			}

			a.printf("run %s (%s) agent=%s profile=%s\n", runID, state.Status,
				state.Envelope.AgentID, state.Envelope.PolicyProfile)
			a.printf("objective: %s\n", state.Envelope.Objective)
			a.printf("events: %d\n", len(state.Events))
			if finished {
				a.printf("duration: %d ms, tool calls: %d, artifacts: %d, errors: %d\n",
					summary.DurationMs, summary.ToolCalls, summary.ArtifactsCreated, summary.Errors)
			} else {
				usage := budget.Assemble(state, state.StartedAt.UTC())
				a.printf("still running, tokens so far: %d\n", usage.Tokens)
			}
			if state.Error != nil {
				a.printf("%s: %s\n", state.Error.Code, state.Error.Message)
			}
			return nil
		},
	}
}
