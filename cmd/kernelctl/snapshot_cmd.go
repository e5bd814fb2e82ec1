package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentos-dev/agentkernel/pkg/artifacts"
	"github.com/agentos-dev/agentkernel/pkg/budget"
	"github.com/agentos-dev/agentkernel/pkg/contracts"
	"github.com/agentos-dev/agentkernel/pkg/snapshot"
	"github.com/agentos-dev/agentkernel/pkg/store"
)

// maxRecentDecisions bounds the agent's decision log.
const maxRecentDecisions = 20

// checkpoint folds a finished run into the persisted snapshot. Counts and
// the run index accumulate across invocations.
func (a *app) checkpoint(ctx context.Context, st store.StateStore, arts *artifacts.Store, state contracts.RunState) error {
	prior, _, err := snapshot.Load(ctx, st)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	runID := state.Envelope.RunID

	runs := []contracts.RunState{state}
	for _, e := range prior.RunIndex {
		if e.RunID == runID {
			continue
		}
		runs = append(runs, contracts.RunState{
			Envelope:   contracts.RunEnvelope{RunID: e.RunID, AgentID: e.AgentID, Objective: e.Objective},
			Status:     e.Status,
			StartedAt:  e.StartedAt,
			FinishedAt: e.FinishedAt,
		})
	}

	mode := snapshot.ControllerMode(a.cfg.Mode)
	if !mode.Valid() {
		mode = snapshot.ModeAutonomous
	}
	control := snapshot.BuildControlState(runs, snapshot.ControlInputs{
		ArtifactCount:    prior.Control.ArtifactCount + len(arts.ListByRun(runID)),
		PolicyViolations: prior.Control.PolicyViolations + snapshot.CountPolicyViolations(state.Events),
		Mode:             mode,
		LastAuditAt:      prior.Control.LastAuditAt,
		NextAuditAt:      prior.Control.NextAuditAt,
	})

	agentMode := snapshot.AgentIdle
	if state.Status == contracts.RunStatusFailed {
		agentMode = snapshot.AgentError
	}
	objective := state.Envelope.Objective
	agent := snapshot.BuildAgentState(snapshot.AgentInputs{
		Mode:            agentMode,
		Objective:       &objective,
		MemoryKeys:      prior.Agent.MemoryKeys,
		RecentDecisions: recentDecisions(prior.Agent.RecentDecisions, state),
		Usage:           budget.Assemble(state, now),
	})

	session := snapshot.BuildSessionState(snapshot.SessionInputs{
		AgentID: state.Envelope.AgentID,
		Context: map[string]any{
			"last_run_id":    runID,
			"policy_profile": state.Envelope.PolicyProfile,
		},
	}, now)

	err = snapshot.Checkpoint(ctx, st, snapshot.Snapshot{
		Agent:    agent,
		Session:  session,
		RunIndex: snapshot.BuildRunIndex(runs),
		Control:  control,
	})
	if err != nil {
		return err
	}
	a.logger.DebugContext(ctx, "checkpoint written",
		"run_id", runID,
		"active_runs", control.ActiveRuns,
		"completed_runs", control.CompletedRuns,
	)
	return nil
}

func recentDecisions(prior []snapshot.DecisionRecord, state contracts.RunState) []snapshot.DecisionRecord {
	out := append([]snapshot.DecisionRecord{}, prior...)
	for _, ev := range state.Events {
		d, ok := ev.Payload.(contracts.PolicyDecisionRecorded)
		if !ok {
			continue
		}
		out = append(out, snapshot.DecisionRecord{
			At:      ev.Timestamp,
			RunID:   ev.RunID,
			Summary: fmt.Sprintf("%s %s %s", d.Decision, d.Action, d.Scope),
		})
	}
	if len(out) > maxRecentDecisions {
		out = out[len(out)-maxRecentDecisions:]
	}
	return out
}

func newSnapshotCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Inspect the persisted state snapshot",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show [KEY]",
		Short: "Print the snapshot or one of its views",
		Long: fmt.Sprintf("Print the persisted snapshot as JSON. KEY selects one view: %s, %s, %s or %s.",
			snapshot.KeyAgentState, snapshot.KeySessionState, snapshot.KeyRunIndex, snapshot.KeyControlState),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.state(cmd.Context())
			if err != nil {
				return err
			}
			snap, found, err := snapshot.Load(cmd.Context(), st)
			if err != nil {
				return err
			}
			if len(found) == 0 {
				return fmt.Errorf("no snapshot has been written yet")
			}
			if len(args) == 0 {
				return a.printJSON(snap)
			}
			switch args[0] {
			case snapshot.KeyAgentState:
				return a.printJSON(snap.Agent)
			case snapshot.KeySessionState:
				return a.printJSON(snap.Session)
			case snapshot.KeyRunIndex:
				return a.printJSON(snap.RunIndex)
			case snapshot.KeyControlState:
				return a.printJSON(snap.Control)
			}
			return usageError{fmt.Errorf("unknown snapshot key %q", args[0])}
		},
	})
	return cmd
}
