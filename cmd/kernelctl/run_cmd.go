package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/agentos-dev/agentkernel/pkg/artifacts"
	"github.com/agentos-dev/agentkernel/pkg/budget"
	"github.com/agentos-dev/agentkernel/pkg/contracts"
	"github.com/agentos-dev/agentkernel/pkg/kernel"
	"github.com/agentos-dev/agentkernel/pkg/observability"
	"github.com/agentos-dev/agentkernel/pkg/policy"
	"github.com/agentos-dev/agentkernel/pkg/store"
)

// Run error codes recorded on failed runs.
const (
	codePolicyDenied     = "POLICY_DENIED"
	codeApprovalRequired = "APPROVAL_REQUIRED"
	codeBudgetExceeded   = "BUDGET_EXCEEDED"
	codeArtifactFailed   = "ARTIFACT_FAILED"
)

const approverName = "kernelctl"

func newRunCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute runs through the kernel",
	}
	cmd.AddCommand(newRunExecCommand(a))
	return cmd
}

type execOptions struct {
	profileRef  string
	objective   string
	agentID     string
	scriptPath  string
	runID       string
	autoApprove bool
}

func newRunExecCommand(a *app) *cobra.Command {
	var opts execOptions

	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Execute a scripted run",
		Long: `Execute a scripted run through the kernel.

Each script step is gated by the policy profile, its tool calls, token
usage and artifacts are recorded as events, and the budget is checked after
every step. Events and a state checkpoint are persisted to the state store.

Exits 0 when the run completes and 3 when policy or budget stops it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sc := runScript{}
			if opts.scriptPath != "" {
				var err error
				if sc, err = loadScript(opts.scriptPath); err != nil {
					return usageError{err}
				}
			}
			if opts.objective != "" {
				sc.Objective = opts.objective
			}
			if opts.agentID != "" {
				sc.AgentID = opts.agentID
			}
			if sc.AgentID == "" {
				sc.AgentID = "kernelctl"
			}

			p, err := a.loadProfile(opts.profileRef)
			if err != nil {
				return err
			}

			summary, state, err := a.execRun(cmd.Context(), p, sc, opts)
			if err != nil {
				return err
			}

			if a.jsonOut {
				if err := a.printJSON(summary); err != nil {
					return err
				}
			} else {
				a.printf("run %s %s (%d ms, %d tool calls, %d artifacts)\n",
					summary.RunID, summary.Status, summary.DurationMs, summary.ToolCalls, summary.ArtifactsCreated)
				if state.Error != nil {
					a.printf("%s: %s\n", state.Error.Code, state.Error.Message)
				}
			}
			if summary.Status != contracts.RunStatusCompleted {
				return withCode(exitDenied, "run %s", summary.Status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.profileRef, "profile", "", "Profile file or name (default KERNEL_POLICY_PROFILE)")
	cmd.Flags().StringVar(&opts.objective, "objective", "", "Run objective (overrides the script)")
	cmd.Flags().StringVar(&opts.agentID, "agent", "", "Agent id (overrides the script)")
	cmd.Flags().StringVar(&opts.scriptPath, "script", "", "YAML or JSON step script")
	cmd.Flags().StringVar(&opts.runID, "run-id", "", "Run id (generated when empty)")
	cmd.Flags().BoolVar(&opts.autoApprove, "approve", false, "Approve every REQUIRE_APPROVAL step")
	return cmd
}

// execution drives one run through the manager.
type execution struct {
	a         *app
	m         *kernel.Manager
	arts      *artifacts.Store
	metrics   *observability.KernelMetrics
	assembler *budget.Assembler
	profile   contracts.PolicyProfile
	runID     string
	approve   bool
}

func (a *app) execRun(ctx context.Context, p contracts.PolicyProfile, sc runScript, opts execOptions) (contracts.RunSummary, contracts.RunState, error) {
	st, err := a.state(ctx)
	if err != nil {
		return contracts.RunSummary{}, contracts.RunState{}, err
	}
	arts, err := a.artifacts(ctx)
	if err != nil {
		return contracts.RunSummary{}, contracts.RunState{}, err
	}
	metrics, err := a.observability(ctx)
	if err != nil {
		return contracts.RunSummary{}, contracts.RunState{}, err
	}

	runID := opts.runID
	if runID == "" {
		runID = uuid.NewString()
	}
	b := p.Budget.Clone()
	if sc.Budget != nil {
		b = sc.Budget.Clone()
	}
	env := contracts.RunEnvelope{
		RunID:         runID,
		AgentID:       sc.AgentID,
		Objective:     sc.Objective,
		PolicyProfile: p.Name,
		Budget:        b,
		CreatedAt:     time.Now().UTC(),
	}
	if err := contracts.ValidateEnvelope(env).Err(); err != nil {
		return contracts.RunSummary{}, contracts.RunState{}, usageError{err}
	}
	if err := store.CheckRunID(runID); err != nil {
		return contracts.RunSummary{}, contracts.RunState{}, usageError{err}
	}

	m := kernel.NewManager(kernel.WithLogger(a.logger))
	rec := store.NewRecorder(st, store.WithRecorderLogger(a.logger))
	m.On(rec.Record)
	m.On(metrics.Listener())

	ctx, end := observability.Track(ctx, a.telemetry.Tracer(), "kernel.run.exec",
		attribute.String("run_id", runID),
		attribute.String("policy_profile", p.Name),
	)
	x := &execution{
		a:         a,
		m:         m,
		arts:      arts,
		metrics:   metrics,
		assembler: budget.NewAssembler(m, budget.WithLogger(a.logger)),
		profile:   p,
		runID:     runID,
		approve:   opts.autoApprove,
	}
	summary, err := x.run(ctx, env, sc)
	end(err)
	if err != nil {
		return contracts.RunSummary{}, contracts.RunState{}, err
	}

	state, err := m.Get(runID)
	if err != nil {
		return contracts.RunSummary{}, contracts.RunState{}, err
	}
	if n := rec.Failures(); n > 0 {
		return contracts.RunSummary{}, contracts.RunState{}, fmt.Errorf("%d events of run %s were not persisted", n, runID)
	}
	if err := a.checkpoint(ctx, st, arts, state); err != nil {
		return contracts.RunSummary{}, contracts.RunState{}, err
	}
	return summary, state, nil
}

// stopError ends a run early with a structured failure.
type stopError struct{ runErr contracts.RunError }

func (e *stopError) Error() string { return e.runErr.Code + ": " + e.runErr.Message }

func (x *execution) run(ctx context.Context, env contracts.RunEnvelope, sc runScript) (contracts.RunSummary, error) {
	if _, err := x.m.Create(env); err != nil {
		return contracts.RunSummary{}, err
	}
	if _, err := x.m.Start(x.runID); err != nil {
		return contracts.RunSummary{}, err
	}

	for i, step := range sc.Steps {
		err := x.step(ctx, i, step)
		var stop *stopError
		if errors.As(err, &stop) {
			x.a.logger.WarnContext(ctx, "run stopped",
				"run_id", x.runID,
				"step", i,
				"code", stop.runErr.Code,
				"reason", stop.runErr.Message,
			)
			return x.m.Fail(x.runID, stop.runErr)
		}
		if err != nil {
			x.a.logger.ErrorContext(ctx, "kernel error", "run_id", x.runID, "step", i, "error", err)
			return contracts.RunSummary{}, err
		}
	}

	output := sc.Output
	if output == "" {
		output = fmt.Sprintf("completed %d steps", len(sc.Steps))
	}
	return x.m.Complete(x.runID, output)
}

func (x *execution) step(ctx context.Context, i int, step scriptStep) error {
	eval := policy.Evaluate(x.profile, step.Action, step.Scope)
	x.metrics.RecordEvaluation(ctx, eval)
	if _, err := x.m.Append(x.runID, contracts.PolicyDecisionRecorded{
		Action:   step.Action,
		Scope:    step.Scope,
		Decision: eval.Decision,
		Reason:   eval.Reason,
	}); err != nil {
		return err
	}

	switch eval.Decision {
	case contracts.DecisionDeny:
		return &stopError{contracts.RunError{
			Code:    codePolicyDenied,
			Message: eval.Reason,
			Details: map[string]any{"action": step.Action, "scope": step.Scope, "step": i},
		}}
	case contracts.DecisionRequireApproval:
		approved := x.approve || (step.Approve != nil && *step.Approve)
		if _, err := x.m.Append(x.runID, contracts.PolicyApproval{
			Action:   step.Action,
			Scope:    step.Scope,
			Approved: approved,
			Approver: approverName,
		}); err != nil {
			return err
		}
		if !approved {
			return &stopError{contracts.RunError{
				Code:    codeApprovalRequired,
				Message: eval.Reason,
				Details: map[string]any{"action": step.Action, "scope": step.Scope, "step": i},
			}}
		}
	}

	if step.Tool != "" {
		if err := x.toolCall(i, step); err != nil {
			return err
		}
	}
	if step.Usage != nil {
		if _, err := x.m.Append(x.runID, contracts.LLMUsage{Model: step.Usage.Model, Usage: step.Usage.tokens()}); err != nil {
			return err
		}
	}
	if step.Artifact != nil {
		if err := x.artifact(ctx, *step.Artifact); err != nil {
			return err
		}
	}

	check, err := x.assembler.CheckEnvelope(x.runID)
	if err != nil {
		return err
	}
	if !check.WithinBudget {
		x.metrics.RecordBudgetCheck(ctx, check)
		details := make(map[string]any, len(check.Details))
		for _, d := range check.Details {
			details[string(d.Dimension)] = d.Observed
		}
		return &stopError{contracts.RunError{
			Code:    codeBudgetExceeded,
			Message: strings.Join(check.Violations, "; "),
			Details: details,
		}}
	}
	return nil
}

func (x *execution) toolCall(i int, step scriptStep) error {
	args, err := rawJSON(step.Arguments)
	if err != nil {
		return fmt.Errorf("step %d arguments: %w", i, err)
	}
	result, err := rawJSON(step.Result)
	if err != nil {
		return fmt.Errorf("step %d result: %w", i, err)
	}
	callID := fmt.Sprintf("%s-%d", x.runID, i)
	if _, err := x.m.Append(x.runID, contracts.ToolCalled{ToolName: step.Tool, CallID: callID, Arguments: args}); err != nil {
		return err
	}
	_, err = x.m.Append(x.runID, contracts.ToolResult{
		ToolName: step.Tool,
		CallID:   callID,
		Result:   result,
		IsError:  step.IsError,
	})
	return err
}

func (x *execution) artifact(ctx context.Context, sa scriptArtifact) error {
	data, err := sa.bytes()
	if err != nil {
		return &stopError{contracts.RunError{Code: codeArtifactFailed, Message: err.Error()}}
	}
	mime := sa.Mime
	if mime == "" {
		mime = "text/plain; charset=utf-8"
	}
	h, err := x.arts.Store(ctx, data, mime, x.runID)
	if err != nil {
		return &stopError{contracts.RunError{Code: codeArtifactFailed, Message: err.Error(), Retryable: true}}
	}
	_, err = x.m.Append(x.runID, contracts.ArtifactCreated{
		URI:       h.String(),
		SizeBytes: int64(len(data)),
		MimeType:  mime,
	})
	return err
}
