package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/agentos-dev/agentkernel/pkg/contracts"
	"github.com/agentos-dev/agentkernel/pkg/kernel"
)

// Attribute keys used on kernel instruments.
var (
	AttrStatus    = attribute.Key("agentkernel.run.status")
	AttrEventType = attribute.Key("agentkernel.event.type")
	AttrDecision  = attribute.Key("agentkernel.policy.decision")
	AttrDimension = attribute.Key("agentkernel.budget.dimension")
)

// KernelMetrics records run lifecycle, policy and budget instruments.
type KernelMetrics struct {
	runsStarted      metric.Int64Counter
	runsFinished     metric.Int64Counter
	eventsRecorded   metric.Int64Counter
	policyDecisions  metric.Int64Counter
	budgetViolations metric.Int64Counter
	runDuration      metric.Float64Histogram
}

// NewKernelMetrics creates the instruments on meter.
func NewKernelMetrics(meter metric.Meter) (*KernelMetrics, error) {
	m := &KernelMetrics{}
	var err error

	if m.runsStarted, err = meter.Int64Counter("agentkernel.runs.started",
		metric.WithDescription("Runs that entered the running state"),
		metric.WithUnit("{run}"),
	); err != nil {
		return nil, fmt.Errorf("runs.started: %w", err)
	}
	if m.runsFinished, err = meter.Int64Counter("agentkernel.runs.finished",
		metric.WithDescription("Runs that reached a terminal state"),
		metric.WithUnit("{run}"),
	); err != nil {
		return nil, fmt.Errorf("runs.finished: %w", err)
	}
	if m.eventsRecorded, err = meter.Int64Counter("agentkernel.events.recorded",
		metric.WithDescription("Events appended to run logs"),
		metric.WithUnit("{event}"),
	); err != nil {
		return nil, fmt.Errorf("events.recorded: %w", err)
	}
	if m.policyDecisions, err = meter.Int64Counter("agentkernel.policy.decisions",
		metric.WithDescription("Policy evaluations by decision"),
		metric.WithUnit("{decision}"),
	); err != nil {
		return nil, fmt.Errorf("policy.decisions: %w", err)
	}
	if m.budgetViolations, err = meter.Int64Counter("agentkernel.budget.violations",
		metric.WithDescription("Budget dimensions found over their ceiling"),
		metric.WithUnit("{violation}"),
	); err != nil {
		return nil, fmt.Errorf("budget.violations: %w", err)
	}
	if m.runDuration, err = meter.Float64Histogram("agentkernel.run.duration",
		metric.WithDescription("Wall-clock run duration from start to finish"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(10, 100, 1000, 10000, 60000, 300000, 900000, 3600000),
	); err != nil {
		return nil, fmt.Errorf("run.duration: %w", err)
	}
	return m, nil
}

// Listener returns a kernel listener that feeds the run instruments.
func (m *KernelMetrics) Listener() kernel.Listener {
	return func(ev contracts.Event, state contracts.RunState) {
		ctx := context.Background()
		m.eventsRecorded.Add(ctx, 1, metric.WithAttributes(AttrEventType.String(string(ev.Type))))

		switch ev.Type {
		case contracts.EventRunStarted:
			m.runsStarted.Add(ctx, 1)
		case contracts.EventRunCompleted, contracts.EventRunFailed:
			status := metric.WithAttributes(AttrStatus.String(string(state.Status)))
			m.runsFinished.Add(ctx, 1, status)
			if state.StartedAt != nil && state.FinishedAt != nil {
				ms := float64(state.FinishedAt.Sub(*state.StartedAt).Milliseconds())
				m.runDuration.Record(ctx, ms, status)
			}
		}
	}
}

// RecordEvaluation counts one policy decision.
func (m *KernelMetrics) RecordEvaluation(ctx context.Context, eval contracts.Evaluation) {
	m.policyDecisions.Add(ctx, 1, metric.WithAttributes(AttrDecision.String(string(eval.Decision))))
}

// RecordBudgetCheck counts each violated dimension of check.
func (m *KernelMetrics) RecordBudgetCheck(ctx context.Context, check contracts.BudgetCheck) {
	for _, d := range check.Details {
		m.budgetViolations.Add(ctx, 1, metric.WithAttributes(AttrDimension.String(string(d.Dimension))))
	}
}
