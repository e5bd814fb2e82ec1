package budget

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/agentos-dev/agentkernel/pkg/contracts"
	"github.com/agentos-dev/agentkernel/pkg/policy"
)

// RunSource provides run states. *kernel.Manager satisfies it.
type RunSource interface {
	Get(runID string) (contracts.RunState, error)
}

// TokenSource reports token usage tracked outside the event log.
type TokenSource interface {
	Tokens(runID string) contracts.TokenUsage
}

// Assembler is the single place where the manager's counters and the
// orchestration loop's token counts are merged into one BudgetUsage.
type Assembler struct {
	runs   RunSource
	tokens TokenSource
	clock  func() time.Time
	logger *slog.Logger
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithTokenSource merges externally reported tokens into usage.
func WithTokenSource(src TokenSource) Option {
	return func(a *Assembler) { a.tokens = src }
}

// WithClock overrides the time source used for elapsed time.
func WithClock(clock func() time.Time) Option {
	return func(a *Assembler) { a.clock = clock }
}

// WithLogger sets the assembler's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Assembler) { a.logger = logger }
}

// NewAssembler creates an assembler reading runs from runs.
func NewAssembler(runs RunSource, opts ...Option) *Assembler {
	a := &Assembler{
		runs:   runs,
		clock:  time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "budget")
	return a
}

// Usage returns the run's current usage. Tokens from the token source are
// added to those recorded as llm.usage events.
func (a *Assembler) Usage(runID string) (contracts.BudgetUsage, error) {
	state, err := a.runs.Get(runID)
	if err != nil {
		return contracts.BudgetUsage{}, fmt.Errorf("budget usage for %s: %w", runID, err)
	}
	usage := Assemble(state, a.clock().UTC())
	if a.tokens != nil {
		usage.Tokens += a.tokens.Tokens(runID).Total()
	}
	return usage, nil
}

// Check assembles usage and checks it against b. It never aborts the run;
// acting on violations is the caller's decision.
func (a *Assembler) Check(runID string, b contracts.Budget) (contracts.BudgetCheck, error) {
	usage, err := a.Usage(runID)
	if err != nil {
		return contracts.BudgetCheck{}, err
	}
	check := policy.CheckBudget(b, usage)
	if !check.WithinBudget {
		a.logger.Warn("budget exceeded",
			"run_id", runID,
			"violations", check.Violations,
		)
	}
	return check, nil
}

// CheckEnvelope checks the run against the budget in its own envelope.
func (a *Assembler) CheckEnvelope(runID string) (contracts.BudgetCheck, error) {
	state, err := a.runs.Get(runID)
	if err != nil {
		return contracts.BudgetCheck{}, fmt.Errorf("budget check for %s: %w", runID, err)
	}
	return a.Check(runID, state.Envelope.Budget)
}
