// Package kernel implements the run manager: the lifecycle state machine
// that owns every run, stamps its event log with monotonic step ids, keeps
// the budget counters and notifies listeners of each recorded event.
package kernel

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agentos-dev/agentkernel/pkg/contracts"
)

// Listener observes every recorded event together with the run state right
// after it was applied. Listeners run synchronously on the goroutine that
// recorded the event, one event at a time in recording order, with no
// manager lock held. They may read from the Manager but must not call its
// mutating methods.
type Listener func(event contracts.Event, state contracts.RunState)

// OverBudget is the result of the manager's own budget probe. Tokens is
// always false: token usage is tracked by the orchestration loop and merged
// in by budget.Assembler.
type OverBudget struct {
	Time   bool `json:"time"`
	Tokens bool `json:"tokens"`
}

type runEntry struct {
	state   contracts.RunState
	summary *contracts.RunSummary
}

type listenerEntry struct {
	id int
	fn Listener
}

// Manager owns run states. It is safe for concurrent use.
type Manager struct {
	mu        sync.Mutex
	runs      map[string]*runEntry
	order     []string
	listeners []listenerEntry
	nextID    int

	// Deliveries take a ticket under mu and run in ticket order with no
	// lock held, so listeners may read from the manager.
	nextTicket uint64
	turnMu     sync.Mutex
	turnCond   *sync.Cond
	turn       uint64

	clock  func() time.Time
	logger *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the manager's time source.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) { m.clock = clock }
}

// WithLogger sets the manager's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates an empty run manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		runs:   make(map[string]*runEntry),
		clock:  time.Now,
		logger: slog.Default(),
	}
	m.turnCond = sync.NewCond(&m.turnMu)
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "kernel")
	return m
}

func (m *Manager) now() time.Time { return m.clock().UTC() }

// Create registers a new pending run for env.
func (m *Manager) Create(env contracts.RunEnvelope) (contracts.RunState, error) {
	if env.RunID == "" {
		return contracts.RunState{}, fmt.Errorf("%w: field=run_id reason=empty", contracts.ErrInvalid)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.runs[env.RunID]; exists {
		return contracts.RunState{}, fmt.Errorf("%w: %s", ErrRunExists, env.RunID)
	}
	e := &runEntry{state: contracts.RunState{
		Envelope: env.Clone(),
		Status:   contracts.RunStatusPending,
		Events:   []contracts.Event{},
	}}
	m.runs[env.RunID] = e
	m.order = append(m.order, env.RunID)

	m.logger.Debug("run created", "run_id", env.RunID, "agent_id", env.AgentID)
	return e.state.Clone(), nil
}

// Start moves a pending run to running and records run.started.
func (m *Manager) Start(runID string) (contracts.Event, error) {
	m.mu.Lock()
	e, err := m.transitionLocked(runID, contracts.RunStatusRunning)
	if err != nil {
		m.mu.Unlock()
		return contracts.Event{}, err
	}
	now := m.now()
	e.state.StartedAt = &now
	ev := m.recordLocked(e, contracts.RunStarted{Envelope: e.state.Envelope.Clone()}, now)
	m.logger.Info("run started", "run_id", runID)
	m.deliver(ev, e)
	return ev.Clone(), nil
}

// Append records payload on a running run and advances its step counter.
// Any event kind is accepted. A run.failed payload counts as an error but
// leaves the run running; only Fail ends it.
func (m *Manager) Append(runID string, payload contracts.Payload) (contracts.Event, error) {
	if payload == nil {
		return contracts.Event{}, fmt.Errorf("%w: field=payload reason=nil", contracts.ErrInvalid)
	}

	m.mu.Lock()
	e, ok := m.runs[runID]
	if !ok {
		m.mu.Unlock()
		return contracts.Event{}, notFound(runID)
	}
	if e.state.Status != contracts.RunStatusRunning {
		status := e.state.Status
		m.mu.Unlock()
		return contracts.Event{}, &NotRunningError{RunID: runID, Status: status}
	}
	ev := m.recordLocked(e, payload, m.now())
	m.deliver(ev, e)
	return ev.Clone(), nil
}

// Complete finishes a running run successfully.
func (m *Manager) Complete(runID, output string) (contracts.RunSummary, error) {
	return m.finish(runID, contracts.RunStatusCompleted, func(*runEntry) contracts.Payload {
		return contracts.RunCompleted{FinalStatus: contracts.RunStatusCompleted, Output: output}
	})
}

// Fail finishes a running run with runErr.
func (m *Manager) Fail(runID string, runErr contracts.RunError) (contracts.RunSummary, error) {
	return m.finish(runID, contracts.RunStatusFailed, func(e *runEntry) contracts.Payload {
		stored := runErr.Clone()
		e.state.Error = &stored
		return contracts.RunFailed{Error: runErr.Clone()}
	})
}

// Cancel finishes a pending or running run. Cancellation is recorded as a
// run.completed event whose final status is cancelled.
func (m *Manager) Cancel(runID, reason string) (contracts.RunSummary, error) {
	return m.finish(runID, contracts.RunStatusCancelled, func(*runEntry) contracts.Payload {
		return contracts.RunCompleted{FinalStatus: contracts.RunStatusCancelled, Reason: reason}
	})
}

func (m *Manager) finish(runID string, to contracts.RunStatus, terminal func(*runEntry) contracts.Payload) (contracts.RunSummary, error) {
	m.mu.Lock()
	e, err := m.transitionLocked(runID, to)
	if err != nil {
		m.mu.Unlock()
		return contracts.RunSummary{}, err
	}
	now := m.now()
	e.state.FinishedAt = &now
	ev := m.recordLocked(e, terminal(e), now)

	summary := summarize(e.state, now)
	e.summary = &summary

	m.logger.Info("run finished",
		"run_id", runID,
		"status", string(to),
		"duration_ms", summary.DurationMs,
		"tool_calls", summary.ToolCalls,
		"errors", summary.Errors,
	)
	m.deliver(ev, e)
	return summary, nil
}

// transitionLocked validates and applies a status change. mu must be held.
func (m *Manager) transitionLocked(runID string, to contracts.RunStatus) (*runEntry, error) {
	e, ok := m.runs[runID]
	if !ok {
		return nil, notFound(runID)
	}
	from := e.state.Status
	if !CanTransition(from, to) {
		return nil, &InvalidTransitionError{RunID: runID, From: from, To: to}
	}
	e.state.Status = to
	return e, nil
}

// recordLocked appends payload as the next step of e. mu must be held.
func (m *Manager) recordLocked(e *runEntry, payload contracts.Payload, at time.Time) contracts.Event {
	ev := contracts.Event{
		RunID:     e.state.Envelope.RunID,
		StepID:    e.state.Step,
		Type:      payload.EventType(),
		Timestamp: at,
		AgentID:   e.state.Envelope.AgentID,
		Payload:   payload,
	}
	applyEvent(&e.state, ev)
	return ev
}

// applyEvent folds ev into state: it appends the event, advances the step
// counter and moves the counters that feed budgets and summaries.
func applyEvent(state *contracts.RunState, ev contracts.Event) {
	state.Events = append(state.Events, ev.Clone())
	state.Step++
	switch ev.Payload.(type) {
	case contracts.ToolCalled:
		state.ToolCalls++
	case contracts.ArtifactCreated:
		state.ArtifactsCreated++
	case contracts.RunFailed:
		state.Errors++
	}
}

// deliver hands ev to the listeners registered at record time. mu must be
// held on entry; deliver releases it.
func (m *Manager) deliver(ev contracts.Event, e *runEntry) {
	if len(m.listeners) == 0 {
		m.mu.Unlock()
		return
	}
	listeners := make([]Listener, len(m.listeners))
	for i, l := range m.listeners {
		listeners[i] = l.fn
	}
	state := e.state.Clone()
	ticket := m.nextTicket
	m.nextTicket++
	m.mu.Unlock()

	m.turnMu.Lock()
	for m.turn != ticket {
		m.turnCond.Wait()
	}
	m.turnMu.Unlock()
	defer func() {
		m.turnMu.Lock()
		m.turn++
		m.turnCond.Broadcast()
		m.turnMu.Unlock()
	}()

	for _, fn := range listeners {
		fn(ev.Clone(), state.Clone())
	}
}

// On registers l and returns a function that unregisters it. Calling the
// returned function more than once is harmless.
func (m *Manager) On(l Listener) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := m.nextID
	m.listeners = append(m.listeners, listenerEntry{id: id, fn: l})

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for i, entry := range m.listeners {
				if entry.id == id {
					m.listeners = append(m.listeners[:i:i], m.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Get returns a copy of the run's state.
func (m *Manager) Get(runID string) (contracts.RunState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.runs[runID]
	if !ok {
		return contracts.RunState{}, notFound(runID)
	}
	return e.state.Clone(), nil
}

// List returns copies of every run in creation order.
func (m *Manager) List() []contracts.RunState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]contracts.RunState, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.runs[id].state.Clone())
	}
	return out
}

// Events returns a copy of the run's event log.
func (m *Manager) Events(runID string) ([]contracts.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.runs[runID]
	if !ok {
		return nil, notFound(runID)
	}
	out := make([]contracts.Event, len(e.state.Events))
	for i := range e.state.Events {
		out[i] = e.state.Events[i].Clone()
	}
	return out, nil
}

// Summary returns the summary computed at the run's terminal transition.
func (m *Manager) Summary(runID string) (contracts.RunSummary, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.runs[runID]
	if !ok || e.summary == nil {
		return contracts.RunSummary{}, false
	}
	return *e.summary, true
}

// IsOverBudget compares wall-clock time since start against the envelope's
// time ceiling.
func (m *Manager) IsOverBudget(runID string) (OverBudget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.runs[runID]
	if !ok {
		return OverBudget{}, notFound(runID)
	}
	if e.state.StartedAt == nil {
		return OverBudget{}, nil
	}
	end := m.now()
	if e.state.FinishedAt != nil {
		end = *e.state.FinishedAt
	}
	elapsed := end.Sub(*e.state.StartedAt).Milliseconds()
	return OverBudget{Time: elapsed > e.state.Envelope.Budget.MaxTimeMs}, nil
}

// Restore registers a previously persisted run, typically one rebuilt by
// Replay at boot. Listeners are not notified.
func (m *Manager) Restore(state contracts.RunState) error {
	runID := state.Envelope.RunID
	if runID == "" {
		return fmt.Errorf("%w: field=envelope.run_id reason=empty", contracts.ErrInvalid)
	}
	if !state.Status.Valid() {
		return fmt.Errorf("%w: field=status reason=unknown value %q", contracts.ErrInvalid, state.Status)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.runs[runID]; exists {
		return fmt.Errorf("%w: %s", ErrRunExists, runID)
	}
	e := &runEntry{state: state.Clone()}
	if e.state.Events == nil {
		e.state.Events = []contracts.Event{}
	}
	if state.Status.IsTerminal() {
		end := m.now()
		if state.FinishedAt != nil {
			end = *state.FinishedAt
		}
		summary := summarize(e.state, end)
		e.summary = &summary
	}
	m.runs[runID] = e
	m.order = append(m.order, runID)
	m.logger.Debug("run restored", "run_id", runID, "status", string(state.Status))
	return nil
}

// summarize projects state into its terminal summary. A run that never
// started has zero duration.
func summarize(state contracts.RunState, end time.Time) contracts.RunSummary {
	start := end
	if state.StartedAt != nil {
		start = *state.StartedAt
	}
	return contracts.RunSummary{
		RunID:            state.Envelope.RunID,
		Status:           state.Status,
		DurationMs:       end.Sub(start).Milliseconds(),
		ToolCalls:        state.ToolCalls,
		ArtifactsCreated: state.ArtifactsCreated,
		Errors:           state.Errors,
	}
}
