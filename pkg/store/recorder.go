package store

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/agentos-dev/agentkernel/pkg/contracts"
)

// Recorder persists every event the run manager records. Register its
// Record method with kernel.Manager.On. Persistence failures are logged
// and counted; they never reach the kernel.
type Recorder struct {
	store   StateStore
	logger  *slog.Logger
	timeout time.Duration

	recorded atomic.Int64
	failures atomic.Int64
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithRecorderLogger sets the recorder's logger.
func WithRecorderLogger(logger *slog.Logger) RecorderOption {
	return func(r *Recorder) { r.logger = logger }
}

// WithTimeout bounds each write.
func WithTimeout(d time.Duration) RecorderOption {
	return func(r *Recorder) { r.timeout = d }
}

// NewRecorder creates a recorder writing to store.
func NewRecorder(store StateStore, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store:   store,
		logger:  slog.Default(),
		timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "recorder")
	return r
}

// Record appends ev to its run's persisted log.
func (r *Recorder) Record(ev contracts.Event, _ contracts.RunState) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.store.AppendEvent(ctx, ev.RunID, ev); err != nil {
		r.failures.Add(1)
		r.logger.Error("failed to persist event",
			"run_id", ev.RunID,
			"step_id", ev.StepID,
			"type", string(ev.Type),
			"error", err,
		)
		return
	}
	r.recorded.Add(1)
}

// Recorded returns the number of events persisted.
func (r *Recorder) Recorded() int64 { return r.recorded.Load() }

// Failures returns the number of events that could not be persisted.
func (r *Recorder) Failures() int64 { return r.failures.Load() }
