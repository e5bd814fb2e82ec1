package budget

import (
	"sync"

	"github.com/agentos-dev/agentkernel/pkg/contracts"
)

// TokenLedger is an in-memory TokenSource fed by the orchestration loop.
// Safe for concurrent use.
type TokenLedger struct {
	mu   sync.RWMutex
	runs map[string]contracts.TokenUsage
}

var _ TokenSource = (*TokenLedger)(nil)

// NewTokenLedger creates an empty ledger.
func NewTokenLedger() *TokenLedger {
	return &TokenLedger{runs: make(map[string]contracts.TokenUsage)}
}

// Record adds usage to the run's cumulative total.
func (l *TokenLedger) Record(runID string, usage contracts.TokenUsage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.runs[runID] = l.runs[runID].Add(usage)
}

// Tokens returns the cumulative usage for runID; zero when nothing was
// recorded.
func (l *TokenLedger) Tokens(runID string) contracts.TokenUsage {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.runs[runID]
}

// Reset drops the run's usage.
func (l *TokenLedger) Reset(runID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.runs, runID)
}
