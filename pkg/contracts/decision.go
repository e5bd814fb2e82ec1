package contracts

import (
	"time"
)

// PolicyDecision is the verdict of a policy evaluation.
type PolicyDecision string

const (
	DecisionAllow           PolicyDecision = "ALLOW"
	DecisionDeny            PolicyDecision = "DENY"
	DecisionRequireApproval PolicyDecision = "REQUIRE_APPROVAL"
)

// Valid reports whether d is one of the three known decisions.
func (d PolicyDecision) Valid() bool {
	switch d {
	case DecisionAllow, DecisionDeny, DecisionRequireApproval:
		return true
	}
	return false
}

// PolicyRule binds an action and a scope glob to a decision. Condition is
// carried verbatim and never evaluated by the kernel.
type PolicyRule struct {
	Action    string         `json:"action" yaml:"action"`
	Scope     string         `json:"scope" yaml:"scope"`
	Decision  PolicyDecision `json:"decision" yaml:"decision"`
	Reason    string         `json:"reason,omitempty" yaml:"reason,omitempty"`
	Condition string         `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// PolicyProfile is a named, ordered rule list plus a budget. Rule order is
// the only precedence mechanism.
type PolicyProfile struct {
	Name   string       `json:"name"`
	Rules  []PolicyRule `json:"rules"`
	Budget Budget       `json:"budget"`
}

// Clone returns a deep copy of p.
func (p PolicyProfile) Clone() PolicyProfile {
	out := p
	out.Rules = append([]PolicyRule(nil), p.Rules...)
	out.Budget = p.Budget.Clone()
	return out
}

// Evaluation is the result of evaluating one (action, scope) pair.
// Rule is nil when no rule matched.
type Evaluation struct {
	Action    string         `json:"action"`
	Scope     string         `json:"scope"`
	Rule      *PolicyRule    `json:"rule,omitempty"`
	Decision  PolicyDecision `json:"decision"`
	Reason    string         `json:"reason"`
	Timestamp time.Time      `json:"timestamp"`
}

// BudgetUsage is the observed consumption at check time.
type BudgetUsage struct {
	ElapsedMs   int64   `json:"elapsed_ms"`
	Tokens      int64   `json:"tokens"`
	ToolCalls   int64   `json:"tool_calls"`
	ArtifactsMB float64 `json:"artifacts_mb"`
}

// BudgetDimension names one budget axis.
type BudgetDimension string

const (
	DimensionTime      BudgetDimension = "time"
	DimensionTokens    BudgetDimension = "tokens"
	DimensionToolCalls BudgetDimension = "tool_calls"
	DimensionArtifacts BudgetDimension = "artifacts_mb"
)

// BudgetViolation is the typed form of one violated dimension.
type BudgetViolation struct {
	Dimension BudgetDimension `json:"dimension"`
	Limit     float64         `json:"limit"`
	Observed  float64         `json:"observed"`
	Message   string          `json:"message"`
}

// BudgetCheck reports every violated dimension. Violations and Details are
// parallel lists.
type BudgetCheck struct {
	WithinBudget bool              `json:"within_budget"`
	Violations   []string          `json:"violations"`
	Details      []BudgetViolation `json:"details,omitempty"`
}
