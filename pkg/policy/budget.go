package policy

import (
	"fmt"

	"github.com/agentos-dev/agentkernel/pkg/contracts"
)

// CheckBudget compares usage with budget on all four dimensions and
// reports every violated one. Unset optional ceilings are unconstrained.
func CheckBudget(budget contracts.Budget, usage contracts.BudgetUsage) contracts.BudgetCheck {
	check := contracts.BudgetCheck{Violations: []string{}}

	add := func(dim contracts.BudgetDimension, limit, observed float64, msg string) {
		check.Violations = append(check.Violations, msg)
		check.Details = append(check.Details, contracts.BudgetViolation{
			Dimension: dim,
			Limit:     limit,
			Observed:  observed,
			Message:   msg,
		})
	}

	if usage.ElapsedMs > budget.MaxTimeMs {
		add(contracts.DimensionTime, float64(budget.MaxTimeMs), float64(usage.ElapsedMs),
			fmt.Sprintf("Time budget exceeded: %dms > %dms", usage.ElapsedMs, budget.MaxTimeMs))
	}
	if usage.Tokens > budget.MaxTokens {
		add(contracts.DimensionTokens, float64(budget.MaxTokens), float64(usage.Tokens),
			fmt.Sprintf("Token budget exceeded: %d > %d", usage.Tokens, budget.MaxTokens))
	}
	if budget.MaxToolCalls != nil && usage.ToolCalls > *budget.MaxToolCalls {
		add(contracts.DimensionToolCalls, float64(*budget.MaxToolCalls), float64(usage.ToolCalls),
			fmt.Sprintf("Tool call budget exceeded: %d > %d", usage.ToolCalls, *budget.MaxToolCalls))
	}
	if budget.MaxArtifactsMB != nil && usage.ArtifactsMB > *budget.MaxArtifactsMB {
		add(contracts.DimensionArtifacts, *budget.MaxArtifactsMB, usage.ArtifactsMB,
			fmt.Sprintf("Artifact storage budget exceeded: %.2fMB > %.2fMB", usage.ArtifactsMB, *budget.MaxArtifactsMB))
	}

	check.WithinBudget = len(check.Violations) == 0
	return check
}
