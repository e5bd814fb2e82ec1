//go:build property
// +build property

package policy_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/agentos-dev/agentkernel/pkg/contracts"
	"github.com/agentos-dev/agentkernel/pkg/policy"
)

// Property: a pattern always matches itself and "*" matches every scope.
func TestMatchesScopeReflexive(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("pattern matches itself", prop.ForAll(
		func(s string) bool {
			return policy.MatchesScope(s, s) && policy.MatchesScope("*", s)
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

// Property: an empty profile denies every pair, naming the pair in the reason.
func TestDefaultDenyProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("unmatched pairs are denied", prop.ForAll(
		func(action, scope string) bool {
			eval := policy.Evaluate(contracts.PolicyProfile{}, action, scope)
			want := "No rule matches action=" + action + " scope=" + scope + "; default deny"
			return eval.Decision == contracts.DecisionDeny && eval.Reason == want
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

// Property: with N exceeded dimensions CheckBudget reports exactly N violations.
func TestCheckBudgetAdditivity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	budget := contracts.Budget{
		MaxTimeMs:      1000,
		MaxTokens:      1000,
		MaxToolCalls:   contracts.Int64(10),
		MaxArtifactsMB: contracts.Float64(5),
	}

	properties.Property("violation count equals exceeded dimensions", prop.ForAll(
		func(overTime, overTokens, overTools, overArtifacts bool) bool {
			usage := contracts.BudgetUsage{ElapsedMs: 1000, Tokens: 1000, ToolCalls: 10, ArtifactsMB: 5}
			n := 0
			if overTime {
				usage.ElapsedMs++
				n++
			}
			if overTokens {
				usage.Tokens++
				n++
			}
			if overTools {
				usage.ToolCalls++
				n++
			}
			if overArtifacts {
				usage.ArtifactsMB += 0.5
				n++
			}
			check := policy.CheckBudget(budget, usage)
			return len(check.Violations) == n && check.WithinBudget == (n == 0)
		},
		gen.Bool(), gen.Bool(), gen.Bool(), gen.Bool(),
	))

	properties.TestingRun(t)
}
