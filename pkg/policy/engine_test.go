package policy

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentos-dev/agentkernel/pkg/contracts"
)

func TestMatchesScope(t *testing.T) {
	tests := []struct {
		pattern string
		scope   string
		want    bool
	}{
		{"*", "anything/at/all", true},
		{"src/app.ts", "src/app.ts", true},
		{"src/*.ts", "src/app.ts", true},
		{"src/*.ts", "src/lib/app.ts", false},
		{"src/**", "src/lib/app.ts", true},
		{"**/*", "src/app.ts", true},
		{"**/*.go", "pkg/policy/engine.go", true},
		{".env*", ".env", true},
		{".env*", ".env.local", true},
		{".env*", "config/.env", false},
		{"file?.txt", "file1.txt", true},
		{"file?.txt", "file12.txt", false},
		{"a?b", "a/b", false},
		{"src/(x)+.ts", "src/(x)+.ts", true},
		{"src/(x)+.ts", "src/xx.ts", false},
		{"[abc]", "a", false},
		{"SRC/*", "src/app.ts", false},
		{"src/*", "src/app.ts/extra", false},
		{"docs/héllo*", "docs/héllo-world", true},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+"|"+tt.scope, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchesScope(tt.pattern, tt.scope))
		})
	}
}

func TestFindMatchingRule_FirstHitWins(t *testing.T) {
	rules := []contracts.PolicyRule{
		{Action: "file.read", Scope: "**", Decision: contracts.DecisionAllow},
		{Action: "file.write", Scope: "secrets/**", Decision: contracts.DecisionDeny},
		{Action: "file.write", Scope: "**", Decision: contracts.DecisionAllow},
	}

	rule, ok := FindMatchingRule(rules, "file.write", "secrets/key.pem")
	require.True(t, ok)
	assert.Equal(t, contracts.DecisionDeny, rule.Decision)

	rule, ok = FindMatchingRule(rules, "file.write", "src/main.go")
	require.True(t, ok)
	assert.Equal(t, contracts.DecisionAllow, rule.Decision)

	_, ok = FindMatchingRule(rules, "shell.exec", "ls")
	assert.False(t, ok)
}

func TestFindMatchingRule_ReturnsCopy(t *testing.T) {
	rules := []contracts.PolicyRule{{Action: "a", Scope: "*", Decision: contracts.DecisionAllow}}
	rule, ok := FindMatchingRule(rules, "a", "x")
	require.True(t, ok)
	rule.Decision = contracts.DecisionDeny
	assert.Equal(t, contracts.DecisionAllow, rules[0].Decision)
}

func TestEvaluate_DefaultDeny(t *testing.T) {
	profile := contracts.PolicyProfile{Name: "empty"}
	eval := Evaluate(profile, "net.fetch", "https://example.com")

	assert.Equal(t, contracts.DecisionDeny, eval.Decision)
	assert.Nil(t, eval.Rule)
	assert.Contains(t, eval.Reason, "No rule matches")
	assert.Contains(t, eval.Reason, "action=net.fetch")
	assert.Contains(t, eval.Reason, "scope=https://example.com")
	assert.False(t, eval.Timestamp.IsZero())
}

func TestEvaluate_ReasonDefaultsToMatchedRule(t *testing.T) {
	profile := BuildProfile(ProfileSpec{
		Name:    "p",
		Allowed: []RuleSpec{{Action: "file.read", Scope: "src/**"}},
		Denied:  []RuleSpec{{Action: "file.read", Scope: "src/secret/**", Reason: "secrets are off limits"}},
	})

	eval := Evaluate(profile, "file.read", "src/app.ts")
	assert.Equal(t, contracts.DecisionAllow, eval.Decision)
	assert.Equal(t, "Matched rule: file.read @ src/**", eval.Reason)

	eval = Evaluate(profile, "file.read", "src/secret/token")
	assert.Equal(t, contracts.DecisionDeny, eval.Decision)
	assert.Equal(t, "secrets are off limits", eval.Reason)
}

func TestEvaluateAt_UsesGivenTimestamp(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	eval := EvaluateAt(contracts.PolicyProfile{}, "a", "b", now)
	assert.Equal(t, now, eval.Timestamp)
}

func TestBuildProfile_Scenario(t *testing.T) {
	profile := BuildProfile(ProfileSpec{
		Name:    "default",
		Denied:  []RuleSpec{{Action: "file.write", Scope: ".env*"}},
		Allowed: []RuleSpec{{Action: "file.write", Scope: "**/*"}},
	})

	assert.Equal(t, contracts.DecisionDeny, Evaluate(profile, "file.write", ".env").Decision)
	assert.Equal(t, contracts.DecisionAllow, Evaluate(profile, "file.write", "src/app.ts").Decision)
}

func TestBuildProfile_DenyFirstRegardlessOfInputOrder(t *testing.T) {
	spec := ProfileSpec{
		Name:            "ordered",
		Allowed:         []RuleSpec{{Action: "x", Scope: "**"}, {Action: "y", Scope: "**"}},
		RequireApproval: []RuleSpec{{Action: "x", Scope: "deploy/**"}},
		Denied:          []RuleSpec{{Action: "x", Scope: "deploy/prod/**"}},
	}
	profile := BuildProfile(spec)

	require.Len(t, profile.Rules, 4)
	assert.Equal(t, contracts.DecisionDeny, profile.Rules[0].Decision)
	assert.Equal(t, contracts.DecisionRequireApproval, profile.Rules[1].Decision)
	assert.Equal(t, contracts.DecisionAllow, profile.Rules[2].Decision)
	assert.Equal(t, "x", profile.Rules[2].Action)
	assert.Equal(t, "y", profile.Rules[3].Action)

	assert.Equal(t, contracts.DecisionDeny, Evaluate(profile, "x", "deploy/prod/db").Decision)
	assert.Equal(t, contracts.DecisionRequireApproval, Evaluate(profile, "x", "deploy/staging/db").Decision)
	assert.Equal(t, contracts.DecisionAllow, Evaluate(profile, "x", "src/db").Decision)
}

func TestBuildProfile_DoesNotShareBudgetPointers(t *testing.T) {
	spec := ProfileSpec{Name: "b", Budget: contracts.Budget{MaxTimeMs: 1, MaxTokens: 1, MaxToolCalls: contracts.Int64(3)}}
	profile := BuildProfile(spec)
	*spec.Budget.MaxToolCalls = 10
	assert.Equal(t, int64(3), *profile.Budget.MaxToolCalls)
}

func TestBatchHelpers(t *testing.T) {
	profile := BuildProfile(ProfileSpec{
		Name:            "batch",
		Denied:          []RuleSpec{{Action: "shell.exec", Scope: "rm *"}},
		RequireApproval: []RuleSpec{{Action: "git.push", Scope: "*"}},
		Allowed:         []RuleSpec{{Action: "file.read", Scope: "**"}, {Action: "shell.exec", Scope: "*"}},
	})

	evals := EvaluateBatch(profile, []Request{
		{Action: "file.read", Scope: "README.md"},
		{Action: "shell.exec", Scope: "rm -rf"},
		{Action: "git.push", Scope: "origin"},
		{Action: "net.fetch", Scope: "example.com"},
	})
	require.Len(t, evals, 4)
	assert.False(t, AllAllowed(evals))
	assert.Len(t, Denied(evals), 2)
	require.Len(t, NeedsApproval(evals), 1)
	assert.Equal(t, "git.push", NeedsApproval(evals)[0].Action)

	assert.True(t, AllAllowed(evals[:1]))
	assert.True(t, AllAllowed(nil))
	assert.Empty(t, Denied(evals[:1]))
}

func TestCheckBudget(t *testing.T) {
	budget := contracts.Budget{
		MaxTimeMs:      60000,
		MaxTokens:      10000,
		MaxToolCalls:   contracts.Int64(2),
		MaxArtifactsMB: contracts.Float64(1),
	}

	tests := []struct {
		name     string
		usage    contracts.BudgetUsage
		violated []string
	}{
		{"within", contracts.BudgetUsage{ElapsedMs: 60000, Tokens: 10000, ToolCalls: 2, ArtifactsMB: 1}, nil},
		{"tool calls", contracts.BudgetUsage{ToolCalls: 3}, []string{"Tool call budget exceeded"}},
		{"time and tokens", contracts.BudgetUsage{ElapsedMs: 60001, Tokens: 10001}, []string{"Time budget exceeded", "Token budget exceeded"}},
		{"all four", contracts.BudgetUsage{ElapsedMs: 70000, Tokens: 20000, ToolCalls: 5, ArtifactsMB: 1.5}, []string{
			"Time budget exceeded", "Token budget exceeded", "Tool call budget exceeded", "Artifact storage budget exceeded",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := CheckBudget(budget, tt.usage)
			require.Len(t, check.Violations, len(tt.violated))
			require.Len(t, check.Details, len(tt.violated))
			assert.Equal(t, len(tt.violated) == 0, check.WithinBudget)
			for i, prefix := range tt.violated {
				assert.True(t, strings.HasPrefix(check.Violations[i], prefix), check.Violations[i])
				assert.Equal(t, check.Violations[i], check.Details[i].Message)
			}
		})
	}
}

func TestCheckBudget_OptionalCeilingsUnconstrained(t *testing.T) {
	budget := contracts.Budget{MaxTimeMs: 10, MaxTokens: 10}
	check := CheckBudget(budget, contracts.BudgetUsage{ToolCalls: 1 << 40, ArtifactsMB: 1e9})
	assert.True(t, check.WithinBudget)
	assert.Empty(t, check.Violations)
}

func TestCheckBudget_TypedDetails(t *testing.T) {
	check := CheckBudget(contracts.Budget{MaxTimeMs: 100, MaxTokens: 100}, contracts.BudgetUsage{Tokens: 150})
	require.Len(t, check.Details, 1)
	assert.Equal(t, contracts.DimensionTokens, check.Details[0].Dimension)
	assert.Equal(t, float64(100), check.Details[0].Limit)
	assert.Equal(t, float64(150), check.Details[0].Observed)
}
