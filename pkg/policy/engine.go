// Package policy is the kernel's policy engine: scoped glob rule matching,
// ALLOW/DENY/REQUIRE_APPROVAL evaluation and budget checks.
//
// Every function here is a pure function of its arguments. Profiles are
// never mutated and evaluations are never cached.
package policy

import (
	"fmt"
	"time"

	"github.com/agentos-dev/agentkernel/pkg/contracts"
)

// Request is one (action, scope) pair for batch evaluation.
type Request struct {
	Action string `json:"action"`
	Scope  string `json:"scope"`
}

// FindMatchingRule returns the first rule, in order, whose action equals
// action and whose scope pattern matches scope.
func FindMatchingRule(rules []contracts.PolicyRule, action, scope string) (*contracts.PolicyRule, bool) {
	for i := range rules {
		if rules[i].Action == action && MatchesScope(rules[i].Scope, scope) {
			rule := rules[i]
			return &rule, true
		}
	}
	return nil, false
}

// Evaluate decides whether action against scope is permitted by profile.
// No matching rule means DENY.
func Evaluate(profile contracts.PolicyProfile, action, scope string) contracts.Evaluation {
	return EvaluateAt(profile, action, scope, time.Now().UTC())
}

// EvaluateAt is Evaluate with an explicit evaluation timestamp.
func EvaluateAt(profile contracts.PolicyProfile, action, scope string, now time.Time) contracts.Evaluation {
	rule, ok := FindMatchingRule(profile.Rules, action, scope)
	if !ok {
		return contracts.Evaluation{
			Action:    action,
			Scope:     scope,
			Decision:  contracts.DecisionDeny,
			Reason:    fmt.Sprintf("No rule matches action=%s scope=%s; default deny", action, scope),
			Timestamp: now,
		}
	}
	reason := rule.Reason
	if reason == "" {
		reason = fmt.Sprintf("Matched rule: %s @ %s", rule.Action, rule.Scope)
	}
	return contracts.Evaluation{
		Action:    action,
		Scope:     scope,
		Rule:      rule,
		Decision:  rule.Decision,
		Reason:    reason,
		Timestamp: now,
	}
}

// EvaluateBatch evaluates every request in order.
func EvaluateBatch(profile contracts.PolicyProfile, reqs []Request) []contracts.Evaluation {
	now := time.Now().UTC()
	out := make([]contracts.Evaluation, len(reqs))
	for i, r := range reqs {
		out[i] = EvaluateAt(profile, r.Action, r.Scope, now)
	}
	return out
}

// AllAllowed reports whether every evaluation is ALLOW. An empty list is
// vacuously allowed.
func AllAllowed(evals []contracts.Evaluation) bool {
	for _, e := range evals {
		if e.Decision != contracts.DecisionAllow {
			return false
		}
	}
	return true
}

// Denied returns the DENY evaluations.
func Denied(evals []contracts.Evaluation) []contracts.Evaluation {
	return filter(evals, contracts.DecisionDeny)
}

// NeedsApproval returns the REQUIRE_APPROVAL evaluations.
func NeedsApproval(evals []contracts.Evaluation) []contracts.Evaluation {
	return filter(evals, contracts.DecisionRequireApproval)
}

func filter(evals []contracts.Evaluation, d contracts.PolicyDecision) []contracts.Evaluation {
	out := []contracts.Evaluation{}
	for _, e := range evals {
		if e.Decision == d {
			out = append(out, e)
		}
	}
	return out
}
