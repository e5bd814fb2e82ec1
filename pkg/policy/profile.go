package policy

import "github.com/agentos-dev/agentkernel/pkg/contracts"

// RuleSpec is a rule without its decision; the group it is listed under
// in a ProfileSpec supplies the decision.
type RuleSpec struct {
	Action    string `json:"action" yaml:"action"`
	Scope     string `json:"scope" yaml:"scope"`
	Reason    string `json:"reason,omitempty" yaml:"reason,omitempty"`
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// ProfileSpec is the declarative input to BuildProfile.
type ProfileSpec struct {
	Name            string           `json:"name" yaml:"name"`
	Denied          []RuleSpec       `json:"denied,omitempty" yaml:"denied,omitempty"`
	RequireApproval []RuleSpec       `json:"require_approval,omitempty" yaml:"require_approval,omitempty"`
	Allowed         []RuleSpec       `json:"allowed,omitempty" yaml:"allowed,omitempty"`
	Budget          contracts.Budget `json:"budget" yaml:"budget"`
}

// BuildProfile turns a ProfileSpec into an ordered profile: every denial, then
// every approval requirement, then every allowance. Order within a group
// is preserved. Since FindMatchingRule stops at the first hit, this gives
// deny > approval > allow precedence.
func BuildProfile(spec ProfileSpec) contracts.PolicyProfile {
	rules := make([]contracts.PolicyRule, 0, len(spec.Denied)+len(spec.RequireApproval)+len(spec.Allowed))
	rules = appendGroup(rules, spec.Denied, contracts.DecisionDeny)
	rules = appendGroup(rules, spec.RequireApproval, contracts.DecisionRequireApproval)
	rules = appendGroup(rules, spec.Allowed, contracts.DecisionAllow)
	return contracts.PolicyProfile{
		Name:   spec.Name,
		Rules:  rules,
		Budget: spec.Budget.Clone(),
	}
}

func appendGroup(rules []contracts.PolicyRule, group []RuleSpec, d contracts.PolicyDecision) []contracts.PolicyRule {
	for _, r := range group {
		rules = append(rules, contracts.PolicyRule{
			Action:    r.Action,
			Scope:     r.Scope,
			Decision:  d,
			Reason:    r.Reason,
			Condition: r.Condition,
		})
	}
	return rules
}
