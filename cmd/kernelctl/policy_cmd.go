package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentos-dev/agentkernel/pkg/contracts"
	"github.com/agentos-dev/agentkernel/pkg/policy"
	"github.com/agentos-dev/agentkernel/pkg/policyloader"
)

func newPolicyCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Evaluate and validate policy profiles",
	}
	cmd.AddCommand(newPolicyEvalCommand(a), newPolicyBudgetCommand(a), newPolicyValidateCommand(a))
	return cmd
}

// loadProfile resolves ref as a profile file, or else as a profile name in
// the configured policy directory. An empty ref means the configured
// default profile.
func (a *app) loadProfile(ref string) (contracts.PolicyProfile, error) {
	if ref == "" {
		ref = a.cfg.Policy.Profile
	}
	if _, ok := policyloader.FormatFromPath(ref); ok {
		if _, err := os.Stat(ref); err == nil {
			return policyloader.LoadFile(ref)
		}
	}

	loader := policyloader.NewLoader(a.cfg.Policy.Path)
	if err := loader.LoadAll(); err != nil {
		return contracts.PolicyProfile{}, err
	}
	p, ok := loader.Profile(ref)
	if !ok {
		return contracts.PolicyProfile{}, fmt.Errorf("policy profile %q not found in %s (have: %s)",
			ref, a.cfg.Policy.Path, strings.Join(loader.Names(), ", "))
	}
	return p, nil
}

func newPolicyEvalCommand(a *app) *cobra.Command {
	var profileRef, action, scope string

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate an action against a scope",
		Long: `Evaluate an (action, scope) pair against a policy profile.

Exits 0 when the action is allowed and 3 when it is denied or needs approval.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := a.loadProfile(profileRef)
			if err != nil {
				return err
			}
			eval := policy.Evaluate(p, action, scope)

			if a.jsonOut {
				if err := a.printJSON(eval); err != nil {
					return err
				}
			} else {
				a.printf("%s %s %s: %s\n", eval.Decision, action, scope, eval.Reason)
			}
			if eval.Decision != contracts.DecisionAllow {
				return withCode(exitDenied, "%s", eval.Reason)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&profileRef, "profile", "", "Profile file or name (default KERNEL_POLICY_PROFILE)")
	cmd.Flags().StringVar(&action, "action", "", "Action to evaluate")
	cmd.Flags().StringVar(&scope, "scope", "", "Scope the action targets")
	_ = cmd.MarkFlagRequired("action")
	_ = cmd.MarkFlagRequired("scope")
	return cmd
}

func newPolicyBudgetCommand(a *app) *cobra.Command {
	var (
		profileRef string
		usage      contracts.BudgetUsage
	)

	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Check usage against a profile's budget",
		Long: `Check resource usage against the budget of a policy profile.

Every exceeded dimension is reported. Exits 3 when any is over budget.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := a.loadProfile(profileRef)
			if err != nil {
				return err
			}
			check := policy.CheckBudget(p.Budget, usage)

			if a.jsonOut {
				if err := a.printJSON(check); err != nil {
					return err
				}
			} else if check.WithinBudget {
				a.printf("within budget\n")
			} else {
				for _, v := range check.Violations {
					a.printf("%s\n", v)
				}
			}
			if !check.WithinBudget {
				return withCode(exitDenied, "%s", strings.Join(check.Violations, "; "))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&profileRef, "profile", "", "Profile file or name (default KERNEL_POLICY_PROFILE)")
	cmd.Flags().Int64Var(&usage.ElapsedMs, "elapsed-ms", 0, "Elapsed wall-clock time in milliseconds")
	cmd.Flags().Int64Var(&usage.Tokens, "tokens", 0, "Tokens consumed")
	cmd.Flags().Int64Var(&usage.ToolCalls, "tool-calls", 0, "Tool calls made")
	cmd.Flags().Float64Var(&usage.ArtifactsMB, "artifacts-mb", 0, "Artifact volume in MB")
	return cmd
}

func newPolicyValidateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE...",
		Short: "Validate policy profile documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var failed []error
			for _, path := range args {
				p, err := policyloader.LoadFile(path)
				if err != nil {
					failed = append(failed, err)
					a.printf("FAIL %s\n", path)
					var le *policyloader.LoadError
					if errors.As(err, &le) {
						for _, problem := range le.Problems {
							a.printf("  - %s\n", problem)
						}
					} else {
						a.printf("  - %v\n", err)
					}
					continue
				}
				if res := contracts.ValidateProfile(p); !res.Valid() {
					failed = append(failed, res.Err())
					a.printf("FAIL %s\n", path)
					for _, fe := range res.Errors {
						a.printf("  - %s\n", fe)
					}
					continue
				}
				a.printf("ok   %s (%s, %d rules)\n", path, p.Name, len(p.Rules))
			}
			if len(failed) > 0 {
				return withCode(exitError, "%d of %d profiles invalid", len(failed), len(args))
			}
			return nil
		},
	}
}
