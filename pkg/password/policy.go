package password

import (
	"context"
	"fmt"
	"strings"
)

// Policy tier names, matched to account roles
const (
	TierUser       = "user"
	TierAdmin      = "admin"
	TierSuperAdmin = "superAdmin"
)

// Rule is a named predicate applied after strength validation. Check
// returns true when the password satisfies the rule.
type Rule struct {
	Name    string
	Message string
	Check   func(password string) bool
}

// Policy bundles the rules applied to one account tier
type Policy struct {
	Name         string
	HistoryLimit int // entries consulted during the reuse check
	MaxHistory   int // entries retained after acceptance
	Rules        []Rule
}

// Decision is the structured outcome of a policy application. Reason is set
// only when Allowed is false and names the specific failed requirement.
type Decision struct {
	Allowed bool
	Reason  string
}

// Violation is the error surfaced when a candidate fails policy. Recoverable;
// the caller shows Reason to the account holder.
type Violation struct {
	Policy string
	Reason string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("password rejected by %s policy: %s", v.Policy, v.Reason)
}

// Context carries the optional account identity for history checking. A zero
// value skips the reuse check.
type Context struct {
	AccountID string
	History   HistoryStore
}

func minLengthRule(n int) Rule {
	return Rule{
		Name:    "min_length",
		Message: fmt.Sprintf("must be at least %d characters", n),
		Check:   func(pw string) bool { return len(pw) >= n },
	}
}

func blockedSubstringsRule(blocked ...string) Rule {
	return Rule{
		Name:    "blocked_substrings",
		Message: fmt.Sprintf("must not contain any of: %s", strings.Join(blocked, ", ")),
		Check: func(pw string) bool {
			lowered := strings.ToLower(pw)
			for _, b := range blocked {
				if strings.Contains(lowered, b) {
					return false
				}
			}
			return true
		},
	}
}

func minSpecialRule(n int) Rule {
	return Rule{
		Name:    "min_special",
		Message: fmt.Sprintf("must contain at least %d special characters", n),
		Check:   func(pw string) bool { return countSpecial(pw) >= n },
	}
}

// PolicyFor returns the configuration for a named tier. Lookup is
// case-insensitive, so "superAdmin" and "superadmin" name the same policy.
// Unknown names fall back to the user tier.
func PolicyFor(name string) Policy {
	switch strings.ToLower(name) {
	case TierAdmin:
		return Policy{
			Name:         TierAdmin,
			HistoryLimit: 10,
			MaxHistory:   10,
			Rules: []Rule{
				minLengthRule(12),
				blockedSubstringsRule("admin", "password", "root", "administrator"),
			},
		}
	case "superadmin":
		return Policy{
			Name:         TierSuperAdmin,
			HistoryLimit: 15,
			MaxHistory:   15,
			Rules: []Rule{
				minLengthRule(16),
				blockedSubstringsRule("admin", "password", "root", "administrator",
					"superuser", "sysadmin", "master", "secret"),
				minSpecialRule(2),
			},
		}
	default:
		return Policy{
			Name:         TierUser,
			HistoryLimit: 5,
			MaxHistory:   DefaultMaxHistory,
			Rules: []Rule{
				minLengthRule(MinLength),
			},
		}
	}
}

// Apply validates a candidate password against a tier policy: strength
// first (all violations reported together), then the reuse history when an
// account is supplied, then each custom rule in order, short-circuiting on
// the first failure.
func Apply(ctx context.Context, policy Policy, candidate string, pc Context) (Decision, error) {
	if result := ValidateStrength(candidate); !result.Valid {
		return Decision{Reason: strings.Join(result.Errors, "; ")}, nil
	}

	if pc.AccountID != "" && pc.History != nil {
		reused, err := IsRecentlyUsed(ctx, pc.History, pc.AccountID, candidate, policy.HistoryLimit)
		if err != nil {
			return Decision{}, err
		}
		if reused {
			return Decision{Reason: fmt.Sprintf("must not match any of the last %d passwords", policy.HistoryLimit)}, nil
		}
	}

	for _, rule := range policy.Rules {
		if !rule.Check(candidate) {
			return Decision{Reason: rule.Message}, nil
		}
	}

	return Decision{Allowed: true}, nil
}
