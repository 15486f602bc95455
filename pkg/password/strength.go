// Package password implements the credential policy engine: strength
// scoring, reuse-history enforcement, role-tiered rules and suggestion
// generation. All entry points are pure functions over caller-supplied
// state; persistence lives behind the HistoryStore interface.
package password

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	MinLength = 8
	MaxLength = 128
)

// Strength buckets a password by how many requirements it misses
type Strength string

const (
	StrengthStrong Strength = "strong" // zero violations
	StrengthMedium Strength = "medium" // one or two violations
	StrengthWeak   Strength = "weak"   // three or more
)

// Common weak substrings rejected anywhere in a password, case-insensitive
var weakSubstrings = []string{
	"password",
	"123456",
	"admin",
	"qwerty",
	"letmein",
}

// StrengthResult reports every violated requirement at once
type StrengthResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Strength Strength `json:"strength"`
}

// ValidateStrength checks a candidate password against the baseline
// requirements. Each failed check contributes its own error message; the
// result never panics and carries no state.
func ValidateStrength(password string) StrengthResult {
	errs := make([]string, 0, 4)

	if len(password) < MinLength {
		errs = append(errs, fmt.Sprintf("must be at least %d characters", MinLength))
	}
	if len(password) > MaxLength {
		errs = append(errs, fmt.Sprintf("must be at most %d characters", MaxLength))
	}

	hasLower := false
	hasUpper := false
	hasDigit := false
	hasSpecial := false

	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	if !hasLower {
		errs = append(errs, "must contain at least one lowercase letter")
	}
	if !hasUpper {
		errs = append(errs, "must contain at least one uppercase letter")
	}
	if !hasDigit {
		errs = append(errs, "must contain at least one digit")
	}
	if !hasSpecial {
		errs = append(errs, "must contain at least one special character")
	}

	lowered := strings.ToLower(password)
	for _, weak := range weakSubstrings {
		if strings.Contains(lowered, weak) {
			errs = append(errs, fmt.Sprintf("must not contain the common sequence %q", weak))
			break
		}
	}

	return StrengthResult{
		Valid:    len(errs) == 0,
		Errors:   errs,
		Strength: classify(len(errs)),
	}
}

func classify(violations int) Strength {
	switch {
	case violations == 0:
		return StrengthStrong
	case violations <= 2:
		return StrengthMedium
	default:
		return StrengthWeak
	}
}

// countSpecial counts punctuation and symbol runes
func countSpecial(password string) int {
	n := 0
	for _, r := range password {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			n++
		}
	}
	return n
}
