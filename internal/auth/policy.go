// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/samber/oops"
)

// DefaultSymbols is the punctuation set that satisfies the special character rule.
const DefaultSymbols = "!@#$%^&*(),.?\":{}|<>[]\\-_=+;'/`~"

// PasswordPolicy holds the complexity rules for new passwords.
type PasswordPolicy struct {
	MinLength     int
	RequireUpper  bool
	RequireLower  bool
	RequireDigit  bool
	RequireSymbol bool
	Symbols       string
}

// DefaultPasswordPolicy returns the standard rules: at least 8 characters
// with an uppercase letter, a lowercase letter, a number and a special character.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:     8,
		RequireUpper:  true,
		RequireLower:  true,
		RequireDigit:  true,
		RequireSymbol: true,
		Symbols:       DefaultSymbols,
	}
}

// PolicyResult is the outcome of validating a candidate password.
type PolicyResult struct {
	Valid      bool     `json:"valid"`
	Violations []string `json:"errors"`
}

// Validate checks candidate against every rule and reports all violations
// in a fixed order: length, uppercase, lowercase, number, special character.
func (p PasswordPolicy) Validate(candidate string) PolicyResult {
	violations := []string{}

	if utf8.RuneCountInString(candidate) < p.MinLength {
		violations = append(violations, fmt.Sprintf("Password must be at least %d characters long", p.MinLength))
	}
	if p.RequireUpper && !strings.ContainsFunc(candidate, unicode.IsUpper) {
		violations = append(violations, "Password must contain at least one uppercase letter")
	}
	if p.RequireLower && !strings.ContainsFunc(candidate, unicode.IsLower) {
		violations = append(violations, "Password must contain at least one lowercase letter")
	}
	if p.RequireDigit && !strings.ContainsFunc(candidate, unicode.IsDigit) {
		violations = append(violations, "Password must contain at least one number")
	}
	if p.RequireSymbol && !strings.ContainsAny(candidate, p.symbols()) {
		violations = append(violations, "Password must contain at least one special character")
	}

	return PolicyResult{Valid: len(violations) == 0, Violations: violations}
}

// Check validates candidate and returns a policy violation error listing
// every broken rule, or nil.
func (p PasswordPolicy) Check(candidate string) error {
	result := p.Validate(candidate)
	if result.Valid {
		return nil
	}
	return oops.Code(CodeWeakPassword).
		With(ContextViolations, result.Violations).
		Public("Password does not meet requirements").
		Errorf("password violates %d complexity rule(s)", len(result.Violations))
}

func (p PasswordPolicy) symbols() string {
	if p.Symbols == "" {
		return DefaultSymbols
	}
	return p.Symbols
}
