// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

const (
	msgLength = "Password must be at least 8 characters long"
	msgUpper  = "Password must contain at least one uppercase letter"
	msgLower  = "Password must contain at least one lowercase letter"
	msgDigit  = "Password must contain at least one number"
	msgSymbol = "Password must contain at least one special character"
)

func TestPasswordPolicy_Validate(t *testing.T) {
	policy := auth.DefaultPasswordPolicy()

	tests := []struct {
		name      string
		candidate string
		want      []string
	}{
		{name: "valid", candidate: "Abc12345!", want: []string{}},
		{name: "short with everything missing", candidate: "abc", want: []string{msgLength, msgUpper, msgDigit, msgSymbol}},
		{name: "empty", candidate: "", want: []string{msgLength, msgUpper, msgLower, msgDigit, msgSymbol}},
		{name: "no uppercase", candidate: "abc12345!", want: []string{msgUpper}},
		{name: "no lowercase", candidate: "ABC12345!", want: []string{msgLower}},
		{name: "no digit", candidate: "Abcdefgh!", want: []string{msgDigit}},
		{name: "no symbol", candidate: "Abc123456", want: []string{msgSymbol}},
		{name: "exactly eight", candidate: "Abcd12#x", want: []string{}},
		{name: "seven characters", candidate: "Abc12#x", want: []string{msgLength}},
		{name: "bracket counts as symbol", candidate: "Abc12345[", want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := policy.Validate(tt.candidate)
			assert.Equal(t, tt.want, got.Violations)
			assert.Equal(t, len(tt.want) == 0, got.Valid)
		})
	}
}

func TestPasswordPolicy_ValidateCustom(t *testing.T) {
	policy := auth.PasswordPolicy{MinLength: 4, RequireDigit: true}

	assert.True(t, policy.Validate("abc1").Valid)
	assert.Equal(t, []string{"Password must be at least 4 characters long"}, policy.Validate("ab1").Violations)
}

func TestPasswordPolicy_Check(t *testing.T) {
	policy := auth.DefaultPasswordPolicy()

	require.NoError(t, policy.Check("Abc12345!"))

	err := policy.Check("abc")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, auth.CodeWeakPassword)
	assert.Equal(t, auth.KindPolicyViolation, auth.KindOf(err))
	assert.GreaterOrEqual(t, len(auth.Violations(err)), 4)
	errutil.AssertPublicMessage(t, err, "Password does not meet requirements")
}
