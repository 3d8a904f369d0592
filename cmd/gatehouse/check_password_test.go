// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse/gatehouse/pkg/errutil"
)

func TestCheckPassword(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		stdin      string
		wantErr    bool
		wantOutput []string
	}{
		{
			name:       "strong password from argument",
			args:       []string{"check-password", "Abc12345!"},
			wantOutput: []string{"Password meets all requirements"},
		},
		{
			name:    "weak password lists every violation",
			args:    []string{"check-password", "abc"},
			wantErr: true,
			wantOutput: []string{
				"Password must be at least 8 characters long",
				"Password must contain at least one uppercase letter",
				"Password must contain at least one number",
				"Password must contain at least one special character",
			},
		},
		{
			name:       "password from stdin",
			args:       []string{"check-password"},
			stdin:      "Abc12345!\n",
			wantOutput: []string{"Password meets all requirements"},
		},
		{
			name:       "empty stdin is rejected",
			args:       []string{"check-password"},
			wantErr:    true,
			wantOutput: []string{"at least 8 characters"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			cmd := NewRootCmd()
			cmd.SetIn(strings.NewReader(tt.stdin))

			output, err := execute(t, cmd, tt.args...)
			if tt.wantErr {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, "AUTH_WEAK_PASSWORD")
			} else {
				require.NoError(t, err)
			}
			for _, want := range tt.wantOutput {
				assert.Contains(t, output, want)
			}
		})
	}
}

func TestCheckPassword_JSON(t *testing.T) {
	isolate(t)

	output, err := execute(t, NewRootCmd(), "check-password", "--json", "abc")
	require.Error(t, err)

	var result struct {
		Valid  bool     `json:"valid"`
		Errors []string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &result))
	assert.False(t, result.Valid)
	assert.GreaterOrEqual(t, len(result.Errors), 4)
}

func TestCheckPassword_UsesConfiguredPolicy(t *testing.T) {
	isolate(t)
	t.Setenv("GATEHOUSE_PASSWORD_MIN_LENGTH", "12")

	output, err := execute(t, NewRootCmd(), "check-password", "Abc12345!")
	require.Error(t, err)
	assert.Contains(t, output, "at least 12 characters")
}
