// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate keeps commands away from the developer's real configuration.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Chdir(t.TempDir())
	configFile = ""
	envFile = ""
	t.Cleanup(func() {
		configFile = ""
		envFile = ""
	})
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand_HasExpectedSubcommands(t *testing.T) {
	isolate(t)
	output, err := execute(t, NewRootCmd(), "--help")
	require.NoError(t, err)

	for _, sub := range []string{"serve", "migrate", "check-password", "config"} {
		assert.Contains(t, output, sub, "Help missing %q command", sub)
	}
}

func TestRootCommand_GlobalFlags(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		wantConfig  string
		wantEnvFile string
	}{
		{
			name:       "config flag",
			args:       []string{"--config", "/path/to/config.yaml", "--help"},
			wantConfig: "/path/to/config.yaml",
		},
		{
			name:       "config flag with equals",
			args:       []string{"--config=/etc/gatehouse.yaml", "--help"},
			wantConfig: "/etc/gatehouse.yaml",
		},
		{
			name:        "env file flag",
			args:        []string{"--env-file", "prod.env", "--help"},
			wantEnvFile: "prod.env",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			_, err := execute(t, NewRootCmd(), tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.wantConfig, configFile)
			assert.Equal(t, tt.wantEnvFile, envFile)
		})
	}
}

func TestRootCommand_VersionFlag(t *testing.T) {
	cmd := NewRootCmd()
	cmd.Version = "test-version"

	output, err := execute(t, cmd, "--version")
	require.NoError(t, err)
	assert.Contains(t, output, "test-version")
}

func TestRootCommand_NoArgs(t *testing.T) {
	_, err := execute(t, NewRootCmd())
	require.NoError(t, err)
}

func TestUnknownCommand(t *testing.T) {
	_, err := execute(t, NewRootCmd(), "nonexistent")
	require.Error(t, err)
}

func TestInvalidFlag(t *testing.T) {
	_, err := execute(t, NewRootCmd(), "--invalid-flag")
	require.Error(t, err)
}

func TestFormatVersion(t *testing.T) {
	tests := []struct {
		name     string
		version  string
		commit   string
		date     string
		expected string
	}{
		{
			name:     "default values",
			version:  "dev",
			commit:   "unknown",
			date:     "unknown",
			expected: "dev (commit: unknown, built: unknown)",
		},
		{
			name:     "release version",
			version:  "1.0.0",
			commit:   "abc123",
			date:     "2026-01-15",
			expected: "1.0.0 (commit: abc123, built: 2026-01-15)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatVersion(tt.version, tt.commit, tt.date))
		})
	}
}
