// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

// NewCheckPasswordCmd creates the check-password subcommand.
func NewCheckPasswordCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "check-password [PASSWORD]",
		Short: "Check a password against the configured complexity rules",
		Long: `Check a password against the configured complexity rules without
contacting a server. Reads the password from stdin when no argument is given.
Exits with status 1 when the password is rejected.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			var candidate string
			if len(args) == 1 {
				candidate = args[0]
			} else if candidate, err = readPassword(cmd.InOrStdin()); err != nil {
				return err
			}

			result := cfg.PasswordPolicy().Validate(candidate)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(result); err != nil {
					return oops.With("operation", "encode result").Wrap(err)
				}
			} else if result.Valid {
				cmd.Println("Password meets all requirements")
			} else {
				cmd.Println("Password does not meet requirements:")
				for _, v := range result.Violations {
					cmd.Println("  - " + v)
				}
			}

			if !result.Valid {
				cmd.SilenceErrors = true
				return oops.Code("AUTH_WEAK_PASSWORD").
					With("violations", result.Violations).
					Errorf("password rejected")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

// readPassword reads the first line of r.
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", oops.Code("INPUT_READ_FAILED").Wrap(err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
