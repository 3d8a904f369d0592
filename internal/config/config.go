// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package config loads the Gatehouse configuration from defaults, an optional
// YAML file, an optional .env file, the process environment and command-line
// flags, in increasing order of precedence.
package config

import (
	"time"

	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/access"
	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/logging"
	"github.com/gatehouse/gatehouse/internal/session"
)

// Storage drivers.
const (
	DriverFile     = "file"
	DriverPostgres = "postgres"
)

// Log formats.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Default values.
const (
	DefaultAddr        = ":3000"
	DefaultMetricsAddr = "127.0.0.1:9100"
	DefaultSessionTTL  = 24 * time.Hour
)

// Redacted replaces secrets in printed configuration.
const Redacted = "[redacted]"

// Config is the effective Gatehouse configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server" yaml:"server"`
	Metrics  MetricsConfig  `koanf:"metrics" yaml:"metrics"`
	Log      LogConfig      `koanf:"log" yaml:"log"`
	Storage  StorageConfig  `koanf:"storage" yaml:"storage"`
	Admin    AdminConfig    `koanf:"admin" yaml:"admin"`
	Lockout  LockoutConfig  `koanf:"lockout" yaml:"lockout"`
	Session  SessionConfig  `koanf:"session" yaml:"session"`
	Password PasswordConfig `koanf:"password" yaml:"password"`
	Access   AccessConfig   `koanf:"access" yaml:"access"`
}

// ServerConfig configures the HTTP API listener.
type ServerConfig struct {
	Addr string `koanf:"addr" yaml:"addr"`
}

// MetricsConfig configures the metrics and health listener.
// An empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr" yaml:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `koanf:"format" yaml:"format"`
	Level  string `koanf:"level" yaml:"level"`
}

// StorageConfig selects the credential backend.
type StorageConfig struct {
	Driver string `koanf:"driver" yaml:"driver"`
	// Path of the users file. Empty selects the XDG data directory.
	Path        string `koanf:"path" yaml:"path"`
	DatabaseURL string `koanf:"database_url" yaml:"database_url"`
	AutoMigrate bool   `koanf:"auto_migrate" yaml:"auto_migrate"`
}

// AdminConfig configures the bootstrap admin account.
type AdminConfig struct {
	Password string `koanf:"password" yaml:"password"`
}

// LockoutConfig configures account lockout.
type LockoutConfig struct {
	MaxAttempts int           `koanf:"max_attempts" yaml:"max_attempts"`
	Duration    time.Duration `koanf:"duration" yaml:"duration"`
}

// SessionConfig configures session lifetime and cleanup.
type SessionConfig struct {
	TTL           time.Duration `koanf:"ttl" yaml:"ttl"`
	SweepInterval time.Duration `koanf:"sweep_interval" yaml:"sweep_interval"`
}

// PasswordConfig configures the password complexity rules.
type PasswordConfig struct {
	MinLength     int    `koanf:"min_length" yaml:"min_length"`
	RequireUpper  bool   `koanf:"require_upper" yaml:"require_upper"`
	RequireLower  bool   `koanf:"require_lower" yaml:"require_lower"`
	RequireDigit  bool   `koanf:"require_digit" yaml:"require_digit"`
	RequireSymbol bool   `koanf:"require_symbol" yaml:"require_symbol"`
	Symbols       string `koanf:"symbols" yaml:"symbols"`
}

// AccessConfig configures the access gate.
type AccessConfig struct {
	PublicPaths []string `koanf:"public_paths" yaml:"public_paths"`
}

// Default returns the configuration used when nothing is configured.
func Default() Config {
	policy := auth.DefaultPasswordPolicy()
	lockout := auth.DefaultLockoutPolicy()
	return Config{
		Server:  ServerConfig{Addr: DefaultAddr},
		Metrics: MetricsConfig{Addr: DefaultMetricsAddr},
		Log:     LogConfig{Format: FormatJSON, Level: "info"},
		Storage: StorageConfig{Driver: DriverFile, AutoMigrate: true},
		Lockout: LockoutConfig{
			MaxAttempts: lockout.MaxAttempts,
			Duration:    lockout.Duration,
		},
		Session: SessionConfig{
			TTL:           DefaultSessionTTL,
			SweepInterval: session.DefaultSweepInterval,
		},
		Password: PasswordConfig{
			MinLength:     policy.MinLength,
			RequireUpper:  policy.RequireUpper,
			RequireLower:  policy.RequireLower,
			RequireDigit:  policy.RequireDigit,
			RequireSymbol: policy.RequireSymbol,
			Symbols:       policy.Symbols,
		},
		Access: AccessConfig{
			PublicPaths: append([]string(nil), access.DefaultPublicPaths...),
		},
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return invalid("server.addr").Errorf("server address is required")
	}
	if c.Log.Format != FormatJSON && c.Log.Format != FormatText {
		return invalid("log.format").Errorf("log format must be 'json' or 'text', got %q", c.Log.Format)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return oops.Code("CONFIG_INVALID").With("field", "log.level").Wrap(err)
	}
	switch c.Storage.Driver {
	case DriverFile:
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			return invalid("storage.database_url").
				Hint("set DATABASE_URL or storage.database_url").
				Errorf("database URL is required for the postgres driver")
		}
	default:
		return invalid("storage.driver").Errorf("storage driver must be 'file' or 'postgres', got %q", c.Storage.Driver)
	}
	if c.Lockout.MaxAttempts < 1 {
		return invalid("lockout.max_attempts").Errorf("max failed attempts must be at least 1, got %d", c.Lockout.MaxAttempts)
	}
	if c.Lockout.Duration <= 0 {
		return invalid("lockout.duration").Errorf("lockout duration must be positive, got %s", c.Lockout.Duration)
	}
	if c.Session.TTL <= 0 {
		return invalid("session.ttl").Errorf("session TTL must be positive, got %s", c.Session.TTL)
	}
	if c.Session.SweepInterval <= 0 {
		return invalid("session.sweep_interval").Errorf("sweep interval must be positive, got %s", c.Session.SweepInterval)
	}
	if c.Password.MinLength < 1 {
		return invalid("password.min_length").Errorf("minimum password length must be at least 1, got %d", c.Password.MinLength)
	}
	return nil
}

func invalid(field string) oops.OopsErrorBuilder {
	return oops.Code("CONFIG_INVALID").With("field", field)
}

// PasswordPolicy returns the configured password policy.
func (c *Config) PasswordPolicy() auth.PasswordPolicy {
	return auth.PasswordPolicy{
		MinLength:     c.Password.MinLength,
		RequireUpper:  c.Password.RequireUpper,
		RequireLower:  c.Password.RequireLower,
		RequireDigit:  c.Password.RequireDigit,
		RequireSymbol: c.Password.RequireSymbol,
		Symbols:       c.Password.Symbols,
	}
}

// LockoutPolicy returns the configured lockout policy.
func (c *Config) LockoutPolicy() auth.LockoutPolicy {
	return auth.LockoutPolicy{
		MaxAttempts: c.Lockout.MaxAttempts,
		Duration:    c.Lockout.Duration,
	}
}

// Redact returns a copy of c with secrets replaced.
func (c *Config) Redact() Config {
	out := *c
	if out.Admin.Password != "" {
		out.Admin.Password = Redacted
	}
	if out.Storage.DatabaseURL != "" {
		out.Storage.DatabaseURL = Redacted
	}
	out.Access.PublicPaths = append([]string(nil), c.Access.PublicPaths...)
	return out
}
