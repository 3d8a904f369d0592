// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/gatehouse/gatehouse/internal/xdg"
)

// DefaultFileName is the config file looked up in the XDG config directory
// when no file is given.
const DefaultFileName = "config.yaml"

// DefaultEnvFile is read when present and no env file is given.
const DefaultEnvFile = ".env"

// EnvVars maps environment variables to configuration keys.
var EnvVars = map[string]string{
	"GATEHOUSE_ADDR":                    "server.addr",
	"GATEHOUSE_METRICS_ADDR":            "metrics.addr",
	"GATEHOUSE_LOG_FORMAT":              "log.format",
	"GATEHOUSE_LOG_LEVEL":               "log.level",
	"GATEHOUSE_STORAGE":                 "storage.driver",
	"GATEHOUSE_USERS_FILE":              "storage.path",
	"DATABASE_URL":                      "storage.database_url",
	"GATEHOUSE_AUTO_MIGRATE":            "storage.auto_migrate",
	"GATEHOUSE_ADMIN_PASSWORD":          "admin.password",
	"GATEHOUSE_MAX_FAILED_ATTEMPTS":     "lockout.max_attempts",
	"GATEHOUSE_LOCKOUT_DURATION":        "lockout.duration",
	"GATEHOUSE_SESSION_TTL":             "session.ttl",
	"GATEHOUSE_SESSION_SWEEP_INTERVAL":  "session.sweep_interval",
	"GATEHOUSE_PASSWORD_MIN_LENGTH":     "password.min_length",
	"GATEHOUSE_PASSWORD_REQUIRE_UPPER":  "password.require_upper",
	"GATEHOUSE_PASSWORD_REQUIRE_LOWER":  "password.require_lower",
	"GATEHOUSE_PASSWORD_REQUIRE_DIGIT":  "password.require_digit",
	"GATEHOUSE_PASSWORD_REQUIRE_SYMBOL": "password.require_symbol",
	"GATEHOUSE_PASSWORD_SYMBOLS":        "password.symbols",
	"GATEHOUSE_PUBLIC_PATHS":            "access.public_paths",
}

// flagKeys maps the flags registered by RegisterFlags to configuration keys.
var flagKeys = map[string]string{
	"addr":                "server.addr",
	"metrics-addr":        "metrics.addr",
	"log-format":          "log.format",
	"log-level":           "log.level",
	"storage":             "storage.driver",
	"users-file":          "storage.path",
	"database-url":        "storage.database_url",
	"auto-migrate":        "storage.auto_migrate",
	"max-failed-attempts": "lockout.max_attempts",
	"lockout-duration":    "lockout.duration",
	"session-ttl":         "session.ttl",
	"sweep-interval":      "session.sweep_interval",
}

// listKeys hold comma-separated lists when given as strings.
var listKeys = map[string]bool{
	"access.public_paths": true,
}

// Options selects the sources Load reads.
type Options struct {
	// File is a YAML config file. Empty looks for DefaultFileName in the
	// XDG config directory and skips it when absent.
	File string

	// EnvFile is a dotenv file. Empty reads DefaultEnvFile when present.
	EnvFile string

	// Flags holds flags registered with RegisterFlags. Only changed flags
	// override other sources.
	Flags *pflag.FlagSet

	// Environ returns the process environment. Defaults to os.Environ.
	Environ func() []string
}

// RegisterFlags adds the configuration flags to flags.
func RegisterFlags(flags *pflag.FlagSet) {
	d := Default()
	flags.String("addr", d.Server.Addr, "HTTP API listen address")
	flags.String("metrics-addr", d.Metrics.Addr, "metrics/health HTTP address (empty = disabled)")
	flags.String("log-format", d.Log.Format, "log format (json or text)")
	flags.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	flags.String("storage", d.Storage.Driver, "credential storage driver (file or postgres)")
	flags.String("users-file", d.Storage.Path, "users file for the file driver (default: XDG_DATA_HOME/gatehouse/users.json)")
	flags.String("database-url", d.Storage.DatabaseURL, "PostgreSQL connection URL for the postgres driver")
	flags.Bool("auto-migrate", d.Storage.AutoMigrate, "apply pending migrations on startup (postgres driver)")
	flags.Int("max-failed-attempts", d.Lockout.MaxAttempts, "failed logins before an account is locked")
	flags.Duration("lockout-duration", d.Lockout.Duration, "how long a locked account stays locked")
	flags.Duration("session-ttl", d.Session.TTL, "session lifetime")
	flags.Duration("sweep-interval", d.Session.SweepInterval, "interval between expired session sweeps")
}

// Load reads and validates the configuration.
func Load(opts Options) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaultsMap(), "."), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "defaults").Wrap(err)
	}

	path, err := configFile(opts.File)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("source", "file").
				With("path", path).
				Wrap(err)
		}
	}

	dotenv, err := readEnvFile(opts.EnvFile)
	if err != nil {
		return nil, err
	}
	if len(dotenv) > 0 {
		if err := k.Load(envProvider(func() []string { return dotenv }), nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "env file").Wrap(err)
		}
	}

	environ := opts.Environ
	if environ == nil {
		environ = os.Environ
	}
	if err := k.Load(envProvider(environ), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "environment").Wrap(err)
	}

	if opts.Flags != nil {
		provider := posflag.ProviderWithValue(opts.Flags, ".", k, func(name, value string) (string, any) {
			key, ok := flagKeys[name]
			if !ok {
				return "", nil
			}
			return key, value
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").
			Hint("check value types, durations use Go syntax such as 30m or 24h").
			Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envProvider(environ func() []string) koanf.Provider {
	return env.Provider(".", env.Opt{
		EnvironFunc: environ,
		TransformFunc: func(name, value string) (string, any) {
			key, ok := EnvVars[name]
			if !ok || value == "" {
				return "", nil
			}
			if listKeys[key] {
				return key, splitList(value)
			}
			return key, value
		},
	})
}

func configFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", oops.Code("CONFIG_FILE_NOT_FOUND").
				With("path", explicit).
				Wrap(err)
		}
		return explicit, nil
	}

	dir, err := xdg.ConfigDir()
	if err != nil {
		// No home directory means no default file to look for.
		return "", nil //nolint:nilerr // the default file is optional
	}
	path := filepath.Join(dir, DefaultFileName)
	if _, err := os.Stat(path); err != nil {
		return "", nil //nolint:nilerr // the default file is optional
	}
	return path, nil
}

func readEnvFile(explicit string) ([]string, error) {
	path := explicit
	if path == "" {
		path = DefaultEnvFile
	}

	values, err := godotenv.Read(path)
	if err != nil {
		if explicit == "" && errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, oops.Code("CONFIG_LOAD_FAILED").
			With("source", "env file").
			With("path", path).
			Wrap(err)
	}

	environ := make([]string, 0, len(values))
	for name, value := range values {
		environ = append(environ, name+"="+value)
	}
	return environ, nil
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func defaultsMap() map[string]any {
	d := Default()
	return map[string]any{
		"server.addr":             d.Server.Addr,
		"metrics.addr":            d.Metrics.Addr,
		"log.format":              d.Log.Format,
		"log.level":               d.Log.Level,
		"storage.driver":          d.Storage.Driver,
		"storage.path":            d.Storage.Path,
		"storage.database_url":    d.Storage.DatabaseURL,
		"storage.auto_migrate":    d.Storage.AutoMigrate,
		"admin.password":          d.Admin.Password,
		"lockout.max_attempts":    d.Lockout.MaxAttempts,
		"lockout.duration":        d.Lockout.Duration,
		"session.ttl":             d.Session.TTL,
		"session.sweep_interval":  d.Session.SweepInterval,
		"password.min_length":     d.Password.MinLength,
		"password.require_upper":  d.Password.RequireUpper,
		"password.require_lower":  d.Password.RequireLower,
		"password.require_digit":  d.Password.RequireDigit,
		"password.require_symbol": d.Password.RequireSymbol,
		"password.symbols":        d.Password.Symbols,
		"access.public_paths":     d.Access.PublicPaths,
	}
}
