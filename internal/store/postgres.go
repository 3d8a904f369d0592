// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// Connection retry parameters.
const (
	connectBaseDelay  = 250 * time.Millisecond
	connectMaxDelay   = 5 * time.Second
	connectMaxRetries = 6
)

// poolIface is the subset of pgxpool.Pool used by PostgresBackend.
// pgxmock.PgxPoolIface satisfies it in tests.
type poolIface interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresBackend stores the credential set in the users table.
type PostgresBackend struct {
	pool poolIface
}

// NewPostgresBackend creates a backend over an existing pool.
func NewPostgresBackend(pool poolIface) *PostgresBackend {
	return &PostgresBackend{pool: pool}
}

// ConnectPostgres opens a pool and waits for the database to answer,
// retrying with exponential backoff.
func ConnectPostgres(ctx context.Context, databaseURL string, logger *slog.Logger) (*PostgresBackend, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").Wrap(err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}

	backoff := retry.WithMaxRetries(connectMaxRetries,
		retry.WithCappedDuration(connectMaxDelay, retry.NewExponential(connectBaseDelay)))

	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if pingErr := pool.Ping(ctx); pingErr != nil {
			logger.WarnContext(ctx, "database not reachable yet", "attempt", attempt, "error", pingErr)
			return retry.RetryableError(pingErr)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").With("attempts", attempt).Wrap(err)
	}

	return NewPostgresBackend(pool), nil
}

func (b *PostgresBackend) String() string {
	return "postgres"
}

// Ping checks database connectivity.
func (b *PostgresBackend) Ping(ctx context.Context) error {
	if err := b.pool.Ping(ctx); err != nil {
		return oops.Code("DB_PING_FAILED").Wrap(err)
	}
	return nil
}

// Close closes the connection pool.
func (b *PostgresBackend) Close() {
	b.pool.Close()
}

// Load reads every row of the users table.
func (b *PostgresBackend) Load(ctx context.Context) ([]*auth.User, error) {
	rows, err := b.pool.Query(ctx, `
		SELECT username, password_hash, salt, role, created_at,
		       failed_attempts, locked_until, last_login
		FROM users
		ORDER BY username
	`)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable {
			return nil, oops.Code("STORE_SCHEMA_MISSING").
				Hint("run `gatehouse migrate up` before starting the server").
				Wrap(err)
		}
		return nil, oops.Code("STORE_LOAD_FAILED").With("operation", "query users").Wrap(err)
	}
	defer rows.Close()

	var users []*auth.User
	for rows.Next() {
		var (
			u    auth.User
			role string
		)
		if err := rows.Scan(
			&u.Username, &u.PasswordHash, &u.Salt, &role, &u.CreatedAt,
			&u.FailedAttempts, &u.LockedUntil, &u.LastLogin,
		); err != nil {
			return nil, oops.Code("STORE_LOAD_FAILED").With("operation", "scan user").Wrap(err)
		}
		u.Role = auth.Role(role)
		users = append(users, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("STORE_LOAD_FAILED").With("operation", "iterate users").Wrap(err)
	}
	return users, nil
}

// Save upserts every user and deletes rows absent from the set, in one transaction.
func (b *PostgresBackend) Save(ctx context.Context, users []*auth.User) error {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return oops.Code("STORE_SAVE_FAILED").With("operation", "begin").Wrap(err)
	}

	names, err := upsertUsers(ctx, tx, users)
	if err != nil {
		return rollback(ctx, tx, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM users WHERE NOT (username = ANY($1))`, names); err != nil {
		return rollback(ctx, tx, oops.Code("STORE_SAVE_FAILED").With("operation", "delete absent users").Wrap(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.Code("STORE_SAVE_FAILED").With("operation", "commit").Wrap(err)
	}
	return nil
}

// Merge upserts users and deletes the removed usernames in one transaction.
// Rows for any other username are left as they are.
func (b *PostgresBackend) Merge(ctx context.Context, users []*auth.User, removed []string) error {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return oops.Code("STORE_SAVE_FAILED").With("operation", "begin").Wrap(err)
	}

	if _, err := upsertUsers(ctx, tx, users); err != nil {
		return rollback(ctx, tx, err)
	}

	if len(removed) > 0 {
		if _, err := tx.Exec(ctx, `DELETE FROM users WHERE username = ANY($1)`, removed); err != nil {
			return rollback(ctx, tx, oops.Code("STORE_SAVE_FAILED").With("operation", "delete removed users").Wrap(err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.Code("STORE_SAVE_FAILED").With("operation", "commit").Wrap(err)
	}
	return nil
}

// upsertUsers writes every user and returns their usernames.
func upsertUsers(ctx context.Context, tx pgx.Tx, users []*auth.User) ([]string, error) {
	names := make([]string, 0, len(users))
	for _, u := range users {
		if _, err := tx.Exec(ctx, `
			INSERT INTO users (
				username, password_hash, salt, role, created_at,
				failed_attempts, locked_until, last_login
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (username) DO UPDATE SET
				password_hash   = EXCLUDED.password_hash,
				salt            = EXCLUDED.salt,
				role            = EXCLUDED.role,
				failed_attempts = EXCLUDED.failed_attempts,
				locked_until    = EXCLUDED.locked_until,
				last_login      = EXCLUDED.last_login
		`,
			u.Username, u.PasswordHash, u.Salt, string(u.Role), u.CreatedAt,
			u.FailedAttempts, u.LockedUntil, u.LastLogin,
		); err != nil {
			return nil, oops.Code("STORE_SAVE_FAILED").
				With("operation", "upsert user").
				With("username", u.Username).
				Wrap(err)
		}
		names = append(names, u.Username)
	}
	return names, nil
}

func rollback(ctx context.Context, tx pgx.Tx, cause error) error {
	if err := tx.Rollback(ctx); err != nil {
		return errors.Join(cause, oops.Code("STORE_ROLLBACK_FAILED").Wrap(err))
	}
	return cause
}
