// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/access"
	"github.com/gatehouse/gatehouse/internal/api"
	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/config"
	"github.com/gatehouse/gatehouse/internal/logging"
	"github.com/gatehouse/gatehouse/internal/observability"
	"github.com/gatehouse/gatehouse/internal/session"
	"github.com/gatehouse/gatehouse/internal/store"
)

const (
	serviceName     = "gatehouse"
	shutdownTimeout = 10 * time.Second
)

var (
	errNotReady      = errors.New("not serving yet")
	errStoreDegraded = errors.New("stored credentials could not be loaded")
)

// pinger is implemented by backends that can report their connectivity.
type pinger interface {
	Ping(ctx context.Context) error
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authentication API server",
		Long: `Start the HTTP API server together with the metrics/health server
and the expired session sweeper. Stops gracefully on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServeWithDeps(ctx, cfg, cmd, nil)
		},
	}

	config.RegisterFlags(cmd.Flags())
	return cmd
}

// runServeWithDeps runs the server until ctx is done or a server fails.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.MigratorFactory == nil {
		deps.MigratorFactory = defaultMigratorFactory
	}
	if deps.BackendOpener == nil {
		deps.BackendOpener = func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Backend, func(), error) {
			return openBackend(ctx, cfg, logger, deps.MigratorFactory)
		}
	}

	logger := logging.SetDefault(serviceName, version, cfg.Log.Format, cfg.Log.Level)
	logger.Info("starting gatehouse",
		"addr", cfg.Server.Addr,
		"storage", cfg.Storage.Driver,
		"log_format", cfg.Log.Format,
	)

	backend, release, err := deps.BackendOpener(ctx, cfg, logger)
	if err != nil {
		return oops.With("operation", "open credential store").Wrap(err)
	}
	defer release()

	var (
		ready atomic.Bool
		users *store.CredentialStore
	)
	obsOpts := []observability.Option{
		observability.WithLogger(logger),
		observability.WithCheck("started", func(context.Context) error {
			if !ready.Load() {
				return errNotReady
			}
			return nil
		}),
		observability.WithCheck("credentials", func(context.Context) error {
			return credentialsCheck(users)
		}),
	}
	if p, ok := backend.(pinger); ok {
		obsOpts = append(obsOpts, observability.WithCheck("store", p.Ping))
	}
	obsServer := observability.NewServer(cfg.Metrics.Addr, obsOpts...)

	users = store.Open(ctx, backend,
		store.WithLogger(logger),
		store.WithRegisterer(obsServer.Registerer()),
	)
	logger.Info("credential store opened", "backend", backend, "users", users.Len())

	sessions := session.NewManager(session.NewMemoryStore(), session.WithTTL(cfg.Session.TTL))

	svc, err := auth.NewService(auth.ServiceConfig{
		Users:    users,
		Sessions: sessions,
		Hasher:   auth.NewPBKDF2Hasher(0),
		Policy:   cfg.PasswordPolicy(),
		Lockout:  cfg.LockoutPolicy(),
		Logger:   logger,
		Metrics:  auth.NewMetrics(obsServer.Registerer()),
	})
	if err != nil {
		return oops.With("operation", "create auth service").Wrap(err)
	}
	if err := svc.Bootstrap(ctx, cfg.Admin.Password); err != nil {
		return err
	}

	gate, err := access.NewGate(svc, cfg.Access.PublicPaths,
		access.WithLogger(logger),
		access.WithResponder(api.ErrorResponder(logger)),
	)
	if err != nil {
		return oops.With("operation", "create access gate").Wrap(err)
	}

	handler, err := api.NewRouter(api.Config{
		Service: svc,
		Gate:    gate,
		Logger:  logger,
		Metrics: obsServer.Metrics(),
	})
	if err != nil {
		return oops.With("operation", "create api router").Wrap(err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sweeper := session.NewSweeper(sessions, session.SweeperConfig{
		Interval:   cfg.Session.SweepInterval,
		Logger:     logger,
		Registerer: obsServer.Registerer(),
	})
	sweeper.Start(ctx)
	defer sweeper.Stop()

	apiServer := api.NewServer(cfg.Server.Addr, handler, logger)
	apiErrCh, err := apiServer.Start()
	if err != nil {
		return oops.With("operation", "start api server").Wrap(err)
	}

	if cfg.Metrics.Addr != "" {
		obsErrCh, err := obsServer.Start()
		if err != nil {
			stopServer(apiServer, "api", logger)
			return oops.With("operation", "start observability server").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability", logger)
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	ready.Store(true)
	cmd.Println("Gatehouse listening on " + apiServer.Addr())
	if deps.OnReady != nil {
		deps.OnReady(apiServer.Addr())
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err, ok := <-apiErrCh:
		if ok && err != nil {
			serveErr = oops.Code("API_SERVE_FAILED").Wrap(err)
		}
	}

	logger.Info("shutting down...")
	ready.Store(false)
	stopServer(apiServer, "api", logger)
	if cfg.Metrics.Addr != "" {
		stopServer(obsServer, "observability", logger)
	}

	logger.Info("shutdown complete")
	return serveErr
}

type stoppable interface {
	Stop(ctx context.Context) error
}

func stopServer(srv stoppable, name string, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		logger.Warn("error stopping server", "server", name, "error", err)
	}
}

// openBackend opens the credential backend selected by cfg. For postgres,
// pending migrations are applied first when auto-migrate is on.
func openBackend(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	newMigrator func(string) (Migrator, error),
) (store.Backend, func(), error) {
	if cfg.Storage.Driver == config.DriverPostgres {
		if cfg.Storage.AutoMigrate {
			if err := autoMigrate(cfg.Storage.DatabaseURL, logger, newMigrator); err != nil {
				return nil, nil, err
			}
		}
		backend, err := store.ConnectPostgres(ctx, cfg.Storage.DatabaseURL, logger)
		if err != nil {
			return nil, nil, err
		}
		return backend, backend.Close, nil
	}

	path := cfg.Storage.Path
	if path == "" {
		var err error
		if path, err = store.DefaultFilePath(); err != nil {
			return nil, nil, err
		}
	}
	return store.NewFileBackend(path), func() {}, nil
}

func autoMigrate(databaseURL string, logger *slog.Logger, newMigrator func(string) (Migrator, error)) error {
	migrator, err := newMigrator(databaseURL)
	if err != nil {
		return oops.Code("AUTO_MIGRATE_FAILED").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Warn("failed to close migrator", "error", closeErr)
		}
	}()

	if err := migrator.Up(); err != nil {
		return oops.Code("AUTO_MIGRATE_FAILED").
			Hint("run 'gatehouse migrate status' to inspect the schema").
			Wrap(err)
	}
	logger.Info("database schema up to date")
	return nil
}

// monitorServerErrors cancels ctx when a server reports an error.
// It exits when an error arrives, the channel closes, or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}

// credentialsCheck fails readiness while the store runs without its stored
// credentials.
func credentialsCheck(users *store.CredentialStore) error {
	if users == nil {
		return errNotReady
	}
	if users.Degraded() {
		return errStoreDegraded
	}
	return nil
}
