// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

//go:build integration

package store_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/store"
)

// setupPostgres starts a PostgreSQL container and migrates it.
func setupPostgres() (*store.PostgresBackend, string, func(), error) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("gatehouse_test"),
		postgres.WithUsername("gatehouse"),
		postgres.WithPassword("gatehouse"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, "", nil, err
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, "", nil, err
	}

	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, "", nil, err
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		_ = container.Terminate(ctx)
		return nil, "", nil, err
	}
	_ = migrator.Close()

	backend, err := store.ConnectPostgres(ctx, connStr, nil)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, "", nil, err
	}

	cleanup := func() {
		backend.Close()
		_ = container.Terminate(ctx)
	}
	return backend, connStr, cleanup, nil
}

func user(name string, role auth.Role) *auth.User {
	return &auth.User{
		Username:     name,
		PasswordHash: "aabbcc",
		Salt:         "ddeeff",
		Role:         role,
		CreatedAt:    time.Now().UTC().Truncate(time.Microsecond),
	}
}

var _ = Describe("PostgresBackend", func() {
	var (
		backend *store.PostgresBackend
		connStr string
		cleanup func()
		ctx     context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		backend, connStr, cleanup, err = setupPostgres()
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		cleanup()
	})

	Describe("Load", func() {
		It("returns no users on a fresh schema", func() {
			users, err := backend.Load(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(users).To(BeEmpty())
		})
	})

	Describe("Save", func() {
		It("round-trips every field", func() {
			locked := time.Now().Add(30 * time.Minute).UTC().Truncate(time.Microsecond)
			alice := user("alice", auth.RoleUser)
			alice.FailedAttempts = 6
			alice.LockedUntil = &locked

			Expect(backend.Save(ctx, []*auth.User{user("admin", auth.RoleAdmin), alice})).To(Succeed())

			users, err := backend.Load(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(users).To(HaveLen(2))
			Expect(users[0].Username).To(Equal("admin"))
			Expect(users[0].Role).To(Equal(auth.RoleAdmin))
			Expect(users[1].FailedAttempts).To(Equal(6))
			Expect(users[1].LockedUntil).NotTo(BeNil())
			Expect(users[1].LockedUntil.Equal(locked)).To(BeTrue())
		})

		It("removes users absent from the saved set", func() {
			Expect(backend.Save(ctx, []*auth.User{user("alice", auth.RoleUser), user("bob", auth.RoleUser)})).To(Succeed())
			Expect(backend.Save(ctx, []*auth.User{user("bob", auth.RoleUser)})).To(Succeed())

			users, err := backend.Load(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(users).To(HaveLen(1))
			Expect(users[0].Username).To(Equal("bob"))
		})

		It("rejects unknown roles via the schema check", func() {
			Expect(backend.Save(ctx, []*auth.User{user("eve", auth.Role("root"))})).NotTo(Succeed())
		})
	})

	Describe("CredentialStore over Postgres", func() {
		It("survives a reopen", func() {
			first := store.Open(ctx, backend)
			Expect(first.Create(ctx, user("alice", auth.RoleUser))).To(Succeed())

			other, err := store.ConnectPostgres(ctx, connStr, nil)
			Expect(err).NotTo(HaveOccurred())
			defer other.Close()

			second := store.Open(ctx, other)
			got, err := second.Get(ctx, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Role).To(Equal(auth.RoleUser))
		})
	})

	Describe("Migrator", func() {
		It("reports the latest version and nothing pending", func() {
			migrator, err := store.NewMigrator(connStr)
			Expect(err).NotTo(HaveOccurred())
			defer func() { _ = migrator.Close() }()

			version, dirty, err := migrator.Version()
			Expect(err).NotTo(HaveOccurred())
			Expect(dirty).To(BeFalse())
			Expect(version).To(Equal(uint(1)))

			pending, err := migrator.Pending()
			Expect(err).NotTo(HaveOccurred())
			Expect(pending).To(BeEmpty())
		})
	})
})
