// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package api_test

import (
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
)

var _ = Describe("Account lockout over HTTP", func() {
	var (
		s          *stack
		adminToken string
	)

	loginAlice := func(password string) (int, map[string]any) {
		rec := s.do(http.MethodPost, "/api/auth/login", "", map[string]string{
			"username": "alice",
			"password": password,
		})
		return rec.Code, decodeMap(rec)
	}

	BeforeEach(func() {
		var err error
		s, err = newStack(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())

		adminToken = s.login("admin", adminPassword)
		Expect(adminToken).NotTo(BeEmpty())

		rec := s.do(http.MethodPost, "/api/users", adminToken, map[string]string{
			"username": "alice",
			"password": "Passw0rd!",
			"role":     "user",
		})
		Expect(rec.Code).To(Equal(http.StatusCreated))
	})

	It("counts down, locks, and releases after the lockout window", func() {
		By("failing five times with a decreasing remaining count")
		// remaining = maxAttempts - failures, so 5..1 before the sixth failure locks.
		for want := 5; want >= 1; want-- {
			code, body := loginAlice("nope")
			Expect(code).To(Equal(http.StatusUnauthorized))
			Expect(body).To(HaveKeyWithValue("remainingAttempts", BeNumerically("==", want)))
			Expect(body).To(HaveKeyWithValue("locked", false))
		}

		By("locking on the sixth failure")
		code, body := loginAlice("nope")
		Expect(code).To(Equal(http.StatusLocked))
		Expect(body).To(HaveKeyWithValue("locked", true))
		Expect(body).To(HaveKeyWithValue("remainingAttempts", BeNumerically("==", 0)))

		By("rejecting the correct password while locked")
		code, body = loginAlice("Passw0rd!")
		Expect(code).To(Equal(http.StatusLocked))
		Expect(body["error"]).To(ContainSubstring("Try again in 30 minutes"))

		By("showing the lock in the user listing")
		rec := s.do(http.MethodGet, "/api/users", adminToken, nil)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring(`"isLocked":true`))

		By("accepting the correct password once the window passes")
		s.clock.Advance(31 * time.Minute)
		token := s.login("alice", "Passw0rd!")
		Expect(token).NotTo(BeEmpty())

		rec = s.do(http.MethodGet, "/api/auth/me", token, nil)
		Expect(rec.Code).To(Equal(http.StatusOK))
	})

	It("lets an admin unlock before the window passes", func() {
		for range 6 {
			loginAlice("nope")
		}
		code, _ := loginAlice("Passw0rd!")
		Expect(code).To(Equal(http.StatusLocked))

		rec := s.do(http.MethodPost, "/api/users/alice/unlock", adminToken, nil)
		Expect(rec.Code).To(Equal(http.StatusOK))

		Expect(s.login("alice", "Passw0rd!")).NotTo(BeEmpty())
	})

	It("revokes sessions when the user is deleted", func() {
		token := s.login("alice", "Passw0rd!")
		Expect(token).NotTo(BeEmpty())

		rec := s.do(http.MethodDelete, "/api/users/alice", adminToken, nil)
		Expect(rec.Code).To(Equal(http.StatusOK))

		rec = s.do(http.MethodGet, "/api/auth/me", token, nil)
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
	})
})
