// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tudu Contributors

//go:build integration

package auth_test

import (
	"context"
	"sync"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/tudu/tudu/internal/auth"
	"github.com/tudu/tudu/internal/workpool"
)

var _ = Describe("Account and session lifecycle", func() {
	for _, b := range backends {
		Context("on "+b.name, func() {
			var (
				ctx context.Context
				svc *auth.Service
			)

			BeforeEach(func() {
				ctx = context.Background()
				svc = newService(b.open())
			})

			It("logs in with the registered credentials", func() {
				account, err := svc.Register(ctx, "a@x.com", "pw1")
				Expect(err).NotTo(HaveOccurred())

				session, err := svc.Login(ctx, "a@x.com", "pw1")
				Expect(err).NotTo(HaveOccurred())
				Expect(session.UserID).To(Equal(account.ID))
			})

			It("treats a wrong password like an unknown email", func() {
				_, err := svc.Register(ctx, "a@x.com", "pw1")
				Expect(err).NotTo(HaveOccurred())

				_, wrongPassword := svc.Login(ctx, "a@x.com", "pw2")
				_, unknownEmail := svc.Login(ctx, "b@x.com", "pw1")

				Expect(auth.KindOf(wrongPassword)).To(Equal(auth.KindInvalidCredentials))
				Expect(auth.KindOf(unknownEmail)).To(Equal(auth.KindInvalidCredentials))
				Expect(wrongPassword.Error()).To(Equal(unknownEmail.Error()))
			})

			It("rejects a second registration of the same email", func() {
				_, err := svc.Register(ctx, "a@x.com", "pw1")
				Expect(err).NotTo(HaveOccurred())

				_, err = svc.Register(ctx, "a@x.com", "other")
				Expect(auth.KindOf(err)).To(Equal(auth.KindEmailTaken))

				_, err = svc.Register(ctx, "A@x.com", "pw1")
				Expect(err).NotTo(HaveOccurred(), "emails match exactly")
			})

			It("supersedes the previous session on login", func() {
				_, err := svc.Register(ctx, "a@x.com", "pw1")
				Expect(err).NotTo(HaveOccurred())

				first, err := svc.Login(ctx, "a@x.com", "pw1")
				Expect(err).NotTo(HaveOccurred())
				second, err := svc.Login(ctx, "a@x.com", "pw1")
				Expect(err).NotTo(HaveOccurred())
				Expect(second.ID).NotTo(Equal(first.ID))

				Expect(auth.KindOf(svc.Logout(ctx, first.ID))).To(Equal(auth.KindInvalidSession))
				Expect(svc.Logout(ctx, second.ID)).To(Succeed())
			})

			It("logs a session out exactly once", func() {
				Expect(auth.KindOf(svc.Logout(ctx, "never-issued"))).To(Equal(auth.KindInvalidSession))

				_, err := svc.Register(ctx, "a@x.com", "pw1")
				Expect(err).NotTo(HaveOccurred())
				session, err := svc.Login(ctx, "a@x.com", "pw1")
				Expect(err).NotTo(HaveOccurred())

				Expect(svc.Logout(ctx, session.ID)).To(Succeed())
				Expect(auth.KindOf(svc.Logout(ctx, session.ID))).To(Equal(auth.KindInvalidSession))

				_, err = svc.ValidateSession(ctx, session.ID)
				Expect(auth.KindOf(err)).To(Equal(auth.KindInvalidSession))
			})

			It("leaves exactly one live session after concurrent logins", func() {
				_, err := svc.Register(ctx, "a@x.com", "pw1")
				Expect(err).NotTo(HaveOccurred())

				const logins = 12
				pool := newPool(workpool.DefaultSize)
				ids := make([]string, logins)
				var wg sync.WaitGroup
				for i := range logins {
					wg.Add(1)
					go func() {
						defer GinkgoRecover()
						defer wg.Done()
						session, err := workpool.Do(ctx, pool, func(ctx context.Context) (*auth.Session, error) {
							return svc.Login(ctx, "a@x.com", "pw1")
						})
						Expect(err).NotTo(HaveOccurred())
						ids[i] = session.ID
					}()
				}
				wg.Wait()

				live := 0
				for _, id := range ids {
					if _, err := svc.ValidateSession(ctx, id); err == nil {
						live++
					}
				}
				Expect(live).To(Equal(1))
			})

			It("follows the worked example", func() {
				_, err := svc.Register(ctx, "a@x.com", "pw1")
				Expect(err).NotTo(HaveOccurred())

				session, err := svc.Login(ctx, "a@x.com", "pw1")
				Expect(err).NotTo(HaveOccurred())

				_, err = svc.Login(ctx, "a@x.com", "wrong")
				Expect(auth.KindOf(err)).To(Equal(auth.KindInvalidCredentials))

				Expect(svc.Logout(ctx, session.ID)).To(Succeed())
				Expect(auth.KindOf(svc.Logout(ctx, session.ID))).To(Equal(auth.KindInvalidSession))
			})
		})
	}
})

var _ = Describe("Registration policies", func() {
	It("rejects weak passwords and malformed emails before touching the store", func() {
		svc := newService(backends[0].open(),
			auth.WithPasswordPolicy(auth.LengthPolicy{Min: 8, MaxBytes: auth.BcryptMaxPasswordBytes}),
			auth.WithEmailPolicy(auth.AddressPolicy{}),
		)
		ctx := context.Background()

		_, err := svc.Register(ctx, "a@x.com", "short")
		Expect(auth.KindOf(err)).To(Equal(auth.KindWeakPassword))

		_, err = svc.Register(ctx, "not an email", "long-enough")
		Expect(auth.KindOf(err)).To(Equal(auth.KindInvalidEmail))

		_, err = svc.Login(ctx, "a@x.com", "short")
		Expect(auth.KindOf(err)).To(Equal(auth.KindInvalidCredentials), "rejected registrations create nothing")
	})
})
