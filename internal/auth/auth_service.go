// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tudu Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"
)

// dummyPassword is hashed once and verified against when an email is unknown,
// so unknown-email and wrong-password logins cost the same.
//
//nolint:gosec // G101: not a credential.
const dummyPassword = "tudu-timing-equalizer"

// Service provides the register, login and logout operations.
type Service struct {
	accounts  AccountRepository
	sessions  SessionRepository
	hasher    PasswordHasher
	passwords PasswordPolicy
	emails    EmailPolicy
	newID     func() (string, error)
	now       func() time.Time
	logger    *slog.Logger

	dummyOnce sync.Once
	dummyHash []byte
}

// Option configures a Service.
type Option func(*Service)

// WithPasswordPolicy installs the password strength policy.
func WithPasswordPolicy(p PasswordPolicy) Option {
	return func(s *Service) { s.passwords = p }
}

// WithEmailPolicy installs the email format policy.
func WithEmailPolicy(p EmailPolicy) Option {
	return func(s *Service) { s.emails = p }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithSessionIDGenerator overrides session ID generation.
func WithSessionIDGenerator(gen func() (string, error)) Option {
	return func(s *Service) { s.newID = gen }
}

// NewService creates a Service. All three collaborators are required.
func NewService(accounts AccountRepository, sessions SessionRepository, hasher PasswordHasher, opts ...Option) (*Service, error) {
	if accounts == nil {
		return nil, oops.Code("AUTH_SERVICE_CONFIG").Errorf("accounts repository is required")
	}
	if sessions == nil {
		return nil, oops.Code("AUTH_SERVICE_CONFIG").Errorf("sessions repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_SERVICE_CONFIG").Errorf("password hasher is required")
	}

	s := &Service{
		accounts:  accounts,
		sessions:  sessions,
		hasher:    hasher,
		passwords: AllowAllPasswords,
		emails:    AllowAllEmails,
		newID:     GenerateSessionID,
		now:       defaultNow,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.passwords == nil || s.emails == nil {
		return nil, oops.Code("AUTH_SERVICE_CONFIG").Errorf("policies cannot be nil")
	}
	if s.logger == nil {
		return nil, oops.Code("AUTH_SERVICE_CONFIG").Errorf("logger cannot be nil")
	}
	return s, nil
}

// defaultNow truncates to microseconds, the finest resolution every backend stores.
func defaultNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// Register creates an account.
func (s *Service) Register(ctx context.Context, email, password string) (*Account, error) {
	if err := s.passwords.CheckPassword(password); err != nil {
		return nil, oops.Code(CodeWeakPassword).
			With("reason", err.Error()).
			Wrap(ErrWeakPassword)
	}
	if err := s.emails.CheckEmail(email); err != nil {
		return nil, oops.Code(CodeInvalidEmail).
			With("reason", err.Error()).
			Wrap(ErrInvalidEmail)
	}

	existing, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, internalError("find account by email", err)
	}
	if existing != nil {
		s.logger.InfoContext(ctx, "registration rejected", "reason", KindEmailTaken)
		return nil, emailTaken()
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, internalError("hash password", err)
	}

	account, err := s.accounts.Create(ctx, email, hash, s.now())
	if err != nil {
		// A concurrent registration can win between the lookup and the insert.
		if errors.Is(err, ErrDuplicateEmail) {
			s.logger.InfoContext(ctx, "registration rejected", "reason", KindEmailTaken)
			return nil, emailTaken()
		}
		return nil, internalError("create account", err)
	}

	s.logger.InfoContext(ctx, "account registered", "account_id", account.ID)
	return account, nil
}

// Login verifies credentials and issues a new session, replacing any
// previous session of the account. Unknown email and wrong password are
// indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, internalError("find account by email", err)
	}

	if account == nil {
		// Burn the same hashing work as a real verification.
		if dummy := s.dummy(); dummy != nil {
			_, _ = s.hasher.Verify(password, dummy) //nolint:errcheck // result is irrelevant
		}
		s.logger.WarnContext(ctx, "login failed", "reason", "unknown account")
		return nil, invalidCredentials()
	}

	valid, err := s.hasher.Verify(password, account.PasswordHash)
	if err != nil {
		s.logger.WarnContext(ctx, "login failed", "reason", "unverifiable hash", "account_id", account.ID, "error", err)
		return nil, invalidCredentials()
	}
	if !valid {
		s.logger.WarnContext(ctx, "login failed", "reason", "password mismatch", "account_id", account.ID)
		return nil, invalidCredentials()
	}

	id, err := s.newID()
	if err != nil {
		return nil, internalError("generate session id", err)
	}
	session, err := NewSession(id, account.ID, s.now())
	if err != nil {
		return nil, internalError("build session", err)
	}

	if err := s.sessions.Replace(ctx, session); err != nil {
		return nil, internalError("replace session", err)
	}

	s.logger.InfoContext(ctx, "login succeeded", "account_id", account.ID)
	return session, nil
}

// Logout deletes the session. A session that does not exist, including one
// already logged out or superseded, yields an invalid-session error.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return invalidSession()
	}

	deleted, err := s.sessions.Delete(ctx, sessionID)
	if err != nil {
		return internalError("delete session", err)
	}
	if !deleted {
		return invalidSession()
	}

	s.logger.InfoContext(ctx, "logout succeeded")
	return nil
}

// ValidateSession returns the live session with the given ID.
func (s *Service) ValidateSession(ctx context.Context, sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, invalidSession()
	}

	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, invalidSession()
		}
		return nil, internalError("get session", err)
	}
	return session, nil
}

// dummy lazily hashes dummyPassword. A nil result means the hasher failed;
// login still answers with invalid credentials.
func (s *Service) dummy() []byte {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(dummyPassword)
		if err != nil {
			s.logger.Error("failed to prepare timing-equalizer hash", "error", err)
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}
