// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tudu Contributors

package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tudu/tudu/internal/auth"
	"github.com/tudu/tudu/internal/auth/mocks"
	"github.com/tudu/tudu/pkg/errutil"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type serviceFixture struct {
	accounts *mocks.MockAccountRepository
	sessions *mocks.MockSessionRepository
	hasher   *mocks.MockPasswordHasher
	svc      *auth.Service
}

func newServiceFixture(t *testing.T, opts ...auth.Option) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		accounts: mocks.NewMockAccountRepository(t),
		sessions: mocks.NewMockSessionRepository(t),
		hasher:   mocks.NewMockPasswordHasher(t),
	}
	base := []auth.Option{
		auth.WithClock(func() time.Time { return fixedNow }),
		auth.WithSessionIDGenerator(func() (string, error) { return "session-token", nil }),
	}
	svc, err := auth.NewService(f.accounts, f.sessions, f.hasher, append(base, opts...)...)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func TestNewService_NilDependencies(t *testing.T) {
	tests := []struct {
		name        string
		accounts    auth.AccountRepository
		sessions    auth.SessionRepository
		hasher      auth.PasswordHasher
		opts        []auth.Option
		expectError string
	}{
		{
			name:        "nil accounts repository",
			sessions:    mocks.NewMockSessionRepository(t),
			hasher:      mocks.NewMockPasswordHasher(t),
			expectError: "accounts repository is required",
		},
		{
			name:        "nil sessions repository",
			accounts:    mocks.NewMockAccountRepository(t),
			hasher:      mocks.NewMockPasswordHasher(t),
			expectError: "sessions repository is required",
		},
		{
			name:        "nil password hasher",
			accounts:    mocks.NewMockAccountRepository(t),
			sessions:    mocks.NewMockSessionRepository(t),
			expectError: "password hasher is required",
		},
		{
			name:        "nil logger",
			accounts:    mocks.NewMockAccountRepository(t),
			sessions:    mocks.NewMockSessionRepository(t),
			hasher:      mocks.NewMockPasswordHasher(t),
			opts:        []auth.Option{auth.WithLogger(nil)},
			expectError: "logger",
		},
		{
			name:        "nil policy",
			accounts:    mocks.NewMockAccountRepository(t),
			sessions:    mocks.NewMockSessionRepository(t),
			hasher:      mocks.NewMockPasswordHasher(t),
			opts:        []auth.Option{auth.WithPasswordPolicy(nil)},
			expectError: "policies",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := auth.NewService(tt.accounts, tt.sessions, tt.hasher, tt.opts...)
			require.Error(t, err)
			assert.Nil(t, svc)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestService_Register(t *testing.T) {
	ctx := context.Background()
	hash := []byte("$2a$04$hash")

	t.Run("creates account", func(t *testing.T) {
		f := newServiceFixture(t)
		want := &auth.Account{ID: 1, Email: "a@x.com", PasswordHash: hash, CreatedAt: fixedNow}

		f.accounts.On("FindByEmail", ctx, "a@x.com").Return(nil, nil)
		f.hasher.On("Hash", "pw1").Return(hash, nil)
		f.accounts.On("Create", ctx, "a@x.com", hash, fixedNow).Return(want, nil)

		got, err := f.svc.Register(ctx, "a@x.com", "pw1")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("weak password rejected by installed policy", func(t *testing.T) {
		f := newServiceFixture(t, auth.WithPasswordPolicy(auth.LengthPolicy{Min: 8}))

		_, err := f.svc.Register(ctx, "a@x.com", "short")
		require.Error(t, err)
		assert.Equal(t, auth.KindWeakPassword, auth.KindOf(err))
		errutil.AssertErrorCode(t, err, auth.CodeWeakPassword)
		errutil.AssertErrorContext(t, err, "reason", "password must be at least 8 characters")
	})

	t.Run("invalid email rejected by installed policy", func(t *testing.T) {
		f := newServiceFixture(t, auth.WithEmailPolicy(auth.AddressPolicy{}))

		_, err := f.svc.Register(ctx, "not-an-email", "pw1")
		require.Error(t, err)
		assert.Equal(t, auth.KindInvalidEmail, auth.KindOf(err))
		errutil.AssertErrorCode(t, err, auth.CodeInvalidEmail)
	})

	t.Run("password policy runs before email policy", func(t *testing.T) {
		f := newServiceFixture(t,
			auth.WithPasswordPolicy(auth.LengthPolicy{Min: 8}),
			auth.WithEmailPolicy(auth.AddressPolicy{}),
		)

		_, err := f.svc.Register(ctx, "bad", "bad")
		assert.Equal(t, auth.KindWeakPassword, auth.KindOf(err))
	})

	t.Run("existing email is a distinct error", func(t *testing.T) {
		f := newServiceFixture(t)
		f.accounts.On("FindByEmail", ctx, "a@x.com").Return(&auth.Account{ID: 1, Email: "a@x.com"}, nil)

		_, err := f.svc.Register(ctx, "a@x.com", "pw1")
		require.Error(t, err)
		assert.Equal(t, auth.KindEmailTaken, auth.KindOf(err))
		assert.NotErrorIs(t, err, auth.ErrInvalidCredentials)
		errutil.AssertErrorCode(t, err, auth.CodeEmailTaken)
	})

	t.Run("duplicate on insert is a distinct error", func(t *testing.T) {
		f := newServiceFixture(t)
		f.accounts.On("FindByEmail", ctx, "a@x.com").Return(nil, nil)
		f.hasher.On("Hash", "pw1").Return(hash, nil)
		f.accounts.On("Create", ctx, "a@x.com", hash, fixedNow).
			Return(nil, oops.Code("ACCOUNT_EMAIL_EXISTS").Wrap(auth.ErrDuplicateEmail))

		_, err := f.svc.Register(ctx, "a@x.com", "pw1")
		assert.Equal(t, auth.KindEmailTaken, auth.KindOf(err))
	})

	t.Run("lookup failure is internal", func(t *testing.T) {
		f := newServiceFixture(t)
		f.accounts.On("FindByEmail", ctx, "a@x.com").Return(nil, errors.New("connection refused"))

		_, err := f.svc.Register(ctx, "a@x.com", "pw1")
		assert.Equal(t, auth.KindInternal, auth.KindOf(err))
		errutil.AssertErrorContext(t, err, "operation", "find account by email")
	})

	t.Run("hash failure is internal", func(t *testing.T) {
		f := newServiceFixture(t)
		f.accounts.On("FindByEmail", ctx, "a@x.com").Return(nil, nil)
		f.hasher.On("Hash", "pw1").Return(nil, errors.New("cost unsupported"))

		_, err := f.svc.Register(ctx, "a@x.com", "pw1")
		assert.Equal(t, auth.KindInternal, auth.KindOf(err))
		errutil.AssertErrorContext(t, err, "operation", "hash password")
	})

	t.Run("insert failure is internal", func(t *testing.T) {
		f := newServiceFixture(t)
		f.accounts.On("FindByEmail", ctx, "a@x.com").Return(nil, nil)
		f.hasher.On("Hash", "pw1").Return(hash, nil)
		f.accounts.On("Create", ctx, "a@x.com", hash, fixedNow).Return(nil, errors.New("disk full"))

		_, err := f.svc.Register(ctx, "a@x.com", "pw1")
		assert.Equal(t, auth.KindInternal, auth.KindOf(err))
	})
}

func TestService_Login(t *testing.T) {
	ctx := context.Background()
	account := &auth.Account{ID: 7, Email: "a@x.com", PasswordHash: []byte("stored-hash"), CreatedAt: fixedNow}

	t.Run("successful login replaces session", func(t *testing.T) {
		f := newServiceFixture(t)
		f.accounts.On("FindByEmail", ctx, "a@x.com").Return(account, nil)
		f.hasher.On("Verify", "pw1", account.PasswordHash).Return(true, nil)
		f.sessions.On("Replace", ctx, &auth.Session{ID: "session-token", UserID: 7, CreatedAt: fixedNow}).Return(nil)

		session, err := f.svc.Login(ctx, "a@x.com", "pw1")
		require.NoError(t, err)
		assert.Equal(t, "session-token", session.ID)
		assert.Equal(t, int64(7), session.UserID)
		assert.Equal(t, fixedNow, session.CreatedAt)
	})

	t.Run("unknown email and wrong password are indistinguishable", func(t *testing.T) {
		f := newServiceFixture(t)
		f.accounts.On("FindByEmail", ctx, "a@x.com").Return(account, nil)
		f.accounts.On("FindByEmail", ctx, "nobody@x.com").Return(nil, nil)
		f.hasher.On("Verify", "wrong", account.PasswordHash).Return(false, nil)
		// Unknown accounts still pay for a verification against a dummy hash.
		f.hasher.On("Hash", mock.AnythingOfType("string")).Return([]byte("dummy-hash"), nil).Once()
		f.hasher.On("Verify", "wrong", []byte("dummy-hash")).Return(false, nil)

		_, wrongPw := f.svc.Login(ctx, "a@x.com", "wrong")
		_, unknown := f.svc.Login(ctx, "nobody@x.com", "wrong")

		require.Error(t, wrongPw)
		require.Error(t, unknown)
		assert.Equal(t, auth.KindInvalidCredentials, auth.KindOf(wrongPw))
		assert.Equal(t, auth.KindOf(wrongPw), auth.KindOf(unknown))
		assert.Equal(t, wrongPw.Error(), unknown.Error())
		errutil.AssertErrorCode(t, unknown, auth.CodeInvalidCredentials)

		for _, err := range []error{wrongPw, unknown} {
			oopsErr, ok := oops.AsOops(err)
			require.True(t, ok)
			assert.NotContains(t, oopsErr.Context(), "email")
			assert.NotContains(t, oopsErr.Context(), "account_id")
		}
	})

	t.Run("dummy hash is prepared once", func(t *testing.T) {
		f := newServiceFixture(t)
		f.accounts.On("FindByEmail", ctx, "nobody@x.com").Return(nil, nil)
		f.hasher.On("Hash", mock.AnythingOfType("string")).Return([]byte("dummy-hash"), nil).Once()
		f.hasher.On("Verify", "pw", []byte("dummy-hash")).Return(false, nil).Times(3)

		for range 3 {
			_, err := f.svc.Login(ctx, "nobody@x.com", "pw")
			assert.Equal(t, auth.KindInvalidCredentials, auth.KindOf(err))
		}
	})

	t.Run("dummy hash failure still reports invalid credentials", func(t *testing.T) {
		f := newServiceFixture(t)
		f.accounts.On("FindByEmail", ctx, "nobody@x.com").Return(nil, nil)
		f.hasher.On("Hash", mock.AnythingOfType("string")).Return(nil, errors.New("broken")).Once()

		_, err := f.svc.Login(ctx, "nobody@x.com", "pw")
		assert.Equal(t, auth.KindInvalidCredentials, auth.KindOf(err))
	})

	t.Run("verification error is invalid credentials", func(t *testing.T) {
		f := newServiceFixture(t)
		f.accounts.On("FindByEmail", ctx, "a@x.com").Return(account, nil)
		f.hasher.On("Verify", "pw1", account.PasswordHash).Return(false, errors.New("corrupt hash"))

		_, err := f.svc.Login(ctx, "a@x.com", "pw1")
		assert.Equal(t, auth.KindInvalidCredentials, auth.KindOf(err))
	})

	t.Run("lookup failure is internal", func(t *testing.T) {
		f := newServiceFixture(t)
		f.accounts.On("FindByEmail", ctx, "a@x.com").Return(nil, errors.New("connection refused"))

		_, err := f.svc.Login(ctx, "a@x.com", "pw1")
		assert.Equal(t, auth.KindInternal, auth.KindOf(err))
	})

	t.Run("session id generation failure is internal", func(t *testing.T) {
		f := newServiceFixture(t, auth.WithSessionIDGenerator(func() (string, error) {
			return "", errors.New("entropy exhausted")
		}))
		f.accounts.On("FindByEmail", ctx, "a@x.com").Return(account, nil)
		f.hasher.On("Verify", "pw1", account.PasswordHash).Return(true, nil)

		_, err := f.svc.Login(ctx, "a@x.com", "pw1")
		assert.Equal(t, auth.KindInternal, auth.KindOf(err))
		errutil.AssertErrorContext(t, err, "operation", "generate session id")
	})

	t.Run("replace failure is internal", func(t *testing.T) {
		f := newServiceFixture(t)
		f.accounts.On("FindByEmail", ctx, "a@x.com").Return(account, nil)
		f.hasher.On("Verify", "pw1", account.PasswordHash).Return(true, nil)
		f.sessions.On("Replace", ctx, mock.AnythingOfType("*auth.Session")).Return(errors.New("tx aborted"))

		session, err := f.svc.Login(ctx, "a@x.com", "pw1")
		assert.Nil(t, session)
		assert.Equal(t, auth.KindInternal, auth.KindOf(err))
	})
}

func TestService_Logout(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes existing session", func(t *testing.T) {
		f := newServiceFixture(t)
		f.sessions.On("Delete", ctx, "tok").Return(true, nil)

		require.NoError(t, f.svc.Logout(ctx, "tok"))
	})

	t.Run("missing session is invalid session", func(t *testing.T) {
		f := newServiceFixture(t)
		f.sessions.On("Delete", ctx, "tok").Return(false, nil)

		err := f.svc.Logout(ctx, "tok")
		assert.Equal(t, auth.KindInvalidSession, auth.KindOf(err))
		errutil.AssertErrorCode(t, err, auth.CodeInvalidSession)
	})

	t.Run("empty id never reaches the store", func(t *testing.T) {
		f := newServiceFixture(t)

		err := f.svc.Logout(ctx, "")
		assert.Equal(t, auth.KindInvalidSession, auth.KindOf(err))
	})

	t.Run("store failure is internal", func(t *testing.T) {
		f := newServiceFixture(t)
		f.sessions.On("Delete", ctx, "tok").Return(false, errors.New("connection reset"))

		err := f.svc.Logout(ctx, "tok")
		assert.Equal(t, auth.KindInternal, auth.KindOf(err))
	})
}

func TestService_ValidateSession(t *testing.T) {
	ctx := context.Background()

	t.Run("returns live session", func(t *testing.T) {
		f := newServiceFixture(t)
		want := &auth.Session{ID: "tok", UserID: 7, CreatedAt: fixedNow}
		f.sessions.On("Get", ctx, "tok").Return(want, nil)

		got, err := f.svc.ValidateSession(ctx, "tok")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("unknown session is invalid session", func(t *testing.T) {
		f := newServiceFixture(t)
		f.sessions.On("Get", ctx, "tok").Return(nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound))

		_, err := f.svc.ValidateSession(ctx, "tok")
		assert.Equal(t, auth.KindInvalidSession, auth.KindOf(err))
	})

	t.Run("empty id is invalid session", func(t *testing.T) {
		f := newServiceFixture(t)

		_, err := f.svc.ValidateSession(ctx, "")
		assert.Equal(t, auth.KindInvalidSession, auth.KindOf(err))
	})

	t.Run("store failure is internal", func(t *testing.T) {
		f := newServiceFixture(t)
		f.sessions.On("Get", ctx, "tok").Return(nil, errors.New("timeout"))

		_, err := f.svc.ValidateSession(ctx, "tok")
		assert.Equal(t, auth.KindInternal, auth.KindOf(err))
	})
}
