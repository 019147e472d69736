// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tudu Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// Storage-level sentinels. Repositories wrap these; the Service translates
// them into taxonomy errors.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateEmail is returned by AccountRepository.Create when the email
	// is already registered.
	ErrDuplicateEmail = errors.New("duplicate email")
)

// Kind classifies an error returned by the Service. The set is closed.
type Kind string

// Error kinds surfaced to callers.
const (
	KindInvalidCredentials Kind = "invalid_credentials"
	KindInvalidEmail       Kind = "invalid_email"
	KindWeakPassword       Kind = "weak_password"
	KindInvalidSession     Kind = "invalid_session"
	KindEmailTaken         Kind = "email_taken"
	KindInternal           Kind = "internal"
)

// oops codes attached to taxonomy errors.
const (
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeInvalidEmail       = "AUTH_INVALID_EMAIL"
	CodeWeakPassword       = "AUTH_WEAK_PASSWORD"
	CodeInvalidSession     = "AUTH_INVALID_SESSION"
	CodeEmailTaken         = "AUTH_EMAIL_TAKEN"
	CodeInternal           = "AUTH_INTERNAL"
)

// Taxonomy sentinels. Every error returned by the Service other than an
// internal failure wraps exactly one of these.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrWeakPassword       = errors.New("weak password")
	ErrInvalidSession     = errors.New("invalid session")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInternal           = errors.New("internal error")
)

// KindOf classifies err. Anything not carrying a taxonomy sentinel is
// KindInternal. A nil error has no kind.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return KindInvalidCredentials
	case errors.Is(err, ErrInvalidEmail):
		return KindInvalidEmail
	case errors.Is(err, ErrWeakPassword):
		return KindWeakPassword
	case errors.Is(err, ErrInvalidSession):
		return KindInvalidSession
	case errors.Is(err, ErrEmailTaken):
		return KindEmailTaken
	default:
		return KindInternal
	}
}

// Message returns the caller-facing text for the kind. It never includes
// account or session data.
func (k Kind) Message() string {
	switch k {
	case KindInvalidCredentials:
		return ErrInvalidCredentials.Error()
	case KindInvalidEmail:
		return ErrInvalidEmail.Error()
	case KindWeakPassword:
		return ErrWeakPassword.Error()
	case KindInvalidSession:
		return ErrInvalidSession.Error()
	case KindEmailTaken:
		return ErrEmailTaken.Error()
	default:
		return ErrInternal.Error()
	}
}

func invalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Wrap(ErrInvalidCredentials)
}

func invalidSession() error {
	return oops.Code(CodeInvalidSession).Wrap(ErrInvalidSession)
}

func emailTaken() error {
	return oops.Code(CodeEmailTaken).Wrap(ErrEmailTaken)
}

// internalError wraps a collaborator failure. The cause stays in the chain for
// logging; KindOf reports it as KindInternal.
func internalError(operation string, err error) error {
	return oops.Code(CodeInternal).
		With("operation", operation).
		Wrap(err)
}
