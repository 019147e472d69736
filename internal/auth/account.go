// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tudu Contributors

package auth

import (
	"context"
	"time"
)

// Account is a registered user identity keyed by email.
//
// Emails are compared exactly: "A@x.com" and "a@x.com" are different accounts.
type Account struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// AccountRepository manages account persistence.
type AccountRepository interface {
	// Create inserts a new account and returns it with its store-assigned ID.
	// Returns an error wrapping ErrDuplicateEmail if the email is taken.
	Create(ctx context.Context, email string, passwordHash []byte, createdAt time.Time) (*Account, error)

	// FindByEmail returns the account with the given email, or (nil, nil) if
	// none exists.
	FindByEmail(ctx context.Context, email string) (*Account, error)

	// GetByID retrieves an account by ID. Returns an error wrapping ErrNotFound
	// if absent.
	GetByID(ctx context.Context, id int64) (*Account, error)
}
