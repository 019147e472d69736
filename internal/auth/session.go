// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tudu Contributors

package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/samber/oops"
)

// SessionTokenBytes is the entropy of a session ID (64 hex chars).
const SessionTokenBytes = 32

// Session is a server-issued proof of an authenticated Account.
type Session struct {
	ID        string    `json:"session_id"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// NewSession creates a validated Session.
func NewSession(id string, userID int64, createdAt time.Time) (*Session, error) {
	if id == "" {
		return nil, oops.Code("SESSION_INVALID_ID").Errorf("session id cannot be empty")
	}
	if userID <= 0 {
		return nil, oops.Code("SESSION_INVALID_USER").With("user_id", userID).Errorf("user id must be positive")
	}
	if createdAt.IsZero() {
		return nil, oops.Code("SESSION_INVALID_CREATED_AT").Errorf("created_at cannot be zero")
	}
	return &Session{ID: id, UserID: userID, CreatedAt: createdAt}, nil
}

// GenerateSessionID returns a fresh random session ID.
func GenerateSessionID() (string, error) {
	b := make([]byte, SessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", oops.Code("SESSION_TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", SessionTokenBytes).
			Wrap(err)
	}
	return hex.EncodeToString(b), nil
}

// SessionRepository manages session persistence.
type SessionRepository interface {
	// Create stores a session. It does not remove other sessions of the user.
	Create(ctx context.Context, session *Session) error

	// Get retrieves a session by ID. Returns an error wrapping ErrNotFound if
	// absent.
	Get(ctx context.Context, sessionID string) (*Session, error)

	// DeleteByUser removes any session belonging to the user. Deleting
	// nothing is not an error.
	DeleteByUser(ctx context.Context, userID int64) error

	// Delete removes a session by ID and reports whether it existed.
	Delete(ctx context.Context, sessionID string) (bool, error)

	// Replace atomically removes every session of session.UserID and stores
	// session. Concurrent calls for the same user leave exactly one session.
	Replace(ctx context.Context, session *Session) error
}
