// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tudu Contributors

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/tudu/tudu/internal/auth"
)

const (
	insertSessionSQL = `
		INSERT INTO sessions (session_id, user_id, created_at)
		VALUES ($1, $2, $3)
	`
	deleteSessionsByUserSQL = `
		DELETE FROM sessions WHERE user_id = $1
	`
	// lockAccountSQL is the per-user serialization point for Replace.
	lockAccountSQL = `
		SELECT id FROM accounts WHERE id = $1 FOR UPDATE
	`
)

// execer is satisfied by both Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// SessionRepository implements auth.SessionRepository using PostgreSQL.
type SessionRepository struct {
	pool Pool
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// Create stores a new session.
func (r *SessionRepository) Create(ctx context.Context, session *auth.Session) error {
	return insertSession(ctx, r.pool, session)
}

// Get retrieves a session by ID.
func (r *SessionRepository) Get(ctx context.Context, sessionID string) (*auth.Session, error) {
	var s auth.Session
	err := r.pool.QueryRow(ctx, `
		SELECT session_id, user_id, created_at
		FROM sessions
		WHERE session_id = $1
	`, sessionID).Scan(&s.ID, &s.UserID, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_FAILED").
			With("operation", "get session").
			Wrap(err)
	}
	s.CreatedAt = s.CreatedAt.UTC()
	return &s, nil
}

// DeleteByUser removes all sessions for a user.
func (r *SessionRepository) DeleteByUser(ctx context.Context, userID int64) error {
	return deleteSessionsByUser(ctx, r.pool, userID)
}

// Delete removes a session by ID.
func (r *SessionRepository) Delete(ctx context.Context, sessionID string) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM sessions WHERE session_id = $1
	`, sessionID)
	if err != nil {
		return false, oops.Code("SESSION_DELETE_FAILED").
			With("operation", "delete session").
			Wrap(err)
	}
	return result.RowsAffected() > 0, nil
}

// Replace deletes the user's sessions and inserts session in one
// transaction. The account row is locked first so concurrent replaces for
// the same user run one after another.
func (r *SessionRepository) Replace(ctx context.Context, session *auth.Session) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return oops.Code("TX_BEGIN_FAILED").
			With("operation", "replace session").
			Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	var locked int64
	if err := tx.QueryRow(ctx, lockAccountSQL, session.UserID).Scan(&locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return oops.Code("ACCOUNT_NOT_FOUND").
				With("user_id", session.UserID).
				Wrap(auth.ErrNotFound)
		}
		return oops.Code("SESSION_LOCK_FAILED").
			With("operation", "lock account").
			With("user_id", session.UserID).
			Wrap(err)
	}

	if err := deleteSessionsByUser(ctx, tx, session.UserID); err != nil {
		return err
	}
	if err := insertSession(ctx, tx, session); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.Code("TX_COMMIT_FAILED").
			With("operation", "replace session").
			Wrap(err)
	}
	return nil
}

func insertSession(ctx context.Context, db execer, session *auth.Session) error {
	if _, err := db.Exec(ctx, insertSessionSQL, session.ID, session.UserID, session.CreatedAt); err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "insert session").
			With("user_id", session.UserID).
			Wrap(err)
	}
	return nil
}

func deleteSessionsByUser(ctx context.Context, db execer, userID int64) error {
	if _, err := db.Exec(ctx, deleteSessionsByUserSQL, userID); err != nil {
		return oops.Code("SESSION_DELETE_BY_USER_FAILED").
			With("operation", "delete sessions by user").
			With("user_id", userID).
			Wrap(err)
	}
	// No rows deleted is a valid state.
	return nil
}

// Compile-time interface check.
var _ auth.SessionRepository = (*SessionRepository)(nil)
