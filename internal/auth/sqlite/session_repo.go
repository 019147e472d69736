// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tudu Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/samber/oops"

	"github.com/tudu/tudu/internal/auth"
)

// SessionRepository implements auth.SessionRepository using SQLite.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a session without touching the user's other sessions.
func (r *SessionRepository) Create(ctx context.Context, session *auth.Session) error {
	return insertSession(ctx, r.db, session)
}

func insertSession(ctx context.Context, db DBTX, session *auth.Session) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, user_id, created_at) VALUES (?, ?, ?)`,
		session.ID, session.UserID, toMicros(session.CreatedAt))
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").With("user_id", session.UserID).Wrap(err)
	}
	return nil
}

// Get retrieves a session by ID.
func (r *SessionRepository) Get(ctx context.Context, id string) (*auth.Session, error) {
	var (
		s       auth.Session
		created int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT session_id, user_id, created_at FROM sessions WHERE session_id = ?`, id).
		Scan(&s.ID, &s.UserID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_FAILED").Wrap(err)
	}
	s.CreatedAt = fromMicros(created)
	return &s, nil
}

// DeleteByUser removes every session owned by userID.
func (r *SessionRepository) DeleteByUser(ctx context.Context, userID int64) error {
	return deleteSessionsByUser(ctx, r.db, userID)
}

func deleteSessionsByUser(ctx context.Context, db DBTX, userID int64) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID); err != nil {
		return oops.Code("SESSION_DELETE_BY_USER_FAILED").With("user_id", userID).Wrap(err)
	}
	return nil
}

// Delete removes a session by ID and reports whether a row was removed.
func (r *SessionRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, id)
	if err != nil {
		return false, oops.Code("SESSION_DELETE_FAILED").Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, oops.Code("SESSION_DELETE_FAILED").Wrap(err)
	}
	return n > 0, nil
}

// Replace deletes the user's sessions and inserts session in one transaction.
func (r *SessionRepository) Replace(ctx context.Context, session *auth.Session) error {
	return withTx(ctx, r.db, func(ctx context.Context, tx DBTX) error {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM accounts WHERE id = ?`, session.UserID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return oops.Code("ACCOUNT_NOT_FOUND").With("user_id", session.UserID).Wrap(auth.ErrNotFound)
		}
		if err != nil {
			return oops.Code("SESSION_LOCK_FAILED").With("user_id", session.UserID).Wrap(err)
		}

		if err := deleteSessionsByUser(ctx, tx, session.UserID); err != nil {
			return err
		}
		return insertSession(ctx, tx, session)
	})
}

var _ auth.SessionRepository = (*SessionRepository)(nil)
