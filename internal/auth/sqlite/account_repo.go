// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tudu Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/samber/oops"

	"github.com/tudu/tudu/internal/auth"
)

// AccountRepository implements auth.AccountRepository using SQLite.
type AccountRepository struct {
	db *sql.DB
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create inserts a new account.
func (r *AccountRepository) Create(ctx context.Context, email string, passwordHash []byte, createdAt time.Time) (*auth.Account, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (email, password_hash, created_at) VALUES (?, ?, ?)`,
		email, passwordHash, toMicros(createdAt))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, oops.Code("ACCOUNT_EMAIL_EXISTS").
				With("operation", "insert account").
				Wrap(auth.ErrDuplicateEmail)
		}
		return nil, oops.Code("ACCOUNT_CREATE_FAILED").With("operation", "insert account").Wrap(err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, oops.Code("ACCOUNT_CREATE_FAILED").With("operation", "read account id").Wrap(err)
	}

	return &auth.Account{
		ID:           id,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    fromMicros(toMicros(createdAt)),
	}, nil
}

// FindByEmail retrieves an account by exact email match. It returns
// (nil, nil) when no account has the email.
func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM accounts WHERE email = ?`, email)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_FIND_BY_EMAIL_FAILED").Wrap(err)
	}
	return account, nil
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*auth.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM accounts WHERE id = ?`, id)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With("account_id", id).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_BY_ID_FAILED").With("account_id", id).Wrap(err)
	}
	return account, nil
}

func scanAccount(row *sql.Row) (*auth.Account, error) {
	var (
		a       auth.Account
		created int64
	)
	if err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &created); err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with operation context
	}
	a.CreatedAt = fromMicros(created)
	return &a, nil
}

var _ auth.AccountRepository = (*AccountRepository)(nil)
