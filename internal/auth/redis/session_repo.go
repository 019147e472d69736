// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tudu Contributors

// Package redis implements auth.SessionRepository on Redis. Accounts stay in
// SQL; only sessions move.
//
// Layout, relative to the configured prefix:
//
//	session:<id>           hash {user_id, created_at}
//	user:<user_id>:session string holding the user's live session ID
//
// Replace, Delete and DeleteByUser run as Lua scripts so each is atomic.
package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/tudu/tudu/internal/auth"
)

// DefaultPrefix namespaces every key written by SessionRepository.
const DefaultPrefix = "tudu:"

const replaceSessionScript = `
local old = redis.call("GET", KEYS[1])
if old then
  redis.call("DEL", ARGV[4] .. "session:" .. old)
end
redis.call("HSET", KEYS[2], "user_id", ARGV[2], "created_at", ARGV[3])
redis.call("SET", KEYS[1], ARGV[1])
return 1
`

const deleteSessionScript = `
local uid = redis.call("HGET", KEYS[1], "user_id")
if not uid then
  return 0
end
redis.call("DEL", KEYS[1])
local ukey = ARGV[1] .. "user:" .. uid .. ":session"
if redis.call("GET", ukey) == ARGV[2] then
  redis.call("DEL", ukey)
end
return 1
`

const deleteUserSessionScript = `
local old = redis.call("GET", KEYS[1])
if old then
  redis.call("DEL", ARGV[1] .. "session:" .. old)
end
redis.call("DEL", KEYS[1])
return 0
`

var (
	replaceSessionLua    = goredis.NewScript(replaceSessionScript)
	deleteSessionLua     = goredis.NewScript(deleteSessionScript)
	deleteUserSessionLua = goredis.NewScript(deleteUserSessionScript)
)

// SessionRepository implements auth.SessionRepository using Redis.
type SessionRepository struct {
	client goredis.UniversalClient
	prefix string
}

// NewSessionRepository creates a SessionRepository. An empty prefix selects
// DefaultPrefix.
func NewSessionRepository(client goredis.UniversalClient, prefix string) *SessionRepository {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &SessionRepository{client: client, prefix: prefix}
}

func (r *SessionRepository) sessionKey(id string) string {
	return r.prefix + "session:" + id
}

func (r *SessionRepository) userKey(userID int64) string {
	return r.prefix + "user:" + strconv.FormatInt(userID, 10) + ":session"
}

// Create stores the session and points the user's index at it. A previous
// session of the user is left in place but is no longer indexed.
func (r *SessionRepository) Create(ctx context.Context, session *auth.Session) error {
	_, err := r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, r.sessionKey(session.ID),
			"user_id", session.UserID,
			"created_at", session.CreatedAt.UTC().UnixMicro())
		pipe.Set(ctx, r.userKey(session.UserID), session.ID, 0)
		return nil
	})
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").With("user_id", session.UserID).Wrap(err)
	}
	return nil
}

// Get retrieves a session by ID.
func (r *SessionRepository) Get(ctx context.Context, id string) (*auth.Session, error) {
	fields, err := r.client.HGetAll(ctx, r.sessionKey(id)).Result()
	if err != nil {
		return nil, oops.Code("SESSION_GET_FAILED").Wrap(err)
	}
	if len(fields) == 0 {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}

	userID, err := strconv.ParseInt(fields["user_id"], 10, 64)
	if err != nil {
		return nil, oops.Code("SESSION_CORRUPT").With("field", "user_id").Wrap(err)
	}
	created, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return nil, oops.Code("SESSION_CORRUPT").With("field", "created_at").Wrap(err)
	}

	return &auth.Session{
		ID:        id,
		UserID:    userID,
		CreatedAt: time.UnixMicro(created).UTC(),
	}, nil
}

// DeleteByUser removes the user's indexed session.
func (r *SessionRepository) DeleteByUser(ctx context.Context, userID int64) error {
	err := deleteUserSessionLua.Run(ctx, r.client, []string{r.userKey(userID)}, r.prefix).Err()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return oops.Code("SESSION_DELETE_BY_USER_FAILED").With("user_id", userID).Wrap(err)
	}
	return nil
}

// Delete removes a session by ID and reports whether it existed.
func (r *SessionRepository) Delete(ctx context.Context, id string) (bool, error) {
	n, err := deleteSessionLua.Run(ctx, r.client, []string{r.sessionKey(id)}, r.prefix, id).Int64()
	if err != nil {
		return false, oops.Code("SESSION_DELETE_FAILED").Wrap(err)
	}
	return n == 1, nil
}

// Replace drops the user's current session and stores session in a single
// script invocation.
func (r *SessionRepository) Replace(ctx context.Context, session *auth.Session) error {
	keys := []string{r.userKey(session.UserID), r.sessionKey(session.ID)}
	err := replaceSessionLua.Run(ctx, r.client, keys,
		session.ID,
		session.UserID,
		session.CreatedAt.UTC().UnixMicro(),
		r.prefix,
	).Err()
	if err != nil {
		return oops.Code("SESSION_REPLACE_FAILED").With("user_id", session.UserID).Wrap(err)
	}
	return nil
}

var _ auth.SessionRepository = (*SessionRepository)(nil)
