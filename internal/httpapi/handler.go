// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tudu Contributors

// Package httpapi exposes the auth service as JSON over HTTP. Every auth call
// runs on the shared worker pool.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/samber/oops"

	"github.com/tudu/tudu/internal/auth"
	"github.com/tudu/tudu/internal/observability"
	"github.com/tudu/tudu/internal/workpool"
	"github.com/tudu/tudu/pkg/errutil"
)

// SessionHeader carries the session ID for GET /user/session.
const SessionHeader = "X-Session-ID"

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Operation labels used in metrics.
const (
	opRegister = "register"
	opLogin    = "login"
	opLogout   = "logout"
	opSession  = "session"
)

// Authenticator is the auth surface the API serves.
type Authenticator interface {
	Register(ctx context.Context, email, password string) (*auth.Account, error)
	Login(ctx context.Context, email, password string) (*auth.Session, error)
	Logout(ctx context.Context, sessionID string) error
	ValidateSession(ctx context.Context, sessionID string) (*auth.Session, error)
}

// Handler routes API requests.
type Handler struct {
	auth    Authenticator
	pool    *workpool.Pool
	metrics *observability.Metrics
	logger  *slog.Logger
	root    http.Handler
}

// Option configures a Handler.
type Option func(*Handler)

// WithMetrics records per-operation and per-route metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// New creates a Handler.
func New(authenticator Authenticator, pool *workpool.Pool, opts ...Option) (*Handler, error) {
	if authenticator == nil {
		return nil, oops.Code("HTTPAPI_CONFIG").Errorf("authenticator is required")
	}
	if pool == nil {
		return nil, oops.Code("HTTPAPI_CONFIG").Errorf("worker pool is required")
	}

	h := &Handler{auth: authenticator, pool: pool, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		return nil, oops.Code("HTTPAPI_CONFIG").Errorf("logger cannot be nil")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /user/create", h.handleRegister)
	mux.HandleFunc("POST /user/login", h.handleLogin)
	mux.HandleFunc("POST /user/logout", h.handleLogout)
	mux.HandleFunc("GET /user/session", h.handleSession)
	mux.HandleFunc("GET /{$}", h.handleIndex)

	h.root = h.withRequestID(h.withAccessLog(h.withRecovery(mux)))
	return h, nil
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.root.ServeHTTP(w, r)
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type logoutRequest struct {
	SessionID string `json:"session_id"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}
	account, err := call(h, r, opRegister, func(ctx context.Context) (*auth.Account, error) {
		return h.auth.Register(ctx, req.Email, req.Password)
	})
	if err != nil {
		h.writeError(w, r, opRegister, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}
	session, err := call(h, r, opLogin, func(ctx context.Context) (*auth.Session, error) {
		return h.auth.Login(ctx, req.Email, req.Password)
	})
	if err != nil {
		h.writeError(w, r, opLogin, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if !h.decode(w, r, &req) {
		return
	}
	_, err := call(h, r, opLogout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, h.auth.Logout(ctx, req.SessionID)
	})
	if err != nil {
		h.writeError(w, r, opLogout, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get(SessionHeader)
	session, err := call(h, r, opSession, func(ctx context.Context) (*auth.Session, error) {
		return h.auth.ValidateSession(ctx, id)
	})
	if err != nil {
		h.writeError(w, r, opSession, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "hello world") //nolint:errcheck // client gone is not actionable
}

// call runs fn on the worker pool and records the outcome.
func call[T any](h *Handler, r *http.Request, operation string, fn func(context.Context) (T, error)) (T, error) {
	start := time.Now()
	v, err := workpool.Do(r.Context(), h.pool, fn)
	if h.metrics != nil {
		h.metrics.ObserveOperation(operation, resultLabel(err), time.Since(start))
	}
	return v, err
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return string(auth.KindOf(err))
}

// decode reads a JSON body into dst. On failure it writes a 400 and reports false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		h.logger.DebugContext(r.Context(), "malformed request body", "error", err)
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "bad_request",
			Message: "request body must be a JSON object",
		})
		return false
	}
	return true
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind auth.Kind) int {
	switch kind {
	case auth.KindInvalidCredentials, auth.KindInvalidSession:
		return http.StatusUnauthorized
	case auth.KindInvalidEmail, auth.KindWeakPassword:
		return http.StatusBadRequest
	case auth.KindEmailTaken:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	kind := auth.KindOf(err)
	if kind == auth.KindInternal {
		switch {
		case errors.Is(err, context.Canceled):
			h.logger.DebugContext(r.Context(), "client went away", "operation", operation)
		case errors.Is(err, workpool.ErrClosed):
			h.logger.WarnContext(r.Context(), "request rejected by closed worker pool", "operation", operation)
		default:
			errutil.LogErrorContext(r.Context(), h.logger, operation+" failed", err)
		}
	}
	writeJSON(w, StatusFor(kind), ErrorResponse{Error: string(kind), Message: kind.Message()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // headers are already sent
}
