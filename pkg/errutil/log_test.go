// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tudu Contributors

package errutil_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tudu/tudu/internal/logging"
	"github.com/tudu/tudu/pkg/errutil"
)

func TestLogError_WithOopsError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	err := oops.Code("SESSION_GET_FAILED").
		With("user_id", int64(7)).
		Errorf("connection reset")

	errutil.LogError(logger, "validate session failed", err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "validate session failed", entry["msg"])
	assert.Equal(t, "SESSION_GET_FAILED", entry["code"])
	assert.Contains(t, entry["context"], "user_id")
}

func TestLogError_WithStandardError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	errutil.LogError(logger, "operation failed", errors.New("standard error"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Contains(t, entry["error"], "standard error")
	assert.NotContains(t, entry, "code")
}

func TestLogErrorContext_CarriesRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.Setup(logging.Options{Service: "tudu", Output: &buf})
	require.NoError(t, err)

	ctx := logging.WithRequestID(context.Background(), "req-1")
	errutil.LogErrorContext(ctx, logger, "login failed", oops.Code("AUTH_INTERNAL").Errorf("boom"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "AUTH_INTERNAL", entry["code"])
}
