// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tudu Contributors

package main

import (
	"context"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/tudu/tudu/internal/auth/mocks"
	"github.com/tudu/tudu/internal/config"
	"github.com/tudu/tudu/internal/observability"
)

// mockObservabilityServer implements ObservabilityServer for testing.
type mockObservabilityServer struct {
	mu          sync.Mutex
	registry    *prometheus.Registry
	metrics     *observability.Metrics
	ready       observability.ReadinessChecker
	startErr    error
	startCalled bool
	stopCalled  bool
}

func newMockObservabilityServer(ready observability.ReadinessChecker) *mockObservabilityServer {
	reg := prometheus.NewRegistry()
	return &mockObservabilityServer{registry: reg, metrics: observability.NewMetrics(reg), ready: ready}
}

func (m *mockObservabilityServer) Start() (<-chan error, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startCalled = true
	if m.startErr != nil {
		return nil, m.startErr
	}
	return make(chan error), nil
}

func (m *mockObservabilityServer) Stop(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopCalled = true
	return nil
}

func (m *mockObservabilityServer) Addr() string { return "127.0.0.1:0" }

func (m *mockObservabilityServer) Metrics() *observability.Metrics { return m.metrics }

func (m *mockObservabilityServer) Registerer() prometheus.Registerer { return m.registry }

// autoMigrateMockMigrator implements AutoMigrator for testing.
type autoMigrateMockMigrator struct {
	upCalled    bool
	upError     error
	closeCalled bool
	closeError  error
}

func (m *autoMigrateMockMigrator) Up() error {
	m.upCalled = true
	return m.upError
}

func (m *autoMigrateMockMigrator) Close() error {
	m.closeCalled = true
	return m.closeError
}

// mockBackend returns a Backend whose repositories must never be called.
func mockBackend(_ context.Context, _ *config.Config) (*Backend, error) {
	return &Backend{
		Accounts: &mocks.MockAccountRepository{},
		Sessions: &mocks.MockSessionRepository{},
		Ping:     func(context.Context) error { return nil },
	}, nil
}

// capturingListener records the bound address of the API listener.
func capturingListener(t *testing.T) (func(network, address string) (net.Listener, error), <-chan string) {
	t.Helper()
	addrs := make(chan string, 1)
	return func(network, _ string) (net.Listener, error) {
		l, err := net.Listen(network, "127.0.0.1:0")
		require.NoError(t, err)
		addrs <- l.Addr().String()
		return l, nil
	}, addrs
}

// testConfig returns a valid configuration for an in-memory SQLite backend.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.Database.Driver = config.DriverSQLite
	cfg.Database.URL = "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	cfg.Session.Backend = config.SessionBackendSQL
	cfg.Redis.Prefix = "tudu:"
	cfg.Hasher.Algorithm = "bcrypt"
	cfg.Hasher.Cost = 4
	cfg.Workers.Size = 2
	cfg.Workers.Queue = 8
	cfg.Log.Format = "json"
	cfg.Log.Level = "error"
	require.NoError(t, cfg.Validate())
	return cfg
}
