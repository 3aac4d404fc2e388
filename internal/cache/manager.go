// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package cache

import (
	"context"
	"log/slog"
)

// Manager owns the cache backend and its invalidation gateway.
type Manager struct {
	Cache   Cacher
	Gateway *Gateway
	backend string
}

// NewManager creates the configured backend and a gateway over it.
func NewManager(cfg Config, logger *slog.Logger) *Manager {
	c, backend := NewCache(cfg, logger)
	return NewManagerWithCache(c, backend, logger)
}

// NewManagerWithCache wraps an existing backend.
func NewManagerWithCache(c Cacher, backend string, logger *slog.Logger) *Manager {
	return &Manager{
		Cache:   c,
		Gateway: NewGateway(c, logger),
		backend: backend,
	}
}

// Backend returns the name of the active backend.
func (m *Manager) Backend() string {
	return m.backend
}

// Info is the cache status reported by the admin API.
type Info struct {
	Backend string       `json:"backend"`
	Healthy bool         `json:"healthy"`
	Stats   Stats        `json:"stats"`
	Gateway GatewayStats `json:"gateway"`
}

// Info returns backend statistics, health and gateway activity.
func (m *Manager) Info(ctx context.Context) Info {
	info := Info{
		Backend: m.backend,
		Healthy: m.HealthCheck(ctx) == nil,
		Gateway: m.Gateway.Stats(),
	}
	if sp, ok := m.Cache.(StatsProvider); ok {
		info.Stats = sp.Stats()
	}
	return info
}

// HealthCheck pings the backend when it supports it.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if p, ok := m.Cache.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// ResetStats resets backend statistics.
func (m *Manager) ResetStats() {
	if sp, ok := m.Cache.(StatsProvider); ok {
		sp.ResetStats()
	}
}

// Close releases the backend.
func (m *Manager) Close() error {
	return m.Cache.Close()
}
