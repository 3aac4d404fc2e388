// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/olegiv/pagecraft/internal/auth"
	"github.com/olegiv/pagecraft/internal/testutil"
)

var errPingFailed = errors.New("connection refused")

func failingPinger() Pinger {
	return PingFunc(func(context.Context) error { return errPingFailed })
}

// newTestHealthHandler returns a handler over a temp store and a raw API key valid for it.
func newTestHealthHandler(t *testing.T, cache Pinger) (*HealthHandler, string) {
	t.Helper()

	s := testutil.TestStore(t)
	keys := auth.NewKeyring(s, testutil.TestLoggerSilent())
	rawKey, _, err := keys.Create(context.Background(), "monitor", []string{auth.PermissionContentRead})
	if err != nil {
		t.Fatalf("Create key failed: %v", err)
	}
	return NewHealthHandler(s, cache, keys, "1.2.3"), rawKey
}

// addAPIKeyAuth adds a Bearer token to the request for authenticated health checks.
func addAPIKeyAuth(r *http.Request, rawKey string) {
	r.Header.Set("Authorization", "Bearer "+rawKey)
}

func assertStatus(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status = %d; want %d", got, want)
	}
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return v
}

func TestHealthHandler_Health_Public(t *testing.T) {
	handler, _ := newTestHealthHandler(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	handler.Health(w, req)

	assertStatus(t, w.Code, http.StatusOK)

	resp := decodeBody[map[string]any](t, w)
	if resp["status"] != "healthy" {
		t.Errorf("status = %v; want healthy", resp["status"])
	}
	if _, ok := resp["checks"]; ok {
		t.Error("public response should not include checks")
	}
	if _, ok := resp["version"]; ok {
		t.Error("public response should not include version")
	}
}

func TestHealthHandler_Health_Authenticated(t *testing.T) {
	handler, rawKey := newTestHealthHandler(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health?verbose=true", nil)
	addAPIKeyAuth(req, rawKey)
	w := httptest.NewRecorder()
	handler.Health(w, req)

	assertStatus(t, w.Code, http.StatusOK)

	resp := decodeBody[HealthStatus](t, w)
	if resp.Status != "healthy" {
		t.Errorf("status = %q; want healthy", resp.Status)
	}
	if resp.Version != "1.2.3" {
		t.Errorf("version = %q; want 1.2.3", resp.Version)
	}
	if resp.Checks["database"].Status != "healthy" {
		t.Errorf("database check = %+v", resp.Checks["database"])
	}
	if resp.Checks["cache"].Message != "Not configured" {
		t.Errorf("cache check = %+v; want not configured", resp.Checks["cache"])
	}
	if resp.System == nil || resp.System.NumCPU < 1 {
		t.Errorf("system info = %+v; want populated", resp.System)
	}
}

func TestHealthHandler_Health_DegradedCache(t *testing.T) {
	handler, rawKey := newTestHealthHandler(t, failingPinger())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	addAPIKeyAuth(req, rawKey)
	w := httptest.NewRecorder()
	handler.Health(w, req)

	assertStatus(t, w.Code, http.StatusOK)

	resp := decodeBody[HealthStatus](t, w)
	if resp.Status != "degraded" {
		t.Errorf("status = %q; want degraded", resp.Status)
	}
	if resp.Checks["cache"].Message != errPingFailed.Error() {
		t.Errorf("cache message = %q", resp.Checks["cache"].Message)
	}
}

func TestHealthHandler_Health_UnhealthyDatabase(t *testing.T) {
	handler := NewHealthHandler(failingPinger(), nil, nil, "dev")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	handler.Health(w, req)

	assertStatus(t, w.Code, http.StatusServiceUnavailable)
	if resp := decodeBody[map[string]any](t, w); resp["status"] != "unhealthy" {
		t.Errorf("status = %v; want unhealthy", resp["status"])
	}
}

func TestHealthHandler_Liveness(t *testing.T) {
	handler := NewHealthHandler(failingPinger(), nil, nil, "dev")

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	w := httptest.NewRecorder()
	handler.Liveness(w, req)

	assertStatus(t, w.Code, http.StatusOK)
	if resp := decodeBody[map[string]string](t, w); resp["status"] != "alive" {
		t.Errorf("status = %q; want alive", resp["status"])
	}
}

func TestHealthHandler_Readiness(t *testing.T) {
	handler, _ := newTestHealthHandler(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	w := httptest.NewRecorder()
	handler.Readiness(w, req)

	assertStatus(t, w.Code, http.StatusOK)
	if resp := decodeBody[map[string]string](t, w); resp["status"] != "ready" {
		t.Errorf("status = %q; want ready", resp["status"])
	}
}

func TestHealthHandler_Readiness_NotReady(t *testing.T) {
	healthy, rawKey := newTestHealthHandler(t, nil)
	handler := NewHealthHandler(failingPinger(), nil, healthy.keys, "dev")

	tests := []struct {
		name        string
		rawKey      string
		wantMessage string
	}{
		{"public", "", ""},
		{"authenticated", rawKey, errPingFailed.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
			if tt.rawKey != "" {
				addAPIKeyAuth(req, tt.rawKey)
			}
			w := httptest.NewRecorder()
			handler.Readiness(w, req)

			assertStatus(t, w.Code, http.StatusServiceUnavailable)
			resp := decodeBody[map[string]string](t, w)
			if resp["status"] != "not_ready" {
				t.Errorf("status = %q; want not_ready", resp["status"])
			}
			if resp["message"] != tt.wantMessage {
				t.Errorf("message = %q; want %q", resp["message"], tt.wantMessage)
			}
		})
	}
}

func TestHealthHandler_IsAuthenticated(t *testing.T) {
	handler, rawKey := newTestHealthHandler(t, nil)

	tests := []struct {
		name   string
		header string
		want   bool
	}{
		{"valid", "Bearer " + rawKey, true},
		{"lowercase scheme", "bearer " + rawKey, true},
		{"invalid key", "Bearer pc_not-a-real-key", false},
		{"basic scheme", "Basic " + rawKey, false},
		{"no scheme", rawKey, false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if got := handler.isAuthenticated(req); got != tt.want {
				t.Errorf("isAuthenticated() = %v; want %v", got, tt.want)
			}
		})
	}
}

func TestHealthHandler_Uptime(t *testing.T) {
	handler, _ := newTestHealthHandler(t, nil)
	if time.Since(handler.StartTime()) > time.Minute {
		t.Errorf("StartTime = %v; want recent", handler.StartTime())
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes uint64
		want  string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.00 KB"},
		{1536, "1.50 KB"},
		{1048576, "1.00 MB"},
		{1073741824, "1.00 GB"},
	}

	for _, tt := range tests {
		if got := formatBytes(tt.bytes); got != tt.want {
			t.Errorf("formatBytes(%d) = %q; want %q", tt.bytes, got, tt.want)
		}
	}
}
