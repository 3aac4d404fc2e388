// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package webhook delivers workflow events to external HTTP endpoints.
package webhook

import (
	"time"

	"github.com/google/uuid"
)

// Event is the JSON body posted to every endpoint.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// NewEvent creates a new webhook event. The ID stays the same across retries
// so receivers can drop duplicates.
func NewEvent(eventType string, data any) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// TestEventData is the payload of a test ping.
type TestEventData struct {
	Message string `json:"message"`
}
