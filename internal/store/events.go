// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"time"
)

// Event levels.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// Event categories.
const (
	EventCategorySystem  = "system"
	EventCategoryAuth    = "auth"
	EventCategoryContent = "content"
	EventCategoryBackup  = "backup"
	EventCategoryCache   = "cache"
	EventCategoryWebhook = "webhook"
)

// CreateEventParams holds the values of a new event.
type CreateEventParams struct {
	Level     string
	Category  string
	Message   string
	Metadata  string
	CreatedAt time.Time
}

// CreateEvent appends an entry to the event log.
func (q *Queries) CreateEvent(ctx context.Context, arg CreateEventParams) error {
	metadata := arg.Metadata
	if metadata == "" {
		metadata = "{}"
	}
	_, err := q.exec(ctx, `INSERT INTO events (level, category, message, metadata, created_at) VALUES (?, ?, ?, ?, ?)`,
		arg.Level, arg.Category, arg.Message, metadata, arg.CreatedAt)
	return err
}

// ListEventsParams filters and pages the event log.
type ListEventsParams struct {
	Category string
	Limit    int64
	Offset   int64
}

// ListEvents returns events, newest first.
func (q *Queries) ListEvents(ctx context.Context, arg ListEventsParams) ([]Event, error) {
	query := `SELECT id, level, category, message, metadata, created_at FROM events`
	var args []any
	if arg.Category != "" {
		query += ` WHERE category = ?`
		args = append(args, arg.Category)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, arg.Limit, arg.Offset)

	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Level, &e.Category, &e.Message, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// CountEvents returns the number of events, optionally within a category.
func (q *Queries) CountEvents(ctx context.Context, category string) (int64, error) {
	var n int64
	if category == "" {
		err := q.queryRow(ctx, `SELECT COUNT(*) FROM events`).Scan(&n)
		return n, err
	}
	err := q.queryRow(ctx, `SELECT COUNT(*) FROM events WHERE category = ?`, category).Scan(&n)
	return n, err
}

// DeleteEventsBefore removes events older than the cutoff.
func (q *Queries) DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := q.exec(ctx, `DELETE FROM events WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
