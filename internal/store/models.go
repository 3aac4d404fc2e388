// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"database/sql"
	"encoding/json"
	"time"
)

// Version statuses.
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusArchived  = "archived"
)

// Section is a named content slot on the public page.
type Section struct {
	ID                 string         `json:"id"`
	Slug               string         `json:"slug"`
	Title              string         `json:"title"`
	SortOrder          int64          `json:"sort_order"`
	IsEnabled          bool           `json:"is_enabled"`
	PublishedVersionID sql.NullString `json:"-"`
	DraftVersionID     sql.NullString `json:"-"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// HasPendingDraft reports whether the section has a draft that differs from
// its published version.
func (s Section) HasPendingDraft() bool {
	if !s.DraftVersionID.Valid {
		return false
	}
	return !s.PublishedVersionID.Valid || s.DraftVersionID.String != s.PublishedVersionID.String
}

// SectionVersion is a snapshot of a section's content.
type SectionVersion struct {
	ID          string          `json:"id"`
	SectionID   string          `json:"section_id"`
	Status      string          `json:"status"`
	LayoutJSON  json.RawMessage `json:"layout_json"`
	ContentHTML sql.NullString  `json:"-"`
	Revision    int64           `json:"revision"`
	CreatedAt   time.Time       `json:"created_at"`
	CreatedBy   sql.NullString  `json:"-"`
}

// PublishedSection joins an enabled section with its published version.
type PublishedSection struct {
	SectionID   string          `json:"section_id"`
	Slug        string          `json:"slug"`
	Title       string          `json:"title"`
	SortOrder   int64           `json:"sort_order"`
	VersionID   string          `json:"version_id"`
	LayoutJSON  json.RawMessage `json:"layout_json"`
	ContentHTML string          `json:"content_html,omitempty"`
}

// Backup is a named snapshot of every enabled section's published content.
type Backup struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Entries   []BackupEntry `json:"entries"`
	CreatedAt time.Time     `json:"created_at"`
}

// BackupSummary is a backup without its snapshot payload.
type BackupSummary struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	EntryCount int       `json:"entry_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// BackupEntry is one section inside a backup snapshot.
type BackupEntry struct {
	SectionID   string          `json:"section_id"`
	Title       string          `json:"title"`
	LayoutJSON  json.RawMessage `json:"layout_json"`
	ContentHTML *string         `json:"content_html"`
}

// Event is an audit log entry.
type Event struct {
	ID        int64     `json:"id"`
	Level     string    `json:"level"`
	Category  string    `json:"category"`
	Message   string    `json:"message"`
	Metadata  string    `json:"metadata"`
	CreatedAt time.Time `json:"created_at"`
}

// APIKey is a stored API credential. Only the prefix and a hash of the key
// are persisted.
type APIKey struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	KeyPrefix   string       `json:"key_prefix"`
	KeyHash     string       `json:"-"`
	Permissions string       `json:"-"` // JSON array
	IsActive    bool         `json:"is_active"`
	LastUsedAt  sql.NullTime `json:"-"`
	CreatedAt   time.Time    `json:"created_at"`
}
