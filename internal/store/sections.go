// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"time"
)

const sectionColumns = `id, slug, title, sort_order, is_enabled, published_version_id, draft_version_id, created_at, updated_at`

func scanSection(row interface{ Scan(...any) error }) (Section, error) {
	var s Section
	err := row.Scan(
		&s.ID,
		&s.Slug,
		&s.Title,
		&s.SortOrder,
		&s.IsEnabled,
		&s.PublishedVersionID,
		&s.DraftVersionID,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	return s, err
}

func (q *Queries) listSections(ctx context.Context, query string, args ...any) ([]Section, error) {
	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []Section
	for rows.Next() {
		s, err := scanSection(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// CreateSectionParams holds the values of a new section row.
type CreateSectionParams struct {
	ID        string
	Slug      string
	Title     string
	SortOrder int64
	IsEnabled bool
	CreatedAt time.Time
}

// CreateSection inserts a section without version pointers.
func (q *Queries) CreateSection(ctx context.Context, arg CreateSectionParams) error {
	_, err := q.exec(ctx, `INSERT INTO sections (id, slug, title, sort_order, is_enabled, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		arg.ID, arg.Slug, arg.Title, arg.SortOrder, arg.IsEnabled, arg.CreatedAt, arg.CreatedAt)
	return err
}

// GetSection returns a section by id.
func (q *Queries) GetSection(ctx context.Context, id string) (Section, error) {
	return scanSection(q.queryRow(ctx, `SELECT `+sectionColumns+` FROM sections WHERE id = ?`, id))
}

// GetSectionBySlug returns a section by slug.
func (q *Queries) GetSectionBySlug(ctx context.Context, slug string) (Section, error) {
	return scanSection(q.queryRow(ctx, `SELECT `+sectionColumns+` FROM sections WHERE slug = ?`, slug))
}

// ListSections returns all sections in display order.
func (q *Queries) ListSections(ctx context.Context) ([]Section, error) {
	return q.listSections(ctx, `SELECT `+sectionColumns+` FROM sections ORDER BY sort_order, created_at`)
}

// ListPendingSections returns sections whose draft differs from the published version.
func (q *Queries) ListPendingSections(ctx context.Context) ([]Section, error) {
	return q.listSections(ctx, `SELECT `+sectionColumns+` FROM sections
WHERE draft_version_id IS NOT NULL
  AND (published_version_id IS NULL OR draft_version_id <> published_version_id)
ORDER BY sort_order, created_at`)
}

// CountSections returns the number of sections.
func (q *Queries) CountSections(ctx context.Context) (int64, error) {
	var n int64
	err := q.queryRow(ctx, `SELECT COUNT(*) FROM sections`).Scan(&n)
	return n, err
}

// MaxSortOrder returns the largest sort order in use, or -1 without sections.
func (q *Queries) MaxSortOrder(ctx context.Context) (int64, error) {
	var n sql.NullInt64
	if err := q.queryRow(ctx, `SELECT MAX(sort_order) FROM sections`).Scan(&n); err != nil {
		return 0, err
	}
	if !n.Valid {
		return -1, nil
	}
	return n.Int64, nil
}

// UpdateSectionSortOrder sets the display position of a section.
func (q *Queries) UpdateSectionSortOrder(ctx context.Context, id string, sortOrder int64, now time.Time) (int64, error) {
	res, err := q.exec(ctx, `UPDATE sections SET sort_order = ?, updated_at = ? WHERE id = ?`, sortOrder, now, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SetSectionEnabled toggles public visibility of a section.
func (q *Queries) SetSectionEnabled(ctx context.Context, id string, enabled bool, now time.Time) (int64, error) {
	res, err := q.exec(ctx, `UPDATE sections SET is_enabled = ?, updated_at = ? WHERE id = ?`, enabled, now, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteSection removes a section and, through the foreign key, its versions.
func (q *Queries) DeleteSection(ctx context.Context, id string) (int64, error) {
	res, err := q.exec(ctx, `DELETE FROM sections WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SetDraftPointerIfEmpty points the section at a new draft unless another
// draft was attached first. It reports whether the pointer was set.
func (q *Queries) SetDraftPointerIfEmpty(ctx context.Context, sectionID, draftID string, now time.Time) (bool, error) {
	res, err := q.exec(ctx, `UPDATE sections SET draft_version_id = ?, updated_at = ?
WHERE id = ? AND draft_version_id IS NULL`, draftID, now, sectionID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// ClearDraftPointer detaches the draft of a section.
func (q *Queries) ClearDraftPointer(ctx context.Context, sectionID string, now time.Time) error {
	_, err := q.exec(ctx, `UPDATE sections SET draft_version_id = NULL, updated_at = ? WHERE id = ?`, now, sectionID)
	return err
}

// PromoteDraftPointer makes the draft the published version and clears the
// draft pointer, but only while the section still points at expectedDraftID.
// It reports whether the swap happened.
func (q *Queries) PromoteDraftPointer(ctx context.Context, sectionID, expectedDraftID string, now time.Time) (bool, error) {
	res, err := q.exec(ctx, `UPDATE sections
SET published_version_id = draft_version_id, draft_version_id = NULL, updated_at = ?
WHERE id = ? AND draft_version_id = ?`, now, sectionID, expectedDraftID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// RepointPublished sets the published version of a section and clears its draft.
func (q *Queries) RepointPublished(ctx context.Context, sectionID, publishedID string, now time.Time) error {
	_, err := q.exec(ctx, `UPDATE sections
SET published_version_id = ?, draft_version_id = NULL, updated_at = ?
WHERE id = ?`, publishedID, now, sectionID)
	return err
}

// CountVersionReferences returns how many section pointers reference a version.
func (q *Queries) CountVersionReferences(ctx context.Context, versionID string) (int64, error) {
	var n int64
	err := q.queryRow(ctx, `SELECT COUNT(*) FROM sections
WHERE published_version_id = ? OR draft_version_id = ?`, versionID, versionID).Scan(&n)
	return n, err
}

// ListPublishedSections returns enabled sections joined with their published
// version, in display order.
func (q *Queries) ListPublishedSections(ctx context.Context) ([]PublishedSection, error) {
	rows, err := q.query(ctx, `SELECT s.id, s.slug, s.title, s.sort_order, v.id, v.layout_json, v.content_html
FROM sections s
JOIN section_versions v ON v.id = s.published_version_id
WHERE s.is_enabled = ?
ORDER BY s.sort_order, s.created_at`, true)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []PublishedSection
	for rows.Next() {
		var (
			p      PublishedSection
			layout string
			html   sql.NullString
		)
		if err := rows.Scan(&p.SectionID, &p.Slug, &p.Title, &p.SortOrder, &p.VersionID, &layout, &html); err != nil {
			return nil, err
		}
		p.LayoutJSON = []byte(layout)
		p.ContentHTML = html.String
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
