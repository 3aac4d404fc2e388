// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

const versionColumns = `id, section_id, status, layout_json, content_html, revision, created_at, created_by`

func scanVersion(row interface{ Scan(...any) error }) (SectionVersion, error) {
	var (
		v      SectionVersion
		layout string
	)
	err := row.Scan(
		&v.ID,
		&v.SectionID,
		&v.Status,
		&layout,
		&v.ContentHTML,
		&v.Revision,
		&v.CreatedAt,
		&v.CreatedBy,
	)
	v.LayoutJSON = json.RawMessage(layout)
	return v, err
}

// CreateVersionParams holds the values of a new version row.
type CreateVersionParams struct {
	ID          string
	SectionID   string
	Status      string
	LayoutJSON  json.RawMessage
	ContentHTML sql.NullString
	CreatedBy   sql.NullString
	CreatedAt   time.Time
}

// CreateVersion inserts a version with revision 1.
func (q *Queries) CreateVersion(ctx context.Context, arg CreateVersionParams) (SectionVersion, error) {
	layout := arg.LayoutJSON
	if len(layout) == 0 {
		layout = json.RawMessage(`{}`)
	}
	_, err := q.exec(ctx, `INSERT INTO section_versions (id, section_id, status, layout_json, content_html, revision, created_at, created_by)
VALUES (?, ?, ?, ?, ?, 1, ?, ?)`,
		arg.ID, arg.SectionID, arg.Status, string(layout), arg.ContentHTML, arg.CreatedAt, arg.CreatedBy)
	if err != nil {
		return SectionVersion{}, err
	}
	return SectionVersion{
		ID:          arg.ID,
		SectionID:   arg.SectionID,
		Status:      arg.Status,
		LayoutJSON:  layout,
		ContentHTML: arg.ContentHTML,
		Revision:    1,
		CreatedAt:   arg.CreatedAt,
		CreatedBy:   arg.CreatedBy,
	}, nil
}

// GetVersion returns a version by id.
func (q *Queries) GetVersion(ctx context.Context, id string) (SectionVersion, error) {
	return scanVersion(q.queryRow(ctx, `SELECT `+versionColumns+` FROM section_versions WHERE id = ?`, id))
}

// ListVersionHistory returns the published and archived versions of a
// section, newest first. Drafts are excluded.
func (q *Queries) ListVersionHistory(ctx context.Context, sectionID string) ([]SectionVersion, error) {
	rows, err := q.query(ctx, `SELECT `+versionColumns+` FROM section_versions
WHERE section_id = ? AND status <> ?
ORDER BY created_at DESC`, sectionID, StatusDraft)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []SectionVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// CountVersionsByStatus returns the number of versions of a section with the given status.
func (q *Queries) CountVersionsByStatus(ctx context.Context, sectionID, status string) (int64, error) {
	var n int64
	err := q.queryRow(ctx, `SELECT COUNT(*) FROM section_versions WHERE section_id = ? AND status = ?`,
		sectionID, status).Scan(&n)
	return n, err
}

// UpdateVersionStatus changes the lifecycle status of a version.
func (q *Queries) UpdateVersionStatus(ctx context.Context, id, status string) error {
	_, err := q.exec(ctx, `UPDATE section_versions SET status = ? WHERE id = ?`, status, id)
	return err
}

// UpdateDraftParams holds an in-place edit of a draft.
type UpdateDraftParams struct {
	ID          string
	LayoutJSON  json.RawMessage
	ContentHTML sql.NullString
	// ExpectedRevision guards the update when greater than zero.
	ExpectedRevision int64
}

// UpdateDraft overwrites the content of a draft and bumps its revision. It
// reports whether a row was updated; a revision mismatch updates nothing.
func (q *Queries) UpdateDraft(ctx context.Context, arg UpdateDraftParams) (bool, error) {
	var (
		res sql.Result
		err error
	)
	if arg.ExpectedRevision > 0 {
		res, err = q.exec(ctx, `UPDATE section_versions
SET layout_json = ?, content_html = ?, revision = revision + 1
WHERE id = ? AND status = ? AND revision = ?`,
			string(arg.LayoutJSON), arg.ContentHTML, arg.ID, StatusDraft, arg.ExpectedRevision)
	} else {
		res, err = q.exec(ctx, `UPDATE section_versions
SET layout_json = ?, content_html = ?, revision = revision + 1
WHERE id = ? AND status = ?`,
			string(arg.LayoutJSON), arg.ContentHTML, arg.ID, StatusDraft)
	}
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// DeleteVersion removes a version row.
func (q *Queries) DeleteVersion(ctx context.Context, id string) (int64, error) {
	res, err := q.exec(ctx, `DELETE FROM section_versions WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
