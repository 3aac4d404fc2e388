// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"time"
)

const apiKeyColumns = `id, name, key_prefix, key_hash, permissions, is_active, last_used_at, created_at`

func scanAPIKey(row interface{ Scan(...any) error }) (APIKey, error) {
	var k APIKey
	err := row.Scan(&k.ID, &k.Name, &k.KeyPrefix, &k.KeyHash, &k.Permissions, &k.IsActive, &k.LastUsedAt, &k.CreatedAt)
	return k, err
}

// CreateAPIKeyParams holds the values of a new API key.
type CreateAPIKeyParams struct {
	ID          string
	Name        string
	KeyPrefix   string
	KeyHash     string
	Permissions string
	CreatedAt   time.Time
}

// CreateAPIKey stores an active API key.
func (q *Queries) CreateAPIKey(ctx context.Context, arg CreateAPIKeyParams) (APIKey, error) {
	_, err := q.exec(ctx, `INSERT INTO api_keys (id, name, key_prefix, key_hash, permissions, is_active, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		arg.ID, arg.Name, arg.KeyPrefix, arg.KeyHash, arg.Permissions, true, arg.CreatedAt)
	if err != nil {
		return APIKey{}, err
	}
	return APIKey{
		ID:          arg.ID,
		Name:        arg.Name,
		KeyPrefix:   arg.KeyPrefix,
		KeyHash:     arg.KeyHash,
		Permissions: arg.Permissions,
		IsActive:    true,
		CreatedAt:   arg.CreatedAt,
	}, nil
}

// GetAPIKeyByPrefix returns the key stored under a prefix.
func (q *Queries) GetAPIKeyByPrefix(ctx context.Context, prefix string) (APIKey, error) {
	return scanAPIKey(q.queryRow(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE key_prefix = ?`, prefix))
}

// ListAPIKeys returns all keys, newest first.
func (q *Queries) ListAPIKeys(ctx context.Context) ([]APIKey, error) {
	rows, err := q.query(ctx, `SELECT `+apiKeyColumns+` FROM api_keys ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, k)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// UpdateAPIKeyLastUsed records when a key was last presented.
func (q *Queries) UpdateAPIKeyLastUsed(ctx context.Context, id string, at time.Time) error {
	_, err := q.exec(ctx, `UPDATE api_keys SET last_used_at = ? WHERE id = ?`, sql.NullTime{Time: at, Valid: true}, id)
	return err
}

// DeactivateAPIKey disables a key without deleting it.
func (q *Queries) DeactivateAPIKey(ctx context.Context, id string) error {
	_, err := q.exec(ctx, `UPDATE api_keys SET is_active = ? WHERE id = ?`, false, id)
	return err
}
