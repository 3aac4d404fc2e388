// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"
)

// backupNamesLockKey identifies the PostgreSQL advisory lock taken around
// backup name checks.
const backupNamesLockKey int64 = 0x7061676563726166

// CreateBackupParams holds the values of a new backup row.
type CreateBackupParams struct {
	ID        string
	Name      string
	Entries   []BackupEntry
	CreatedAt time.Time
}

// CreateBackup stores a snapshot.
func (q *Queries) CreateBackup(ctx context.Context, arg CreateBackupParams) (Backup, error) {
	entries := arg.Entries
	if entries == nil {
		entries = []BackupEntry{}
	}
	snapshot, err := json.Marshal(entries)
	if err != nil {
		return Backup{}, fmt.Errorf("encoding snapshot: %w", err)
	}

	_, err = q.exec(ctx, `INSERT INTO backups (id, name, snapshot_json, created_at) VALUES (?, ?, ?, ?)`,
		arg.ID, arg.Name, string(snapshot), arg.CreatedAt)
	if err != nil {
		return Backup{}, err
	}
	return Backup{ID: arg.ID, Name: arg.Name, Entries: entries, CreatedAt: arg.CreatedAt}, nil
}

// GetBackup returns a backup with its decoded snapshot.
func (q *Queries) GetBackup(ctx context.Context, id string) (Backup, error) {
	var (
		b        Backup
		snapshot string
	)
	err := q.queryRow(ctx, `SELECT id, name, snapshot_json, created_at FROM backups WHERE id = ?`, id).
		Scan(&b.ID, &b.Name, &snapshot, &b.CreatedAt)
	if err != nil {
		return Backup{}, err
	}
	if err := json.Unmarshal([]byte(snapshot), &b.Entries); err != nil {
		return Backup{}, fmt.Errorf("decoding snapshot of backup %s: %w", id, err)
	}
	return b, nil
}

// ListBackups returns backup summaries, newest first. A non-empty namePrefix
// restricts the result to names starting with it literally.
func (q *Queries) ListBackups(ctx context.Context, namePrefix string) ([]BackupSummary, error) {
	query := `SELECT id, name, snapshot_json, created_at FROM backups`
	var args []any
	if namePrefix != "" {
		query += ` WHERE substr(name, 1, ?) = ?`
		args = append(args, int64(utf8.RuneCountInString(namePrefix)), namePrefix)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []BackupSummary
	for rows.Next() {
		var (
			s        BackupSummary
			snapshot string
		)
		if err := rows.Scan(&s.ID, &s.Name, &snapshot, &s.CreatedAt); err != nil {
			return nil, err
		}
		var entries []json.RawMessage
		if err := json.Unmarshal([]byte(snapshot), &entries); err != nil {
			return nil, fmt.Errorf("decoding snapshot of backup %s: %w", s.ID, err)
		}
		s.EntryCount = len(entries)
		items = append(items, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// CountBackupsByName returns how many backups carry the given name.
func (q *Queries) CountBackupsByName(ctx context.Context, name string) (int64, error) {
	var n int64
	err := q.queryRow(ctx, `SELECT COUNT(*) FROM backups WHERE name = ?`, name).Scan(&n)
	return n, err
}

// LockBackupNames holds back other name checks until the surrounding
// transaction ends. SQLite write transactions already hold the database
// lock from BEGIN, so only PostgreSQL needs it.
func (q *Queries) LockBackupNames(ctx context.Context) error {
	if q.dialect != DialectPostgres {
		return nil
	}
	_, err := q.exec(ctx, `SELECT pg_advisory_xact_lock(?)`, backupNamesLockKey)
	return err
}

// DeleteBackup removes a backup.
func (q *Queries) DeleteBackup(ctx context.Context, id string) (int64, error) {
	res, err := q.exec(ctx, `DELETE FROM backups WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
