// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/olegiv/pagecraft/internal/auth"
	"github.com/olegiv/pagecraft/internal/staging"
	"github.com/olegiv/pagecraft/internal/store"
)

// AutoBackupPrefix names backups taken by the scheduler. Pruning only ever
// touches backups with this prefix.
const AutoBackupPrefix = "auto-"

// Job names.
const (
	JobAutoBackup  = "auto-backup"
	JobPruneEvents = "prune-events"
)

// BackupService is the part of the staging service the backup job needs.
type BackupService interface {
	CreateBackup(ctx context.Context, name string) (store.Backup, error)
	PruneBackups(ctx context.Context, prefix string, keep int) (int, error)
}

var _ BackupService = (*staging.Service)(nil)

// BackupJob snapshots the published content and keeps the newest
// Retention automatic backups. Retention 0 keeps all of them.
type BackupJob struct {
	Service   BackupService
	Retention int
	Logger    *slog.Logger
	now       func() time.Time
}

// Run takes one backup as the scheduler's system principal.
func (j *BackupJob) Run(ctx context.Context) error {
	ctx = auth.WithPrincipal(ctx, auth.SystemPrincipal("scheduler"))

	now := time.Now
	if j.now != nil {
		now = j.now
	}
	name := AutoBackupPrefix + now().UTC().Format("20060102-150405")

	backup, err := j.Service.CreateBackup(ctx, name)
	if err != nil {
		return fmt.Errorf("creating backup %s: %w", name, err)
	}
	j.Logger.Info("automatic backup created", "backup_id", backup.ID, "name", name, "entries", len(backup.Entries))

	if j.Retention <= 0 {
		return nil
	}
	deleted, err := j.Service.PruneBackups(ctx, AutoBackupPrefix, j.Retention)
	if err != nil {
		return fmt.Errorf("pruning backups: %w", err)
	}
	if deleted > 0 {
		j.Logger.Info("old automatic backups pruned", "deleted", deleted, "kept", j.Retention)
	}
	return nil
}

// EventStore is the part of the store the event pruning job needs.
type EventStore interface {
	DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CreateEvent(ctx context.Context, arg store.CreateEventParams) error
}

// EventPruneJob deletes events older than MaxAge.
type EventPruneJob struct {
	Store  EventStore
	MaxAge time.Duration
	Logger *slog.Logger
	now    func() time.Time
}

// Run deletes the expired events and records how many went.
func (j *EventPruneJob) Run(ctx context.Context) error {
	now := time.Now
	if j.now != nil {
		now = j.now
	}
	cutoff := now().UTC().Add(-j.MaxAge)

	deleted, err := j.Store.DeleteEventsBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("deleting events before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	if deleted == 0 {
		return nil
	}

	j.Logger.Info("old events pruned", "deleted", deleted, "cutoff", cutoff)
	metadata, _ := json.Marshal(map[string]any{
		"deleted": deleted,
		"cutoff":  cutoff.Format(time.RFC3339),
	})
	if err := j.Store.CreateEvent(ctx, store.CreateEventParams{
		Level:     store.EventLevelInfo,
		Category:  store.EventCategorySystem,
		Message:   "old events pruned",
		Metadata:  string(metadata),
		CreatedAt: now().UTC(),
	}); err != nil {
		j.Logger.Warn("failed to log event pruning", "error", err)
	}
	return nil
}
