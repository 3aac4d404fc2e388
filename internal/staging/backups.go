// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package staging

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/olegiv/pagecraft/internal/auth"
	"github.com/olegiv/pagecraft/internal/store"
)

// MaxBackupNameLength is the longest accepted backup name, in characters.
const MaxBackupNameLength = 200

// RestoreResult reports a restore run. RestoredCount counts only entries
// that completed.
type RestoreResult struct {
	BackupID      string        `json:"backup_id"`
	RestoredCount int           `json:"restored_count"`
	Restored      []string      `json:"restored"`
	Failures      []ItemFailure `json:"failures"`
}

// CreateBackup snapshots the published content of every enabled section.
func (s *Service) CreateBackup(ctx context.Context, name string) (store.Backup, error) {
	if err := s.authorize(ctx, auth.PermissionBackupsManage); err != nil {
		return store.Backup{}, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return store.Backup{}, fmt.Errorf("%w: backup name is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(name) > MaxBackupNameLength {
		return store.Backup{}, fmt.Errorf("%w: backup name exceeds %d characters", ErrInvalidInput, MaxBackupNameLength)
	}

	var backup store.Backup
	err := s.store.InTx(ctx, func(q *store.Queries) error {
		if s.opts.BackupUniqueNames {
			if err := q.LockBackupNames(ctx); err != nil {
				return err
			}
			n, err := q.CountBackupsByName(ctx, name)
			if err != nil {
				return err
			}
			if n > 0 {
				return fmt.Errorf("%w: backup %q already exists", ErrConflict, name)
			}
		}

		published, err := q.ListPublishedSections(ctx)
		if err != nil {
			return fmt.Errorf("reading published sections: %w", err)
		}
		entries := make([]store.BackupEntry, 0, len(published))
		for _, p := range published {
			entry := store.BackupEntry{
				SectionID:  p.SectionID,
				Title:      p.Title,
				LayoutJSON: p.LayoutJSON,
			}
			if p.ContentHTML != "" {
				html := p.ContentHTML
				entry.ContentHTML = &html
			}
			entries = append(entries, entry)
		}

		backup, err = q.CreateBackup(ctx, store.CreateBackupParams{
			ID:        uuid.NewString(),
			Name:      name,
			Entries:   entries,
			CreatedAt: s.now(),
		})
		return err
	})
	if err != nil {
		return store.Backup{}, classify("create backup", err)
	}

	s.audit(ctx, store.EventLevelInfo, store.EventCategoryBackup, "backup created", map[string]any{
		"backup_id": backup.ID,
		"name":      backup.Name,
		"entries":   len(backup.Entries),
	})
	s.notify(ctx, EventBackupCreated, store.BackupSummary{
		ID:         backup.ID,
		Name:       backup.Name,
		EntryCount: len(backup.Entries),
		CreatedAt:  backup.CreatedAt,
	})
	s.logger.Info("backup created", "backup_id", backup.ID, "name", backup.Name, "entries", len(backup.Entries))
	return backup, nil
}

// RestoreFromBackup publishes a new version for every entry of a backup.
// Entries are restored independently: a failing entry is reported and
// skipped, and entries already restored are kept.
func (s *Service) RestoreFromBackup(ctx context.Context, backupID string) (RestoreResult, error) {
	if err := s.authorize(ctx, auth.PermissionBackupsManage); err != nil {
		return RestoreResult{}, err
	}

	backup, err := s.store.GetBackup(ctx, backupID)
	if err != nil {
		return RestoreResult{}, classify("restore backup", missing(err, "backup", backupID))
	}

	actor := s.author(ctx)
	result := RestoreResult{BackupID: backupID, Restored: []string{}, Failures: []ItemFailure{}}
	for _, entry := range backup.Entries {
		html := ""
		if entry.ContentHTML != nil {
			html = *entry.ContentHTML
		}
		err := s.store.InTx(ctx, func(q *store.Queries) error {
			_, err := s.republish(ctx, q, entry.SectionID, entry.LayoutJSON, html, actor)
			return err
		})
		if err != nil {
			err = classify("restore entry", err)
			s.logger.Warn("skipping backup entry", "backup_id", backupID, "section_id", entry.SectionID, "error", err)
			result.Failures = append(result.Failures, failure(entry.SectionID, err))
			continue
		}
		result.RestoredCount++
		result.Restored = append(result.Restored, entry.SectionID)
	}

	if result.RestoredCount > 0 {
		s.invalidateContent(ctx, "restore")
		s.audit(ctx, store.EventLevelInfo, store.EventCategoryBackup, "backup restored", map[string]any{
			"backup_id":      backupID,
			"restored_count": result.RestoredCount,
			"failed_count":   len(result.Failures),
		})
		s.notify(ctx, EventBackupRestored, result)
	}
	s.logger.Info("backup restored", "backup_id", backupID,
		"restored", result.RestoredCount, "failed", len(result.Failures))
	return result, nil
}

// ListBackups returns backup summaries, newest first.
func (s *Service) ListBackups(ctx context.Context) ([]store.BackupSummary, error) {
	backups, err := s.store.ListBackups(ctx, "")
	if err != nil {
		return nil, classify("list backups", err)
	}
	return backups, nil
}

// GetBackup returns a backup with its snapshot.
func (s *Service) GetBackup(ctx context.Context, backupID string) (store.Backup, error) {
	backup, err := s.store.GetBackup(ctx, backupID)
	if err != nil {
		return store.Backup{}, classify("get backup", missing(err, "backup", backupID))
	}
	return backup, nil
}

// DeleteBackup removes a backup.
func (s *Service) DeleteBackup(ctx context.Context, backupID string) error {
	if err := s.authorize(ctx, auth.PermissionBackupsManage); err != nil {
		return err
	}

	n, err := s.store.DeleteBackup(ctx, backupID)
	if err != nil {
		return classify("delete backup", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: backup %s", ErrNotFound, backupID)
	}
	s.logger.Info("backup deleted", "backup_id", backupID)
	return nil
}

// PruneBackups deletes the oldest backups whose name starts with prefix,
// keeping the newest keep of them. It returns how many were deleted.
func (s *Service) PruneBackups(ctx context.Context, prefix string, keep int) (int, error) {
	if err := s.authorize(ctx, auth.PermissionBackupsManage); err != nil {
		return 0, err
	}
	if keep < 0 {
		return 0, fmt.Errorf("%w: keep must not be negative", ErrInvalidInput)
	}

	backups, err := s.store.ListBackups(ctx, prefix)
	if err != nil {
		return 0, classify("prune backups", err)
	}
	if len(backups) <= keep {
		return 0, nil
	}

	deleted := 0
	for _, b := range backups[keep:] {
		if _, err := s.store.DeleteBackup(ctx, b.ID); err != nil {
			return deleted, classify("prune backups", err)
		}
		deleted++
	}
	s.logger.Info("pruned backups", "prefix", prefix, "deleted", deleted, "kept", keep)
	return deleted, nil
}
