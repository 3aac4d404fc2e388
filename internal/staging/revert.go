// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package staging

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/olegiv/pagecraft/internal/auth"
	"github.com/olegiv/pagecraft/internal/cache"
	"github.com/olegiv/pagecraft/internal/store"
	"github.com/olegiv/pagecraft/internal/util"
)

// VersionHistory returns the published and archived versions of a section,
// newest first.
func (s *Service) VersionHistory(ctx context.Context, sectionID string) ([]store.SectionVersion, error) {
	if _, err := s.store.GetSection(ctx, sectionID); err != nil {
		return nil, classify("version history", missing(err, "section", sectionID))
	}
	versions, err := s.store.ListVersionHistory(ctx, sectionID)
	if err != nil {
		return nil, classify("version history", err)
	}
	return versions, nil
}

// RevertToVersion publishes a new copy of a historical version. The target
// row is left untouched and the section's pending draft is archived.
func (s *Service) RevertToVersion(ctx context.Context, versionID string) (store.SectionVersion, error) {
	if err := s.authorize(ctx, auth.PermissionContentPublish); err != nil {
		return store.SectionVersion{}, err
	}

	actor := s.author(ctx)
	var restored store.SectionVersion
	err := s.store.InTx(ctx, func(q *store.Queries) error {
		target, err := q.GetVersion(ctx, versionID)
		if err != nil {
			return missing(err, "version", versionID)
		}
		restored, err = s.republish(ctx, q, target.SectionID, target.LayoutJSON, target.ContentHTML.String, actor)
		return err
	})
	if err != nil {
		return store.SectionVersion{}, classify("revert", err)
	}

	s.invalidateContent(ctx, "revert")
	s.audit(ctx, store.EventLevelInfo, store.EventCategoryContent, "section reverted", map[string]any{
		"section_id":     restored.SectionID,
		"source_version": versionID,
		"new_version":    restored.ID,
	})
	s.notify(ctx, EventSectionReverted, map[string]string{
		"section_id":        restored.SectionID,
		"source_version_id": versionID,
		"version_id":        restored.ID,
	})
	s.logger.Info("section reverted", "section_id", restored.SectionID, "source_version_id", versionID, "version_id", restored.ID)
	return restored, nil
}

// republish inserts a new published version with the given content, archives
// the section's current published version and draft, and repoints the
// section at the new row. The new row exists before any pointer moves.
func (s *Service) republish(ctx context.Context, q *store.Queries, sectionID string, layout []byte, html, actor string) (store.SectionVersion, error) {
	section, err := q.GetSection(ctx, sectionID)
	if err != nil {
		return store.SectionVersion{}, missing(err, "section", sectionID)
	}

	now := s.now()
	version, err := q.CreateVersion(ctx, store.CreateVersionParams{
		ID:          uuid.NewString(),
		SectionID:   sectionID,
		Status:      store.StatusPublished,
		LayoutJSON:  layout,
		ContentHTML: util.NullStringFromValue(html),
		CreatedBy:   util.NullStringFromValue(actor),
		CreatedAt:   now,
	})
	if err != nil {
		return store.SectionVersion{}, fmt.Errorf("creating version: %w", err)
	}

	for _, old := range []struct {
		id    string
		valid bool
	}{
		{section.PublishedVersionID.String, section.PublishedVersionID.Valid},
		{section.DraftVersionID.String, section.DraftVersionID.Valid},
	} {
		if !old.valid {
			continue
		}
		if err := q.UpdateVersionStatus(ctx, old.id, store.StatusArchived); err != nil {
			return store.SectionVersion{}, fmt.Errorf("archiving version %s: %w", old.id, err)
		}
	}

	if err := q.RepointPublished(ctx, sectionID, version.ID, now); err != nil {
		return store.SectionVersion{}, fmt.Errorf("repointing section %s: %w", sectionID, err)
	}
	return version, nil
}

// DeleteVersion permanently removes a version that no section points at.
func (s *Service) DeleteVersion(ctx context.Context, versionID string) error {
	if err := s.authorize(ctx, auth.PermissionContentPublish); err != nil {
		return err
	}

	err := s.store.InTx(ctx, func(q *store.Queries) error {
		if _, err := q.GetVersion(ctx, versionID); err != nil {
			return missing(err, "version", versionID)
		}
		refs, err := q.CountVersionReferences(ctx, versionID)
		if err != nil {
			return err
		}
		if refs > 0 {
			return fmt.Errorf("%w: cannot delete active version %s", ErrConflict, versionID)
		}
		_, err = q.DeleteVersion(ctx, versionID)
		return err
	})
	if err != nil {
		return classify("delete version", err)
	}

	s.invalidate(ctx, "delete version", cache.TagVersions)
	s.logger.Info("version deleted", "version_id", versionID)
	return nil
}
