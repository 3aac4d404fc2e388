// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package staging

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/olegiv/pagecraft/internal/auth"
	"github.com/olegiv/pagecraft/internal/store"
)

// PublishResult reports a publish run. PublishedCount counts only completed
// promotions.
type PublishResult struct {
	PublishedCount int           `json:"published_count"`
	Published      []string      `json:"published"`
	Failures       []ItemFailure `json:"failures"`
}

// PendingSections lists the sections whose draft differs from the published
// version.
func (s *Service) PendingSections(ctx context.Context) ([]store.Section, error) {
	sections, err := s.store.ListPendingSections(ctx)
	if err != nil {
		return nil, classify("list pending sections", err)
	}
	return sections, nil
}

// PublishAll promotes the draft of every pending section. A section that
// fails is reported in Failures and does not stop the others; completed
// promotions are kept.
func (s *Service) PublishAll(ctx context.Context) (PublishResult, error) {
	if err := s.authorize(ctx, auth.PermissionContentPublish); err != nil {
		return PublishResult{}, err
	}

	pending, err := s.store.ListPendingSections(ctx)
	if err != nil {
		return PublishResult{}, classify("list pending sections", err)
	}

	result := PublishResult{Published: []string{}, Failures: []ItemFailure{}}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(s.opts.PublishConcurrency)
	for _, section := range pending {
		g.Go(func() error {
			err := s.store.InTx(ctx, func(q *store.Queries) error {
				return s.promote(ctx, q, section.ID, section.DraftVersionID.String)
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				err = classify("publish section", err)
				s.logger.Error("failed to publish section", "section_id", section.ID, "slug", section.Slug, "error", err)
				result.Failures = append(result.Failures, failure(section.ID, err))
				return nil
			}
			result.PublishedCount++
			result.Published = append(result.Published, section.ID)
			return nil
		})
	}
	_ = g.Wait()

	if result.PublishedCount > 0 {
		s.invalidateContent(ctx, "publish")
		s.audit(ctx, store.EventLevelInfo, store.EventCategoryContent, "sections published", map[string]any{
			"published_count": result.PublishedCount,
			"failed_count":    len(result.Failures),
		})
		s.notify(ctx, EventSectionsPublished, result)
	}
	s.logger.Info("publish completed",
		"pending", len(pending), "published", result.PublishedCount, "failed", len(result.Failures))
	return result, nil
}

// PublishSection promotes the draft of one section.
func (s *Service) PublishSection(ctx context.Context, sectionID string) (store.Section, error) {
	if err := s.authorize(ctx, auth.PermissionContentPublish); err != nil {
		return store.Section{}, err
	}

	var section store.Section
	err := s.store.InTx(ctx, func(q *store.Queries) error {
		current, err := q.GetSection(ctx, sectionID)
		if err != nil {
			return missing(err, "section", sectionID)
		}
		if !current.HasPendingDraft() {
			return fmt.Errorf("%w: section %s has nothing to publish", ErrConflict, sectionID)
		}
		if err := s.promote(ctx, q, sectionID, current.DraftVersionID.String); err != nil {
			return err
		}
		section, err = q.GetSection(ctx, sectionID)
		return err
	})
	if err != nil {
		return store.Section{}, classify("publish section", err)
	}

	s.invalidateContent(ctx, "publish")
	s.audit(ctx, store.EventLevelInfo, store.EventCategoryContent, "section published", map[string]any{
		"section_id": sectionID,
		"version_id": section.PublishedVersionID.String,
	})
	s.notify(ctx, EventSectionsPublished, PublishResult{
		PublishedCount: 1,
		Published:      []string{sectionID},
		Failures:       []ItemFailure{},
	})
	s.logger.Info("section published", "section_id", sectionID, "version_id", section.PublishedVersionID.String)
	return section, nil
}

// promote archives the published version, marks the draft published and
// swaps the pointers. The swap only happens while the section still points
// at draftID.
func (s *Service) promote(ctx context.Context, q *store.Queries, sectionID, draftID string) error {
	section, err := q.GetSection(ctx, sectionID)
	if err != nil {
		return missing(err, "section", sectionID)
	}
	if !section.HasPendingDraft() || section.DraftVersionID.String != draftID {
		return fmt.Errorf("%w: draft of section %s changed before publish", ErrConflict, sectionID)
	}

	draft, err := q.GetVersion(ctx, draftID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: section %s points at missing draft %s", ErrDataIntegrity, sectionID, draftID)
	}
	if err != nil {
		return err
	}
	if draft.SectionID != sectionID {
		return fmt.Errorf("%w: draft %s belongs to section %s", ErrDataIntegrity, draftID, draft.SectionID)
	}

	if section.PublishedVersionID.Valid {
		if err := q.UpdateVersionStatus(ctx, section.PublishedVersionID.String, store.StatusArchived); err != nil {
			return fmt.Errorf("archiving version %s: %w", section.PublishedVersionID.String, err)
		}
	}
	if err := q.UpdateVersionStatus(ctx, draftID, store.StatusPublished); err != nil {
		return fmt.Errorf("publishing version %s: %w", draftID, err)
	}

	swapped, err := q.PromoteDraftPointer(ctx, sectionID, draftID, s.now())
	if err != nil {
		return err
	}
	if !swapped {
		return fmt.Errorf("%w: draft of section %s changed during publish", ErrConflict, sectionID)
	}
	return nil
}
