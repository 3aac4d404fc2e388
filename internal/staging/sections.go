// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package staging

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/olegiv/pagecraft/internal/auth"
	"github.com/olegiv/pagecraft/internal/cache"
	"github.com/olegiv/pagecraft/internal/store"
	"github.com/olegiv/pagecraft/internal/util"
)

// CreateSectionInput describes a new section and its first published version.
type CreateSectionInput struct {
	Slug        string          `json:"slug"`
	Title       string          `json:"title"`
	LayoutJSON  json.RawMessage `json:"layout_json"`
	ContentHTML string          `json:"content_html"`
	Enabled     *bool           `json:"enabled"`
}

// ListSections returns every section in display order.
func (s *Service) ListSections(ctx context.Context) ([]store.Section, error) {
	sections, err := s.store.ListSections(ctx)
	if err != nil {
		return nil, classify("list sections", err)
	}
	return sections, nil
}

// GetSection returns a section by id.
func (s *Service) GetSection(ctx context.Context, sectionID string) (store.Section, error) {
	section, err := s.store.GetSection(ctx, sectionID)
	if err != nil {
		return store.Section{}, classify("get section", missing(err, "section", sectionID))
	}
	return section, nil
}

// CreateSection adds a section at the end of the page with an initial
// published version, so every section always has a published fallback.
func (s *Service) CreateSection(ctx context.Context, in CreateSectionInput) (store.Section, error) {
	if err := s.authorize(ctx, auth.PermissionContentPublish); err != nil {
		return store.Section{}, err
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return store.Section{}, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	slug := strings.TrimSpace(in.Slug)
	if slug == "" {
		slug = util.Slugify(title)
	}
	if !util.IsValidSlug(slug) {
		return store.Section{}, fmt.Errorf("%w: invalid slug %q", ErrInvalidInput, slug)
	}
	layout := in.LayoutJSON
	if len(layout) == 0 {
		layout = json.RawMessage(`{}`)
	}
	if !json.Valid(layout) {
		return store.Section{}, fmt.Errorf("%w: layout_json must be a valid JSON document", ErrInvalidInput)
	}
	enabled := in.Enabled == nil || *in.Enabled

	actor := s.author(ctx)
	var section store.Section
	err := s.store.InTx(ctx, func(q *store.Queries) error {
		_, err := q.GetSectionBySlug(ctx, slug)
		switch {
		case err == nil:
			return fmt.Errorf("%w: slug %q is already in use", ErrConflict, slug)
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}

		maxOrder, err := q.MaxSortOrder(ctx)
		if err != nil {
			return err
		}

		now := s.now()
		id := uuid.NewString()
		if err := q.CreateSection(ctx, store.CreateSectionParams{
			ID:        id,
			Slug:      slug,
			Title:     title,
			SortOrder: maxOrder + 1,
			IsEnabled: enabled,
			CreatedAt: now,
		}); err != nil {
			return fmt.Errorf("creating section: %w", err)
		}

		version, err := q.CreateVersion(ctx, store.CreateVersionParams{
			ID:          uuid.NewString(),
			SectionID:   id,
			Status:      store.StatusPublished,
			LayoutJSON:  layout,
			ContentHTML: util.NullStringFromValue(in.ContentHTML),
			CreatedBy:   util.NullStringFromValue(actor),
			CreatedAt:   now,
		})
		if err != nil {
			return fmt.Errorf("creating initial version: %w", err)
		}
		if err := q.RepointPublished(ctx, id, version.ID, now); err != nil {
			return err
		}

		section, err = q.GetSection(ctx, id)
		return err
	})
	if err != nil {
		return store.Section{}, classify("create section", err)
	}

	s.invalidateContent(ctx, "section created")
	s.logger.Info("section created", "section_id", section.ID, "slug", section.Slug)
	return section, nil
}

// ReorderSections assigns sort orders following the given id sequence.
// Sections missing from ids keep their relative order after the listed ones.
func (s *Service) ReorderSections(ctx context.Context, ids []string) ([]store.Section, error) {
	if err := s.authorize(ctx, auth.PermissionContentPublish); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: at least one section id is required", ErrInvalidInput)
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return nil, fmt.Errorf("%w: section %s listed twice", ErrInvalidInput, id)
		}
		seen[id] = true
	}

	var sections []store.Section
	err := s.store.InTx(ctx, func(q *store.Queries) error {
		current, err := q.ListSections(ctx)
		if err != nil {
			return err
		}
		known := make(map[string]bool, len(current))
		for _, sec := range current {
			known[sec.ID] = true
		}
		order := make([]string, 0, len(current))
		for _, id := range ids {
			if !known[id] {
				return fmt.Errorf("%w: section %s", ErrNotFound, id)
			}
			order = append(order, id)
		}
		for _, sec := range current {
			if !seen[sec.ID] {
				order = append(order, sec.ID)
			}
		}

		now := s.now()
		for i, id := range order {
			if _, err := q.UpdateSectionSortOrder(ctx, id, int64(i), now); err != nil {
				return fmt.Errorf("reordering section %s: %w", id, err)
			}
		}
		sections, err = q.ListSections(ctx)
		return err
	})
	if err != nil {
		return nil, classify("reorder sections", err)
	}

	s.invalidate(ctx, "sections reordered", cache.TagSections)
	s.logger.Info("sections reordered", "count", len(ids))
	return sections, nil
}

// SetSectionEnabled shows or hides a section on the public page.
func (s *Service) SetSectionEnabled(ctx context.Context, sectionID string, enabled bool) (store.Section, error) {
	if err := s.authorize(ctx, auth.PermissionContentPublish); err != nil {
		return store.Section{}, err
	}

	n, err := s.store.SetSectionEnabled(ctx, sectionID, enabled, s.now())
	if err != nil {
		return store.Section{}, classify("set section visibility", err)
	}
	if n == 0 {
		return store.Section{}, fmt.Errorf("%w: section %s", ErrNotFound, sectionID)
	}
	section, err := s.store.GetSection(ctx, sectionID)
	if err != nil {
		return store.Section{}, classify("set section visibility", missing(err, "section", sectionID))
	}

	s.invalidate(ctx, "section visibility", cache.TagSections)
	s.logger.Info("section visibility changed", "section_id", sectionID, "enabled", enabled)
	return section, nil
}

// DeleteSection removes a section and its versions. The last remaining
// section cannot be deleted.
func (s *Service) DeleteSection(ctx context.Context, sectionID string) error {
	if err := s.authorize(ctx, auth.PermissionContentPublish); err != nil {
		return err
	}

	err := s.store.InTx(ctx, func(q *store.Queries) error {
		if _, err := q.GetSection(ctx, sectionID); err != nil {
			return missing(err, "section", sectionID)
		}
		count, err := q.CountSections(ctx)
		if err != nil {
			return err
		}
		if count <= 1 {
			return fmt.Errorf("%w: cannot delete the only section", ErrConflict)
		}
		_, err = q.DeleteSection(ctx, sectionID)
		return err
	})
	if err != nil {
		return classify("delete section", err)
	}

	s.invalidateContent(ctx, "section deleted")
	s.audit(ctx, store.EventLevelWarning, store.EventCategoryContent, "section deleted",
		map[string]any{"section_id": sectionID})
	s.logger.Info("section deleted", "section_id", sectionID)
	return nil
}
