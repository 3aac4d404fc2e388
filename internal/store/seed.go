// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// SeedAuthor is recorded as the creator of seeded versions.
const SeedAuthor = "system:seed"

type seedSection struct {
	slug   string
	title  string
	layout string
	html   string
}

var defaultSections = []seedSection{
	{
		slug:   "hero",
		title:  "Hero",
		layout: `{"heading":"Build pages people remember","subheading":"Edit, stage and publish without touching code.","cta":{"label":"Get started","href":"#services"}}`,
		html:   `<h1>Build pages people remember</h1><p>Edit, stage and publish without touching code.</p>`,
	},
	{
		slug:   "mission",
		title:  "Mission",
		layout: `{"markdown":"## Our mission\n\nWe help small teams ship **clear**, fast websites."}`,
	},
	{
		slug:   "services",
		title:  "Services",
		layout: `{"items":[{"title":"Design"},{"title":"Development"},{"title":"Hosting"}]}`,
		html:   `<h2>Services</h2><ul><li>Design</li><li>Development</li><li>Hosting</li></ul>`,
	},
	{
		slug:   "testimonials",
		title:  "Testimonials",
		layout: `{"quotes":[{"author":"A. Customer","text":"Publishing is finally boring."}]}`,
		html:   `<h2>Testimonials</h2><blockquote>Publishing is finally boring.</blockquote>`,
	},
}

// Seed creates the default sections, each with a published version, when the
// sections table is empty.
func (s *Store) Seed(ctx context.Context) error {
	count, err := s.CountSections(ctx)
	if err != nil {
		return fmt.Errorf("counting sections: %w", err)
	}
	if count > 0 {
		slog.Info("sections already exist, skipping seed", "count", count)
		return nil
	}

	return s.InTx(ctx, func(q *Queries) error {
		now := time.Now().UTC()
		for i, def := range defaultSections {
			sectionID := uuid.NewString()
			if err := q.CreateSection(ctx, CreateSectionParams{
				ID:        sectionID,
				Slug:      def.slug,
				Title:     def.title,
				SortOrder: int64(i),
				IsEnabled: true,
				CreatedAt: now,
			}); err != nil {
				return fmt.Errorf("creating section %s: %w", def.slug, err)
			}

			version, err := q.CreateVersion(ctx, CreateVersionParams{
				ID:          uuid.NewString(),
				SectionID:   sectionID,
				Status:      StatusPublished,
				LayoutJSON:  json.RawMessage(def.layout),
				ContentHTML: sql.NullString{String: def.html, Valid: def.html != ""},
				CreatedBy:   sql.NullString{String: SeedAuthor, Valid: true},
				CreatedAt:   now,
			})
			if err != nil {
				return fmt.Errorf("creating version for %s: %w", def.slug, err)
			}

			if err := q.RepointPublished(ctx, sectionID, version.ID, now); err != nil {
				return fmt.Errorf("publishing %s: %w", def.slug, err)
			}
			slog.Info("seeded section", "slug", def.slug, "version_id", version.ID)
		}
		return nil
	})
}
