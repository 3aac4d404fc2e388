// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package content serves the public read side: published sections and
// version history, cached under the tags the invalidation gateway drops.
package content

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/olegiv/pagecraft/internal/cache"
	"github.com/olegiv/pagecraft/internal/store"
)

const publishedKey = "published"

func historyKey(sectionID string) string {
	return "history:" + sectionID
}

// SectionView is the API representation of a section.
type SectionView struct {
	ID                 string    `json:"id"`
	Slug               string    `json:"slug"`
	Title              string    `json:"title"`
	SortOrder          int64     `json:"sort_order"`
	IsEnabled          bool      `json:"is_enabled"`
	PublishedVersionID string    `json:"published_version_id,omitempty"`
	DraftVersionID     string    `json:"draft_version_id,omitempty"`
	HasPendingDraft    bool      `json:"has_pending_draft"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// NewSectionView converts a stored section.
func NewSectionView(s store.Section) SectionView {
	return SectionView{
		ID:                 s.ID,
		Slug:               s.Slug,
		Title:              s.Title,
		SortOrder:          s.SortOrder,
		IsEnabled:          s.IsEnabled,
		PublishedVersionID: s.PublishedVersionID.String,
		DraftVersionID:     s.DraftVersionID.String,
		HasPendingDraft:    s.HasPendingDraft(),
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
	}
}

// NewSectionViews converts a list of stored sections.
func NewSectionViews(sections []store.Section) []SectionView {
	views := make([]SectionView, 0, len(sections))
	for _, s := range sections {
		views = append(views, NewSectionView(s))
	}
	return views
}

// VersionView is the API and cache representation of a version.
type VersionView struct {
	ID          string          `json:"id"`
	SectionID   string          `json:"section_id"`
	Status      string          `json:"status"`
	LayoutJSON  json.RawMessage `json:"layout_json"`
	ContentHTML *string         `json:"content_html"`
	Revision    int64           `json:"revision"`
	CreatedAt   time.Time       `json:"created_at"`
	CreatedBy   string          `json:"created_by,omitempty"`
}

// NewVersionView converts a stored version.
func NewVersionView(v store.SectionVersion) VersionView {
	view := VersionView{
		ID:         v.ID,
		SectionID:  v.SectionID,
		Status:     v.Status,
		LayoutJSON: v.LayoutJSON,
		Revision:   v.Revision,
		CreatedAt:  v.CreatedAt,
		CreatedBy:  v.CreatedBy.String,
	}
	if v.ContentHTML.Valid {
		html := v.ContentHTML.String
		view.ContentHTML = &html
	}
	return view
}

// Reader serves cached public reads.
type Reader struct {
	store     *store.Store
	gateway   *cache.Gateway
	published *cache.TypedCache[[]store.PublishedSection]
	history   *cache.TypedCache[[]VersionView]
	logger    *slog.Logger
}

// NewReader creates a Reader over the store. Entries are kept in the
// gateway's backend under its generation keys.
func NewReader(s *store.Store, gw *cache.Gateway, ttl time.Duration, logger *slog.Logger) *Reader {
	return &Reader{
		store:     s,
		gateway:   gw,
		published: cache.NewTypedCache[[]store.PublishedSection](gw.Cache(), ttl),
		history:   cache.NewTypedCache[[]VersionView](gw.Cache(), ttl),
		logger:    logger,
	}
}

// Published returns the enabled sections with their published content, in
// display order.
func (r *Reader) Published(ctx context.Context) ([]store.PublishedSection, error) {
	return r.published.GetOrSet(ctx, r.gateway.Key(cache.TagSections, publishedKey), func(ctx context.Context) ([]store.PublishedSection, error) {
		items, err := r.store.ListPublishedSections(ctx)
		if err != nil {
			return nil, err
		}
		r.logger.Debug("loaded published sections", "count", len(items))
		if items == nil {
			items = []store.PublishedSection{}
		}
		return items, nil
	})
}

// History returns the published and archived versions of a section, newest
// first.
func (r *Reader) History(ctx context.Context, sectionID string) ([]VersionView, error) {
	return r.history.GetOrSet(ctx, r.gateway.Key(cache.TagVersions, historyKey(sectionID)), func(ctx context.Context) ([]VersionView, error) {
		versions, err := r.store.ListVersionHistory(ctx, sectionID)
		if err != nil {
			return nil, err
		}
		views := make([]VersionView, 0, len(versions))
		for _, v := range versions {
			views = append(views, NewVersionView(v))
		}
		return views, nil
	})
}
