// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/olegiv/pagecraft/internal/content"
	"github.com/olegiv/pagecraft/internal/render"
	"github.com/olegiv/pagecraft/internal/staging"
)

// PublicSection is a published section as served to the site's clients.
type PublicSection struct {
	ID         string          `json:"id"`
	Slug       string          `json:"slug"`
	Title      string          `json:"title"`
	VersionID  string          `json:"version_id"`
	LayoutJSON json.RawMessage `json:"layout_json"`
	HTML       string          `json:"html"`
}

// ListPublishedSections handles GET /api/v1/sections.
func (h *Handler) ListPublishedSections(w http.ResponseWriter, r *http.Request) {
	published, err := h.reader.Published(r.Context())
	if err != nil {
		h.logger.Error("failed to list published sections", "error", err)
		WriteInternalError(w, "Failed to list sections")
		return
	}

	items := make([]PublicSection, 0, len(published))
	for _, p := range published {
		block, err := render.SectionBlock(p)
		if err != nil {
			h.logger.Error("failed to render section", "section_id", p.SectionID, "error", err)
			WriteInternalError(w, "Failed to render sections")
			return
		}
		items = append(items, PublicSection{
			ID:         p.SectionID,
			Slug:       p.Slug,
			Title:      p.Title,
			VersionID:  p.VersionID,
			LayoutJSON: p.LayoutJSON,
			HTML:       string(block.HTML),
		})
	}

	WriteSuccess(w, items, &Meta{Total: int64(len(items))})
}

// ListSections handles GET /api/v1/admin/sections.
func (h *Handler) ListSections(w http.ResponseWriter, r *http.Request) {
	sections, err := h.service.ListSections(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "list sections", err)
		return
	}
	WriteSuccess(w, content.NewSectionViews(sections), &Meta{Total: int64(len(sections))})
}

// GetSection handles GET /api/v1/admin/sections/{id}.
func (h *Handler) GetSection(w http.ResponseWriter, r *http.Request) {
	section, err := h.service.GetSection(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, "get section", err)
		return
	}
	WriteSuccess(w, content.NewSectionView(section), nil)
}

// CreateSection handles POST /api/v1/admin/sections.
func (h *Handler) CreateSection(w http.ResponseWriter, r *http.Request) {
	var req staging.CreateSectionInput
	if !decodeJSON(w, r, &req) {
		return
	}

	section, err := h.service.CreateSection(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, "create section", err)
		return
	}
	WriteCreated(w, content.NewSectionView(section))
}

// ReorderRequest is the body of PUT /api/v1/admin/sections/order.
type ReorderRequest struct {
	IDs []string `json:"ids"`
}

// ReorderSections handles PUT /api/v1/admin/sections/order.
func (h *Handler) ReorderSections(w http.ResponseWriter, r *http.Request) {
	var req ReorderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sections, err := h.service.ReorderSections(r.Context(), req.IDs)
	if err != nil {
		h.writeServiceError(w, r, "reorder sections", err)
		return
	}
	WriteSuccess(w, content.NewSectionViews(sections), nil)
}

// UpdateSectionRequest is the body of PATCH /api/v1/admin/sections/{id}.
type UpdateSectionRequest struct {
	Enabled *bool `json:"enabled"`
}

// UpdateSection handles PATCH /api/v1/admin/sections/{id}. Only visibility
// can change; content changes go through drafts.
func (h *Handler) UpdateSection(w http.ResponseWriter, r *http.Request) {
	var req UpdateSectionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		WriteValidationError(w, "Nothing to update", map[string]string{"enabled": "required"})
		return
	}

	section, err := h.service.SetSectionEnabled(r.Context(), chi.URLParam(r, "id"), *req.Enabled)
	if err != nil {
		h.writeServiceError(w, r, "update section", err)
		return
	}
	WriteSuccess(w, content.NewSectionView(section), nil)
}

// DeleteSection handles DELETE /api/v1/admin/sections/{id}.
func (h *Handler) DeleteSection(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteSection(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, r, "delete section", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
