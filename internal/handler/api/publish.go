// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/olegiv/pagecraft/internal/content"
)

// ListPending handles GET /api/v1/admin/pending.
func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	pending, err := h.service.PendingSections(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "list pending", err)
		return
	}
	WriteSuccess(w, content.NewSectionViews(pending), &Meta{Total: int64(len(pending))})
}

// PublishAll handles POST /api/v1/admin/publish. Sections that fail are
// reported in the result; the request itself succeeds.
func (h *Handler) PublishAll(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.PublishAll(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "publish", err)
		return
	}
	WriteSuccess(w, result, nil)
}

// PublishSection handles POST /api/v1/admin/sections/{id}/publish.
func (h *Handler) PublishSection(w http.ResponseWriter, r *http.Request) {
	section, err := h.service.PublishSection(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, "publish section", err)
		return
	}
	WriteSuccess(w, content.NewSectionView(section), nil)
}

// ListVersions handles GET /api/v1/admin/sections/{id}/versions. The
// history comes from the read cache, which every mutation revalidates.
func (h *Handler) ListVersions(w http.ResponseWriter, r *http.Request) {
	sectionID := chi.URLParam(r, "id")
	if _, err := h.service.GetSection(r.Context(), sectionID); err != nil {
		h.writeServiceError(w, r, "list versions", err)
		return
	}

	history, err := h.reader.History(r.Context(), sectionID)
	if err != nil {
		h.logger.Error("failed to load version history", "section_id", sectionID, "error", err)
		WriteInternalError(w, "Failed to load version history")
		return
	}
	WriteSuccess(w, history, &Meta{Total: int64(len(history))})
}

// RevertToVersion handles POST /api/v1/admin/versions/{id}/revert.
func (h *Handler) RevertToVersion(w http.ResponseWriter, r *http.Request) {
	version, err := h.service.RevertToVersion(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, "revert", err)
		return
	}
	WriteCreated(w, content.NewVersionView(version))
}

// DeleteVersion handles DELETE /api/v1/admin/versions/{id}.
func (h *Handler) DeleteVersion(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteVersion(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, r, "delete version", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
