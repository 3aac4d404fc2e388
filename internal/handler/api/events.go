// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"net/http"

	"github.com/olegiv/pagecraft/internal/store"
)

// ListEvents handles GET /api/v1/admin/events?category=&page=&per_page=.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	category := r.URL.Query().Get("category")
	page := ParsePageParam(r)
	perPage := ParsePerPageParam(r, DefaultPerPage, MaxPerPage)

	total, err := h.store.CountEvents(ctx, category)
	if err != nil {
		h.logger.Error("failed to count events", "error", err)
		WriteInternalError(w, "Failed to list events")
		return
	}

	events, err := h.store.ListEvents(ctx, store.ListEventsParams{
		Category: category,
		Limit:    int64(perPage),
		Offset:   int64((page - 1) * perPage),
	})
	if err != nil {
		h.logger.Error("failed to list events", "error", err)
		WriteInternalError(w, "Failed to list events")
		return
	}
	if events == nil {
		events = []store.Event{}
	}

	WriteSuccess(w, events, &Meta{
		Total:   total,
		Page:    page,
		PerPage: perPage,
		Pages:   CalculateTotalPages(int(total), perPage),
	})
}

// CacheInfo handles GET /api/v1/admin/cache.
func (h *Handler) CacheInfo(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, h.cache.Info(r.Context()), nil)
}
