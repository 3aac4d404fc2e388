// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/olegiv/pagecraft/internal/auth"
	"github.com/olegiv/pagecraft/internal/middleware"
)

// RouteConfig configures the API middleware stack.
type RouteConfig struct {
	Keys      middleware.Authenticator
	RateLimit float64
	RateBurst int
}

// Routes mounts the API under /api/v1.
func (h *Handler) Routes(r chi.Router, cfg RouteConfig) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.APIRateLimit(cfg.RateLimit, cfg.RateBurst))
			r.Get("/status", h.Status)
			r.Get("/sections", h.ListPublishedSections)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.NoStore())
			r.Use(middleware.APIKeyAuth(cfg.Keys, h.logger))
			r.Use(middleware.APIRateLimit(cfg.RateLimit, cfg.RateBurst))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequirePermission(auth.PermissionContentRead))
				r.Get("/sections", h.ListSections)
				r.Get("/sections/{id}", h.GetSection)
				r.Get("/sections/{id}/versions", h.ListVersions)
				r.Get("/pending", h.ListPending)
				r.Get("/events", h.ListEvents)
				r.Get("/cache", h.CacheInfo)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequirePermission(auth.PermissionContentWrite))
				r.Post("/sections/{id}/draft", h.GetOrCreateDraft)
				r.Put("/sections/{id}/draft", h.SaveDraft)
				r.Delete("/sections/{id}/draft", h.DiscardDraft)
				r.Put("/drafts", h.SaveDrafts)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequirePermission(auth.PermissionContentPublish))
				r.Post("/sections", h.CreateSection)
				r.Put("/sections/order", h.ReorderSections)
				r.Patch("/sections/{id}", h.UpdateSection)
				r.Delete("/sections/{id}", h.DeleteSection)
				r.Post("/sections/{id}/publish", h.PublishSection)
				r.Post("/publish", h.PublishAll)
				r.Post("/versions/{id}/revert", h.RevertToVersion)
				r.Delete("/versions/{id}", h.DeleteVersion)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequirePermission(auth.PermissionBackupsManage))
				r.Get("/backups", h.ListBackups)
				r.Post("/backups", h.CreateBackup)
				r.Get("/backups/{id}", h.GetBackup)
				r.Post("/backups/{id}/restore", h.RestoreBackup)
				r.Delete("/backups/{id}", h.DeleteBackup)
				r.Get("/jobs", h.ListJobs)
				r.Post("/jobs/{name}/run", h.RunJob)
			})
		})
	})
}
