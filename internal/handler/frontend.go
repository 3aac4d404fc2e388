// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package handler provides the HTML and health handlers of the public site.
package handler

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/olegiv/pagecraft/internal/cache"
	"github.com/olegiv/pagecraft/internal/content"
	"github.com/olegiv/pagecraft/internal/render"
)

// HomeRoute is the public page built from the published sections.
const HomeRoute = "/"

// FrontendHandler serves the public site.
type FrontendHandler struct {
	reader   *content.Reader
	renderer *render.Renderer
	gateway  *cache.Gateway
	cache    cache.Cacher
	ttl      time.Duration
	siteName string
	logger   *slog.Logger
}

// FrontendConfig configures a FrontendHandler.
type FrontendConfig struct {
	SiteName string
	PageTTL  time.Duration
}

// NewFrontendHandler creates a FrontendHandler. Rendered pages are cached
// under the gateway's route keys so revalidation retires them.
func NewFrontendHandler(reader *content.Reader, renderer *render.Renderer, gw *cache.Gateway, cfg FrontendConfig, logger *slog.Logger) *FrontendHandler {
	if cfg.SiteName == "" {
		cfg.SiteName = "Pagecraft"
	}
	return &FrontendHandler{
		reader:   reader,
		renderer: renderer,
		gateway:  gw,
		cache:    gw.Cache(),
		ttl:      cfg.PageTTL,
		siteName: cfg.SiteName,
		logger:   logger,
	}
}

// Routes mounts the public routes.
func (h *FrontendHandler) Routes(r chi.Router, static fs.FS) {
	r.Get(HomeRoute, h.Home)
	if static != nil {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))
	}
}

// Home handles GET / requests.
func (h *FrontendHandler) Home(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := h.gateway.RouteKey(HomeRoute)

	page, err := h.cache.Get(ctx, key)
	if err == nil {
		writeHTML(w, page, "HIT")
		return
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		h.logger.Warn("page cache read failed", "route", HomeRoute, "error", err)
	}

	sections, err := h.reader.Published(ctx)
	if err != nil {
		logAndInternalError(w, "failed to load published sections", "error", err)
		return
	}
	blocks, err := render.SectionBlocks(sections)
	if err != nil {
		logAndInternalError(w, "failed to render sections", "error", err)
		return
	}

	page, err = h.renderer.RenderBytes("home", render.TemplateData{
		Title: h.siteName,
		Data:  blocks,
	})
	if err != nil {
		logAndInternalError(w, "failed to render home page", "error", err)
		return
	}

	if err := h.cache.Set(ctx, key, page, h.ttl); err != nil {
		h.logger.Warn("page cache write failed", "route", HomeRoute, "error", err)
	}
	writeHTML(w, page, "MISS")
}

func writeHTML(w http.ResponseWriter, page []byte, cacheStatus string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Cache", cacheStatus)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(page)
}
