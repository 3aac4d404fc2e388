// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/olegiv/pagecraft/internal/content"
	"github.com/olegiv/pagecraft/internal/editor"
	"github.com/olegiv/pagecraft/internal/staging"
)

// maxBatchDrafts bounds a single batch save.
const maxBatchDrafts = 100

// SaveDraftRequest is the body of PUT /api/v1/admin/sections/{id}/draft.
// A zero expected_revision skips the conflict check.
type SaveDraftRequest struct {
	LayoutJSON       json.RawMessage `json:"layout_json"`
	ContentHTML      *string         `json:"content_html"`
	ExpectedRevision int64           `json:"expected_revision"`
}

func (req SaveDraftRequest) input() staging.DraftInput {
	return staging.DraftInput{
		LayoutJSON:       req.LayoutJSON,
		ContentHTML:      req.ContentHTML,
		ExpectedRevision: req.ExpectedRevision,
	}
}

// GetOrCreateDraft handles POST /api/v1/admin/sections/{id}/draft.
func (h *Handler) GetOrCreateDraft(w http.ResponseWriter, r *http.Request) {
	draft, err := h.service.GetOrCreateDraft(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, "get draft", err)
		return
	}
	WriteSuccess(w, content.NewVersionView(draft), nil)
}

// SaveDraft handles PUT /api/v1/admin/sections/{id}/draft.
func (h *Handler) SaveDraft(w http.ResponseWriter, r *http.Request) {
	var req SaveDraftRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.LayoutJSON) == 0 {
		WriteValidationError(w, "Invalid draft", map[string]string{"layout_json": "required"})
		return
	}

	draft, err := h.service.SaveDraft(r.Context(), chi.URLParam(r, "id"), req.input())
	if err != nil {
		h.writeServiceError(w, r, "save draft", err)
		return
	}
	WriteSuccess(w, content.NewVersionView(draft), nil)
}

// DiscardDraft handles DELETE /api/v1/admin/sections/{id}/draft.
func (h *Handler) DiscardDraft(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DiscardDraft(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, r, "discard draft", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BatchDraft is one entry of a batch save.
type BatchDraft struct {
	SectionID string `json:"section_id"`
	SaveDraftRequest
}

// BatchSaveRequest is the body of PUT /api/v1/admin/drafts.
type BatchSaveRequest struct {
	Drafts []BatchDraft `json:"drafts"`
}

// BatchSaveResult reports a batch save. Saved entries are committed even
// when others fail.
type BatchSaveResult struct {
	SavedCount int                   `json:"saved_count"`
	Saved      []content.VersionView `json:"saved"`
	Failures   []staging.ItemFailure `json:"failures"`
}

// SaveDrafts handles PUT /api/v1/admin/drafts: every dirty section of an
// editing session is saved in one request, each in its own transaction.
func (h *Handler) SaveDrafts(w http.ResponseWriter, r *http.Request) {
	var req BatchSaveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Drafts) == 0 {
		WriteValidationError(w, "No drafts given", map[string]string{"drafts": "required"})
		return
	}
	if len(req.Drafts) > maxBatchDrafts {
		WriteValidationError(w, "Too many drafts", map[string]string{"drafts": "at most 100 per request"})
		return
	}

	dirty := editor.NewDirtySet[staging.DraftInput]()
	for i, d := range req.Drafts {
		if d.SectionID == "" || len(d.LayoutJSON) == 0 {
			WriteValidationError(w, "Invalid draft", map[string]string{
				"drafts": "entry " + strconv.Itoa(i) + " needs section_id and layout_json",
			})
			return
		}
		dirty.Mark(d.SectionID, d.input())
	}

	result := BatchSaveResult{
		Saved:    []content.VersionView{},
		Failures: []staging.ItemFailure{},
	}
	outcomes := dirty.Flush(r.Context(), func(ctx context.Context, id string, in staging.DraftInput) error {
		draft, err := h.service.SaveDraft(ctx, id, in)
		if err != nil {
			return err
		}
		result.Saved = append(result.Saved, content.NewVersionView(draft))
		return nil
	})
	attempted := make(map[string]bool, len(outcomes))
	for _, o := range outcomes {
		attempted[o.ID] = true
		if o.Err != nil {
			result.Failures = append(result.Failures, staging.ItemFailure{
				ID:    o.ID,
				Code:  staging.Code(o.Err),
				Error: o.Err.Error(),
			})
		}
	}
	// Entries still dirty but never attempted were cut off by the request
	// context.
	for _, id := range dirty.IDs() {
		if attempted[id] {
			continue
		}
		err := fmt.Errorf("draft not saved: %w", context.Cause(r.Context()))
		result.Failures = append(result.Failures, staging.ItemFailure{
			ID:    id,
			Code:  staging.Code(err),
			Error: err.Error(),
		})
	}
	result.SavedCount = len(result.Saved)

	if len(result.Failures) > 0 {
		h.logger.Warn("batch draft save had failures", "category", "content",
			"saved", result.SavedCount, "failed", len(result.Failures))
	}
	WriteSuccess(w, result, nil)
}
