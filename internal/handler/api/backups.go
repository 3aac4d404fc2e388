// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/olegiv/pagecraft/internal/store"
)

// CreateBackupRequest is the body of POST /api/v1/admin/backups.
type CreateBackupRequest struct {
	Name string `json:"name"`
}

// ListBackups handles GET /api/v1/admin/backups.
func (h *Handler) ListBackups(w http.ResponseWriter, r *http.Request) {
	backups, err := h.service.ListBackups(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "list backups", err)
		return
	}
	if backups == nil {
		backups = []store.BackupSummary{}
	}
	WriteSuccess(w, backups, &Meta{Total: int64(len(backups))})
}

// GetBackup handles GET /api/v1/admin/backups/{id}.
func (h *Handler) GetBackup(w http.ResponseWriter, r *http.Request) {
	backup, err := h.service.GetBackup(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, "get backup", err)
		return
	}
	WriteSuccess(w, backup, nil)
}

// CreateBackup handles POST /api/v1/admin/backups.
func (h *Handler) CreateBackup(w http.ResponseWriter, r *http.Request) {
	var req CreateBackupRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	backup, err := h.service.CreateBackup(r.Context(), req.Name)
	if err != nil {
		h.writeServiceError(w, r, "create backup", err)
		return
	}
	WriteCreated(w, backup)
}

// RestoreBackup handles POST /api/v1/admin/backups/{id}/restore. Entries
// that cannot be restored are reported; restored ones stay restored.
func (h *Handler) RestoreBackup(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.RestoreFromBackup(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, "restore backup", err)
		return
	}
	WriteSuccess(w, result, nil)
}

// DeleteBackup handles DELETE /api/v1/admin/backups/{id}.
func (h *Handler) DeleteBackup(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteBackup(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, r, "delete backup", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
