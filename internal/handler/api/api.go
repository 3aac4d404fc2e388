// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package api provides the JSON REST API of the staging workflow.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/olegiv/pagecraft/internal/cache"
	"github.com/olegiv/pagecraft/internal/content"
	"github.com/olegiv/pagecraft/internal/staging"
	"github.com/olegiv/pagecraft/internal/store"
)

// maxBodyBytes bounds request bodies. Layout documents are small.
const maxBodyBytes = 1 << 20

// Handler holds shared dependencies for all API handlers.
type Handler struct {
	service *staging.Service
	reader  *content.Reader
	store   *store.Store
	cache   *cache.Manager
	jobs    JobRunner
	logger  *slog.Logger
	version string
}

// Config carries the dependencies of a Handler.
type Config struct {
	Service *staging.Service
	Reader  *content.Reader
	Store   *store.Store
	Cache   *cache.Manager
	Jobs    JobRunner // optional
	Logger  *slog.Logger
	Version string
}

// NewHandler creates a new API handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		service: cfg.Service,
		reader:  cfg.Reader,
		store:   cfg.Store,
		cache:   cfg.Cache,
		jobs:    cfg.Jobs,
		logger:  cfg.Logger,
		version: cfg.Version,
	}
}

// Response is the standard API response wrapper.
type Response struct {
	Data any   `json:"data,omitempty"`
	Meta *Meta `json:"meta,omitempty"`
}

// Meta contains pagination and other metadata.
type Meta struct {
	Total   int64 `json:"total,omitempty"`
	Page    int   `json:"page,omitempty"`
	PerPage int   `json:"per_page,omitempty"`
	Pages   int   `json:"pages,omitempty"`
}

// ErrorResponse is the standard API error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a successful JSON response.
func WriteSuccess(w http.ResponseWriter, data any, meta *Meta) {
	WriteJSON(w, http.StatusOK, Response{Data: data, Meta: meta})
}

// WriteCreated writes a 201 Created JSON response.
func WriteCreated(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusCreated, Response{Data: data})
}

// WriteError writes an error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, code, message string, details map[string]string) {
	WriteJSON(w, statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// WriteBadRequest writes a 400 Bad Request response.
func WriteBadRequest(w http.ResponseWriter, message string, details map[string]string) {
	WriteError(w, http.StatusBadRequest, "bad_request", message, details)
}

// WriteNotFound writes a 404 Not Found response.
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, "not_found", message, nil)
}

// WriteInternalError writes a 500 Internal Server Error response.
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, "internal_error", message, nil)
}

// WriteValidationError writes a 422 Unprocessable Entity response with field errors.
func WriteValidationError(w http.ResponseWriter, message string, fieldErrors map[string]string) {
	WriteError(w, http.StatusUnprocessableEntity, staging.CodeInvalidInput, message, fieldErrors)
}

// StatusFor maps a staging error to its HTTP status.
func StatusFor(err error) int {
	switch staging.Code(err) {
	case staging.CodeNotFound:
		return http.StatusNotFound
	case staging.CodeConflict:
		return http.StatusConflict
	case staging.CodeUnauthorized:
		return http.StatusForbidden
	case staging.CodeInvalidInput:
		return http.StatusUnprocessableEntity
	case staging.CodeDataIntegrity:
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}

// writeServiceError writes the error returned by a staging operation.
// Integrity and upstream failures are logged; their details stay internal.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	code := staging.Code(err)
	status := StatusFor(err)

	message := err.Error()
	switch code {
	case staging.CodeDataIntegrity:
		h.logger.Error(op+" failed", "category", "content", "code", code, "path", r.URL.Path, "error", err)
		message = "Stored content is inconsistent"
	case staging.CodeUpstreamFailure:
		h.logger.Error(op+" failed", "code", code, "path", r.URL.Path, "error", err)
		message = "Storage backend failed"
	default:
		h.logger.Debug(op+" rejected", "code", code, "path", r.URL.Path, "error", err)
	}

	WriteError(w, status, code, message, nil)
}

// decodeJSON reads a JSON request body into v. An empty body leaves v
// untouched. It writes a 400 response and returns false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			WriteError(w, http.StatusRequestEntityTooLarge, "too_large", "Request body too large", nil)
			return false
		}
		WriteBadRequest(w, "Invalid JSON body", map[string]string{"body": strings.TrimPrefix(err.Error(), "json: ")})
		return false
	}
	return true
}

// StatusResponse contains API status information.
type StatusResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	API     string `json:"api"`
}

// Status returns the API status.
func (h *Handler) Status(w http.ResponseWriter, _ *http.Request) {
	WriteSuccess(w, StatusResponse{
		Status:  "ok",
		Version: h.version,
		API:     "v1",
	}, nil)
}
