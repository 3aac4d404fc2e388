// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package staging

import (
	"database/sql"
	"errors"
	"fmt"
)

// Error is a staging error kind. Callers match kinds with errors.Is.
type Error string

func (e Error) Error() string { return string(e) }

// Error kinds.
const (
	ErrNotFound      = Error("not found")
	ErrConflict      = Error("conflict")
	ErrDataIntegrity = Error("data integrity violation")
	ErrUnauthorized  = Error("unauthorized")
	ErrInvalidInput  = Error("invalid input")
)

// UpstreamError reports a failure of the store or cache itself.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: upstream failure: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Error codes reported to API clients.
const (
	CodeNotFound        = "not_found"
	CodeConflict        = "conflict"
	CodeDataIntegrity   = "data_integrity"
	CodeUnauthorized    = "unauthorized"
	CodeInvalidInput    = "invalid_input"
	CodeUpstreamFailure = "upstream_failure"
)

// Code returns the client-facing code for err.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrDataIntegrity):
		return CodeDataIntegrity
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	default:
		return CodeUpstreamFailure
	}
}

// ItemFailure describes one failed item of a batch operation.
type ItemFailure struct {
	ID    string `json:"id"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

func failure(id string, err error) ItemFailure {
	return ItemFailure{ID: id, Code: Code(err), Error: err.Error()}
}

// classify keeps staging error kinds as they are and wraps anything else as
// an upstream failure of op.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var kind Error
	var upstream *UpstreamError
	if errors.As(err, &kind) || errors.As(err, &upstream) {
		return err
	}
	return &UpstreamError{Op: op, Err: err}
}

// missing maps sql.ErrNoRows to ErrNotFound for the named entity.
func missing(err error, what, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %s", ErrNotFound, what, id)
	}
	return err
}
