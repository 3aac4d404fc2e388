// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package auth

import (
	"context"
	"errors"
	"fmt"
)

// Authorization errors.
var (
	ErrNoPrincipal      = errors.New("no authenticated principal")
	ErrPermissionDenied = errors.New("permission denied")
)

// Rights checks the permissions of the principal in the context.
type Rights struct{}

// CheckEditRights returns nil when the context principal holds permission.
func (Rights) CheckEditRights(ctx context.Context, permission string) error {
	p, ok := PrincipalFrom(ctx)
	if !ok {
		return ErrNoPrincipal
	}
	if !p.Has(permission) {
		return fmt.Errorf("%w: %s lacks %s", ErrPermissionDenied, p.Name, permission)
	}
	return nil
}

// Actor returns the author name of the context principal.
func (Rights) Actor(ctx context.Context) string {
	if p, ok := PrincipalFrom(ctx); ok {
		return p.Actor()
	}
	return ""
}
