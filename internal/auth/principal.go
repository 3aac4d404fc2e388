// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package auth

import (
	"context"
	"slices"
)

// Principal is the identity a request or job acts as.
type Principal struct {
	ID          string
	Name        string
	Permissions []string
	System      bool
}

// Has reports whether the principal holds the permission. System principals
// hold every permission.
func (p Principal) Has(permission string) bool {
	return p.System || slices.Contains(p.Permissions, permission)
}

// Actor returns the name recorded as the author of changes.
func (p Principal) Actor() string {
	if p.System {
		return "system:" + p.Name
	}
	return "key:" + p.Name
}

// SystemPrincipal returns a principal for background jobs.
func SystemPrincipal(name string) Principal {
	return Principal{ID: "system:" + name, Name: name, System: true}
}

type principalKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored in ctx.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
