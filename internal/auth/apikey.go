// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package auth

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"slices"
)

// API permissions.
const (
	PermissionContentRead    = "content:read"
	PermissionContentWrite   = "content:write"
	PermissionContentPublish = "content:publish"
	PermissionBackupsManage  = "backups:manage"
)

// AllPermissions returns all available API permissions.
func AllPermissions() []string {
	return []string{
		PermissionContentRead,
		PermissionContentWrite,
		PermissionContentPublish,
		PermissionBackupsManage,
	}
}

// ValidPermission reports whether p is a known permission.
func ValidPermission(p string) bool {
	return slices.Contains(AllPermissions(), p)
}

const (
	keyTag       = "pc_"
	keyBytes     = 32
	keyPrefixLen = 12
)

// GenerateAPIKey returns a new random key. The raw key is shown to the
// caller once; only its prefix and hash are stored.
func GenerateAPIKey() (rawKey string, err error) {
	b := make([]byte, keyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating api key: %w", err)
	}
	return keyTag + base64.RawURLEncoding.EncodeToString(b), nil
}

// KeyPrefix returns the lookup prefix of a raw key.
func KeyPrefix(rawKey string) string {
	if len(rawKey) <= keyPrefixLen {
		return rawKey
	}
	return rawKey[:keyPrefixLen]
}

// EncodePermissions serializes permissions for storage.
func EncodePermissions(perms []string) (string, error) {
	if perms == nil {
		perms = []string{}
	}
	for _, p := range perms {
		if !ValidPermission(p) {
			return "", fmt.Errorf("unknown permission %q", p)
		}
	}
	b, err := json.Marshal(perms)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ParsePermissions decodes stored permissions. Invalid input yields none.
func ParsePermissions(encoded string) []string {
	if encoded == "" || encoded == "[]" {
		return nil
	}
	var perms []string
	if err := json.Unmarshal([]byte(encoded), &perms); err != nil {
		return nil
	}
	return perms
}
