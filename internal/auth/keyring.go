// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/olegiv/pagecraft/internal/store"
)

// Key validation errors.
var (
	ErrInvalidKey  = errors.New("invalid api key")
	ErrInactiveKey = errors.New("api key is inactive")
)

// BootstrapKeyName is the name of the key created from configuration.
const BootstrapKeyName = "admin"

// Keyring issues and validates API keys.
type Keyring struct {
	store  *store.Store
	logger *slog.Logger
}

// NewKeyring creates a Keyring backed by the store.
func NewKeyring(s *store.Store, logger *slog.Logger) *Keyring {
	return &Keyring{store: s, logger: logger}
}

// Create issues a new key with the given permissions. The raw key is
// returned once and never stored.
func (k *Keyring) Create(ctx context.Context, name string, perms []string) (string, store.APIKey, error) {
	raw, err := GenerateAPIKey()
	if err != nil {
		return "", store.APIKey{}, err
	}
	key, err := k.save(ctx, name, raw, perms)
	if err != nil {
		return "", store.APIKey{}, err
	}
	return raw, key, nil
}

func (k *Keyring) save(ctx context.Context, name, raw string, perms []string) (store.APIKey, error) {
	encoded, err := EncodePermissions(perms)
	if err != nil {
		return store.APIKey{}, err
	}
	hash, err := HashArgon2(raw)
	if err != nil {
		return store.APIKey{}, err
	}

	key, err := k.store.CreateAPIKey(ctx, store.CreateAPIKeyParams{
		ID:          uuid.NewString(),
		Name:        name,
		KeyPrefix:   KeyPrefix(raw),
		KeyHash:     hash,
		Permissions: encoded,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return store.APIKey{}, fmt.Errorf("storing api key: %w", err)
	}
	return key, nil
}

// Bootstrap makes sure a configured raw key exists with every permission.
// An existing key under the same prefix is left alone.
func (k *Keyring) Bootstrap(ctx context.Context, raw string) error {
	_, err := k.store.GetAPIKeyByPrefix(ctx, KeyPrefix(raw))
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("looking up bootstrap key: %w", err)
	}

	key, err := k.save(ctx, BootstrapKeyName, raw, AllPermissions())
	if err != nil {
		return err
	}
	k.logger.Info("bootstrapped admin api key", "id", key.ID, "prefix", key.KeyPrefix)
	return nil
}

// Authenticate validates a raw key and returns the principal it grants.
func (k *Keyring) Authenticate(ctx context.Context, raw string) (Principal, error) {
	key, err := k.store.GetAPIKeyByPrefix(ctx, KeyPrefix(raw))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Principal{}, ErrInvalidKey
		}
		return Principal{}, fmt.Errorf("looking up api key: %w", err)
	}

	ok, err := VerifyArgon2(raw, key.KeyHash)
	if err != nil {
		return Principal{}, fmt.Errorf("verifying api key %s: %w", key.ID, err)
	}
	if !ok {
		return Principal{}, ErrInvalidKey
	}
	if !key.IsActive {
		return Principal{}, ErrInactiveKey
	}

	if err := k.store.UpdateAPIKeyLastUsed(ctx, key.ID, time.Now().UTC()); err != nil {
		k.logger.Debug("updating api key last use", "id", key.ID, "error", err)
	}

	return Principal{
		ID:          key.ID,
		Name:        key.Name,
		Permissions: ParsePermissions(key.Permissions),
	}, nil
}
