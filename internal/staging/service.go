// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package staging implements the draft, publish, revert and backup workflow
// over the section version store.
package staging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/olegiv/pagecraft/internal/cache"
	"github.com/olegiv/pagecraft/internal/logging"
	"github.com/olegiv/pagecraft/internal/store"
)

// Notification event names.
const (
	EventSectionsPublished = "sections.published"
	EventSectionReverted   = "section.reverted"
	EventBackupCreated     = "backup.created"
	EventBackupRestored    = "backup.restored"
)

// EditRights authorizes mutations for the principal carried by a context.
type EditRights interface {
	CheckEditRights(ctx context.Context, permission string) error
	Actor(ctx context.Context) string
}

// Invalidator drops cached reads after a publish-affecting mutation.
type Invalidator interface {
	Revalidate(ctx context.Context, reason string, tags ...string) error
}

// Notifier receives workflow events. Delivery is fire-and-forget.
type Notifier interface {
	Notify(ctx context.Context, event string, data any)
}

// Options tunes the service.
type Options struct {
	// PublishConcurrency bounds how many sections PublishAll promotes at
	// once. Values below 1 mean sequential.
	PublishConcurrency int
	// BackupUniqueNames rejects a backup whose name is already taken.
	BackupUniqueNames bool
}

// Service runs the staging workflow.
type Service struct {
	store    *store.Store
	rights   EditRights
	gateway  Invalidator
	notifier Notifier
	logger   *slog.Logger
	opts     Options
	now      func() time.Time
}

// New creates a Service. notifier may be nil.
func New(s *store.Store, rights EditRights, gateway Invalidator, notifier Notifier, logger *slog.Logger, opts Options) *Service {
	if opts.PublishConcurrency < 1 {
		opts.PublishConcurrency = 1
	}
	return &Service{
		store:    s,
		rights:   rights,
		gateway:  gateway,
		notifier: notifier,
		logger:   logger,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// authorize runs before any mutation touches the store.
func (s *Service) authorize(ctx context.Context, permission string) error {
	if err := s.rights.CheckEditRights(ctx, permission); err != nil {
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	return nil
}

func (s *Service) author(ctx context.Context) string {
	return s.rights.Actor(ctx)
}

// invalidate calls the gateway once for a committed mutation. A failure is
// logged and recorded; it does not undo the mutation.
func (s *Service) invalidate(ctx context.Context, reason string, tags ...string) {
	if err := s.gateway.Revalidate(ctx, reason, tags...); err != nil {
		s.logger.Error("cache invalidation failed", "reason", reason, "error", err, logging.Recorded())
		s.audit(ctx, store.EventLevelError, store.EventCategoryCache, "cache invalidation failed",
			map[string]any{"reason": reason, "error": err.Error()})
	}
}

func (s *Service) invalidateContent(ctx context.Context, reason string) {
	s.invalidate(ctx, reason, cache.TagSections, cache.TagVersions)
}

func (s *Service) notify(ctx context.Context, event string, data any) {
	if s.notifier != nil {
		s.notifier.Notify(ctx, event, data)
	}
}

// audit records an event. Failures are only logged.
func (s *Service) audit(ctx context.Context, level, category, message string, metadata map[string]any) {
	if actor := s.author(ctx); actor != "" {
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata["actor"] = actor
	}
	encoded := "{}"
	if len(metadata) > 0 {
		if b, err := json.Marshal(metadata); err == nil {
			encoded = string(b)
		}
	}
	if err := s.store.CreateEvent(ctx, store.CreateEventParams{
		Level:     level,
		Category:  category,
		Message:   message,
		Metadata:  encoded,
		CreatedAt: s.now(),
	}); err != nil {
		s.logger.Warn("failed to record event", "message", message, "error", err)
	}
}
