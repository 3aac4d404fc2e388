// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package staging

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/olegiv/pagecraft/internal/auth"
	"github.com/olegiv/pagecraft/internal/store"
	"github.com/olegiv/pagecraft/internal/util"
)

// DraftInput is an in-place edit of a section's draft.
type DraftInput struct {
	LayoutJSON json.RawMessage `json:"layout_json"`
	// ContentHTML replaces the legacy HTML when set. An empty string clears it.
	ContentHTML *string `json:"content_html,omitempty"`
	// ExpectedRevision rejects the save with ErrConflict unless the draft is
	// still at this revision. Zero means last write wins.
	ExpectedRevision int64 `json:"expected_revision,omitempty"`
}

// GetOrCreateDraft returns the editable version of a section, copying the
// published version into a new draft when none exists.
func (s *Service) GetOrCreateDraft(ctx context.Context, sectionID string) (store.SectionVersion, error) {
	if err := s.authorize(ctx, auth.PermissionContentWrite); err != nil {
		return store.SectionVersion{}, err
	}

	var (
		draft   store.SectionVersion
		created bool
	)
	err := s.store.InTx(ctx, func(q *store.Queries) error {
		var err error
		draft, created, err = s.resolveDraft(ctx, q, sectionID)
		return err
	})
	if err != nil {
		return store.SectionVersion{}, classify("get or create draft", err)
	}
	if created {
		s.logger.Info("draft created", "section_id", sectionID, "version_id", draft.ID)
	}
	return draft, nil
}

// resolveDraft returns the section's draft and whether it had to be created.
func (s *Service) resolveDraft(ctx context.Context, q *store.Queries, sectionID string) (store.SectionVersion, bool, error) {
	section, err := q.GetSection(ctx, sectionID)
	if err != nil {
		return store.SectionVersion{}, false, missing(err, "section", sectionID)
	}

	if section.HasPendingDraft() {
		draft, err := q.GetVersion(ctx, section.DraftVersionID.String)
		if errors.Is(err, sql.ErrNoRows) {
			return store.SectionVersion{}, false, fmt.Errorf("%w: section %s points at missing draft %s",
				ErrDataIntegrity, sectionID, section.DraftVersionID.String)
		}
		return draft, false, err
	}

	if !section.PublishedVersionID.Valid {
		return store.SectionVersion{}, false, fmt.Errorf("%w: section %s has neither a draft nor a published version",
			ErrDataIntegrity, sectionID)
	}
	published, err := q.GetVersion(ctx, section.PublishedVersionID.String)
	if errors.Is(err, sql.ErrNoRows) {
		return store.SectionVersion{}, false, fmt.Errorf("%w: section %s points at missing published version %s",
			ErrDataIntegrity, sectionID, section.PublishedVersionID.String)
	}
	if err != nil {
		return store.SectionVersion{}, false, err
	}

	now := s.now()
	if section.DraftVersionID.Valid {
		// The draft pointer equals the published one; editing it would
		// mutate live content.
		if err := q.ClearDraftPointer(ctx, sectionID, now); err != nil {
			return store.SectionVersion{}, false, err
		}
	}

	draft, err := q.CreateVersion(ctx, store.CreateVersionParams{
		ID:          uuid.NewString(),
		SectionID:   sectionID,
		Status:      store.StatusDraft,
		LayoutJSON:  published.LayoutJSON,
		ContentHTML: published.ContentHTML,
		CreatedBy:   published.CreatedBy,
		CreatedAt:   now,
	})
	if err != nil {
		return store.SectionVersion{}, false, err
	}

	attached, err := q.SetDraftPointerIfEmpty(ctx, sectionID, draft.ID, now)
	if err != nil {
		return store.SectionVersion{}, false, err
	}
	if !attached {
		// Another writer attached a draft first; use theirs.
		if _, err := q.DeleteVersion(ctx, draft.ID); err != nil {
			return store.SectionVersion{}, false, err
		}
		section, err = q.GetSection(ctx, sectionID)
		if err != nil {
			return store.SectionVersion{}, false, missing(err, "section", sectionID)
		}
		if !section.DraftVersionID.Valid {
			return store.SectionVersion{}, false, fmt.Errorf("%w: draft of section %s changed concurrently", ErrConflict, sectionID)
		}
		theirs, err := q.GetVersion(ctx, section.DraftVersionID.String)
		return theirs, false, err
	}
	return draft, true, nil
}

// SaveDraft edits the section's draft in place, creating the draft first if
// needed, and returns the updated draft.
func (s *Service) SaveDraft(ctx context.Context, sectionID string, in DraftInput) (store.SectionVersion, error) {
	if err := s.authorize(ctx, auth.PermissionContentWrite); err != nil {
		return store.SectionVersion{}, err
	}
	if len(in.LayoutJSON) == 0 || !json.Valid(in.LayoutJSON) {
		return store.SectionVersion{}, fmt.Errorf("%w: layout_json must be a valid JSON document", ErrInvalidInput)
	}
	if in.ExpectedRevision < 0 {
		return store.SectionVersion{}, fmt.Errorf("%w: expected_revision must not be negative", ErrInvalidInput)
	}

	var saved store.SectionVersion
	err := s.store.InTx(ctx, func(q *store.Queries) error {
		draft, _, err := s.resolveDraft(ctx, q, sectionID)
		if err != nil {
			return err
		}

		html := draft.ContentHTML
		if in.ContentHTML != nil {
			html = util.NullStringFromValue(*in.ContentHTML)
		}
		ok, err := q.UpdateDraft(ctx, store.UpdateDraftParams{
			ID:               draft.ID,
			LayoutJSON:       in.LayoutJSON,
			ContentHTML:      html,
			ExpectedRevision: in.ExpectedRevision,
		})
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: draft %s is at revision %d, not %d",
				ErrConflict, draft.ID, draft.Revision, in.ExpectedRevision)
		}

		saved, err = q.GetVersion(ctx, draft.ID)
		return err
	})
	if err != nil {
		return store.SectionVersion{}, classify("save draft", err)
	}

	s.logger.Debug("draft saved", "section_id", sectionID, "version_id", saved.ID, "revision", saved.Revision)
	return saved, nil
}

// DiscardDraft drops the section's pending draft.
func (s *Service) DiscardDraft(ctx context.Context, sectionID string) error {
	if err := s.authorize(ctx, auth.PermissionContentWrite); err != nil {
		return err
	}

	var draftID string
	err := s.store.InTx(ctx, func(q *store.Queries) error {
		section, err := q.GetSection(ctx, sectionID)
		if err != nil {
			return missing(err, "section", sectionID)
		}
		if !section.HasPendingDraft() {
			return fmt.Errorf("%w: section %s has no draft", ErrNotFound, sectionID)
		}
		draftID = section.DraftVersionID.String

		if err := q.ClearDraftPointer(ctx, sectionID, s.now()); err != nil {
			return err
		}
		_, err = q.DeleteVersion(ctx, draftID)
		return err
	})
	if err != nil {
		return classify("discard draft", err)
	}

	s.logger.Info("draft discarded", "section_id", sectionID, "version_id", draftID)
	return nil
}
