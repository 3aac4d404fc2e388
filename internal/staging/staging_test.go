// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package staging

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegiv/pagecraft/internal/auth"
	"github.com/olegiv/pagecraft/internal/cache"
	"github.com/olegiv/pagecraft/internal/store"
	"github.com/olegiv/pagecraft/internal/testutil"
)

type revalidation struct {
	reason string
	tags   []string
}

type recordingGateway struct {
	mu    sync.Mutex
	calls []revalidation
	err   error
}

func (g *recordingGateway) Revalidate(_ context.Context, reason string, tags ...string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, revalidation{reason: reason, tags: tags})
	return g.err
}

func (g *recordingGateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Notify(_ context.Context, event string, _ any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

type fixture struct {
	svc      *Service
	store    *store.Store
	gateway  *recordingGateway
	notifier *recordingNotifier
}

func newFixture(t *testing.T, s *store.Store, opts Options) *fixture {
	t.Helper()
	f := &fixture{store: s, gateway: &recordingGateway{}, notifier: &recordingNotifier{}}
	f.svc = New(s, auth.Rights{}, f.gateway, f.notifier, testutil.TestLoggerSilent(), opts)
	return f
}

func seeded(t *testing.T) *fixture {
	return newFixture(t, testutil.SeededStore(t), Options{BackupUniqueNames: true})
}

func editorCtx() context.Context {
	return auth.WithPrincipal(context.Background(), auth.Principal{
		ID:          "k1",
		Name:        "editor",
		Permissions: auth.AllPermissions(),
	})
}

func (f *fixture) section(t *testing.T, slug string) store.Section {
	t.Helper()
	s, err := f.store.GetSectionBySlug(context.Background(), slug)
	require.NoError(t, err)
	return s
}

func (f *fixture) version(t *testing.T, id string) store.SectionVersion {
	t.Helper()
	v, err := f.store.GetVersion(context.Background(), id)
	require.NoError(t, err)
	return v
}

func (f *fixture) countStatus(t *testing.T, sectionID, status string) int64 {
	t.Helper()
	n, err := f.store.CountVersionsByStatus(context.Background(), sectionID, status)
	require.NoError(t, err)
	return n
}

func TestGetOrCreateDraft_Idempotent(t *testing.T) {
	f := seeded(t)
	ctx := editorCtx()
	hero := f.section(t, "hero")
	published := f.version(t, hero.PublishedVersionID.String)

	first, err := f.svc.GetOrCreateDraft(ctx, hero.ID)
	require.NoError(t, err)
	second, err := f.svc.GetOrCreateDraft(ctx, hero.ID)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.NotEqual(t, published.ID, first.ID)
	assert.Equal(t, store.StatusDraft, first.Status)
	assert.JSONEq(t, string(published.LayoutJSON), string(first.LayoutJSON))
	assert.Equal(t, published.ContentHTML, first.ContentHTML)
	assert.Equal(t, published.CreatedBy, first.CreatedBy)
	assert.Equal(t, int64(1), f.countStatus(t, hero.ID, store.StatusDraft))

	hero = f.section(t, "hero")
	assert.Equal(t, first.ID, hero.DraftVersionID.String)
	assert.Equal(t, published.ID, hero.PublishedVersionID.String)
	assert.Zero(t, f.gateway.count(), "drafts are not publicly visible")
}

func TestGetOrCreateDraft_Errors(t *testing.T) {
	f := newFixture(t, testutil.TestStore(t), Options{})
	ctx := editorCtx()

	_, err := f.svc.GetOrCreateDraft(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	now := f.svc.now()
	require.NoError(t, f.store.CreateSection(context.Background(), store.CreateSectionParams{
		ID: "bare", Slug: "bare", Title: "Bare", IsEnabled: true, CreatedAt: now,
	}))
	_, err = f.svc.GetOrCreateDraft(ctx, "bare")
	assert.ErrorIs(t, err, ErrDataIntegrity)
	assert.Equal(t, CodeDataIntegrity, Code(err))
}

func TestScenario_DraftEditPublish(t *testing.T) {
	f := newFixture(t, testutil.TestStore(t), Options{})
	ctx := editorCtx()

	s1, err := f.svc.CreateSection(ctx, CreateSectionInput{
		Title:      "Hero",
		LayoutJSON: json.RawMessage(`{"type":"hero","title":"A"}`),
	})
	require.NoError(t, err)
	v1 := s1.PublishedVersionID.String
	require.NotEmpty(t, v1)
	assert.False(t, s1.DraftVersionID.Valid)

	v2, err := f.svc.GetOrCreateDraft(ctx, s1.ID)
	require.NoError(t, err)
	assert.Equal(t, v2.ID, f.section(t, "hero").DraftVersionID.String)

	_, err = f.svc.SaveDraft(ctx, s1.ID, DraftInput{LayoutJSON: json.RawMessage(`{"type":"hero","title":"B"}`)})
	require.NoError(t, err)

	res, err := f.svc.PublishAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.PublishedCount)
	assert.Empty(t, res.Failures)

	s1 = f.section(t, "hero")
	assert.Equal(t, v2.ID, s1.PublishedVersionID.String)
	assert.False(t, s1.DraftVersionID.Valid)
	assert.Equal(t, store.StatusArchived, f.version(t, v1).Status)
	published := f.version(t, v2.ID)
	assert.Equal(t, store.StatusPublished, published.Status)
	assert.JSONEq(t, `{"type":"hero","title":"B"}`, string(published.LayoutJSON))
}

func TestPublishAll_NoPendingIsNoOp(t *testing.T) {
	f := seeded(t)
	ctx := editorCtx()
	before, err := f.store.ListSections(context.Background())
	require.NoError(t, err)

	res, err := f.svc.PublishAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.PublishedCount)

	after, err := f.store.ListSections(context.Background())
	require.NoError(t, err)
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].PublishedVersionID, after[i].PublishedVersionID)
		assert.Equal(t, before[i].UpdatedAt.Unix(), after[i].UpdatedAt.Unix())
		assert.Zero(t, f.countStatus(t, after[i].ID, store.StatusArchived))
	}
	assert.Zero(t, f.gateway.count())
	assert.Empty(t, f.notifier.events)
}

func TestPublishAll_PromotesOnlyPending(t *testing.T) {
	f := seeded(t)
	ctx := editorCtx()
	hero := f.section(t, "hero")
	mission := f.section(t, "mission")
	services := f.section(t, "services")

	heroDraft, err := f.svc.GetOrCreateDraft(ctx, hero.ID)
	require.NoError(t, err)
	missionDraft, err := f.svc.GetOrCreateDraft(ctx, mission.ID)
	require.NoError(t, err)

	res, err := f.svc.PublishAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.PublishedCount)
	assert.ElementsMatch(t, []string{hero.ID, mission.ID}, res.Published)

	for _, tc := range []struct {
		before store.Section
		draft  string
	}{{hero, heroDraft.ID}, {mission, missionDraft.ID}} {
		after := f.section(t, tc.before.Slug)
		assert.Equal(t, tc.draft, after.PublishedVersionID.String)
		assert.False(t, after.DraftVersionID.Valid)
		assert.Equal(t, store.StatusArchived, f.version(t, tc.before.PublishedVersionID.String).Status)
		assert.Equal(t, int64(1), f.countStatus(t, after.ID, store.StatusPublished))
	}

	untouched := f.section(t, "services")
	assert.Equal(t, services.PublishedVersionID, untouched.PublishedVersionID)
	assert.Zero(t, f.countStatus(t, services.ID, store.StatusArchived))

	require.Equal(t, 1, f.gateway.count(), "one invalidation per publish run")
	assert.ElementsMatch(t, []string{cache.TagSections, cache.TagVersions}, f.gateway.calls[0].tags)
	assert.Equal(t, []string{EventSectionsPublished}, f.notifier.events)
}

func TestPublishAll_FailureDoesNotStopOthers(t *testing.T) {
	f := seeded(t)
	ctx := editorCtx()
	hero := f.section(t, "hero")
	mission := f.section(t, "mission")
	services := f.section(t, "services")

	heroDraft, err := f.svc.GetOrCreateDraft(ctx, hero.ID)
	require.NoError(t, err)
	servicesDraft, err := f.svc.GetOrCreateDraft(ctx, services.ID)
	require.NoError(t, err)

	// mission sorts between hero and services and points at a draft row
	// that does not exist.
	_, err = f.store.DB().ExecContext(context.Background(),
		`UPDATE sections SET draft_version_id = 'ghost' WHERE id = ?`, mission.ID)
	require.NoError(t, err)

	res, err := f.svc.PublishAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.PublishedCount)
	assert.ElementsMatch(t, []string{hero.ID, services.ID}, res.Published)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, mission.ID, res.Failures[0].ID)
	assert.Equal(t, CodeDataIntegrity, res.Failures[0].Code)

	for _, tc := range []struct {
		before store.Section
		draft  string
	}{{hero, heroDraft.ID}, {services, servicesDraft.ID}} {
		after := f.section(t, tc.before.Slug)
		assert.Equal(t, tc.draft, after.PublishedVersionID.String, tc.before.Slug)
		assert.False(t, after.DraftVersionID.Valid, tc.before.Slug)
		assert.Equal(t, store.StatusArchived, f.version(t, tc.before.PublishedVersionID.String).Status)
	}

	after := f.section(t, "mission")
	assert.Equal(t, mission.PublishedVersionID, after.PublishedVersionID)
	assert.Equal(t, "ghost", after.DraftVersionID.String)
	assert.Equal(t, store.StatusPublished, f.version(t, mission.PublishedVersionID.String).Status)
	assert.Zero(t, f.countStatus(t, mission.ID, store.StatusArchived))

	assert.Equal(t, 1, f.gateway.count(), "partial runs still invalidate")
	assert.Equal(t, []string{EventSectionsPublished}, f.notifier.events)
}

func TestPublishAll_ConcurrentRunsNeverDoublePromote(t *testing.T) {
	f := newFixture(t, testutil.SeededStore(t), Options{PublishConcurrency: 4})
	ctx := editorCtx()

	sections, err := f.store.ListSections(context.Background())
	require.NoError(t, err)
	drafts := make(map[string]string, len(sections))
	for _, sec := range sections {
		d, err := f.svc.GetOrCreateDraft(ctx, sec.ID)
		require.NoError(t, err)
		drafts[sec.ID] = d.ID
	}

	var (
		wg      sync.WaitGroup
		results [2]PublishResult
		errs    [2]error
	)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = f.svc.PublishAll(ctx)
		}()
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, len(sections), results[0].PublishedCount+results[1].PublishedCount)
	for _, r := range results {
		for _, fail := range r.Failures {
			assert.Equal(t, CodeConflict, fail.Code)
		}
	}

	for _, sec := range sections {
		after := f.section(t, sec.Slug)
		assert.Equal(t, drafts[sec.ID], after.PublishedVersionID.String)
		assert.Equal(t, int64(1), f.countStatus(t, sec.ID, store.StatusPublished))
		assert.Equal(t, int64(1), f.countStatus(t, sec.ID, store.StatusArchived))
	}
}

func TestPublishSection(t *testing.T) {
	f := seeded(t)
	ctx := editorCtx()
	hero := f.section(t, "hero")

	_, err := f.svc.PublishSection(ctx, hero.ID)
	assert.ErrorIs(t, err, ErrConflict)

	draft, err := f.svc.GetOrCreateDraft(ctx, hero.ID)
	require.NoError(t, err)

	pending, err := f.svc.PendingSections(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, hero.ID, pending[0].ID)

	after, err := f.svc.PublishSection(ctx, hero.ID)
	require.NoError(t, err)
	assert.Equal(t, draft.ID, after.PublishedVersionID.String)
	assert.False(t, after.DraftVersionID.Valid)
	assert.Equal(t, 1, f.gateway.count())

	_, err = f.svc.PublishSection(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveDraft_OptimisticConcurrency(t *testing.T) {
	f := seeded(t)
	ctx := editorCtx()
	hero := f.section(t, "hero")

	draft, err := f.svc.GetOrCreateDraft(ctx, hero.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), draft.Revision)

	saved, err := f.svc.SaveDraft(ctx, hero.ID, DraftInput{
		LayoutJSON:       json.RawMessage(`{"title":"first"}`),
		ExpectedRevision: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), saved.Revision)
	assert.Equal(t, draft.ID, saved.ID)

	_, err = f.svc.SaveDraft(ctx, hero.ID, DraftInput{
		LayoutJSON:       json.RawMessage(`{"title":"stale"}`),
		ExpectedRevision: 1,
	})
	assert.ErrorIs(t, err, ErrConflict)
	assert.JSONEq(t, `{"title":"first"}`, string(f.version(t, draft.ID).LayoutJSON))

	empty := ""
	saved, err = f.svc.SaveDraft(ctx, hero.ID, DraftInput{
		LayoutJSON:  json.RawMessage(`{"title":"last write"}`),
		ContentHTML: &empty,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), saved.Revision)
	assert.False(t, saved.ContentHTML.Valid)

	_, err = f.svc.SaveDraft(ctx, hero.ID, DraftInput{LayoutJSON: json.RawMessage(`{broken`)})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSaveDraft_CreatesDraftWhenMissing(t *testing.T) {
	f := seeded(t)
	ctx := editorCtx()
	hero := f.section(t, "hero")
	published := f.version(t, hero.PublishedVersionID.String)

	saved, err := f.svc.SaveDraft(ctx, hero.ID, DraftInput{LayoutJSON: json.RawMessage(`{"title":"new"}`)})
	require.NoError(t, err)
	assert.Equal(t, store.StatusDraft, saved.Status)
	assert.Equal(t, published.ContentHTML, saved.ContentHTML, "html is kept when not sent")
	assert.JSONEq(t, string(published.LayoutJSON), string(f.version(t, published.ID).LayoutJSON),
		"published content is never edited")
}

func TestDiscardDraft(t *testing.T) {
	f := seeded(t)
	ctx := editorCtx()
	hero := f.section(t, "hero")

	assert.ErrorIs(t, f.svc.DiscardDraft(ctx, hero.ID), ErrNotFound)

	draft, err := f.svc.GetOrCreateDraft(ctx, hero.ID)
	require.NoError(t, err)
	require.NoError(t, f.svc.DiscardDraft(ctx, hero.ID))

	assert.False(t, f.section(t, "hero").DraftVersionID.Valid)
	_, err = f.store.GetVersion(context.Background(), draft.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestRevertToVersion_KeepsHistory(t *testing.T) {
	f := seeded(t)
	ctx := editorCtx()
	hero := f.section(t, "hero")
	v1 := f.version(t, hero.PublishedVersionID.String)

	_, err := f.svc.SaveDraft(ctx, hero.ID, DraftInput{LayoutJSON: json.RawMessage(`{"title":"v2"}`)})
	require.NoError(t, err)
	_, err = f.svc.PublishAll(ctx)
	require.NoError(t, err)
	v2ID := f.section(t, "hero").PublishedVersionID.String

	pendingDraft, err := f.svc.SaveDraft(ctx, hero.ID, DraftInput{LayoutJSON: json.RawMessage(`{"title":"unpublished"}`)})
	require.NoError(t, err)

	v3, err := f.svc.RevertToVersion(ctx, v1.ID)
	require.NoError(t, err)

	assert.NotEqual(t, v1.ID, v3.ID)
	assert.Equal(t, store.StatusPublished, v3.Status)
	assert.JSONEq(t, string(v1.LayoutJSON), string(v3.LayoutJSON))
	assert.Equal(t, v1.ContentHTML, v3.ContentHTML)
	assert.Equal(t, "key:editor", v3.CreatedBy.String)

	untouched := f.version(t, v1.ID)
	assert.Equal(t, store.StatusArchived, untouched.Status)
	assert.JSONEq(t, string(v1.LayoutJSON), string(untouched.LayoutJSON))

	after := f.section(t, "hero")
	assert.Equal(t, v3.ID, after.PublishedVersionID.String)
	assert.False(t, after.DraftVersionID.Valid)
	assert.Equal(t, store.StatusArchived, f.version(t, v2ID).Status)
	assert.Equal(t, store.StatusArchived, f.version(t, pendingDraft.ID).Status)

	history, err := f.svc.VersionHistory(ctx, hero.ID)
	require.NoError(t, err)
	assert.Len(t, history, 4)
	assert.Contains(t, f.notifier.events, EventSectionReverted)

	_, err = f.svc.RevertToVersion(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteVersion_ActiveGuard(t *testing.T) {
	f := seeded(t)
	ctx := editorCtx()
	hero := f.section(t, "hero")
	v1 := hero.PublishedVersionID.String

	draft, err := f.svc.GetOrCreateDraft(ctx, hero.ID)
	require.NoError(t, err)

	for _, id := range []string{v1, draft.ID} {
		err := f.svc.DeleteVersion(ctx, id)
		assert.ErrorIs(t, err, ErrConflict)
		assert.Contains(t, err.Error(), "cannot delete active version")
		f.version(t, id)
	}

	_, err = f.svc.PublishAll(ctx)
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteVersion(ctx, v1), "archived versions can be deleted")
	_, err = f.store.GetVersion(context.Background(), v1)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	assert.ErrorIs(t, f.svc.DeleteVersion(ctx, v1), ErrNotFound)
}

func TestBackupRestore_RoundTrip(t *testing.T) {
	f := seeded(t)
	ctx := editorCtx()

	published, err := f.store.ListPublishedSections(context.Background())
	require.NoError(t, err)
	atBackup := make(map[string]store.PublishedSection, len(published))
	for _, p := range published {
		atBackup[p.SectionID] = p
	}

	backup, err := f.svc.CreateBackup(ctx, "  before redesign  ")
	require.NoError(t, err)
	assert.Equal(t, "before redesign", backup.Name)
	require.Len(t, backup.Entries, len(published))

	hero := f.section(t, "hero")
	_, err = f.svc.SaveDraft(ctx, hero.ID, DraftInput{LayoutJSON: json.RawMessage(`{"title":"redesigned"}`)})
	require.NoError(t, err)
	_, err = f.svc.PublishAll(ctx)
	require.NoError(t, err)

	res, err := f.svc.RestoreFromBackup(ctx, backup.ID)
	require.NoError(t, err)
	assert.Equal(t, len(published), res.RestoredCount)
	assert.Empty(t, res.Failures)

	after, err := f.store.ListPublishedSections(context.Background())
	require.NoError(t, err)
	for _, p := range after {
		before := atBackup[p.SectionID]
		assert.NotEqual(t, before.VersionID, p.VersionID, "restore creates new versions")
		assert.JSONEq(t, string(before.LayoutJSON), string(p.LayoutJSON))
		assert.Equal(t, before.ContentHTML, p.ContentHTML)
	}
	assert.Contains(t, f.notifier.events, EventBackupRestored)
}

func TestRestoreFromBackup_SkipsDeletedSection(t *testing.T) {
	f := seeded(t)
	ctx := editorCtx()

	backup, err := f.svc.CreateBackup(ctx, "nightly")
	require.NoError(t, err)
	testimonials := f.section(t, "testimonials")
	require.NoError(t, f.svc.DeleteSection(ctx, testimonials.ID))

	res, err := f.svc.RestoreFromBackup(ctx, backup.ID)
	require.NoError(t, err)
	assert.Equal(t, len(backup.Entries)-1, res.RestoredCount)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, testimonials.ID, res.Failures[0].ID)
	assert.Equal(t, CodeNotFound, res.Failures[0].Code)

	_, err = f.svc.RestoreFromBackup(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateBackup_NameUniqueness(t *testing.T) {
	t.Run("unique", func(t *testing.T) {
		f := seeded(t)
		ctx := editorCtx()
		_, err := f.svc.CreateBackup(ctx, "weekly")
		require.NoError(t, err)
		_, err = f.svc.CreateBackup(ctx, " weekly ")
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("duplicates allowed", func(t *testing.T) {
		f := newFixture(t, testutil.SeededStore(t), Options{BackupUniqueNames: false})
		ctx := editorCtx()
		a, err := f.svc.CreateBackup(ctx, "weekly")
		require.NoError(t, err)
		b, err := f.svc.CreateBackup(ctx, "weekly")
		require.NoError(t, err)
		assert.NotEqual(t, a.ID, b.ID)

		list, err := f.svc.ListBackups(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 2)
	})

	t.Run("concurrent same name", func(t *testing.T) {
		f := seeded(t)
		ctx := editorCtx()

		const workers = 6
		errs := make([]error, workers)
		var wg sync.WaitGroup
		for i := range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = f.svc.CreateBackup(ctx, "nightly")
			}()
		}
		wg.Wait()

		created := 0
		for _, err := range errs {
			if err == nil {
				created++
				continue
			}
			assert.ErrorIs(t, err, ErrConflict)
		}
		assert.Equal(t, 1, created)

		list, err := f.svc.ListBackups(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("empty name", func(t *testing.T) {
		f := seeded(t)
		_, err := f.svc.CreateBackup(editorCtx(), "   ")
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestCreateBackup_SkipsDisabledSections(t *testing.T) {
	f := seeded(t)
	ctx := editorCtx()
	mission := f.section(t, "mission")
	_, err := f.svc.SetSectionEnabled(ctx, mission.ID, false)
	require.NoError(t, err)

	backup, err := f.svc.CreateBackup(ctx, "visible only")
	require.NoError(t, err)
	for _, e := range backup.Entries {
		assert.NotEqual(t, mission.ID, e.SectionID)
	}
	assert.Len(t, backup.Entries, 3)
}

func TestBackupManagement(t *testing.T) {
	f := seeded(t)
	ctx := editorCtx()

	backup, err := f.svc.CreateBackup(ctx, "keep me")
	require.NoError(t, err)
	got, err := f.svc.GetBackup(ctx, backup.ID)
	require.NoError(t, err)
	assert.Equal(t, backup.Name, got.Name)
	assert.Len(t, got.Entries, len(backup.Entries))

	require.NoError(t, f.svc.DeleteBackup(ctx, backup.ID))
	assert.ErrorIs(t, f.svc.DeleteBackup(ctx, backup.ID), ErrNotFound)
	_, err = f.svc.GetBackup(ctx, backup.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPruneBackups(t *testing.T) {
	f := newFixture(t, testutil.SeededStore(t), Options{})
	ctx := editorCtx()
	for _, name := range []string{"auto-1", "auto-2", "auto-3", "manual"} {
		_, err := f.svc.CreateBackup(ctx, name)
		require.NoError(t, err)
	}

	deleted, err := f.svc.PruneBackups(ctx, "auto-", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	list, err := f.svc.ListBackups(ctx)
	require.NoError(t, err)
	var names []string
	for _, b := range list {
		names = append(names, b.Name)
	}
	assert.ElementsMatch(t, []string{"auto-3", "manual"}, names)
}

func TestUnauthorizedMutationHasNoSideEffect(t *testing.T) {
	f := seeded(t)
	hero := f.section(t, "hero")
	reader := auth.WithPrincipal(context.Background(), auth.Principal{
		Name:        "reader",
		Permissions: []string{auth.PermissionContentRead},
	})

	tests := []struct {
		name string
		ctx  context.Context
		call func(ctx context.Context) error
	}{
		{"draft without principal", context.Background(), func(ctx context.Context) error {
			_, err := f.svc.GetOrCreateDraft(ctx, hero.ID)
			return err
		}},
		{"save as reader", reader, func(ctx context.Context) error {
			_, err := f.svc.SaveDraft(ctx, hero.ID, DraftInput{LayoutJSON: json.RawMessage(`{}`)})
			return err
		}},
		{"publish as reader", reader, func(ctx context.Context) error {
			_, err := f.svc.PublishAll(ctx)
			return err
		}},
		{"revert as reader", reader, func(ctx context.Context) error {
			_, err := f.svc.RevertToVersion(ctx, hero.PublishedVersionID.String)
			return err
		}},
		{"backup as reader", reader, func(ctx context.Context) error {
			_, err := f.svc.CreateBackup(ctx, "x")
			return err
		}},
		{"delete section as reader", reader, func(ctx context.Context) error {
			return f.svc.DeleteSection(ctx, hero.ID)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call(tt.ctx)
			assert.ErrorIs(t, err, ErrUnauthorized)
			assert.Equal(t, CodeUnauthorized, Code(err))
		})
	}

	after := f.section(t, "hero")
	assert.Equal(t, hero.PublishedVersionID, after.PublishedVersionID)
	assert.False(t, after.DraftVersionID.Valid)
	assert.Zero(t, f.countStatus(t, hero.ID, store.StatusDraft))
	assert.Zero(t, f.countStatus(t, hero.ID, store.StatusArchived))
	backups, err := f.store.ListBackups(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, backups)
	assert.Zero(t, f.gateway.count())
}

func TestSections_CreateReorderVisibility(t *testing.T) {
	f := seeded(t)
	ctx := editorCtx()

	faq, err := f.svc.CreateSection(ctx, CreateSectionInput{Title: "Часто задаваемые вопросы"})
	require.NoError(t, err)
	assert.Equal(t, "chasto-zadavaemye-voprosy", faq.Slug)
	assert.Equal(t, int64(4), faq.SortOrder)
	assert.True(t, faq.IsEnabled)

	_, err = f.svc.CreateSection(ctx, CreateSectionInput{Title: "Hero"})
	assert.ErrorIs(t, err, ErrConflict)
	_, err = f.svc.CreateSection(ctx, CreateSectionInput{Title: "x", Slug: "Bad Slug"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	sections, err := f.svc.ReorderSections(ctx, []string{faq.ID})
	require.NoError(t, err)
	assert.Equal(t, faq.ID, sections[0].ID)
	assert.Equal(t, "hero", sections[1].Slug)

	_, err = f.svc.ReorderSections(ctx, []string{faq.ID, faq.ID})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.svc.ReorderSections(ctx, []string{"missing"})
	assert.ErrorIs(t, err, ErrNotFound)

	hidden, err := f.svc.SetSectionEnabled(ctx, faq.ID, false)
	require.NoError(t, err)
	assert.False(t, hidden.IsEnabled)
	_, err = f.svc.SetSectionEnabled(ctx, "missing", false)
	assert.ErrorIs(t, err, ErrNotFound)

	var reasons []string
	for _, c := range f.gateway.calls {
		reasons = append(reasons, c.reason)
	}
	assert.Equal(t, []string{"section created", "sections reordered", "section visibility"}, reasons)
}

func TestDeleteSection_OnlySection(t *testing.T) {
	f := newFixture(t, testutil.TestStore(t), Options{})
	ctx := editorCtx()

	only, err := f.svc.CreateSection(ctx, CreateSectionInput{Title: "Only"})
	require.NoError(t, err)
	assert.ErrorIs(t, f.svc.DeleteSection(ctx, only.ID), ErrConflict)

	second, err := f.svc.CreateSection(ctx, CreateSectionInput{Title: "Second"})
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteSection(ctx, second.ID))
	assert.ErrorIs(t, f.svc.DeleteSection(ctx, second.ID), ErrNotFound)
}

func TestInvalidationFailureIsRecorded(t *testing.T) {
	f := seeded(t)
	f.gateway.err = errors.New("cache down")
	ctx := editorCtx()

	_, err := f.svc.GetOrCreateDraft(ctx, f.section(t, "hero").ID)
	require.NoError(t, err)
	res, err := f.svc.PublishAll(ctx)
	require.NoError(t, err, "committed promotions are not undone")
	assert.Equal(t, 1, res.PublishedCount)

	events, err := f.store.ListEvents(context.Background(), store.ListEventsParams{
		Category: store.EventCategoryCache,
		Limit:    10,
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, store.EventLevelError, events[0].Level)
	assert.Contains(t, events[0].Metadata, "cache down")
}

func TestCodeAndClassify(t *testing.T) {
	upstream := classify("op", errors.New("disk full"))
	var ue *UpstreamError
	require.ErrorAs(t, upstream, &ue)
	assert.Equal(t, "op", ue.Op)

	tests := []struct {
		err  error
		want string
	}{
		{ErrNotFound, CodeNotFound},
		{classify("op", ErrConflict), CodeConflict},
		{missing(sql.ErrNoRows, "section", "x"), CodeNotFound},
		{ErrDataIntegrity, CodeDataIntegrity},
		{ErrInvalidInput, CodeInvalidInput},
		{upstream, CodeUpstreamFailure},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Code(tt.err), "Code(%v)", tt.err)
	}
}
