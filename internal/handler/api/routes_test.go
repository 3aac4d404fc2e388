// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegiv/pagecraft/internal/auth"
	"github.com/olegiv/pagecraft/internal/cache"
	"github.com/olegiv/pagecraft/internal/content"
	"github.com/olegiv/pagecraft/internal/scheduler"
	"github.com/olegiv/pagecraft/internal/staging"
	"github.com/olegiv/pagecraft/internal/store"
	"github.com/olegiv/pagecraft/internal/testutil"
)

type apiFixture struct {
	store    *store.Store
	handler  *Handler
	router   chi.Router
	adminKey string
	readKey  string
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	s := testutil.SeededStore(t)
	logger := testutil.TestLoggerSilent()
	manager := cache.NewManagerWithCache(
		cache.NewMemoryCache(cache.MemoryCacheOptions{DefaultTTL: time.Minute}), "memory", logger)
	t.Cleanup(func() { _ = manager.Close() })

	keys := auth.NewKeyring(s, logger)
	adminKey, _, err := keys.Create(context.Background(), "admin", auth.AllPermissions())
	require.NoError(t, err)
	readKey, _, err := keys.Create(context.Background(), "viewer", []string{auth.PermissionContentRead})
	require.NoError(t, err)

	svc := staging.New(s, auth.Rights{}, manager.Gateway, nil, logger, staging.Options{
		PublishConcurrency: 2,
		BackupUniqueNames:  true,
	})
	h := NewHandler(Config{
		Service: svc,
		Reader:  content.NewReader(s, manager.Gateway, time.Minute, logger),
		Store:   s,
		Cache:   manager,
		Logger:  logger,
		Version: "test",
	})

	r := chi.NewRouter()
	h.Routes(r, RouteConfig{Keys: keys, RateLimit: 1000, RateBurst: 1000})

	return &apiFixture{store: s, handler: h, router: r, adminKey: adminKey, readKey: readKey}
}

func (f *apiFixture) do(t *testing.T, method, path, key string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeData[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var resp struct {
		Data T     `json:"data"`
		Meta *Meta `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp.Data
}

func (f *apiFixture) sectionID(t *testing.T, slug string) string {
	t.Helper()
	section, err := f.store.GetSectionBySlug(context.Background(), slug)
	require.NoError(t, err)
	return section.ID
}

func TestAPI_Status(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/status", "", nil)
	assertStatusCode(t, w, http.StatusOK)

	status := decodeData[StatusResponse](t, w)
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, "test", status.Version)
}

func TestAPI_PublicSections(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/sections", "", nil)
	assertStatusCode(t, w, http.StatusOK)

	sections := decodeData[[]PublicSection](t, w)
	require.Len(t, sections, 4)
	assert.Equal(t, "hero", sections[0].Slug)
	assert.Equal(t, "mission", sections[1].Slug)
	assert.Contains(t, sections[1].HTML, "<strong>clear</strong>")
}

func TestAPI_AdminRequiresKey(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/admin/sections", "", nil)
	assertStatusCode(t, w, http.StatusUnauthorized)
	assertErrorResponse(t, w, "unauthorized")
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	w = f.do(t, http.MethodGet, "/api/v1/admin/sections", "pc_notarealkey000000000000000000000000000000", nil)
	assertStatusCode(t, w, http.StatusUnauthorized)
}

func TestAPI_ReadOnlyKey(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/admin/sections", f.readKey, nil)
	assertStatusCode(t, w, http.StatusOK)
	assert.Len(t, decodeData[[]content.SectionView](t, w), 4)

	w = f.do(t, http.MethodPost, "/api/v1/admin/publish", f.readKey, nil)
	assertStatusCode(t, w, http.StatusForbidden)
	assertErrorResponse(t, w, "forbidden")

	w = f.do(t, http.MethodPost, "/api/v1/admin/backups", f.readKey, CreateBackupRequest{Name: "nope"})
	assertStatusCode(t, w, http.StatusForbidden)
}

func TestAPI_DraftEditPublish(t *testing.T) {
	f := newAPIFixture(t)
	heroID := f.sectionID(t, "hero")

	// Prime the public cache.
	w := f.do(t, http.MethodGet, "/api/v1/sections", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/admin/sections/"+heroID+"/draft", f.adminKey, nil)
	assertStatusCode(t, w, http.StatusOK)
	draft := decodeData[content.VersionView](t, w)
	assert.Equal(t, store.StatusDraft, draft.Status)

	html := "<h1>Launch day</h1>"
	w = f.do(t, http.MethodPut, "/api/v1/admin/sections/"+heroID+"/draft", f.adminKey, SaveDraftRequest{
		LayoutJSON:       json.RawMessage(`{"heading":"Launch day"}`),
		ContentHTML:      &html,
		ExpectedRevision: draft.Revision,
	})
	assertStatusCode(t, w, http.StatusOK)
	saved := decodeData[content.VersionView](t, w)
	assert.Equal(t, draft.ID, saved.ID)
	assert.Equal(t, draft.Revision+1, saved.Revision)

	w = f.do(t, http.MethodGet, "/api/v1/admin/pending", f.adminKey, nil)
	pending := decodeData[[]content.SectionView](t, w)
	require.Len(t, pending, 1)
	assert.Equal(t, heroID, pending[0].ID)

	// Drafts never reach the public side.
	w = f.do(t, http.MethodGet, "/api/v1/sections", "", nil)
	assert.NotContains(t, w.Body.String(), "Launch day")

	w = f.do(t, http.MethodPost, "/api/v1/admin/publish", f.adminKey, nil)
	assertStatusCode(t, w, http.StatusOK)
	result := decodeData[staging.PublishResult](t, w)
	assert.Equal(t, 1, result.PublishedCount)
	assert.Empty(t, result.Failures)

	w = f.do(t, http.MethodGet, "/api/v1/sections", "", nil)
	assert.Contains(t, w.Body.String(), "Launch day")

	w = f.do(t, http.MethodPost, "/api/v1/admin/publish", f.adminKey, nil)
	assert.Equal(t, 0, decodeData[staging.PublishResult](t, w).PublishedCount)
}

func TestAPI_SaveDraftConflict(t *testing.T) {
	f := newAPIFixture(t)
	heroID := f.sectionID(t, "hero")
	path := "/api/v1/admin/sections/" + heroID + "/draft"

	w := f.do(t, http.MethodPost, path, f.adminKey, nil)
	draft := decodeData[content.VersionView](t, w)

	first := SaveDraftRequest{LayoutJSON: json.RawMessage(`{"v":1}`), ExpectedRevision: draft.Revision}
	assertStatusCode(t, f.do(t, http.MethodPut, path, f.adminKey, first), http.StatusOK)

	// A second editor still holding the old revision loses.
	w = f.do(t, http.MethodPut, path, f.adminKey, first)
	assertStatusCode(t, w, http.StatusConflict)
	assertErrorResponse(t, w, staging.CodeConflict)
}

func TestAPI_SaveDraftValidation(t *testing.T) {
	f := newAPIFixture(t)
	path := "/api/v1/admin/sections/" + f.sectionID(t, "hero") + "/draft"

	w := f.do(t, http.MethodPut, path, f.adminKey, "{not json")
	assertStatusCode(t, w, http.StatusBadRequest)
	assertErrorResponse(t, w, "bad_request")

	w = f.do(t, http.MethodPut, path, f.adminKey, `{"layout_json":{},"unknown":1}`)
	assertStatusCode(t, w, http.StatusBadRequest)

	w = f.do(t, http.MethodPut, path, f.adminKey, `{}`)
	assertStatusCode(t, w, http.StatusUnprocessableEntity)
	assertErrorResponse(t, w, staging.CodeInvalidInput)

	w = f.do(t, http.MethodPut, "/api/v1/admin/sections/missing/draft", f.adminKey, `{"layout_json":{}}`)
	assertStatusCode(t, w, http.StatusNotFound)
	assertErrorResponse(t, w, staging.CodeNotFound)
}

func TestAPI_BatchSaveDrafts(t *testing.T) {
	f := newAPIFixture(t)
	heroID := f.sectionID(t, "hero")
	missionID := f.sectionID(t, "mission")

	w := f.do(t, http.MethodPut, "/api/v1/admin/drafts", f.adminKey, BatchSaveRequest{Drafts: []BatchDraft{
		{SectionID: heroID, SaveDraftRequest: SaveDraftRequest{LayoutJSON: json.RawMessage(`{"a":1}`)}},
		{SectionID: "missing", SaveDraftRequest: SaveDraftRequest{LayoutJSON: json.RawMessage(`{}`)}},
		{SectionID: missionID, SaveDraftRequest: SaveDraftRequest{LayoutJSON: json.RawMessage(`{"markdown":"new"}`)}},
		{SectionID: heroID, SaveDraftRequest: SaveDraftRequest{LayoutJSON: json.RawMessage(`{"a":2}`)}},
	}})
	assertStatusCode(t, w, http.StatusOK)

	result := decodeData[BatchSaveResult](t, w)
	assert.Equal(t, 2, result.SavedCount)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "missing", result.Failures[0].ID)
	assert.Equal(t, staging.CodeNotFound, result.Failures[0].Code)

	// The later entry for the same section wins.
	require.Len(t, result.Saved, 2)
	assert.Equal(t, heroID, result.Saved[0].SectionID)
	assert.JSONEq(t, `{"a":2}`, string(result.Saved[0].LayoutJSON))

	w = f.do(t, http.MethodGet, "/api/v1/admin/pending", f.adminKey, nil)
	assert.Len(t, decodeData[[]content.SectionView](t, w), 2)

	w = f.do(t, http.MethodPut, "/api/v1/admin/drafts", f.adminKey, BatchSaveRequest{})
	assertStatusCode(t, w, http.StatusUnprocessableEntity)
}

func TestAPI_BatchSaveDraftsReportsUnsavedOnCancel(t *testing.T) {
	f := newAPIFixture(t)
	heroID := f.sectionID(t, "hero")
	missionID := f.sectionID(t, "mission")

	body, err := json.Marshal(BatchSaveRequest{Drafts: []BatchDraft{
		{SectionID: heroID, SaveDraftRequest: SaveDraftRequest{LayoutJSON: json.RawMessage(`{"a":1}`)}},
		{SectionID: missionID, SaveDraftRequest: SaveDraftRequest{LayoutJSON: json.RawMessage(`{"b":2}`)}},
	}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/drafts", bytes.NewReader(body)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.handler.SaveDrafts(w, req)
	assertStatusCode(t, w, http.StatusOK)

	result := decodeData[BatchSaveResult](t, w)
	assert.Zero(t, result.SavedCount)
	require.Len(t, result.Failures, 2)
	assert.Equal(t, heroID, result.Failures[0].ID)
	assert.Equal(t, missionID, result.Failures[1].ID)
	assert.Equal(t, staging.CodeUpstreamFailure, result.Failures[0].Code)

	hero, err := f.store.GetSectionBySlug(context.Background(), "hero")
	require.NoError(t, err)
	assert.False(t, hero.DraftVersionID.Valid, "nothing may be saved after cancellation")
}

func TestAPI_DiscardDraft(t *testing.T) {
	f := newAPIFixture(t)
	path := "/api/v1/admin/sections/" + f.sectionID(t, "hero") + "/draft"

	assertStatusCode(t, f.do(t, http.MethodPost, path, f.adminKey, nil), http.StatusOK)
	assertStatusCode(t, f.do(t, http.MethodDelete, path, f.adminKey, nil), http.StatusNoContent)
	assertStatusCode(t, f.do(t, http.MethodDelete, path, f.adminKey, nil), http.StatusNotFound)
}

func TestAPI_VersionsRevertDelete(t *testing.T) {
	f := newAPIFixture(t)
	heroID := f.sectionID(t, "hero")

	w := f.do(t, http.MethodPut, "/api/v1/admin/sections/"+heroID+"/draft", f.adminKey,
		SaveDraftRequest{LayoutJSON: json.RawMessage(`{"v":2}`)})
	require.Equal(t, http.StatusOK, w.Code)
	w = f.do(t, http.MethodPost, "/api/v1/admin/sections/"+heroID+"/publish", f.adminKey, nil)
	assertStatusCode(t, w, http.StatusOK)

	w = f.do(t, http.MethodGet, "/api/v1/admin/sections/"+heroID+"/versions", f.adminKey, nil)
	assertStatusCode(t, w, http.StatusOK)
	history := decodeData[[]content.VersionView](t, w)
	require.Len(t, history, 2)
	assert.Equal(t, store.StatusPublished, history[0].Status)
	assert.Equal(t, store.StatusArchived, history[1].Status)

	active, archived := history[0], history[1]

	w = f.do(t, http.MethodDelete, "/api/v1/admin/versions/"+active.ID, f.adminKey, nil)
	assertStatusCode(t, w, http.StatusConflict)

	w = f.do(t, http.MethodPost, "/api/v1/admin/versions/"+archived.ID+"/revert", f.adminKey, nil)
	assertStatusCode(t, w, http.StatusCreated)
	reverted := decodeData[content.VersionView](t, w)
	assert.NotEqual(t, archived.ID, reverted.ID)
	assert.JSONEq(t, string(archived.LayoutJSON), string(reverted.LayoutJSON))

	// The history cache was revalidated by the revert.
	w = f.do(t, http.MethodGet, "/api/v1/admin/sections/"+heroID+"/versions", f.adminKey, nil)
	assert.Len(t, decodeData[[]content.VersionView](t, w), 3)

	w = f.do(t, http.MethodDelete, "/api/v1/admin/versions/"+active.ID, f.adminKey, nil)
	assertStatusCode(t, w, http.StatusNoContent)

	w = f.do(t, http.MethodPost, "/api/v1/admin/versions/missing/revert", f.adminKey, nil)
	assertStatusCode(t, w, http.StatusNotFound)

	w = f.do(t, http.MethodGet, "/api/v1/admin/sections/missing/versions", f.adminKey, nil)
	assertStatusCode(t, w, http.StatusNotFound)
}

func TestAPI_SectionManagement(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/admin/sections", f.adminKey, staging.CreateSectionInput{
		Title:      "Pricing Plans",
		LayoutJSON: json.RawMessage(`{"markdown":"## Plans"}`),
	})
	assertStatusCode(t, w, http.StatusCreated)
	created := decodeData[content.SectionView](t, w)
	assert.Equal(t, "pricing-plans", created.Slug)
	assert.NotEmpty(t, created.PublishedVersionID)

	w = f.do(t, http.MethodPost, "/api/v1/admin/sections", f.adminKey, staging.CreateSectionInput{Title: "Pricing Plans"})
	assertStatusCode(t, w, http.StatusConflict)

	w = f.do(t, http.MethodPut, "/api/v1/admin/sections/order", f.adminKey, ReorderRequest{IDs: []string{created.ID}})
	assertStatusCode(t, w, http.StatusOK)
	ordered := decodeData[[]content.SectionView](t, w)
	require.Len(t, ordered, 5)
	assert.Equal(t, created.ID, ordered[0].ID)

	disabled := false
	w = f.do(t, http.MethodPatch, "/api/v1/admin/sections/"+created.ID, f.adminKey, UpdateSectionRequest{Enabled: &disabled})
	assertStatusCode(t, w, http.StatusOK)
	assert.False(t, decodeData[content.SectionView](t, w).IsEnabled)

	w = f.do(t, http.MethodGet, "/api/v1/sections", "", nil)
	assert.NotContains(t, w.Body.String(), `"pricing-plans"`)

	w = f.do(t, http.MethodPatch, "/api/v1/admin/sections/"+created.ID, f.adminKey, `{}`)
	assertStatusCode(t, w, http.StatusUnprocessableEntity)

	w = f.do(t, http.MethodDelete, "/api/v1/admin/sections/"+created.ID, f.adminKey, nil)
	assertStatusCode(t, w, http.StatusNoContent)

	w = f.do(t, http.MethodGet, "/api/v1/admin/sections/"+created.ID, f.adminKey, nil)
	assertStatusCode(t, w, http.StatusNotFound)
}

func TestAPI_Backups(t *testing.T) {
	f := newAPIFixture(t)
	heroID := f.sectionID(t, "hero")

	w := f.do(t, http.MethodPost, "/api/v1/admin/backups", f.adminKey, CreateBackupRequest{Name: "before-launch"})
	assertStatusCode(t, w, http.StatusCreated)
	backup := decodeData[store.Backup](t, w)
	assert.Len(t, backup.Entries, 4)

	w = f.do(t, http.MethodPost, "/api/v1/admin/backups", f.adminKey, CreateBackupRequest{Name: "before-launch"})
	assertStatusCode(t, w, http.StatusConflict)

	w = f.do(t, http.MethodPost, "/api/v1/admin/backups", f.adminKey, CreateBackupRequest{Name: "   "})
	assertStatusCode(t, w, http.StatusUnprocessableEntity)

	// Change the hero, then restore it.
	f.do(t, http.MethodPut, "/api/v1/admin/sections/"+heroID+"/draft", f.adminKey,
		SaveDraftRequest{LayoutJSON: json.RawMessage(`{"heading":"Changed"}`)})
	f.do(t, http.MethodPost, "/api/v1/admin/publish", f.adminKey, nil)

	w = f.do(t, http.MethodPost, "/api/v1/admin/backups/"+backup.ID+"/restore", f.adminKey, nil)
	assertStatusCode(t, w, http.StatusOK)
	restored := decodeData[staging.RestoreResult](t, w)
	assert.Equal(t, 4, restored.RestoredCount)
	assert.Empty(t, restored.Failures)

	w = f.do(t, http.MethodGet, "/api/v1/sections", "", nil)
	assert.NotContains(t, w.Body.String(), "Changed")

	w = f.do(t, http.MethodGet, "/api/v1/admin/backups", f.adminKey, nil)
	assertStatusCode(t, w, http.StatusOK)
	list := decodeData[[]store.BackupSummary](t, w)
	require.Len(t, list, 1)
	assert.Equal(t, 4, list[0].EntryCount)

	w = f.do(t, http.MethodGet, "/api/v1/admin/backups/"+backup.ID, f.adminKey, nil)
	assertStatusCode(t, w, http.StatusOK)

	assertStatusCode(t, f.do(t, http.MethodDelete, "/api/v1/admin/backups/"+backup.ID, f.adminKey, nil), http.StatusNoContent)
	assertStatusCode(t, f.do(t, http.MethodGet, "/api/v1/admin/backups/"+backup.ID, f.adminKey, nil), http.StatusNotFound)
	assertStatusCode(t, f.do(t, http.MethodPost, "/api/v1/admin/backups/"+backup.ID+"/restore", f.adminKey, nil), http.StatusNotFound)
}

func TestAPI_EventsAndCache(t *testing.T) {
	f := newAPIFixture(t)

	f.do(t, http.MethodPost, "/api/v1/admin/backups", f.adminKey, CreateBackupRequest{Name: "one"})
	f.do(t, http.MethodPost, "/api/v1/admin/backups", f.adminKey, CreateBackupRequest{Name: "two"})

	w := f.do(t, http.MethodGet, "/api/v1/admin/events?category=backup&per_page=1", f.readKey, nil)
	assertStatusCode(t, w, http.StatusOK)

	var resp struct {
		Data []store.Event `json:"data"`
		Meta Meta          `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, int64(2), resp.Meta.Total)
	assert.Equal(t, 2, resp.Meta.Pages)
	assert.True(t, strings.Contains(resp.Data[0].Metadata, "key:admin"), resp.Data[0].Metadata)

	w = f.do(t, http.MethodGet, "/api/v1/admin/cache", f.readKey, nil)
	assertStatusCode(t, w, http.StatusOK)
	info := decodeData[cache.Info](t, w)
	assert.Equal(t, "memory", info.Backend)
	assert.True(t, info.Healthy)
}

type fakeJobs struct {
	runs []string
	err  error
}

func (f *fakeJobs) List() []scheduler.JobInfo {
	return []scheduler.JobInfo{{Name: scheduler.JobAutoBackup, Schedule: "@daily"}}
}

func (f *fakeJobs) TriggerNow(_ context.Context, name string) error {
	if name != scheduler.JobAutoBackup {
		return fmt.Errorf("%w: %s", scheduler.ErrJobNotFound, name)
	}
	f.runs = append(f.runs, name)
	return f.err
}

func TestAPI_Jobs(t *testing.T) {
	jobs := &fakeJobs{}
	h := NewHandler(Config{Jobs: jobs, Logger: testutil.TestLoggerSilent()})
	r := chi.NewRouter()
	r.Get("/jobs", h.ListJobs)
	r.Post("/jobs/{name}/run", h.RunJob)

	serve := func(method, path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
		return w
	}

	w := serve(http.MethodGet, "/jobs")
	assertStatusCode(t, w, http.StatusOK)
	assert.Len(t, decodeData[[]scheduler.JobInfo](t, w), 1)

	assertStatusCode(t, serve(http.MethodPost, "/jobs/auto-backup/run"), http.StatusOK)
	assert.Equal(t, []string{scheduler.JobAutoBackup}, jobs.runs)

	assertStatusCode(t, serve(http.MethodPost, "/jobs/unknown/run"), http.StatusNotFound)

	jobs.err = fmt.Errorf("creating backup: %w", staging.ErrConflict)
	w = serve(http.MethodPost, "/jobs/auto-backup/run")
	assertStatusCode(t, w, http.StatusConflict)

	empty := NewHandler(Config{Logger: testutil.TestLoggerSilent()})
	w = httptest.NewRecorder()
	empty.ListJobs(w, httptest.NewRequest(http.MethodGet, "/jobs", nil))
	assert.Empty(t, decodeData[[]scheduler.JobInfo](t, w))
}
