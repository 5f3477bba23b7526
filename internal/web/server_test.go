package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sassh/portal/internal/search"
	"github.com/sassh/portal/internal/storage"
	"github.com/sassh/portal/internal/sync"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fakeSyncer struct {
	stats    *sync.Stats
	err      error
	calls    int
	deadline bool
	ctxErr   error
}

func (f *fakeSyncer) Sync(ctx context.Context) (*sync.Stats, error) {
	f.calls++
	_, f.deadline = ctx.Deadline()
	f.ctxErr = ctx.Err()
	return f.stats, f.err
}

type fakeCatalog struct {
	categories []*storage.CategorySummary
	articles   []*storage.Article
	filter     storage.ArticleFilter
}

func (f *fakeCatalog) ListCategories(context.Context, bool) ([]*storage.CategorySummary, error) {
	return f.categories, nil
}

func (f *fakeCatalog) ListArticles(_ context.Context, filter storage.ArticleFilter) ([]*storage.Article, error) {
	f.filter = filter
	return f.articles, nil
}

func (f *fakeCatalog) GetArticle(_ context.Context, id string) (*storage.Article, error) {
	for _, a := range f.articles {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, nil
}

func (f *fakeCatalog) CountArticles(context.Context) (int, error) {
	return len(f.articles), nil
}

type fakeSearcher struct {
	query, category string
	limit           int
}

func (f *fakeSearcher) Search(queryStr, categoryID string, limit int) ([]*search.SearchResult, error) {
	f.query, f.category, f.limit = queryStr, categoryID, limit
	return []*search.SearchResult{{ID: "a1", Title: "Flexor Tendon Repair"}}, nil
}

func (f *fakeSearcher) Count() (uint64, error) { return 1, nil }

func newTestServer(syncer Syncer, catalog Catalog, opts Options) http.Handler {
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	if opts.CronSecret == "" {
		opts.CronSecret = "cron-secret"
	}
	if opts.SyncAPISecret == "" {
		opts.SyncAPISecret = "api-secret"
	}
	return NewServer(syncer, catalog, &fakeSearcher{}, opts).Handler()
}

func do(t *testing.T, h http.Handler, method, target string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestSyncRequiresAuthorization(t *testing.T) {
	t.Parallel()

	syncer := &fakeSyncer{stats: &sync.Stats{Errors: []sync.ItemError{}}}
	h := newTestServer(syncer, &fakeCatalog{}, Options{})

	cases := map[string]map[string]string{
		"no headers":     nil,
		"wrong cron":     {"X-Cron-Secret": "nope"},
		"wrong bearer":   {"Authorization": "Bearer nope"},
		"bearer as cron": {"X-Cron-Secret": "api-secret"},
		"cron as bearer": {"Authorization": "Bearer cron-secret"},
		"missing scheme": {"Authorization": "api-secret"},
		"empty bearer":   {"Authorization": "Bearer "},
	}
	for name, headers := range cases {
		rec := do(t, h, http.MethodPost, "/api/sync/dropbox", headers)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", name, rec.Code)
		}
		var body map[string]string
		decode(t, rec, &body)
		if body["error"] != "Unauthorized" {
			t.Fatalf("%s: unexpected body %v", name, body)
		}
	}
	if syncer.calls != 0 {
		t.Fatalf("unauthorized requests must not sync, got %d calls", syncer.calls)
	}
}

func TestSyncUnsetSecretsNeverMatch(t *testing.T) {
	t.Parallel()

	syncer := &fakeSyncer{stats: &sync.Stats{}}
	h := NewServer(syncer, &fakeCatalog{}, &fakeSearcher{}, Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}).Handler()

	rec := do(t, h, http.MethodGet, "/api/sync/dropbox", map[string]string{"X-Cron-Secret": "", "Authorization": "Bearer "})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestSyncSuccess(t *testing.T) {
	t.Parallel()

	syncer := &fakeSyncer{stats: &sync.Stats{
		Created: 2,
		Skipped: 5,
		Errors:  []sync.ItemError{{Folder: "Scaphoid", File: "Bad.pdf", Error: "not found"}},
	}}
	h := newTestServer(syncer, &fakeCatalog{}, Options{SyncTimeout: time.Minute})

	for _, req := range []struct {
		method  string
		headers map[string]string
	}{
		{http.MethodGet, map[string]string{"X-Cron-Secret": "cron-secret"}},
		{http.MethodPost, map[string]string{"Authorization": "Bearer api-secret"}},
	} {
		rec := do(t, h, req.method, "/api/sync/dropbox", req.headers)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d: %s", req.method, rec.Code, rec.Body.String())
		}

		var body struct {
			OK      bool             `json:"ok"`
			Created int              `json:"created"`
			Skipped int              `json:"skipped"`
			Errors  []sync.ItemError `json:"errors"`
		}
		decode(t, rec, &body)
		if !body.OK || body.Created != 2 || body.Skipped != 5 || len(body.Errors) != 1 {
			t.Fatalf("%s: unexpected body %+v", req.method, body)
		}
		if body.Errors[0].File != "Bad.pdf" {
			t.Fatalf("%s: unexpected error entry %+v", req.method, body.Errors[0])
		}
	}
	if syncer.calls != 2 || !syncer.deadline {
		t.Fatalf("expected two bounded runs, got calls=%d deadline=%v", syncer.calls, syncer.deadline)
	}
}

func TestSyncOutlivesClientDisconnect(t *testing.T) {
	t.Parallel()

	syncer := &fakeSyncer{stats: &sync.Stats{}}
	h := newTestServer(syncer, &fakeCatalog{}, Options{SyncTimeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/sync/dropbox", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer api-secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if syncer.calls != 1 {
		t.Fatalf("expected one run, got %d", syncer.calls)
	}
	if syncer.ctxErr != nil {
		t.Fatalf("sync context ended with the request: %v", syncer.ctxErr)
	}
	if !syncer.deadline {
		t.Fatal("expected the run to keep its timeout")
	}
}

func TestSyncFailures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		code int
	}{
		{sync.ErrSyncInProgress, http.StatusConflict},
		{sync.ErrSyncBotMissing, http.StatusInternalServerError},
		{errors.New("list category folders: boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		h := newTestServer(&fakeSyncer{err: tc.err}, &fakeCatalog{}, Options{})
		rec := do(t, h, http.MethodPost, "/api/sync/dropbox", map[string]string{"Authorization": "Bearer api-secret"})
		if rec.Code != tc.code {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.code, rec.Code)
		}
		var body map[string]string
		decode(t, rec, &body)
		if body["error"] != tc.err.Error() {
			t.Fatalf("%v: unexpected body %v", tc.err, body)
		}
	}
}

func TestCatalogRoutes(t *testing.T) {
	t.Parallel()

	catalog := &fakeCatalog{
		categories: []*storage.CategorySummary{
			{Category: storage.Category{ID: "c1", Name: "Tendon Repairs", Order: 1}, ArticleCount: 1},
		},
		articles: []*storage.Article{
			{ID: "a1", Title: "Flexor Tendon Repair", CategoryID: "c1", Published: true},
			{ID: "a2", Title: "Hidden", CategoryID: "c1", Published: false},
		},
	}
	h := newTestServer(&fakeSyncer{}, catalog, Options{})

	rec := do(t, h, http.MethodGet, "/api/categories", nil)
	var categories []storage.CategorySummary
	decode(t, rec, &categories)
	if rec.Code != http.StatusOK || len(categories) != 1 || categories[0].ArticleCount != 1 {
		t.Fatalf("unexpected categories: %d %+v", rec.Code, categories)
	}

	rec = do(t, h, http.MethodGet, "/api/articles?category=c1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if catalog.filter.CategoryID != "c1" || !catalog.filter.PublishedOnly {
		t.Fatalf("unexpected filter: %+v", catalog.filter)
	}

	rec = do(t, h, http.MethodGet, "/api/articles/a1", nil)
	var article storage.Article
	decode(t, rec, &article)
	if rec.Code != http.StatusOK || article.Title != "Flexor Tendon Repair" {
		t.Fatalf("unexpected article: %d %+v", rec.Code, article)
	}

	for _, id := range []string{"a2", "missing"} {
		if rec := do(t, h, http.MethodGet, "/api/articles/"+id, nil); rec.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", id, rec.Code)
		}
	}
}

func TestEmptyListsAreArrays(t *testing.T) {
	t.Parallel()

	h := newTestServer(&fakeSyncer{}, &fakeCatalog{}, Options{})
	for _, target := range []string{"/api/categories", "/api/articles"} {
		rec := do(t, h, http.MethodGet, target, nil)
		if rec.Code != http.StatusOK || rec.Body.String() != "[]" {
			t.Fatalf("%s: expected empty array, got %d %q", target, rec.Code, rec.Body.String())
		}
	}
}

func TestSearchRoute(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{}
	h := NewServer(&fakeSyncer{}, &fakeCatalog{}, searcher, Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}).Handler()

	if rec := do(t, h, http.MethodGet, "/api/search", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without query, got %d", rec.Code)
	}

	rec := do(t, h, http.MethodGet, "/api/search?q=flexor&limit=500&category=c1", nil)
	var resp SearchResponse
	decode(t, rec, &resp)
	if rec.Code != http.StatusOK || resp.Count != 1 || resp.Query != "flexor" {
		t.Fatalf("unexpected response: %d %+v", rec.Code, resp)
	}
	if searcher.limit != 20 || searcher.category != "c1" {
		t.Fatalf("expected default limit and category filter, got %d %q", searcher.limit, searcher.category)
	}
}

func TestServesLocalFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "articles", "sync", "Scaphoid"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "articles", "sync", "Scaphoid", "A.pdf"), []byte("%PDF"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	h := newTestServer(&fakeSyncer{}, &fakeCatalog{}, Options{FilesDir: dir})
	rec := do(t, h, http.MethodGet, "/files/articles/sync/Scaphoid/A.pdf", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "%PDF" {
		t.Fatalf("unexpected file response: %d %q", rec.Code, rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	h := newTestServer(&fakeSyncer{}, &fakeCatalog{articles: []*storage.Article{{ID: "a1"}}}, Options{})
	rec := do(t, h, http.MethodGet, "/health", nil)

	var body map[string]interface{}
	decode(t, rec, &body)
	if rec.Code != http.StatusOK || body["status"] != "ok" || body["articles_in_db"] != float64(1) {
		t.Fatalf("unexpected health: %d %v", rec.Code, body)
	}
}
