package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/rss-harvest/app/content"
	"github.com/lysyi3m/rss-harvest/app/database"
	"github.com/lysyi3m/rss-harvest/app/feed"
	"github.com/lysyi3m/rss-harvest/app/metrics"
	"github.com/lysyi3m/rss-harvest/app/tasks"
)

const testKey = "secret"

type fakeSources struct {
	sources []database.Source
	stats   database.Stats
	err     error
}

func (f *fakeSources) ListSources(_ context.Context, activeOnly bool) ([]database.Source, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []database.Source
	for _, s := range f.sources {
		if activeOnly && !s.IsActive {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeSources) GetSource(_ context.Context, id int64) (*database.Source, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, s := range f.sources {
		if s.ID == id {
			s := s
			return &s, nil
		}
	}
	return nil, nil
}

func (f *fakeSources) GetStats(context.Context) (database.Stats, error) {
	return f.stats, f.err
}

type fakeArticles struct {
	sourceID int64
	limit    int
	offset   int
	articles []database.Article
}

func (f *fakeArticles) GetArticles(_ context.Context, sourceID int64, limit, offset int) ([]database.Article, error) {
	f.sourceID, f.limit, f.offset = sourceID, limit, offset
	return f.articles, nil
}

type fakeRefresher struct {
	articles []database.Article
	err      error
	calls    []string
}

func (f *fakeRefresher) RefreshSource(_ context.Context, source database.Source) ([]database.Article, error) {
	f.calls = append(f.calls, source.Name)
	return f.articles, f.err
}

type fakeScheduler struct {
	result tasks.RefreshResult
	err    error
	ctx    context.Context
}

func (f *fakeScheduler) Start() {}
func (f *fakeScheduler) Stop()  {}
func (f *fakeScheduler) RunNow(ctx context.Context) (tasks.RefreshResult, error) {
	f.ctx = ctx
	return f.result, f.err
}

type fixture struct {
	sources   *fakeSources
	articles  *fakeArticles
	refresher *fakeRefresher
	scheduler *fakeScheduler
	engine    *gin.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &fixture{
		sources: &fakeSources{
			sources: []database.Source{
				{ID: 1, Name: "Tech", URL: "https://tech.example.com/rss", ContentMode: content.ModeImageText, IsActive: true},
				{ID: 2, Name: "Old", URL: "https://old.example.com/rss", ContentMode: content.ModeText},
			},
			stats: database.Stats{Sources: 2, ActiveSources: 1, Articles: 7, Unread: 3},
		},
		articles: &fakeArticles{
			articles: []database.Article{{
				ID: 10, SourceID: 1, SourceName: "Tech", Title: "Hello",
				URL: "https://tech.example.com/hello", PublishedAt: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
			}},
		},
		refresher: &fakeRefresher{},
		scheduler: &fakeScheduler{},
	}

	handler := NewHandler(f.sources, f.articles, f.refresher, f.scheduler, "direct", "test")
	f.engine = NewServer(handler, nil, testKey)
	gin.SetMode(gin.TestMode)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, authorized bool) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)
	if authorized {
		req.Header.Set("X-API-Key", testKey)
	}
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)

	var body map[string]interface{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealthAndStats(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, http.MethodGet, "/health", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "direct", body["transport"])
	assert.EqualValues(t, 1, body["active_sources"])

	rec, body = f.do(t, http.MethodGet, "/stats", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 7, body["articles"])
	assert.EqualValues(t, 3, body["unread"])
}

func TestHealthDegradedOnDatabaseError(t *testing.T) {
	f := newFixture(t)
	f.sources.err = errors.New("disk gone")

	rec, body := f.do(t, http.MethodGet, "/health", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "degraded", body["status"])

	rec, _ = f.do(t, http.MethodGet, "/stats", false)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAuthMiddleware(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, http.MethodGet, "/api/sources", false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "API key required", body["error"])

	req := httptest.NewRequest(http.MethodGet, "/api/sources", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/sources", nil)
	req.Header.Set("Authorization", "Bearer "+testKey)
	rec = httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIDisabledWithoutKey(t *testing.T) {
	f := newFixture(t)
	handler := NewHandler(f.sources, f.articles, f.refresher, f.scheduler, "direct", "test")
	engine := NewServer(handler, nil, "")

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sources", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPIListSources(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, http.MethodGet, "/api/sources", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["total"])

	_, body = f.do(t, http.MethodGet, "/api/sources?active=true", true)
	sources := body["sources"].([]interface{})
	require.Len(t, sources, 1)
	first := sources[0].(map[string]interface{})
	assert.Equal(t, "Tech", first["name"])
	assert.Equal(t, "image_text", first["content_mode"])
}

func TestAPIGetArticles(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, http.MethodGet, "/api/sources/1/articles?limit=5&offset=10", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), f.articles.sourceID)
	assert.Equal(t, 5, f.articles.limit)
	assert.Equal(t, 10, f.articles.offset)

	articles := body["articles"].([]interface{})
	require.Len(t, articles, 1)
	article := articles[0].(map[string]interface{})
	assert.Equal(t, "Hello", article["title"])
	assert.Equal(t, []interface{}{}, article["tags"])

	_, _ = f.do(t, http.MethodGet, "/api/sources/1/articles?limit=100000", true)
	assert.Equal(t, defaultPageSize, f.articles.limit)
}

func TestAPIGetArticlesBadSource(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.do(t, http.MethodGet, "/api/sources/abc/articles", true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/sources/99/articles", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPIRefreshSource(t *testing.T) {
	f := newFixture(t)
	f.refresher.articles = []database.Article{{Title: "a"}, {Title: "b"}}

	rec, body := f.do(t, http.MethodPost, "/api/sources/1/refresh", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["new_articles"])
	assert.Equal(t, []string{"Tech"}, f.refresher.calls)

	f.refresher.err = errors.New("upstream 503")
	rec, body = f.do(t, http.MethodPost, "/api/sources/1/refresh", true)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "upstream 503", body["detail"])
}

func TestAPIRefreshAll(t *testing.T) {
	f := newFixture(t)
	f.scheduler.result = tasks.RefreshResult{RunID: "run-1", SuccessCount: 4, FailedCount: 1, TotalNewArticles: 12}

	rec, body := f.do(t, http.MethodPost, "/api/refresh", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "run-1", body["run_id"])
	assert.EqualValues(t, 4, body["success_count"])
	assert.EqualValues(t, 12, body["total_new_articles"])

	f.scheduler.err = tasks.ErrRefreshRunning
	rec, _ = f.do(t, http.MethodPost, "/api/refresh", true)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAPIRefreshAll_SurvivesClientDisconnect(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/refresh", nil).WithContext(ctx)
	req.Header.Set("X-API-Key", testKey)
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, f.scheduler.ctx)
	assert.NoError(t, f.scheduler.ctx.Err())
	assert.Nil(t, f.scheduler.ctx.Done())
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.do(t, http.MethodOptions, "/api/sources", false)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.do(t, http.MethodGet, "/metrics", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "harvest_refresh_runs_total")
}

func TestRelayRequestsCounted(t *testing.T) {
	gin.SetMode(gin.TestMode)
	relay := NewRelay(nil, feed.NewParser(), feed.NewGenerator("test"), RelayOptions{PublicURL: publicURL})
	handler := NewHandler(&fakeSources{}, &fakeArticles{}, &fakeRefresher{}, &fakeScheduler{}, "direct", "test")
	engine := NewServer(handler, relay, "")
	gin.SetMode(gin.TestMode)

	counter := metrics.RelayRequestsTotal.WithLabelValues(RawRelayPath, "400")
	before := promtest.ToFloat64(counter)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, RawRelayPath, nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, before+1, promtest.ToFloat64(counter))
}
