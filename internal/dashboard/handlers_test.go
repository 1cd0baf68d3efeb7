package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamemarket/internal/config"
)

type failingGenres struct{}

func (failingGenres) LatestCollection(context.Context, string) (string, error) {
	return "", errors.New("mongo down")
}

func (failingGenres) GenreDistribution(context.Context, string, int) (map[string]int, error) {
	return nil, errors.New("mongo down")
}

// newTestAPI wires the API against an unreachable database and no cache, so
// every handler takes the mock fallback path.
func newTestAPI(t *testing.T, cfg config.DashboardConfig) *API {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := sqlx.Open("postgres", "host=127.0.0.1 port=1 sslmode=disable")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewAPI(
		NewSQLStore(db, logger),
		failingGenres{},
		NewCache(nil, logger),
		cfg,
		logger,
	)
}

func perform(t *testing.T, handler echo.HandlerFunc, target string) envelope {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()

	require.NoError(t, handler(e.NewContext(req, rec)))
	require.Equal(t, http.StatusOK, rec.Code)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func defaultCfg() config.DashboardConfig {
	return config.DashboardConfig{MaxItemsPerPage: 100, MaxTrendDays: 30}
}

func TestSummaryFallsBackToMock(t *testing.T) {
	api := newTestAPI(t, defaultCfg())

	env := perform(t, api.HandleSummary, "/api/stats/summary")

	assert.True(t, env.Success)
	assert.Equal(t, SourceMock, env.Source)
	assert.NotEmpty(t, env.Timestamp)
	assert.NotNil(t, env.Data)
}

func TestLatestGamesClampsLimit(t *testing.T) {
	cfg := defaultCfg()
	cfg.MaxItemsPerPage = 2
	api := newTestAPI(t, cfg)

	env := perform(t, api.HandleLatestGames, "/api/games/latest?limit=500")

	assert.Equal(t, SourceMock, env.Source)
	require.NotNil(t, env.Count)
	// the mock dataset has 3 entries; the clamp cuts it to MaxItemsPerPage
	assert.Equal(t, 2, *env.Count)
}

func TestLatestGamesInvalidLimitUsesDefault(t *testing.T) {
	api := newTestAPI(t, defaultCfg())

	env := perform(t, api.HandleLatestGames, "/api/games/latest?limit=banana")

	assert.True(t, env.Success)
	require.NotNil(t, env.Count)
	assert.Equal(t, 3, *env.Count)
}

func TestChartsServeMockOnFailure(t *testing.T) {
	api := newTestAPI(t, defaultCfg())

	for name, h := range map[string]echo.HandlerFunc{
		"price":    api.HandlePriceDistribution,
		"genre":    api.HandleGenreDistribution,
		"discount": api.HandleDiscountAnalysis,
		"trending": api.HandleTrending,
	} {
		env := perform(t, h, "/api/charts/"+name)
		assert.True(t, env.Success, name)
		assert.Equal(t, SourceMock, env.Source, name)
	}
}

// newCacheBackedAPI wires the API against an in-memory Redis, so tests can
// exercise the cache-hit path of respond.
func newCacheBackedAPI(t *testing.T) (*API, *miniredis.Miniredis) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return &API{
		cache:  NewCache(client, logger),
		cfg:    defaultCfg(),
		logger: logger,
	}, mr
}

// Two identical requests inside the TTL window must issue exactly one
// underlying store query; the second is answered from the cache.
func TestRespondServesRepeatQueryFromCache(t *testing.T) {
	api, mr := newCacheBackedAPI(t)

	queries := 0
	run := func() envelope {
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/api/charts/price-distribution", nil)
		rec := httptest.NewRecorder()

		err := api.respond(e.NewContext(req, rec), Key("chart", "price"), TTLCharts,
			func(context.Context) (any, int, error) {
				queries++
				return []Bucket{{Label: "0-50", Count: 7}}, 1, nil
			},
			func() (any, int) { return nil, 0 },
		)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, rec.Code)

		var env envelope
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
		return env
	}

	first := run()
	assert.Equal(t, SourceLive, first.Source)
	assert.Equal(t, 1, queries)

	second := run()
	assert.Equal(t, SourceCache, second.Source)
	assert.Equal(t, 1, queries)
	require.NotNil(t, second.Count)
	assert.Equal(t, 1, *second.Count)

	// the cached payload carries the query's data, not a re-marshaled shell
	items, ok := second.Data.([]any)
	require.True(t, ok)
	require.Len(t, items, 1)
	assert.Equal(t, "0-50", items[0].(map[string]any)["label"])

	// past the TTL the store is queried again
	mr.FastForward(TTLCharts + time.Second)
	third := run()
	assert.Equal(t, SourceLive, third.Source)
	assert.Equal(t, 2, queries)
}

func TestCacheClearDeletesMatchingKeys(t *testing.T) {
	api, _ := newCacheBackedAPI(t)
	ctx := context.Background()

	api.cache.Set(ctx, Key("summary"), []byte("{}"), TTLSummary)
	api.cache.Set(ctx, Key("chart", "price"), []byte("{}"), TTLCharts)

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/cache/clear?pattern=chart:*", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, api.HandleCacheClear(e.NewContext(req, rec)))
	require.Equal(t, http.StatusOK, rec.Code)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.True(t, env.Success)
	assert.Equal(t, float64(1), env.Data.(map[string]any)["deleted"])

	_, ok := api.cache.Get(ctx, Key("chart", "price"))
	assert.False(t, ok)
	_, ok = api.cache.Get(ctx, Key("summary"))
	assert.True(t, ok)
}

func TestCacheClearWithoutRedis(t *testing.T) {
	api := newTestAPI(t, defaultCfg())

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/cache/clear", nil)
	rec := httptest.NewRecorder()

	require.NoError(t, api.HandleCacheClear(e.NewContext(req, rec)))
	require.Equal(t, http.StatusOK, rec.Code)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.True(t, env.Success)
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "dashboard:summary", Key("summary"))
	assert.Equal(t, "dashboard:latest:topsellers:50", Key("latest", "topsellers", "50"))
}

func TestCacheDegradesWithoutClient(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewCache(nil, logger)

	_, ok := c.Get(context.Background(), "dashboard:summary")
	assert.False(t, ok)

	c.Set(context.Background(), "dashboard:summary", []byte("{}"), TTLSummary)

	deleted, err := c.DeletePattern(context.Background(), "dashboard:*")
	require.NoError(t, err)
	assert.Zero(t, deleted)
}
