package dashboard

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"gamemarket/internal/config"
	"gamemarket/internal/source/steam"
)

// Response source markers.
const (
	SourceLive  = "live"
	SourceCache = "cache"
	SourceMock  = "mock"
)

// envelope is the shape of every JSON API response.
type envelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Count     *int   `json:"count,omitempty"`
	Error     string `json:"error,omitempty"`
	Source    string `json:"source"`
	Timestamp string `json:"timestamp"`
}

// GenreSource answers the genre distribution chart from the document store.
type GenreSource interface {
	LatestCollection(ctx context.Context, source string) (string, error)
	GenreDistribution(ctx context.Context, collection string, limit int) (map[string]int, error)
}

// API serves the dashboard JSON endpoints. Every query goes through the
// cache; a failed query falls back to the fixed mock dataset with HTTP 200
// and source "mock".
type API struct {
	sql    *SQLStore
	docs   GenreSource
	cache  *Cache
	cfg    config.DashboardConfig
	logger *slog.Logger
}

func NewAPI(sqlStore *SQLStore, docs GenreSource, cache *Cache, cfg config.DashboardConfig, logger *slog.Logger) *API {
	return &API{
		sql:    sqlStore,
		docs:   docs,
		cache:  cache,
		cfg:    cfg,
		logger: logger,
	}
}

func (a *API) HandleSummary(e echo.Context) error {
	return a.respond(e, Key("summary"), TTLSummary,
		func(ctx context.Context) (any, int, error) {
			sum, err := a.sql.Summary(ctx)
			return sum, -1, err
		},
		func() (any, int) { return mockSummary(), -1 },
	)
}

func (a *API) HandleLatestGames(e echo.Context) error {
	limit := a.clampLimit(e.QueryParam("limit"))
	rankType := e.QueryParam("rank_type")

	return a.respond(e, Key("latest", rankType, strconv.Itoa(limit)), TTLRankings,
		func(ctx context.Context) (any, int, error) {
			items, err := a.sql.LatestGames(ctx, rankType, limit)
			return items, len(items), err
		},
		func() (any, int) {
			items := mockGames()
			if len(items) > limit {
				items = items[:limit]
			}
			return items, len(items)
		},
	)
}

func (a *API) HandlePriceDistribution(e echo.Context) error {
	return a.respond(e, Key("chart", "price"), TTLCharts,
		func(ctx context.Context) (any, int, error) {
			buckets, err := a.sql.PriceDistribution(ctx)
			return buckets, len(buckets), err
		},
		func() (any, int) {
			buckets := mockPriceDistribution()
			return buckets, len(buckets)
		},
	)
}

func (a *API) HandleGenreDistribution(e echo.Context) error {
	sourceID := e.QueryParam("source")
	if sourceID == "" {
		sourceID = steam.TopSellersID
	}

	return a.respond(e, Key("chart", "genre", sourceID), TTLCharts,
		func(ctx context.Context) (any, int, error) {
			coll, err := a.docs.LatestCollection(ctx, sourceID)
			if err != nil {
				return nil, 0, err
			}
			if coll == "" {
				return nil, 0, ErrNoData
			}
			dist, err := a.docs.GenreDistribution(ctx, coll, 20)
			return dist, len(dist), err
		},
		func() (any, int) {
			dist := mockGenreDistribution()
			return dist, len(dist)
		},
	)
}

func (a *API) HandleDiscountAnalysis(e echo.Context) error {
	return a.respond(e, Key("chart", "discount"), TTLCharts,
		func(ctx context.Context) (any, int, error) {
			buckets, err := a.sql.DiscountAnalysis(ctx)
			return buckets, len(buckets), err
		},
		func() (any, int) {
			buckets := mockDiscountAnalysis()
			return buckets, len(buckets)
		},
	)
}

func (a *API) HandleTrending(e echo.Context) error {
	days := a.clampDays(e.QueryParam("days"))

	return a.respond(e, Key("chart", "trending", strconv.Itoa(days)), TTLCharts,
		func(ctx context.Context) (any, int, error) {
			points, err := a.sql.Trending(ctx, days)
			return points, len(points), err
		},
		func() (any, int) {
			points := mockTrending()
			return points, len(points)
		},
	)
}

func (a *API) HandleTables(e echo.Context) error {
	return a.respond(e, Key("tables"), TTLSummary,
		func(ctx context.Context) (any, int, error) {
			infos, err := a.sql.Tables(ctx)
			return infos, len(infos), err
		},
		func() (any, int) { return []TableInfo{}, 0 },
	)
}

func (a *API) HandleCacheClear(e echo.Context) error {
	pattern := e.QueryParam("pattern")
	if pattern == "" {
		pattern = keyPrefix + ":*"
	} else if !strings.HasPrefix(pattern, keyPrefix+":") {
		pattern = keyPrefix + ":" + pattern
	}

	deleted, err := a.cache.DeletePattern(e.Request().Context(), pattern)
	if err != nil {
		a.logger.Error("cache clear failed", "pattern", pattern, "error", err)
		return e.JSON(http.StatusInternalServerError, envelope{
			Error:     err.Error(),
			Source:    SourceLive,
			Timestamp: now(),
		})
	}

	return e.JSON(http.StatusOK, envelope{
		Success:   true,
		Data:      map[string]any{"pattern": pattern, "deleted": deleted},
		Source:    SourceLive,
		Timestamp: now(),
	})
}

// respond serves a cached payload when fresh, otherwise runs the query,
// caches the marshaled result and returns it. Query errors are logged and
// answered from the mock dataset.
func (a *API) respond(e echo.Context, key string, ttl time.Duration,
	query func(ctx context.Context) (any, int, error),
	mock func() (any, int),
) error {
	ctx := e.Request().Context()

	if cached, ok := a.cache.Get(ctx, key); ok {
		var payload cachedPayload
		if err := json.Unmarshal(cached, &payload); err == nil {
			return e.JSON(http.StatusOK, envelope{
				Success:   true,
				Data:      payload.Data,
				Count:     payload.Count,
				Source:    SourceCache,
				Timestamp: now(),
			})
		}
	}

	data, count, err := query(ctx)
	if err != nil {
		a.logger.Warn("query failed, serving mock data", "key", key, "error", err)
		data, count = mock()
		return e.JSON(http.StatusOK, envelope{
			Success:   true,
			Data:      data,
			Count:     optCount(count),
			Source:    SourceMock,
			Timestamp: now(),
		})
	}

	if raw, err := json.Marshal(data); err == nil {
		if encoded, err := json.Marshal(cachedPayload{Data: raw, Count: optCount(count)}); err == nil {
			a.cache.Set(ctx, key, encoded, ttl)
		}
	}

	return e.JSON(http.StatusOK, envelope{
		Success:   true,
		Data:      data,
		Count:     optCount(count),
		Source:    SourceLive,
		Timestamp: now(),
	})
}

type cachedPayload struct {
	Data  json.RawMessage `json:"data"`
	Count *int            `json:"count,omitempty"`
}

func (a *API) clampLimit(raw string) int {
	limit := 50
	if raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > a.cfg.MaxItemsPerPage {
		limit = a.cfg.MaxItemsPerPage
	}
	return limit
}

func (a *API) clampDays(raw string) int {
	days := 7
	if raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			days = n
		}
	}
	if days > a.cfg.MaxTrendDays {
		days = a.cfg.MaxTrendDays
	}
	return days
}

func optCount(n int) *int {
	if n < 0 {
		return nil
	}
	return &n
}

func now() string {
	return time.Now().Format(time.RFC3339)
}
