package dashboard

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"gamemarket/internal/storage/postgres"
)

// ErrNoData is returned when no partition table exists yet.
var ErrNoData = errors.New("no game data available")

// Summary aggregates the newest partition.
type Summary struct {
	TotalGames      int      `db:"total_games" json:"total_games"`
	AvgPrice        *float64 `db:"avg_price" json:"avg_price"`
	MaxPrice        *float64 `db:"max_price" json:"max_price"`
	FreeGames       int      `db:"free_games" json:"free_games"`
	DiscountedGames int      `db:"discounted_games" json:"discounted_games"`
	LatestCrawlDate *string  `db:"latest_crawl_date" json:"latest_crawl_date"`
	Table           string   `db:"-" json:"table"`
}

// GameItem is one dashboard row.
type GameItem struct {
	AppID           *string  `db:"app_id" json:"app_id"`
	Name            string   `db:"name" json:"name"`
	Price           *float64 `db:"price" json:"price"`
	OriginalPrice   *float64 `db:"original_price" json:"original_price"`
	DiscountPercent *int     `db:"discount_percent" json:"discount_percent"`
	PositiveRate    *int     `db:"positive_rate" json:"positive_rate"`
	TotalReviews    *int     `db:"total_reviews" json:"total_reviews"`
	Developer       *string  `db:"developer" json:"developer"`
	Genres          *string  `db:"genres" json:"genres"`
	Rank            *int     `db:"rank" json:"rank"`
	RankType        *string  `db:"rank_type" json:"rank_type"`
	CrawlDate       string   `db:"crawl_date" json:"crawl_date"`
}

// Bucket is one labelled slice of a distribution chart.
type Bucket struct {
	Label string `db:"label" json:"label"`
	Count int    `db:"count" json:"count"`
}

// TrendPoint is one day of the trending chart.
type TrendPoint struct {
	CrawlDate string   `db:"crawl_date" json:"crawl_date"`
	Games     int      `db:"games" json:"games"`
	AvgPrice  *float64 `db:"avg_price" json:"avg_price"`
}

// TableInfo describes one weekly partition.
type TableInfo struct {
	Name string `db:"name" json:"name"`
	Rows int    `db:"rows" json:"rows"`
}

// SQLStore answers dashboard queries against the weekly partition tables.
type SQLStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

func NewSQLStore(db *sqlx.DB, logger *slog.Logger) *SQLStore {
	return &SQLStore{db: db, logger: logger}
}

const partitionPattern = `^` + postgres.Entity + `_\d{4}w\d{2}$`

// LatestPartition returns the newest weekly table. Partition names sort
// lexicographically in chronological order.
func (s *SQLStore) LatestPartition(ctx context.Context) (string, error) {
	var name string
	err := s.db.GetContext(ctx, &name,
		`SELECT tablename FROM pg_tables WHERE schemaname = 'public' AND tablename ~ $1 ORDER BY tablename DESC LIMIT 1`,
		partitionPattern,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoData
	}
	if err != nil {
		return "", fmt.Errorf("latest partition: %w", err)
	}
	return name, nil
}

func (s *SQLStore) existingPartitions(ctx context.Context) (map[string]bool, error) {
	var names []string
	err := s.db.SelectContext(ctx, &names,
		`SELECT tablename FROM pg_tables WHERE schemaname = 'public' AND tablename ~ $1`,
		partitionPattern,
	)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set, nil
}

func (s *SQLStore) Summary(ctx context.Context) (*Summary, error) {
	table, err := s.LatestPartition(ctx)
	if err != nil {
		return nil, err
	}

	var sum Summary
	query := fmt.Sprintf(`
		SELECT
			COUNT(*) AS total_games,
			ROUND(AVG(price), 2) AS avg_price,
			MAX(price) AS max_price,
			COUNT(*) FILTER (WHERE price = 0) AS free_games,
			COUNT(*) FILTER (WHERE discount_percent > 0) AS discounted_games,
			TO_CHAR(MAX(crawl_date), 'YYYY-MM-DD') AS latest_crawl_date
		FROM %s`, table)

	if err := s.db.GetContext(ctx, &sum, query); err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	sum.Table = table
	return &sum, nil
}

// LatestGames returns the newest crawl's rows ordered by rank. rankType
// filters to one ranking when non-empty.
func (s *SQLStore) LatestGames(ctx context.Context, rankType string, limit int) ([]GameItem, error) {
	table, err := s.LatestPartition(ctx)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT app_id, name, price, original_price, discount_percent,
		       positive_rate, total_reviews, developer, genres, rank, rank_type,
		       TO_CHAR(crawl_date, 'YYYY-MM-DD') AS crawl_date
		FROM %s
		WHERE crawl_date = (SELECT MAX(crawl_date) FROM %s)`, table, table)

	args := []any{}
	if rankType != "" {
		query += ` AND rank_type = $1`
		args = append(args, rankType)
	}
	query += fmt.Sprintf(` ORDER BY rank ASC NULLS LAST LIMIT %d`, limit)

	var items []GameItem
	if err := s.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("latest games: %w", err)
	}
	return items, nil
}

func (s *SQLStore) PriceDistribution(ctx context.Context) ([]Bucket, error) {
	table, err := s.LatestPartition(ctx)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT label, COUNT(*) AS count FROM (
			SELECT CASE
				WHEN price = 0 THEN '免费'
				WHEN price < 50 THEN '0-50'
				WHEN price < 100 THEN '50-100'
				WHEN price < 200 THEN '100-200'
				WHEN price < 500 THEN '200-500'
				ELSE '500+'
			END AS label,
			CASE
				WHEN price = 0 THEN 0
				WHEN price < 50 THEN 1
				WHEN price < 100 THEN 2
				WHEN price < 200 THEN 3
				WHEN price < 500 THEN 4
				ELSE 5
			END AS ord
			FROM %s WHERE price IS NOT NULL
		) b GROUP BY label, ord ORDER BY ord`, table)

	var buckets []Bucket
	if err := s.db.SelectContext(ctx, &buckets, query); err != nil {
		return nil, fmt.Errorf("price distribution: %w", err)
	}
	return buckets, nil
}

func (s *SQLStore) DiscountAnalysis(ctx context.Context) ([]Bucket, error) {
	table, err := s.LatestPartition(ctx)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT label, COUNT(*) AS count FROM (
			SELECT CASE
				WHEN discount_percent IS NULL OR discount_percent = 0 THEN '无折扣'
				WHEN discount_percent <= 25 THEN '1-25%%'
				WHEN discount_percent <= 50 THEN '26-50%%'
				WHEN discount_percent <= 75 THEN '51-75%%'
				ELSE '76-100%%'
			END AS label,
			CASE
				WHEN discount_percent IS NULL OR discount_percent = 0 THEN 0
				WHEN discount_percent <= 25 THEN 1
				WHEN discount_percent <= 50 THEN 2
				WHEN discount_percent <= 75 THEN 3
				ELSE 4
			END AS ord
			FROM %s
		) b GROUP BY label, ord ORDER BY ord`, table)

	var buckets []Bucket
	if err := s.db.SelectContext(ctx, &buckets, query); err != nil {
		return nil, fmt.Errorf("discount analysis: %w", err)
	}
	return buckets, nil
}

// Trending aggregates per-day counts over the last N days, unioning every
// weekly partition the window touches.
func (s *SQLStore) Trending(ctx context.Context, days int) ([]TrendPoint, error) {
	existing, err := s.existingPartitions(ctx)
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		return nil, ErrNoData
	}

	now := time.Now()
	since := now.AddDate(0, 0, -days)

	seen := map[string]bool{}
	var tables []string
	for t := since; !t.After(now); t = t.AddDate(0, 0, 1) {
		name := postgres.PartitionName(t)
		if existing[name] && !seen[name] {
			seen[name] = true
			tables = append(tables, name)
		}
	}
	if len(tables) == 0 {
		return nil, ErrNoData
	}

	var parts []string
	for _, table := range tables {
		parts = append(parts, fmt.Sprintf(
			`SELECT crawl_date, COUNT(*) AS games, AVG(price) AS avg_price FROM %s WHERE crawl_date >= $1 GROUP BY crawl_date`,
			table))
	}
	query := fmt.Sprintf(`
		SELECT TO_CHAR(crawl_date, 'YYYY-MM-DD') AS crawl_date,
		       SUM(games)::int AS games,
		       ROUND(AVG(avg_price), 2) AS avg_price
		FROM (%s) t
		GROUP BY crawl_date ORDER BY crawl_date`, strings.Join(parts, " UNION ALL "))

	var points []TrendPoint
	if err := s.db.SelectContext(ctx, &points, query, since.Format("2006-01-02")); err != nil {
		return nil, fmt.Errorf("trending: %w", err)
	}
	return points, nil
}

// Tables lists every weekly partition with its row count, newest first.
func (s *SQLStore) Tables(ctx context.Context) ([]TableInfo, error) {
	existing, err := s.existingPartitions(ctx)
	if err != nil {
		return nil, err
	}

	var names []string
	for name := range existing {
		names = append(names, name)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	infos := make([]TableInfo, 0, len(names))
	for _, name := range names {
		var rows int
		if err := s.db.GetContext(ctx, &rows, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, name)); err != nil {
			return nil, fmt.Errorf("count %s: %w", name, err)
		}
		infos = append(infos, TableInfo{Name: name, Rows: rows})
	}
	return infos, nil
}
