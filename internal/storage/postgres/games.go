package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"gamemarket/internal/domain"
)

// Entity is the base name for the weekly partition tables.
const Entity = "steam_games"

// GameStore persists cleaned records into weekly partition tables, one row
// per (app_id, crawl_date).
type GameStore struct {
	db *sqlx.DB
}

func NewGameStore(db *sqlx.DB) *GameStore {
	return &GameStore{db: db}
}

// PartitionName returns the partition table for the ISO week containing t,
// e.g. steam_games_2024w01. The name is lowercase because Postgres folds
// unquoted identifiers, so this is the form pg_tables reports.
func PartitionName(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%s_%dw%02d", Entity, year, week)
}

// EnsurePartition lazily creates the partition table for t and returns its
// name. Safe to call repeatedly.
func (s *GameStore) EnsurePartition(ctx context.Context, t time.Time) (string, error) {
	table := PartitionName(t)

	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id               SERIAL PRIMARY KEY,
			app_id           VARCHAR(20)  NOT NULL,
			name             VARCHAR(255) NOT NULL,
			price            NUMERIC(10,2),
			original_price   NUMERIC(10,2),
			discount_percent INT,
			developer        VARCHAR(255),
			publisher        VARCHAR(255),
			release_date     DATE,
			positive_rate    INT,
			total_reviews    INT,
			genres           TEXT,
			tags             TEXT,
			rank             INT,
			rank_type        VARCHAR(32),
			crawl_date       DATE NOT NULL,
			created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (app_id, crawl_date)
		);

		CREATE INDEX IF NOT EXISTS idx_%[1]s_name       ON %[1]s(name);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_developer  ON %[1]s(developer);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_crawl_date ON %[1]s(crawl_date);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_price      ON %[1]s(price);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_discount   ON %[1]s(discount_percent);
	`, table)

	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return "", fmt.Errorf("ensure partition %s: %w", table, err)
	}

	return table, nil
}

// GameRow is the relational projection of a cleaned record.
type GameRow struct {
	AppID           string     `db:"app_id"`
	Name            string     `db:"name"`
	Price           *float64   `db:"price"`
	OriginalPrice   *float64   `db:"original_price"`
	DiscountPercent *int       `db:"discount_percent"`
	Developer       *string    `db:"developer"`
	Publisher       *string    `db:"publisher"`
	ReleaseDate     *time.Time `db:"release_date"`
	PositiveRate    *int       `db:"positive_rate"`
	TotalReviews    *int       `db:"total_reviews"`
	Genres          *string    `db:"genres"`
	Tags            *string    `db:"tags"`
	Rank            *int       `db:"rank"`
	RankType        *string    `db:"rank_type"`
	CrawlDate       time.Time  `db:"crawl_date"`
}

// RowFromRecord converts a cleaned record into a typed row. Price-like
// fields become fixed-point numerics, counters become ints, list fields are
// comma-joined.
func RowFromRecord(rec domain.Record) (*GameRow, error) {
	crawlDate, err := time.Parse("2006-01-02", rec.Str(domain.FieldCrawlDate))
	if err != nil {
		return nil, fmt.Errorf("parse crawl_date %q: %w", rec.Str(domain.FieldCrawlDate), err)
	}

	return &GameRow{
		AppID:           rec.Str(domain.FieldAppID),
		Name:            rec.Str(domain.FieldName),
		Price:           parsePrice(rec.Str(domain.FieldPrice)),
		OriginalPrice:   parsePrice(rec.Str(domain.FieldOriginalPrice)),
		DiscountPercent: parseInt(rec.Str(domain.FieldDiscountPercent)),
		Developer:       optString(rec.Str(domain.FieldDeveloper)),
		Publisher:       optString(rec.Str(domain.FieldPublisher)),
		ReleaseDate:     parseDate(rec.Str(domain.FieldReleaseDate)),
		PositiveRate:    parseInt(rec.Str(domain.FieldPositiveRate)),
		TotalReviews:    parseInt(rec.Str(domain.FieldTotalReviews)),
		Genres:          joinList(rec.List(domain.FieldGenres)),
		Tags:            joinList(rec.List(domain.FieldTags)),
		Rank:            parseInt(rec.Str(domain.FieldRank)),
		RankType:        optString(rec.Str(domain.FieldRankType)),
		CrawlDate:       crawlDate,
	}, nil
}

// Upsert writes the record into the given partition table. It returns true
// when a new row was inserted, false when an existing (app_id, crawl_date)
// row was updated.
func (s *GameStore) Upsert(ctx context.Context, table string, rec domain.Record) (bool, error) {
	row, err := RowFromRecord(rec)
	if err != nil {
		return false, err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (
			app_id, name, price, original_price, discount_percent,
			developer, publisher, release_date, positive_rate, total_reviews,
			genres, tags, rank, rank_type, crawl_date
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		)
		ON CONFLICT (app_id, crawl_date) DO UPDATE SET
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			original_price = EXCLUDED.original_price,
			discount_percent = EXCLUDED.discount_percent,
			developer = EXCLUDED.developer,
			publisher = EXCLUDED.publisher,
			release_date = EXCLUDED.release_date,
			positive_rate = EXCLUDED.positive_rate,
			total_reviews = EXCLUDED.total_reviews,
			genres = EXCLUDED.genres,
			tags = EXCLUDED.tags,
			rank = EXCLUDED.rank,
			rank_type = EXCLUDED.rank_type,
			updated_at = NOW()
		RETURNING (created_at = updated_at)`, table)

	var inserted bool
	err = GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		row.AppID,
		row.Name,
		row.Price,
		row.OriginalPrice,
		row.DiscountPercent,
		row.Developer,
		row.Publisher,
		row.ReleaseDate,
		row.PositiveRate,
		row.TotalReviews,
		row.Genres,
		row.Tags,
		row.Rank,
		row.RankType,
		row.CrawlDate,
	).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("upsert into %s: %w", table, err)
	}

	return inserted, nil
}

func parsePrice(s string) *float64 {
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return nil
	}
	return &f
}

func parseInt(s string) *int {
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.ReplaceAll(s, ",", ""))
	if err != nil {
		return nil
	}
	return &n
}

func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil
	}
	return &t
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func joinList(items []string) *string {
	if len(items) == 0 {
		return nil
	}
	joined := strings.Join(items, ",")
	return &joined
}
