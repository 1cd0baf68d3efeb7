package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"gamemarket/internal/domain"
)

// CrawlStateStore tracks per-source crawl progress across runs.
type CrawlStateStore struct {
	db *sqlx.DB
}

func NewCrawlStateStore(db *sqlx.DB) *CrawlStateStore {
	return &CrawlStateStore{db: db}
}

// EnsureTable creates the crawl_state table if it does not exist.
func (s *CrawlStateStore) EnsureTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS crawl_state (
			id              SERIAL PRIMARY KEY,
			source_id       VARCHAR(64) UNIQUE NOT NULL,
			last_crawled_at TIMESTAMPTZ NOT NULL,
			total_stored    BIGINT NOT NULL DEFAULT 0
		)`)
	return err
}

func (s *CrawlStateStore) Get(ctx context.Context, sourceID string) (*domain.CrawlState, error) {
	var state domain.CrawlState
	query := `
		SELECT id, source_id, last_crawled_at, total_stored
		FROM crawl_state
		WHERE source_id = $1`

	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &state, query, sourceID)
	if err == sql.ErrNoRows {
		// Empty state for sources that have never run
		return &domain.CrawlState{
			SourceID:      sourceID,
			LastCrawledAt: time.Time{},
			TotalStored:   0,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *CrawlStateStore) Update(ctx context.Context, state *domain.CrawlState) error {
	query := `
		INSERT INTO crawl_state (source_id, last_crawled_at, total_stored)
		VALUES ($1, $2, $3)
		ON CONFLICT (source_id) DO UPDATE SET
			last_crawled_at = EXCLUDED.last_crawled_at,
			total_stored = EXCLUDED.total_stored`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		state.SourceID,
		state.LastCrawledAt,
		state.TotalStored,
	)
	return err
}
