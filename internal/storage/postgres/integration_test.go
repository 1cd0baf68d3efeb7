//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	pgcontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"gamemarket/internal/domain"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *pgcontainer.PostgresContainer
	db        *sqlx.DB
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := pgcontainer.Run(s.ctx,
		"postgres:16-alpine",
		pgcontainer.WithDatabase("test_db"),
		pgcontainer.WithUsername("test"),
		pgcontainer.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := sqlx.Connect("postgres", connStr)
	s.Require().NoError(err)
	s.db = db
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	var tables []string
	err := s.db.SelectContext(s.ctx, &tables,
		`SELECT tablename FROM pg_tables WHERE schemaname = 'public' AND tablename LIKE 'steam_games_%'`)
	s.Require().NoError(err)
	for _, table := range tables {
		_, _ = s.db.ExecContext(s.ctx, fmt.Sprintf("DROP TABLE %s", table))
	}
	_, _ = s.db.ExecContext(s.ctx, "DROP TABLE IF EXISTS crawl_state")
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func testGameRecord(appID string) domain.Record {
	return domain.Record{
		domain.FieldAppID:           appID,
		domain.FieldName:            "Test Game " + appID,
		domain.FieldPrice:           "298.00",
		domain.FieldOriginalPrice:   "398.00",
		domain.FieldDiscountPercent: "25",
		domain.FieldDeveloper:       "Test Studio",
		domain.FieldGenres:          []string{"动作", "角色扮演"},
		domain.FieldRank:            "1",
		domain.FieldRankType:        "topsellers",
		domain.FieldCrawlDate:       "2024-01-15",
	}
}

func (s *PostgresIntegrationSuite) TestEnsurePartition_Idempotent() {
	store := NewGameStore(s.db)
	date := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

	table, err := store.EnsurePartition(s.ctx, date)
	s.Require().NoError(err)
	s.Equal("steam_games_2024w03", table)

	again, err := store.EnsurePartition(s.ctx, date)
	s.Require().NoError(err)
	s.Equal(table, again)
}

func (s *PostgresIntegrationSuite) TestUpsert_InsertThenUpdate() {
	store := NewGameStore(s.db)
	date := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

	table, err := store.EnsurePartition(s.ctx, date)
	s.Require().NoError(err)

	rec := testGameRecord("1245620")

	inserted, err := store.Upsert(s.ctx, table, rec)
	s.Require().NoError(err)
	s.True(inserted)

	// Same (app_id, crawl_date) again with a new price updates in place.
	rec[domain.FieldPrice] = "199.00"
	inserted, err = store.Upsert(s.ctx, table, rec)
	s.Require().NoError(err)
	s.False(inserted)

	var count int
	err = s.db.GetContext(s.ctx, &count, fmt.Sprintf("SELECT COUNT(*) FROM %s", table))
	s.Require().NoError(err)
	s.Equal(1, count)

	var price float64
	err = s.db.GetContext(s.ctx, &price,
		fmt.Sprintf("SELECT price FROM %s WHERE app_id = $1", table), "1245620")
	s.Require().NoError(err)
	s.Equal(199.00, price)
}

func (s *PostgresIntegrationSuite) TestUpsert_DistinctGamesBothKept() {
	store := NewGameStore(s.db)
	date := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

	table, err := store.EnsurePartition(s.ctx, date)
	s.Require().NoError(err)

	for _, appID := range []string{"1245620", "570"} {
		inserted, err := store.Upsert(s.ctx, table, testGameRecord(appID))
		s.Require().NoError(err)
		s.True(inserted)
	}

	var count int
	err = s.db.GetContext(s.ctx, &count, fmt.Sprintf("SELECT COUNT(*) FROM %s", table))
	s.Require().NoError(err)
	s.Equal(2, count)
}

func (s *PostgresIntegrationSuite) TestTransactionManager_RollbackOnError() {
	store := NewCrawlStateStore(s.db)
	s.Require().NoError(store.EnsureTable(s.ctx))

	tm := NewTransactionManager(s.db)

	err := tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		state := &domain.CrawlState{
			SourceID:      "steam_popular",
			LastCrawledAt: time.Now(),
			TotalStored:   10,
		}
		if err := store.Update(ctx, state); err != nil {
			return err
		}
		return errors.New("boom")
	})
	s.Error(err)

	// The write above must have been rolled back.
	state, err := store.Get(s.ctx, "steam_popular")
	s.Require().NoError(err)
	s.Zero(state.TotalStored)
}

func (s *PostgresIntegrationSuite) TestCrawlStateStore_RoundTrip() {
	store := NewCrawlStateStore(s.db)
	s.Require().NoError(store.EnsureTable(s.ctx))

	// Missing source yields an empty state, not an error.
	state, err := store.Get(s.ctx, "steam_top_sellers")
	s.Require().NoError(err)
	s.Zero(state.TotalStored)

	state.SourceID = "steam_top_sellers"
	state.LastCrawledAt = time.Now()
	state.TotalStored = 50
	s.Require().NoError(store.Update(s.ctx, state))

	loaded, err := store.Get(s.ctx, "steam_top_sellers")
	s.Require().NoError(err)
	s.Equal(int64(50), loaded.TotalStored)

	loaded.TotalStored = 100
	s.Require().NoError(store.Update(s.ctx, loaded))

	final, err := store.Get(s.ctx, "steam_top_sellers")
	s.Require().NoError(err)
	s.Equal(int64(100), final.TotalStored)
}
