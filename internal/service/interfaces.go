package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"gamemarket/internal/domain"
)

// Source fetches raw records for one listing ranking.
type Source interface {
	ID() string
	Name() string
	FetchRecords(ctx context.Context) ([]domain.Record, error)
}

// Validator checks required fields and formats; returns *domain.Rejection
// to drop a record.
type Validator interface {
	Validate(rec domain.Record, source string) error
}

// Cleaner normalizes fields in place; returns *domain.Rejection to drop a
// record.
type Cleaner interface {
	Clean(rec domain.Record) error
}

// GameStore is the relational sink with weekly partition tables.
type GameStore interface {
	EnsurePartition(ctx context.Context, t time.Time) (string, error)
	Upsert(ctx context.Context, table string, rec domain.Record) (bool, error)
}

// DocumentStore is the document sink with monthly collections.
type DocumentStore interface {
	Upsert(ctx context.Context, source string, rec domain.Record) (bool, error)
}

// TransactionManager scopes fn to one relational transaction.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type CrawlStateStore interface {
	Get(ctx context.Context, sourceID string) (*domain.CrawlState, error)
	Update(ctx context.Context, state *domain.CrawlState) error
}

type Publisher interface {
	Publish(ctx context.Context, source string, rec domain.Record, isNew bool) error
	Close() error
}
