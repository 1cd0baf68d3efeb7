package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gamemarket/internal/domain"
)

// CrawlService runs the record pipeline for a single source: fetch →
// validate → clean → write both stores → publish. Stages run in-process as
// a strict sequence per record; each record is independent.
type CrawlService struct {
	source     Source
	validator  Validator
	cleaner    Cleaner
	games      GameStore
	documents  DocumentStore
	crawlState CrawlStateStore
	txManager  TransactionManager
	publisher  Publisher
	logger     *slog.Logger
}

func NewCrawlService(
	source Source,
	validator Validator,
	cleaner Cleaner,
	games GameStore,
	documents DocumentStore,
	crawlState CrawlStateStore,
	txManager TransactionManager,
	publisher Publisher,
	logger *slog.Logger,
) *CrawlService {
	return &CrawlService{
		source:     source,
		validator:  validator,
		cleaner:    cleaner,
		games:      games,
		documents:  documents,
		crawlState: crawlState,
		txManager:  txManager,
		publisher:  publisher,
		logger:     logger.With("source", source.ID()),
	}
}

func (s *CrawlService) SourceID() string {
	return s.source.ID()
}

func (s *CrawlService) Crawl(ctx context.Context) (*domain.CrawlStats, error) {
	startTime := time.Now()
	s.logger.Info("starting crawl", "source_name", s.source.Name())

	records, err := s.source.FetchRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch records: %w", err)
	}

	s.logger.Info("fetched records from source", "count", len(records))

	table, err := s.games.EnsurePartition(ctx, time.Now())
	if err != nil {
		return nil, fmt.Errorf("ensure partition: %w", err)
	}

	stats := &domain.CrawlStats{
		SourceID: s.source.ID(),
		Fetched:  len(records),
	}

	for _, rec := range records {
		s.processRecord(ctx, table, rec, stats)
	}

	if err := s.updateCrawlState(ctx, stats); err != nil {
		return stats, fmt.Errorf("update crawl state: %w", err)
	}

	stats.Duration = time.Since(startTime)

	s.logger.Info("crawl completed",
		"stored", stats.Stored,
		"updated", stats.Updated,
		"rejected", stats.Rejected,
		"sink_errors", stats.SinkErrors,
		"published", stats.Published,
		"duration", stats.Duration,
	)

	return stats, nil
}

// processRecord pushes one record through the pipeline. A rejection drops
// the record; a sink error is logged and the record still reaches the other
// sink and the publisher.
func (s *CrawlService) processRecord(ctx context.Context, table string, rec domain.Record, stats *domain.CrawlStats) {
	if err := s.validator.Validate(rec, s.source.ID()); err != nil {
		s.logRejection("validation", rec, err)
		stats.Rejected++
		return
	}

	// Cleaning rewrites fields in place; work on a copy so the source's
	// records stay as fetched.
	rec = rec.Clone()
	if err := s.cleaner.Clean(rec); err != nil {
		s.logRejection("cleaning", rec, err)
		stats.Rejected++
		return
	}

	isNew := false
	wrote := false

	inserted, err := s.games.Upsert(ctx, table, rec)
	if err != nil {
		s.logger.Error("relational write failed", "name", rec.Str(domain.FieldName), "error", err)
		stats.SinkErrors++
	} else {
		isNew = inserted
		wrote = true
	}

	inserted, err = s.documents.Upsert(ctx, s.source.ID(), rec)
	if err != nil {
		s.logger.Error("document write failed", "name", rec.Str(domain.FieldName), "error", err)
		stats.SinkErrors++
	} else {
		isNew = isNew || inserted
		wrote = true
	}

	if !wrote {
		return
	}

	if isNew {
		stats.Stored++
	} else {
		stats.Updated++
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, s.source.ID(), rec, isNew); err != nil {
			s.logger.Error("publish failed", "name", rec.Str(domain.FieldName), "error", err)
			stats.SinkErrors++
		} else {
			stats.Published++
		}
	}
}

func (s *CrawlService) logRejection(stage string, rec domain.Record, err error) {
	var rej *domain.Rejection
	if errors.As(err, &rej) {
		s.logger.Warn("record rejected",
			"stage", stage,
			"name", rec.Str(domain.FieldName),
			"field", rej.Field,
			"reason", rej.Reason,
		)
		return
	}
	s.logger.Error("record dropped", "stage", stage, "error", err)
}

// updateCrawlState bumps the source's progress row. The read-modify-write
// runs in one transaction so concurrent runs cannot lose counts.
func (s *CrawlService) updateCrawlState(ctx context.Context, stats *domain.CrawlStats) error {
	return s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		state, err := s.crawlState.Get(ctx, s.source.ID())
		if err != nil {
			return err
		}

		state.SourceID = s.source.ID()
		state.LastCrawledAt = time.Now()
		state.TotalStored += int64(stats.Stored + stats.Updated)

		return s.crawlState.Update(ctx, state)
	})
}
