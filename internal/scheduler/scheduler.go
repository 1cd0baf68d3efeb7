package scheduler

import (
	"context"
	"log/slog"
	"time"

	"gamemarket/internal/domain"
)

// Crawler defines the interface for one source's crawl run.
type Crawler interface {
	SourceID() string
	Crawl(ctx context.Context) (*domain.CrawlStats, error)
}

// Scheduler runs every crawler once immediately and then on a fixed
// interval. Sources run sequentially within a tick.
type Scheduler struct {
	crawlers   []Crawler
	interval   time.Duration
	runTimeout time.Duration
	logger     *slog.Logger
}

func NewScheduler(crawlers []Crawler, interval, runTimeout time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		crawlers:   crawlers,
		interval:   interval,
		runTimeout: runTimeout,
		logger:     logger,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval, "sources", len(s.crawlers))

	s.runAll(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Scheduler) runAll(ctx context.Context) {
	for _, c := range s.crawlers {
		if ctx.Err() != nil {
			return
		}
		s.runOne(ctx, c)
	}
}

func (s *Scheduler) runOne(ctx context.Context, c Crawler) {
	runCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	if _, err := c.Crawl(runCtx); err != nil {
		s.logger.Error("crawl failed", "source", c.SourceID(), "error", err)
	}
}
