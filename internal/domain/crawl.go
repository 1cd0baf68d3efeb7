package domain

import "time"

// CrawlStats holds counters for one crawl run of a single source.
type CrawlStats struct {
	SourceID   string
	Fetched    int
	Stored     int
	Updated    int
	Rejected   int
	SinkErrors int
	Published  int
	Duration   time.Duration
}

// CrawlState tracks crawl progress per source across runs.
type CrawlState struct {
	ID            int64     `db:"id"`
	SourceID      string    `db:"source_id"`
	LastCrawledAt time.Time `db:"last_crawled_at"`
	TotalStored   int64     `db:"total_stored"`
}
