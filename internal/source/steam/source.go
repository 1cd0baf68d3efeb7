package steam

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"gamemarket/internal/domain"
	"gamemarket/internal/fetch"
)

const (
	defaultBaseURL = "https://store.steampowered.com"

	TopSellersID = "steam_top_sellers"
	PopularID    = "steam_popular"
)

// Config holds per-source crawl settings. BaseURL and AllowedDomains are
// overridable for tests against a local server.
type Config struct {
	BaseURL        string
	AllowedDomains []string
	MaxPages       int
	Delay          time.Duration
	Parallelism    int
	UserAgents     []string

	// Browser, when set, renders listing pages through headless Chrome
	// instead of plain HTTP. Detail pages always go through colly.
	Browser *fetch.Browser
}

// Source crawls one Steam search ranking: the listing pages for ranks and
// prices, then each game's detail page for publisher, reviews and tags.
type Source struct {
	id       string
	name     string
	filter   string
	rankType string
	cfg      Config
	logger   *slog.Logger
}

// NewTopSellers crawls the top sellers ranking.
func NewTopSellers(cfg Config, logger *slog.Logger) *Source {
	return newSource(TopSellersID, "Steam Top Sellers", "topsellers", cfg, logger)
}

// NewPopular crawls the popular new releases ranking.
func NewPopular(cfg Config, logger *slog.Logger) *Source {
	return newSource(PopularID, "Steam Popular New Releases", "popularnew", cfg, logger)
}

func newSource(id, name, filter string, cfg Config, logger *slog.Logger) *Source {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 1
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	if cfg.AllowedDomains == nil {
		if u, err := url.Parse(cfg.BaseURL); err == nil && u.Host != "" {
			cfg.AllowedDomains = []string{u.Hostname()}
		}
	}
	return &Source{
		id:       id,
		name:     name,
		filter:   filter,
		rankType: filter,
		cfg:      cfg,
		logger:   logger.With("source", id),
	}
}

func (s *Source) ID() string   { return s.id }
func (s *Source) Name() string { return s.name }

// FetchRecords crawls up to MaxPages listing pages and follows each row's
// detail link. A row whose detail fetch fails is still emitted with the
// listing fields it has.
func (s *Source) FetchRecords(ctx context.Context) ([]domain.Record, error) {
	ua := s.userAgent()
	now := time.Now()

	listing := colly.NewCollector(
		colly.AllowedDomains(s.cfg.AllowedDomains...),
		colly.UserAgent(ua),
	)
	if err := listing.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Delay:       s.cfg.Delay,
		RandomDelay: s.cfg.Delay / 2,
		Parallelism: s.cfg.Parallelism,
	}); err != nil {
		return nil, fmt.Errorf("limit rule: %w", err)
	}

	detail := listing.Clone()

	var records []domain.Record
	rank := 0

	onRow := func(row *goquery.Selection, resolve func(string) string) {
		rank++
		rec := extractListing(row, rank, s.rankType, now)

		href, _ := row.Attr("href")
		if href == "" {
			records = append(records, rec)
			return
		}

		reqCtx := colly.NewContext()
		reqCtx.Put("record", rec)
		if err := detail.Request("GET", resolve(href), nil, reqCtx, nil); err != nil {
			s.logger.Warn("detail request failed", "url", href, "error", err)
			records = append(records, rec)
		}
	}

	// Rotate the user agent per request.
	for _, c := range []*colly.Collector{listing, detail} {
		c.OnRequest(func(r *colly.Request) {
			if ua := s.userAgent(); ua != "" {
				r.Headers.Set("User-Agent", ua)
			}
		})
	}

	listing.OnHTML("div#search_resultsRows a.search_result_row", func(e *colly.HTMLElement) {
		onRow(e.DOM, e.Request.AbsoluteURL)
	})
	listing.OnError(func(r *colly.Response, err error) {
		s.logger.Error("listing page failed", "url", r.Request.URL.String(), "error", err)
	})

	detail.OnHTML("html", func(e *colly.HTMLElement) {
		if rec, ok := e.Request.Ctx.GetAny("record").(domain.Record); ok {
			extractDetail(e.DOM, rec)
		}
	})
	detail.OnScraped(func(r *colly.Response) {
		if rec, ok := r.Ctx.GetAny("record").(domain.Record); ok {
			records = append(records, rec)
		}
	})
	detail.OnError(func(r *colly.Response, err error) {
		s.logger.Warn("detail page failed", "url", r.Request.URL.String(), "error", err)
		if rec, ok := r.Ctx.GetAny("record").(domain.Record); ok {
			records = append(records, rec)
		}
	})

	for page := 1; page <= s.cfg.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pageURL := s.pageURL(page)

		if s.cfg.Browser != nil {
			if err := s.visitRendered(ctx, pageURL, onRow); err != nil {
				s.logger.Error("listing page failed", "url", pageURL, "error", err)
			}
			continue
		}

		if err := listing.Visit(pageURL); err != nil {
			s.logger.Error("listing page failed", "url", pageURL, "error", err)
		}
	}

	listing.Wait()
	detail.Wait()

	if len(records) == 0 {
		return nil, fmt.Errorf("no records extracted for %s", s.id)
	}

	s.logger.Info("fetch completed", "pages", s.cfg.MaxPages, "records", len(records))

	return records, nil
}

// visitRendered feeds a browser-rendered listing page through the same row
// extraction as the plain collector.
func (s *Source) visitRendered(ctx context.Context, pageURL string, onRow func(*goquery.Selection, func(string) string)) error {
	html, err := s.cfg.Browser.FetchHTML(ctx, pageURL)
	if err != nil {
		return err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fmt.Errorf("parse rendered page: %w", err)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return err
	}
	resolve := func(href string) string {
		ref, err := url.Parse(href)
		if err != nil {
			return href
		}
		return base.ResolveReference(ref).String()
	}

	doc.Find("div#search_resultsRows a.search_result_row").Each(func(_ int, row *goquery.Selection) {
		onRow(row, resolve)
	})

	return nil
}

func (s *Source) pageURL(page int) string {
	return fmt.Sprintf("%s/search/?filter=%s&page=%d", s.cfg.BaseURL, s.filter, page)
}

func (s *Source) userAgent() string {
	if len(s.cfg.UserAgents) == 0 {
		return ""
	}
	return s.cfg.UserAgents[rand.Intn(len(s.cfg.UserAgents))]
}
