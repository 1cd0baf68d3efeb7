package steam

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"gamemarket/internal/domain"
)

const maxTags = 10

var (
	discountPattern = regexp.MustCompile(`-(\d+)%`)
	percentPattern  = regexp.MustCompile(`(\d+)%`)
	reviewsPattern  = regexp.MustCompile(`\d+(?:,\d+)*`)
)

// extractListing turns one search-result row into a raw record. Optional
// fields are set only when present on the row.
func extractListing(sel *goquery.Selection, rank int, rankType string, now time.Time) domain.Record {
	rec := domain.Record{
		domain.FieldRank:      strconv.Itoa(rank),
		domain.FieldRankType:  rankType,
		domain.FieldCrawlTime: now.Format("2006-01-02T15:04:05"),
		domain.FieldCrawlDate: now.Format("2006-01-02"),
	}

	if name := text(sel.Find("span.title")); name != "" {
		rec[domain.FieldName] = name
	}
	if appID, ok := sel.Attr("data-ds-appid"); ok && appID != "" {
		rec[domain.FieldAppID] = appID
	}
	if price := text(sel.Find("div.discount_final_price")); price != "" {
		rec[domain.FieldPrice] = price
	}
	if orig := text(sel.Find("div.discount_original_price")); orig != "" {
		rec[domain.FieldOriginalPrice] = orig
	}
	if pct := text(sel.Find("div.discount_pct")); pct != "" {
		if m := discountPattern.FindStringSubmatch(pct); m != nil {
			rec[domain.FieldDiscountPercent] = m[1]
		}
	}
	if dev := text(sel.Find("div.search_developer")); dev != "" {
		rec[domain.FieldDeveloper] = dev
	}

	return rec
}

// extractDetail enriches a listing record with detail-page fields.
func extractDetail(doc *goquery.Selection, rec domain.Record) {
	doc.Find("div.dev_row").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		label := row.Text()
		if !strings.Contains(label, "发行商") && !strings.Contains(label, "Publisher") {
			return true
		}
		if publisher := text(row.Find("a").First()); publisher != "" {
			rec[domain.FieldPublisher] = publisher
		}
		return false
	})

	if date := text(doc.Find("div.date").First()); date != "" {
		rec[domain.FieldReleaseDate] = date
	}

	if genres := texts(doc.Find("a.genre")); len(genres) > 0 {
		rec[domain.FieldGenres] = genres
	}

	if tags := texts(doc.Find("a.app_tag")); len(tags) > 0 {
		if len(tags) > maxTags {
			tags = tags[:maxTags]
		}
		rec[domain.FieldTags] = tags
	}

	if summary := text(doc.Find("span.game_review_summary").First()); summary != "" {
		if m := percentPattern.FindStringSubmatch(summary); m != nil {
			rec[domain.FieldPositiveRate] = m[1]
		}
	}

	if reviews := text(doc.Find("span.responsive_hidden").First()); reviews != "" {
		if m := reviewsPattern.FindString(reviews); m != "" {
			rec[domain.FieldTotalReviews] = strings.ReplaceAll(m, ",", "")
		}
	}
}

func text(sel *goquery.Selection) string {
	return strings.TrimSpace(sel.Text())
}

func texts(sel *goquery.Selection) []string {
	var out []string
	sel.Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			out = append(out, t)
		}
	})
	return out
}
