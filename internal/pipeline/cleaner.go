package pipeline

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"gamemarket/internal/domain"
)

var (
	// Characters outside this allow-list are stripped from every string
	// field: word characters, whitespace, the common CJK ideograph range
	// and basic punctuation.
	disallowedChars = regexp.MustCompile(`[^\w\s\x{4e00}-\x{9fff}\-.,!?()\[\]{}]`)
	whitespaceRuns  = regexp.MustCompile(`\s+`)

	priceNumber = regexp.MustCompile(`[\d,]+\.?\d*`)
	digitRun    = regexp.MustCompile(`[\d,]+`)

	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(\d{4})年(\d{1,2})月(\d{1,2})日`),
		regexp.MustCompile(`(\d{4})-(\d{1,2})-(\d{1,2})`),
		regexp.MustCompile(`(\d{4})/(\d{1,2})/(\d{1,2})`),
	}
)

var (
	priceFields = []string{domain.FieldPrice, domain.FieldOriginalPrice}
	countFields = []string{
		domain.FieldPeakPlayers,
		domain.FieldCurrentPlayers,
		domain.FieldPositiveRate,
		domain.FieldTotalReviews,
	}
	dateFields = []string{domain.FieldReleaseDate}
)

// Cleaner normalizes validated records into the canonical forms the writers
// expect. String cleaning is idempotent.
type Cleaner struct {
	logger *slog.Logger
}

func NewCleaner(logger *slog.Logger) *Cleaner {
	return &Cleaner{logger: logger.With("stage", "clean")}
}

// Clean rewrites the record's fields in place. It returns a
// *domain.Rejection when a universally required field is empty after
// cleaning.
func (c *Cleaner) Clean(rec domain.Record) error {
	for field, value := range rec {
		switch v := value.(type) {
		case string:
			rec[field] = CleanString(v)
		case []string:
			for i, item := range v {
				v[i] = CleanString(item)
			}
		}
	}

	for _, field := range universalRequired {
		if !hasNonBlank(rec, field) {
			return &domain.Rejection{Field: field, Reason: "empty after cleaning"}
		}
	}

	for _, field := range priceFields {
		if s := rec.Str(field); s != "" {
			rec[field] = extractPrice(s)
		}
	}
	for _, field := range countFields {
		if s := rec.Str(field); s != "" {
			rec[field] = extractCount(s)
		}
	}
	for _, field := range dateFields {
		if s := rec.Str(field); s != "" {
			rec[field] = NormalizeDate(s)
		}
	}

	return nil
}

// CleanString trims the string, collapses whitespace runs to a single space
// and strips characters outside the allow-list.
func CleanString(s string) string {
	if s == "" {
		return s
	}
	s = disallowedChars.ReplaceAllString(s, "")
	s = whitespaceRuns.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// extractPrice keeps the first numeric substring of a price-like value,
// preserving thousands separators and decimal point as text.
func extractPrice(s string) string {
	if m := priceNumber.FindString(s); m != "" {
		return m
	}
	return s
}

// extractCount keeps the first digit run and strips thousands separators.
func extractCount(s string) string {
	if m := digitRun.FindString(s); m != "" {
		return strings.ReplaceAll(m, ",", "")
	}
	return s
}

// NormalizeDate rewrites recognized date formats (YYYY年MM月DD日, YYYY-M-D,
// YYYY/MM/DD) to zero-padded YYYY-MM-DD. Unrecognized formats pass through
// unchanged.
func NormalizeDate(s string) string {
	for _, p := range datePatterns {
		if m := p.FindStringSubmatch(s); m != nil {
			month, _ := strconv.Atoi(m[2])
			day, _ := strconv.Atoi(m[3])
			return fmt.Sprintf("%s-%02d-%02d", m[1], month, day)
		}
	}
	return s
}
