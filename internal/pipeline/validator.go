package pipeline

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gamemarket/internal/domain"
)

// requiredFields lists the per-source required field sets. Sources not listed
// here fall back to the universal set.
var requiredFields = map[string][]string{
	"steam_top_sellers": {domain.FieldName, domain.FieldAppID, domain.FieldCrawlTime, domain.FieldCrawlDate},
	"steam_popular":     {domain.FieldName, domain.FieldAppID, domain.FieldCrawlTime, domain.FieldCrawlDate},
}

var universalRequired = []string{domain.FieldName, domain.FieldCrawlTime, domain.FieldCrawlDate}

var (
	appIDPattern = regexp.MustCompile(`^\d+$`)

	// Accepted price formats: the free sentinel plus a small set of
	// currency patterns seen on the scraped storefronts.
	pricePatterns = []*regexp.Regexp{
		regexp.MustCompile(`^免费$`),
		regexp.MustCompile(`^¥\s*\d+(\.\d{2})?$`),
		regexp.MustCompile(`^\$\s*\d+(\.\d{2})?$`),
		regexp.MustCompile(`^\d+(\.\d{2})?\s*元$`),
		regexp.MustCompile(`^\d+(\.\d{2})?\s*USD$`),
	}
)

// fieldRule pairs a field name with its format check. The table is evaluated
// uniformly for every field present on a record.
type fieldRule struct {
	field string
	valid func(string) bool
}

var fieldRules = []fieldRule{
	{domain.FieldName, validName},
	{domain.FieldAppID, validAppID},
	{domain.FieldPrice, validPrice},
	{domain.FieldDiscountPercent, validPercent},
	{domain.FieldPositiveRate, validPercent},
	{domain.FieldTotalReviews, validReviews},
	{domain.FieldCrawlTime, validDateTime},
	{domain.FieldCrawlDate, validDate},
}

// Validator checks required-field presence and per-field formats before a
// record enters cleaning. A format error on a required field rejects the
// record; on an optional field it only logs a warning.
type Validator struct {
	logger *slog.Logger
}

func NewValidator(logger *slog.Logger) *Validator {
	return &Validator{logger: logger.With("stage", "validate")}
}

// Validate returns nil when the record may continue, or a *domain.Rejection.
func (v *Validator) Validate(rec domain.Record, source string) error {
	required, ok := requiredFields[source]
	if !ok {
		required = universalRequired
	}

	for _, field := range required {
		if !hasNonBlank(rec, field) {
			return &domain.Rejection{Field: field, Reason: "missing required field"}
		}
	}

	for _, rule := range fieldRules {
		if !rec.Has(rule.field) {
			continue
		}
		value, isString := rec[rule.field].(string)
		if !isString || rule.valid(value) {
			continue
		}
		if contains(required, rule.field) {
			return &domain.Rejection{Field: rule.field, Reason: "invalid format"}
		}
		v.logger.Warn("invalid field format, keeping record",
			"source", source,
			"field", rule.field,
			"value", value,
		)
	}

	return nil
}

func hasNonBlank(rec domain.Record, field string) bool {
	if !rec.Has(field) {
		return false
	}
	s, ok := rec[field].(string)
	return !ok || strings.TrimSpace(s) != ""
}

func contains(fields []string, field string) bool {
	for _, f := range fields {
		if f == field {
			return true
		}
	}
	return false
}

func validName(s string) bool {
	n := len(strings.TrimSpace(s))
	return n >= 1 && n <= 200
}

func validAppID(s string) bool {
	return appIDPattern.MatchString(s)
}

func validPrice(s string) bool {
	s = strings.TrimSpace(s)
	for _, p := range pricePatterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

func validPercent(s string) bool {
	n, err := strconv.Atoi(s)
	return err == nil && n >= 0 && n <= 100
}

func validReviews(s string) bool {
	n, err := strconv.Atoi(strings.ReplaceAll(s, ",", ""))
	return err == nil && n >= 0
}

func validDateTime(s string) bool {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

func validDate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}
