package domain

import "fmt"

// Well-known record fields. Sources may emit additional fields; the pipeline
// carries them through untouched.
const (
	FieldName            = "name"
	FieldAppID           = "app_id"
	FieldPrice           = "price"
	FieldOriginalPrice   = "original_price"
	FieldDiscountPercent = "discount_percent"
	FieldPeakPlayers     = "peak_players"
	FieldCurrentPlayers  = "current_players"
	FieldPositiveRate    = "positive_rate"
	FieldTotalReviews    = "total_reviews"
	FieldDeveloper       = "developer"
	FieldPublisher       = "publisher"
	FieldReleaseDate     = "release_date"
	FieldGenres          = "genres"
	FieldTags            = "tags"
	FieldRank            = "rank"
	FieldRankType        = "rank_type"
	FieldCrawlTime       = "crawl_time"
	FieldCrawlDate       = "crawl_date"
)

// Record is one extracted marketplace listing: a mapping of field names to
// string or []string values. It is created by extraction, passed through
// validation and cleaning exactly once, then written to both stores.
type Record map[string]any

// Str returns the string value of a field, or "" if the field is absent or
// not a string.
func (r Record) Str(field string) string {
	s, _ := r[field].(string)
	return s
}

// List returns the list value of a field, or nil.
func (r Record) List(field string) []string {
	l, _ := r[field].([]string)
	return l
}

// Has reports whether the field is present with a non-nil value.
func (r Record) Has(field string) bool {
	v, ok := r[field]
	return ok && v != nil
}

// Clone returns a shallow copy; list values are copied one level deep so the
// pipeline can rewrite them without aliasing the source's slice.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		if l, ok := v.([]string); ok {
			cp := make([]string, len(l))
			copy(cp, l)
			out[k] = cp
			continue
		}
		out[k] = v
	}
	return out
}

// Rejection is the per-record drop signal: the record is discarded from the
// pipeline, the run continues with the next record.
type Rejection struct {
	Field  string
	Reason string
}

func (r *Rejection) Error() string {
	if r.Field == "" {
		return fmt.Sprintf("record rejected: %s", r.Reason)
	}
	return fmt.Sprintf("record rejected: field %q %s", r.Field, r.Reason)
}
