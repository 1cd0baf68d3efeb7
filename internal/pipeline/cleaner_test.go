package pipeline

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamemarket/internal/domain"
)

func testCleaner() *Cleaner {
	return NewCleaner(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCleanStringStripsAndCollapses(t *testing.T) {
	for _, tc := range []struct {
		in, want string
	}{
		{"  Elden   Ring  ", "Elden Ring"},
		{"艾尔登法环™", "艾尔登法环"},
		{"Half-Life: Alyx", "Half-Life Alyx"},
		{"Portal\t\n2", "Portal 2"},
		{"100% Orange Juice", "100 Orange Juice"},
		{"(Deluxe) [GOTY] {2024}", "(Deluxe) [GOTY] {2024}"},
		{"", ""},
	} {
		assert.Equal(t, tc.want, CleanString(tc.in), "input %q", tc.in)
	}
}

func TestCleanStringIdempotent(t *testing.T) {
	inputs := []string{"  Elden   Ring  ", "艾尔登法环™", "Half-Life: Alyx"}
	for _, in := range inputs {
		once := CleanString(in)
		assert.Equal(t, once, CleanString(once), "input %q", in)
	}
}

func TestCleanNormalizesPrices(t *testing.T) {
	c := testCleaner()

	rec := domain.Record{
		domain.FieldName:          "Test Game",
		domain.FieldCrawlTime:     "2024-01-15T08:00:00",
		domain.FieldCrawlDate:     "2024-01-15",
		domain.FieldPrice:         "¥99",
		domain.FieldOriginalPrice: "¥1,299.00",
	}

	require.NoError(t, c.Clean(rec))
	assert.Equal(t, "99", rec[domain.FieldPrice])
	assert.Equal(t, "1,299.00", rec[domain.FieldOriginalPrice])
}

func TestCleanFreePricePassesThrough(t *testing.T) {
	c := testCleaner()

	rec := domain.Record{
		domain.FieldName:      "Dota 2",
		domain.FieldCrawlTime: "2024-01-15T08:00:00",
		domain.FieldCrawlDate: "2024-01-15",
		domain.FieldPrice:     "免费",
	}

	require.NoError(t, c.Clean(rec))
	assert.Equal(t, "免费", rec[domain.FieldPrice])
}

func TestCleanNormalizesCounts(t *testing.T) {
	c := testCleaner()

	rec := domain.Record{
		domain.FieldName:         "Test Game",
		domain.FieldCrawlTime:    "2024-01-15T08:00:00",
		domain.FieldCrawlDate:    "2024-01-15",
		domain.FieldTotalReviews: "612,345 reviews",
		domain.FieldPeakPlayers:  "1,023,456",
	}

	require.NoError(t, c.Clean(rec))
	assert.Equal(t, "612345", rec[domain.FieldTotalReviews])
	assert.Equal(t, "1023456", rec[domain.FieldPeakPlayers])
}

func TestNormalizeDate(t *testing.T) {
	for _, tc := range []struct {
		in, want string
	}{
		{"2024年3月5日", "2024-03-05"},
		{"2024年12月25日", "2024-12-25"},
		{"2024-3-5", "2024-03-05"},
		{"2024-03-05", "2024-03-05"},
		{"2024/03/05", "2024-03-05"},
		{"2024/1/9", "2024-01-09"},
		{"Coming soon", "Coming soon"},
	} {
		assert.Equal(t, tc.want, NormalizeDate(tc.in), "input %q", tc.in)
	}
}

func TestCleanRejectsEmptiedRequiredField(t *testing.T) {
	c := testCleaner()

	rec := domain.Record{
		domain.FieldName:      "★★★",
		domain.FieldCrawlTime: "2024-01-15T08:00:00",
		domain.FieldCrawlDate: "2024-01-15",
	}

	err := c.Clean(rec)
	require.Error(t, err)

	rej, ok := err.(*domain.Rejection)
	require.True(t, ok)
	assert.Equal(t, domain.FieldName, rej.Field)
	assert.Equal(t, "empty after cleaning", rej.Reason)
}

func TestCleanHandlesStringLists(t *testing.T) {
	c := testCleaner()

	rec := domain.Record{
		domain.FieldName:      "Test Game",
		domain.FieldCrawlTime: "2024-01-15T08:00:00",
		domain.FieldCrawlDate: "2024-01-15",
		domain.FieldGenres:    []string{" 动作 ", "角色扮演™"},
	}

	require.NoError(t, c.Clean(rec))
	assert.Equal(t, []string{"动作", "角色扮演"}, rec[domain.FieldGenres])
}
