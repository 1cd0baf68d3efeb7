package dashboard

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"gamemarket/internal/storage/postgres"
)

// The catalog queries filter pg_tables with partitionPattern, and pg_tables
// holds the lowercase-folded form of every unquoted table name. The pattern
// must therefore match exactly what PartitionName generates.
func TestPartitionPatternMatchesGeneratedNames(t *testing.T) {
	re := regexp.MustCompile(partitionPattern)

	for _, date := range []time.Time{
		time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 7, 4, 0, 0, 0, 0, time.UTC),
	} {
		name := postgres.PartitionName(date)
		assert.True(t, re.MatchString(name), "pattern must match %s", name)
	}
}

func TestPartitionPatternRejectsOtherTables(t *testing.T) {
	re := regexp.MustCompile(partitionPattern)

	for _, name := range []string{
		"steam_games_raw",
		"steam_games_2024w3",
		"steam_games_2024w031",
		"crawl_state",
		"old_steam_games_2024w03",
	} {
		assert.False(t, re.MatchString(name), "pattern must reject %s", name)
	}
}
