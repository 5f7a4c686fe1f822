package dateparse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		wantStart time.Time
		wantEnd   time.Time
	}{
		{"iso day", "what happened on 2024-03-01", day(2024, 3, 1), day(2024, 3, 2)},
		{"iso month", "notes from 2024-02 please", day(2024, 2, 1), day(2024, 3, 1)},
		{"december rolls over", "2023-12", day(2023, 12, 1), day(2024, 1, 1)},
		{"today", "What did I write TODAY?", day(2024, 3, 15), day(2024, 3, 16)},
		{"yesterday", "yesterday", day(2024, 3, 14), day(2024, 3, 15)},
		{"last week", "meetings last week", day(2024, 3, 9), day(2024, 3, 16)},
		{"last n days", "last 3 days of work", day(2024, 3, 13), day(2024, 3, 16)},
		{"last 1 day", "last 1 day", day(2024, 3, 15), day(2024, 3, 16)},
		{"iso wins over keyword", "today vs 2024-01-05", day(2024, 1, 5), day(2024, 1, 6)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Extract(tt.query, now)
			require.NotNil(t, r)
			assert.Equal(t, tt.wantStart, r.Start)
			assert.Equal(t, tt.wantEnd, r.End)
		})
	}
}

func TestExtract_NoMatch(t *testing.T) {
	for _, q := range []string{
		"",
		"how do I make sourdough",
		"version 2024-13",
		"last 0 days",
		"todays special",
		"2024-02-30 is not a day",
	} {
		assert.Nil(t, Extract(q, now), q)
	}
}

func TestExtract_LastDaysCapped(t *testing.T) {
	r := Extract("last 5000 days", now)
	require.NotNil(t, r)
	assert.Equal(t, day(2024, 3, 16).AddDate(0, 0, -MaxTrailingDays), r.Start)
	assert.Equal(t, day(2024, 3, 16), r.End)
}

func TestExtract_HalfOpen(t *testing.T) {
	r := Extract("yesterday", now)
	require.NotNil(t, r)
	assert.True(t, r.ContainsDay("2024-03-14"))
	assert.False(t, r.ContainsDay("2024-03-15"), "today is the exclusive end")
	assert.False(t, r.ContainsDay("2024-03-13"))
}

func TestExtract_UsesNowLocation(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	local := time.Date(2024, 3, 15, 1, 0, 0, 0, loc)
	r := Extract("today", local)
	require.NotNil(t, r)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, loc), r.Start)
}

func TestStrip(t *testing.T) {
	assert.Equal(t, "what did I do", Strip("what did I do yesterday"))
	assert.Equal(t, "trip notes", Strip("trip notes 2024-03-01"))
	assert.Equal(t, "", Strip("last 7 days"))
	assert.Equal(t, "standup", Strip("standup last week"))
	assert.Equal(t, "sourdough", Strip("sourdough"))
}
