package dateparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dshills/notecontext/pkg/types"
)

// MaxTrailingDays caps "last N days"
const MaxTrailingDays = 365

var (
	isoDayPattern    = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	isoMonthPattern  = regexp.MustCompile(`\b(\d{4})-(\d{2})\b`)
	todayPattern     = regexp.MustCompile(`(?i)\btoday\b`)
	yesterdayPattern = regexp.MustCompile(`(?i)\byesterday\b`)
	lastWeekPattern  = regexp.MustCompile(`(?i)\blast\s+week\b`)
	lastDaysPattern  = regexp.MustCompile(`(?i)\blast\s+(\d+)\s+days?\b`)
)

// Extract parses query into an optional date range relative to now.
func Extract(query string, now time.Time) *types.DateRange {
	if r, matched := isoDay(query, now.Location()); matched {
		return r
	}
	if r := isoMonth(query, now.Location()); r != nil {
		return r
	}

	today := startOfDay(now)
	switch {
	case todayPattern.MatchString(query):
		return &types.DateRange{Start: today, End: today.AddDate(0, 0, 1)}
	case yesterdayPattern.MatchString(query):
		return &types.DateRange{Start: today.AddDate(0, 0, -1), End: today}
	case lastWeekPattern.MatchString(query):
		return trailing(today, 7)
	}

	if m := lastDaysPattern.FindStringSubmatch(query); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			return nil
		}
		if n > MaxTrailingDays {
			n = MaxTrailingDays
		}
		return trailing(today, n)
	}
	return nil
}

// Strip removes every date phrase Extract understands and collapses the
// leftover whitespace.
func Strip(query string) string {
	for _, re := range []*regexp.Regexp{lastDaysPattern, lastWeekPattern, yesterdayPattern, todayPattern, isoDayPattern, isoMonthPattern} {
		query = re.ReplaceAllString(query, " ")
	}
	return strings.Join(strings.Fields(query), " ")
}

// isoDay reports matched=true when a YYYY-MM-DD token is present, even if it is
// not a real calendar day, so the month rule never reinterprets its prefix.
func isoDay(query string, loc *time.Location) (*types.DateRange, bool) {
	m := isoDayPattern.FindStringSubmatch(query)
	if m == nil {
		return nil, false
	}
	y, _ := strconv.Atoi(m[1])
	mo, _ := strconv.Atoi(m[2])
	d, _ := strconv.Atoi(m[3])

	start := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, loc)
	if start.Year() != y || int(start.Month()) != mo || start.Day() != d {
		return nil, true
	}
	return &types.DateRange{Start: start, End: start.AddDate(0, 0, 1)}, true
}

func isoMonth(query string, loc *time.Location) *types.DateRange {
	for _, idx := range isoMonthPattern.FindAllStringSubmatchIndex(query, -1) {
		// "2024-03-xx" is a day token, handled (or rejected) by isoDay
		if idx[1] < len(query) && query[idx[1]] == '-' {
			continue
		}
		y, _ := strconv.Atoi(query[idx[2]:idx[3]])
		mo, _ := strconv.Atoi(query[idx[4]:idx[5]])
		if mo < 1 || mo > 12 {
			continue
		}
		start := time.Date(y, time.Month(mo), 1, 0, 0, 0, 0, loc)
		return &types.DateRange{Start: start, End: start.AddDate(0, 1, 0)}
	}
	return nil
}

// trailing returns the n-day window that ends with today (inclusive)
func trailing(today time.Time, n int) *types.DateRange {
	return &types.DateRange{
		Start: today.AddDate(0, 0, -(n - 1)),
		End:   today.AddDate(0, 0, 1),
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
