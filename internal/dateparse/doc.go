// Package dateparse extracts an absolute date range from a natural-language query.
//
// Extract returns a half-open range [Start, End) with local-midnight bounds in
// the location of the supplied "now", or nil when the query mentions no date.
// Rules are tried in priority order, case-insensitively:
//
//	2024-03-01        that single day
//	2024-03           that whole month
//	today             [start of today, start of tomorrow)
//	yesterday         [start of yesterday, start of today)
//	last week         trailing 7 days ending today
//	last N days       trailing N days ending today, N capped at 365
//
// Strip removes the same phrases so the remaining words can be used as a
// lexical query.
package dateparse
