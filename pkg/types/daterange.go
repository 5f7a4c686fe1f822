package types

import (
	"fmt"
	"time"
)

// DateLayout is the day-granularity layout used for note dates and range bounds.
const DateLayout = "2006-01-02"

// DateRange is a half-open interval [Start, End) with day-granularity bounds.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// ContainsDay reports whether the calendar day given as YYYY-MM-DD falls within the range.
func (r DateRange) ContainsDay(day string) bool {
	start, end := r.Dates()
	return day >= start && day < end
}

// Dates returns the bounds formatted as YYYY-MM-DD, the form stored in the database.
func (r DateRange) Dates() (start, end string) {
	return r.Start.Format(DateLayout), r.End.Format(DateLayout)
}

// String describes the range the way the prompt presents it, e.g.
// "2024-03-01 to 2024-03-02 (end exclusive)".
func (r DateRange) String() string {
	start, end := r.Dates()
	return fmt.Sprintf("%s to %s (end exclusive)", start, end)
}
