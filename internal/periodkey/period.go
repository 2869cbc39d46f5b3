package periodkey

import (
	"fmt"
	"time"
)

// Period is a recurring task's cadence. It determines the
// date-normalization rule applied before a datePart is formatted.
type Period string

const (
	// Daily normalizes to UTC midnight of the calendar day.
	Daily Period = "daily"

	// Weekly normalizes to UTC midnight of the Monday of the date's ISO
	// week (the week containing the year's first Thursday is week 1).
	Weekly Period = "weekly"

	// Monthly normalizes to UTC midnight of the first of the month.
	Monthly Period = "monthly"
)

// Periods lists all valid periods in declaration order.
var Periods = []Period{Daily, Weekly, Monthly}

// Valid reports whether p is a known period token.
func (p Period) Valid() bool {
	switch p {
	case Daily, Weekly, Monthly:
		return true
	}
	return false
}

// Normalize maps an arbitrary timestamp to the UTC start of its period
// instance. The mapping is many-to-one and deterministic.
func (p Period) Normalize(date time.Time) time.Time {
	d := date.UTC()
	switch p {
	case Daily:
		return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	case Weekly:
		day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
		// Monday is day 0 of the ISO week.
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case Monthly:
		return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return d
}

// DatePart formats the normalized instance start in the period's
// canonical grammar: YYYY-MM-DD, YYYY-Www, or YYYY-MM.
func (p Period) DatePart(date time.Time) string {
	start := p.Normalize(date)
	switch p {
	case Daily:
		return start.Format("2006-01-02")
	case Weekly:
		// ISOWeek on the normalized Monday yields the ISO year, which
		// can differ from the calendar year at year boundaries.
		year, week := start.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case Monthly:
		return start.Format("2006-01")
	}
	return start.Format("2006-01-02")
}

// ParsePeriod validates a period token.
func ParsePeriod(s string) (Period, error) {
	p := Period(s)
	if !p.Valid() {
		return "", newValidationError(CodeBadPeriod, "period", s, "must be one of daily, weekly, monthly")
	}
	return p, nil
}
