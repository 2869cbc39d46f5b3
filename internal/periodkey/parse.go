package periodkey

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var weeklyPartPattern = regexp.MustCompile(`^(\d{4})-W(\d{2})$`)

// Parse structurally decomposes a canonical key and recovers the period
// instance start date by inverting the normalization.
//
// Rejected: wrong segment count, unknown period token, task IDs failing
// the ID grammar, and dateParts failing the period-specific date grammar.
func Parse(key string) (Key, error) {
	if len(key) > MaxKeyLength {
		return Key{}, newValidationError(CodeBadKey, "key", key, fmt.Sprintf("exceeds %d chars", MaxKeyLength))
	}

	segments := strings.Split(key, ":")
	if len(segments) != 5 || segments[0]+":"+segments[1] != Prefix {
		return Key{}, newValidationError(CodeBadKey, "key", key, "must be task:completion:{period}:{taskId}:{datePart}")
	}

	period, err := ParsePeriod(segments[2])
	if err != nil {
		return Key{}, err
	}
	taskID := segments[3]
	if err := validateTaskID(taskID); err != nil {
		return Key{}, err
	}

	datePart := segments[4]
	date, err := parseDatePart(period, datePart)
	if err != nil {
		return Key{}, err
	}

	return Key{Period: period, TaskID: taskID, DatePart: datePart, Date: date}, nil
}

func parseDatePart(period Period, datePart string) (time.Time, error) {
	switch period {
	case Daily:
		t, err := time.ParseInLocation("2006-01-02", datePart, time.UTC)
		if err != nil {
			return time.Time{}, newValidationError(CodeBadDate, "datePart", datePart, "must be YYYY-MM-DD")
		}
		return t, nil

	case Weekly:
		m := weeklyPartPattern.FindStringSubmatch(datePart)
		if m == nil {
			return time.Time{}, newValidationError(CodeBadDate, "datePart", datePart, "must be YYYY-Www")
		}
		year, _ := strconv.Atoi(m[1])
		week, _ := strconv.Atoi(m[2])
		if week < 1 || week > 53 {
			return time.Time{}, newValidationError(CodeBadDate, "datePart", datePart, "ISO week must be 1-53")
		}
		// Week 53 is accepted unconditionally. For ISO years with only
		// 52 weeks the reconstructed Monday rolls into the next ISO
		// year; that ambiguity is documented behavior, not fixed up.
		return isoWeekStart(year, week), nil

	case Monthly:
		t, err := time.ParseInLocation("2006-01", datePart, time.UTC)
		if err != nil {
			return time.Time{}, newValidationError(CodeBadDate, "datePart", datePart, "must be YYYY-MM")
		}
		return t, nil
	}
	return time.Time{}, newValidationError(CodeBadPeriod, "period", string(period), "unknown period")
}

// isoWeekStart returns UTC midnight of the Monday of the given ISO week.
// January 4th is always inside ISO week 1.
func isoWeekStart(year, week int) time.Time {
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	offset := (int(jan4.Weekday()) + 6) % 7
	week1Monday := jan4.AddDate(0, 0, -offset)
	return week1Monday.AddDate(0, 0, (week-1)*7)
}
