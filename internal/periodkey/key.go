package periodkey

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Prefix is the namespace shared by every completion key.
const Prefix = "task:completion"

// MaxKeyLength is the defensive ceiling on a generated key.
const MaxKeyLength = 256

// MaxTaskIDLength bounds the task ID segment. Loose enough that the
// key-length ceiling, not this bound, is what rejects pathological IDs
// combined with the longest period and datePart segments.
const MaxTaskIDLength = 240

var taskIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Key is a decomposed completion key. Keys are generated on demand and
// immutable once generated; only the String form is ever stored.
type Key struct {
	Period   Period
	TaskID   string
	DatePart string

	// Date is the UTC start of the period instance the key identifies.
	Date time.Time
}

// String renders the canonical key form.
func (k Key) String() string {
	return Prefix + ":" + string(k.Period) + ":" + k.TaskID + ":" + k.DatePart
}

// Option adjusts Generate's validation policy.
type Option func(*generateOptions)

type generateOptions struct {
	rejectFutureAfter time.Time
}

// RejectFuture makes Generate fail with a BAD_DATE validation error for
// dates after now. The default allows future dates so fixtures can
// pre-schedule a period's keys.
func RejectFuture(now time.Time) Option {
	return func(o *generateOptions) {
		o.rejectFutureAfter = now
	}
}

// Generate validates the inputs, normalizes date to the period's UTC
// boundary, and returns the canonical key string.
func Generate(period Period, taskID string, date time.Time, opts ...Option) (string, error) {
	var o generateOptions
	for _, opt := range opts {
		opt(&o)
	}

	if !period.Valid() {
		return "", newValidationError(CodeBadPeriod, "period", string(period), "must be one of daily, weekly, monthly")
	}
	if err := validateTaskID(taskID); err != nil {
		return "", err
	}
	if date.IsZero() {
		return "", newValidationError(CodeBadDate, "date", "", "date must be set")
	}
	if !o.rejectFutureAfter.IsZero() && date.After(o.rejectFutureAfter) {
		return "", newValidationError(CodeBadDate, "date", date.UTC().Format(time.RFC3339), "date must not be in the future")
	}

	key := Key{
		Period:   period,
		TaskID:   taskID,
		DatePart: period.DatePart(date),
		Date:     period.Normalize(date),
	}.String()

	if len(key) > MaxKeyLength {
		return "", newValidationError(CodeKeyTooLong, "key", key, fmt.Sprintf("exceeds %d chars", MaxKeyLength))
	}
	return key, nil
}

// ScanPattern builds a glob pattern for prefix-based key discovery.
// Empty arguments become wildcards; the datePart segment is always a
// wildcard.
func ScanPattern(period Period, taskID string) string {
	p := "*"
	if period != "" {
		p = string(period)
	}
	t := "*"
	if taskID != "" {
		t = taskID
	}
	return strings.Join([]string{Prefix, p, t, "*"}, ":")
}

func validateTaskID(taskID string) error {
	if taskID == "" {
		return newValidationError(CodeBadTaskID, "taskId", "", "task ID must not be empty")
	}
	if len(taskID) > MaxTaskIDLength {
		return newValidationError(CodeBadTaskID, "taskId", taskID, fmt.Sprintf("exceeds %d chars", MaxTaskIDLength))
	}
	if !taskIDPattern.MatchString(taskID) {
		return newValidationError(CodeBadTaskID, "taskId", taskID, "must match [A-Za-z0-9_-]+")
	}
	return nil
}
