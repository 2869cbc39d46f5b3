package resolver

import (
	"time"

	"github.com/choreloop/choreloop/internal/periodkey"
)

// Confidence labels how authoritative a resolved completion date is.
type Confidence string

const (
	// ConfidenceHigh means the date came from the cache, the store, or
	// an authoritative log record.
	ConfidenceHigh Confidence = "high"

	// ConfidenceMedium means the date is self-reported or substituted
	// after an implausible self-report.
	ConfidenceMedium Confidence = "medium"

	// ConfidenceLow means no signal existed and "now" was substituted.
	ConfidenceLow Confidence = "low"
)

// Source names the tier that produced a resolved date.
type Source string

const (
	SourceCache        Source = "cache"
	SourceStore        Source = "store"
	SourceLog          Source = "log"
	SourceTaskProvided Source = "task-provided"
	SourceHeuristic    Source = "heuristic-fallback"
)

// Task is the resolver's per-task input: metadata from the task store
// plus an optional self-reported completion date.
type Task struct {
	// ID identifies the task.
	ID string

	// Period is the task's cadence, when known. Tasks without a period
	// skip the store tier (no period key can be derived for them).
	Period periodkey.Period

	// CompletedDate is the task's self-reported completion date.
	// Zero means none was reported.
	CompletedDate time.Time
}

// Resolved is the per-task output: the input task enriched with the best
// available completion date. Ephemeral; persisted only via the cache.
type Resolved struct {
	TaskID     string     `json:"taskId"`
	Date       time.Time  `json:"completedDate"`
	Source     Source     `json:"source"`
	Confidence Confidence `json:"confidence"`

	// ReportedDate retains an implausible self-reported date for audit
	// when a substitute was used. Nil otherwise.
	ReportedDate *time.Time `json:"reportedDate,omitempty"`
}

// periodKeyFor derives the task's current period-instance key.
func periodKeyFor(task Task, now time.Time) (string, error) {
	return periodkey.Generate(task.Period, task.ID, now)
}
