package completion

import (
	"encoding/json"
	"fmt"
	"time"
)

// Record sources. Resolution (tier 2) only trusts SourceTask timestamps;
// compensating entries written by the revert path use SourceTaskRevert
// so undone completions never feed date resolution.
const (
	SourceTask       = "task"
	SourceTaskRevert = "task-revert"
)

// Record is one append-only adjustment-log entry. Records are created by
// the protocol's confirm (or revert) step and never mutated; the log is
// trimmed from the tail, oldest first.
type Record struct {
	TaskID    string `json:"taskId"`
	UserID    string `json:"userId"`
	Delta     int    `json:"delta"`
	Source    string `json:"source"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

// NewRecord stamps a record with the given completion time in RFC 3339 UTC.
func NewRecord(taskID, userID string, delta int, source, reason string, at time.Time) Record {
	return Record{
		TaskID:    taskID,
		UserID:    userID,
		Delta:     delta,
		Source:    source,
		Reason:    reason,
		Timestamp: at.UTC().Format(time.RFC3339),
	}
}

// Time parses the record's timestamp. A record with an unparseable
// timestamp reports ok=false and is excluded from resolution.
func (r Record) Time() (time.Time, bool) {
	t, err := time.Parse(time.RFC3339, r.Timestamp)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (r Record) marshal() (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}
	return string(b), nil
}
