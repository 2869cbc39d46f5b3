package completion

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// AuditHashKey holds implausible self-reported completion dates, keyed
// by task ID. The hash is a side channel for later inspection; its
// contents are never surfaced to end users as truth.
const AuditHashKey = "task:completion:audit"

// KeyValue is one entry of a BatchCompletedAt result.
type KeyValue struct {
	// Present reports whether the key exists at all.
	Present bool

	// At is the completion timestamp parsed from the key's value.
	// Zero when the key is absent or its value does not parse.
	At time.Time
}

// BatchCompletedAt fetches every key's stored completion timestamp in a
// single pipelined round trip. The result slice is 1:1 with and in the
// same order as keys; a transport failure surfaces as one
// StoreUnavailableError for the whole batch.
func (s *Store) BatchCompletedAt(ctx context.Context, keys []string) ([]KeyValue, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.StringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.Get(ctx, key)
	}
	// Exec reports the first command error; a missed GET is redis.Nil
	// and means "absent", not "unavailable".
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, unavailable("batch-completed-at", err)
	}

	results := make([]KeyValue, len(keys))
	for i, cmd := range cmds {
		val, err := cmd.Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		results[i].Present = true
		if t, perr := time.Parse(time.RFC3339, val); perr == nil {
			results[i].At = t
		}
	}
	return results, nil
}

// AuditImplausibleDate records a rejected self-reported date in the
// audit hash. Best-effort: callers log and ignore failures.
func (s *Store) AuditImplausibleDate(ctx context.Context, taskID, reported string) error {
	if err := s.rdb.HSet(ctx, AuditHashKey, taskID, reported).Err(); err != nil {
		return unavailable("audit", err)
	}
	return nil
}

// ReadAudit returns the full implausible-date audit hash.
func (s *Store) ReadAudit(ctx context.Context) (map[string]string, error) {
	m, err := s.rdb.HGetAll(ctx, AuditHashKey).Result()
	if err != nil {
		return nil, unavailable("read-audit", err)
	}
	return m, nil
}
