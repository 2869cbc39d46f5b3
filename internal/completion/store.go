package completion

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultMaxLogLength is the per-user adjustment-log bound. Appends trim
// the log to this many entries, oldest evicted.
const DefaultMaxLogLength = 1000

// LogKey returns the per-user adjustment-log key.
func LogKey(userID string) string {
	return "user:" + userID + ":adjustment_log"
}

// Store wraps the KV client with the engine's persistence primitives.
//
// Thread-safety: Store is stateless beyond its client and safe for
// concurrent use.
type Store struct {
	rdb    redis.UniversalClient
	maxLog int64
	logger *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithMaxLogLength overrides the per-user log bound.
func WithMaxLogLength(n int64) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.maxLog = n
		}
	}
}

// WithLogger attaches a structured logger.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStore creates a store over the given KV client.
func NewStore(rdb redis.UniversalClient, opts ...StoreOption) *Store {
	s := &Store{rdb: rdb, maxLog: DefaultMaxLogLength, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Exists reports whether the completion key is present. Presence of the
// key, regardless of value, means "complete for this period instance".
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, unavailable("exists", err)
	}
	return n > 0, nil
}

// BatchExists checks every key in a single pipelined round trip.
//
// The result slice is 1:1 with and in the same order as keys. A
// transport failure for the batch surfaces as one StoreUnavailableError,
// never as partial results.
func (s *Store) BatchExists(ctx context.Context, keys []string) ([]bool, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.IntCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.Exists(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, unavailable("batch-exists", err)
	}

	results := make([]bool, len(keys))
	for i, cmd := range cmds {
		results[i] = cmd.Val() > 0
	}
	return results, nil
}

// CompletedAt returns the completion timestamp stored as the key's
// value. ok is false when the key is absent. A present key whose value
// does not parse still reports ok=true with a zero time (presence alone
// signals completion).
func (s *Store) CompletedAt(ctx context.Context, key string) (time.Time, bool, error) {
	val, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, unavailable("completed-at", err)
	}
	t, perr := time.Parse(time.RFC3339, val)
	if perr != nil {
		return time.Time{}, true, nil
	}
	return t, true, nil
}

// AppendLog prepends a record to the user's adjustment log and trims the
// log to its bound as one logical unit. The trim bound is expressed
// relative to the list head after the push, so trimming can never drop
// the just-appended record.
func (s *Store) AppendLog(ctx context.Context, userID string, rec Record) error {
	payload, err := rec.marshal()
	if err != nil {
		return fmt.Errorf("append log: %w", err)
	}

	logKey := LogKey(userID)
	tx := s.rdb.TxPipeline()
	tx.LPush(ctx, logKey, payload)
	tx.LTrim(ctx, logKey, 0, s.maxLog-1)
	if _, err := tx.Exec(ctx); err != nil {
		return unavailable("append-log", err)
	}
	return nil
}

// ReadLog returns the user's records from list positions start..end
// (newest first, inclusive, negative end means "through the tail").
// Malformed entries are skipped and counted, never fatal.
func (s *Store) ReadLog(ctx context.Context, userID string, start, end int64) ([]Record, error) {
	raw, err := s.rdb.LRange(ctx, LogKey(userID), start, end).Result()
	if err != nil {
		return nil, unavailable("read-log", err)
	}

	records := make([]Record, 0, len(raw))
	skipped := 0
	for _, entry := range raw {
		var rec Record
		if err := json.Unmarshal([]byte(entry), &rec); err != nil {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	if skipped > 0 {
		s.logger.Warn("skipped malformed adjustment-log entries",
			"user_id", userID,
			"skipped", skipped)
	}
	return records, nil
}

// CommitCompletion atomically marks the period key present (value: the
// completion timestamp) and appends the record to the user's log.
// Executed as one MULTI so a partial failure cannot leave the key
// present without its log entry.
func (s *Store) CommitCompletion(ctx context.Context, key string, rec Record) error {
	payload, err := rec.marshal()
	if err != nil {
		return fmt.Errorf("commit completion: %w", err)
	}

	logKey := LogKey(rec.UserID)
	tx := s.rdb.TxPipeline()
	tx.Set(ctx, key, rec.Timestamp, 0)
	tx.LPush(ctx, logKey, payload)
	tx.LTrim(ctx, logKey, 0, s.maxLog-1)
	if _, err := tx.Exec(ctx); err != nil {
		return unavailable("commit", err)
	}
	return nil
}

// RevertCompletion atomically removes the period key and appends the
// compensating record. History is never deleted, only compensated.
func (s *Store) RevertCompletion(ctx context.Context, key string, rec Record) error {
	payload, err := rec.marshal()
	if err != nil {
		return fmt.Errorf("revert completion: %w", err)
	}

	logKey := LogKey(rec.UserID)
	tx := s.rdb.TxPipeline()
	tx.Del(ctx, key)
	tx.LPush(ctx, logKey, payload)
	tx.LTrim(ctx, logKey, 0, s.maxLog-1)
	if _, err := tx.Exec(ctx); err != nil {
		return unavailable("revert", err)
	}
	return nil
}
