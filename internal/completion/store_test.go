package completion

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, opts ...StoreOption) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewStore(rdb, opts...), mr
}

func TestStore_Exists(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	ok, err := store.Exists(ctx, "task:completion:daily:t:2025-08-13")
	require.NoError(t, err)
	assert.False(t, ok)

	mr.Set("task:completion:daily:t:2025-08-13", "1")
	ok, err = store.Exists(ctx, "task:completion:daily:t:2025-08-13")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStore_BatchExists_OrderPreserving(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	mr.Set("k-b", "1")
	mr.Set("k-d", "1")

	present, err := store.BatchExists(ctx, []string{"k-a", "k-b", "k-c", "k-d"})
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true, false, true}, present)
}

func TestStore_BatchExists_Empty(t *testing.T) {
	store, _ := newTestStore(t)
	present, err := store.BatchExists(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, present)
}

func TestStore_Unavailable(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	mr.Close()

	_, err := store.Exists(ctx, "k")
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))

	_, err = store.BatchExists(ctx, []string{"a", "b"})
	require.Error(t, err)
	assert.True(t, IsUnavailable(err), "a whole-batch transport failure is one typed error, never partial results")

	err = store.AppendLog(ctx, "u1", NewRecord("t", "u1", 5, SourceTask, "", time.Now()))
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
}

func TestStore_AppendLog_TrimKeepsNewest(t *testing.T) {
	store, _ := newTestStore(t, WithMaxLogLength(3))
	ctx := context.Background()
	base := time.Date(2025, 8, 13, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		rec := NewRecord("t", "u1", i, SourceTask, "", base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, store.AppendLog(ctx, "u1", rec))
	}

	records, err := store.ReadLog(ctx, "u1", 0, -1)
	require.NoError(t, err)
	require.Len(t, records, 3, "log trimmed to its bound")

	// Newest first; the just-appended record survives the trim.
	assert.Equal(t, 4, records[0].Delta)
	assert.Equal(t, 3, records[1].Delta)
	assert.Equal(t, 2, records[2].Delta)
}

func TestStore_ReadLog_SkipsMalformed(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendLog(ctx, "u1", NewRecord("t", "u1", 1, SourceTask, "", time.Now())))
	mr.Lpush(LogKey("u1"), "{not json")
	require.NoError(t, store.AppendLog(ctx, "u1", NewRecord("t", "u1", 2, SourceTask, "", time.Now())))

	records, err := store.ReadLog(ctx, "u1", 0, -1)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 2, records[0].Delta)
	assert.Equal(t, 1, records[1].Delta)
}

func TestStore_CommitCompletion(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2025, 8, 13, 15, 4, 5, 0, time.UTC)
	key := "task:completion:daily:t:2025-08-13"

	rec := NewRecord("t", "u1", 10, SourceTask, "Completed: Dishes", at)
	require.NoError(t, store.CommitCompletion(ctx, key, rec))

	// Key present with the completion timestamp as its value.
	val, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "2025-08-13T15:04:05Z", val)

	// Log entry appended in the same unit.
	records, err := store.ReadLog(ctx, "u1", 0, -1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "t", records[0].TaskID)
	assert.Equal(t, 10, records[0].Delta)
	assert.Equal(t, SourceTask, records[0].Source)

	got, present, err := store.CompletedAt(ctx, key)
	require.NoError(t, err)
	assert.True(t, present)
	assert.Equal(t, at, got)
}

func TestStore_RevertCompletion(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2025, 8, 13, 15, 0, 0, 0, time.UTC)
	key := "task:completion:daily:t:2025-08-13"

	require.NoError(t, store.CommitCompletion(ctx, key, NewRecord("t", "u1", 10, SourceTask, "", at)))
	require.NoError(t, store.RevertCompletion(ctx, key, NewRecord("t", "u1", -10, SourceTaskRevert, "", at.Add(time.Minute))))

	assert.False(t, mr.Exists(key), "period key removed")

	// History is compensated, never deleted.
	records, err := store.ReadLog(ctx, "u1", 0, -1)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, SourceTaskRevert, records[0].Source)
	assert.Equal(t, -10, records[0].Delta)
	assert.Equal(t, SourceTask, records[1].Source)
}

func TestStore_CompletedAt_UnparseableValue(t *testing.T) {
	store, mr := newTestStore(t)
	mr.Set("k", "legacy-marker")

	at, present, err := store.CompletedAt(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, present, "presence alone signals completion")
	assert.True(t, at.IsZero())
}

func TestStore_BatchCompletedAt(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	mr.Set("k-1", "2025-08-13T15:00:00Z")
	mr.Set("k-3", "not-a-date")

	values, err := store.BatchCompletedAt(ctx, []string{"k-1", "k-2", "k-3"})
	require.NoError(t, err)
	require.Len(t, values, 3)

	assert.True(t, values[0].Present)
	assert.Equal(t, time.Date(2025, 8, 13, 15, 0, 0, 0, time.UTC), values[0].At)

	assert.False(t, values[1].Present)

	assert.True(t, values[2].Present)
	assert.True(t, values[2].At.IsZero())
}

func TestStore_Audit(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AuditImplausibleDate(ctx, "t-1", "1970-01-01T00:00:00Z"))
	require.NoError(t, store.AuditImplausibleDate(ctx, "t-2", "2099-01-01T00:00:00Z"))

	entries, err := store.ReadAudit(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"t-1": "1970-01-01T00:00:00Z",
		"t-2": "2099-01-01T00:00:00Z",
	}, entries)
}

func TestRecord_Time(t *testing.T) {
	rec := NewRecord("t", "u", 1, SourceTask, "", time.Date(2025, 8, 13, 15, 0, 0, 0, time.UTC))
	got, ok := rec.Time()
	assert.True(t, ok)
	assert.Equal(t, time.Date(2025, 8, 13, 15, 0, 0, 0, time.UTC), got)

	_, ok = Record{Timestamp: "yesterday"}.Time()
	assert.False(t, ok)
}
