package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/choreloop/choreloop/internal/completion"
	"github.com/choreloop/choreloop/internal/periodkey"
	"github.com/choreloop/choreloop/internal/testutil"
)

var frozenNow = time.Date(2025, 8, 13, 15, 0, 0, 0, time.UTC)

func newTestResolver(t *testing.T, opts ...Option) (*Resolver, *completion.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	store := completion.NewStore(rdb)
	r := New(store, testutil.NewFrozenClock(frozenNow), opts...)
	return r, store, mr
}

func TestResolve_LogTier(t *testing.T) {
	r, store, _ := newTestResolver(t)
	ctx := context.Background()

	older := frozenNow.Add(-48 * time.Hour)
	newer := frozenNow.Add(-2 * time.Hour)

	// Two members completed the same task; the latest timestamp wins.
	require.NoError(t, store.AppendLog(ctx, "alice", completion.NewRecord("dishes", "alice", 5, completion.SourceTask, "", older)))
	require.NoError(t, store.AppendLog(ctx, "bob", completion.NewRecord("dishes", "bob", 5, completion.SourceTask, "", newer)))

	// Revert records never feed date resolution.
	require.NoError(t, store.AppendLog(ctx, "alice", completion.NewRecord("laundry", "alice", -5, completion.SourceTaskRevert, "", newer)))

	resolved, err := r.Resolve(ctx, []Task{{ID: "dishes"}, {ID: "laundry"}}, []string{"alice", "bob"})
	require.NoError(t, err)
	require.Len(t, resolved, 2)

	assert.Equal(t, SourceLog, resolved[0].Source)
	assert.Equal(t, ConfidenceHigh, resolved[0].Confidence)
	assert.Equal(t, newer, resolved[0].Date)

	assert.Equal(t, SourceHeuristic, resolved[1].Source)
	assert.Equal(t, ConfidenceLow, resolved[1].Confidence)
}

func TestResolve_CacheTier(t *testing.T) {
	r, store, _ := newTestResolver(t)
	ctx := context.Background()

	at := frozenNow.Add(-time.Hour)
	require.NoError(t, store.AppendLog(ctx, "alice", completion.NewRecord("dishes", "alice", 5, completion.SourceTask, "", at)))

	first, err := r.Resolve(ctx, []Task{{ID: "dishes"}}, []string{"alice"})
	require.NoError(t, err)
	assert.Equal(t, SourceLog, first[0].Source)

	second, err := r.Resolve(ctx, []Task{{ID: "dishes"}}, []string{"alice"})
	require.NoError(t, err)
	assert.Equal(t, SourceCache, second[0].Source)
	assert.Equal(t, ConfidenceHigh, second[0].Confidence)
	assert.Equal(t, at, second[0].Date)
}

func TestResolve_StoreTier(t *testing.T) {
	r, store, _ := newTestResolver(t)
	ctx := context.Background()

	key, err := periodkey.Generate(periodkey.Daily, "dishes", frozenNow)
	require.NoError(t, err)
	at := frozenNow.Add(-30 * time.Minute)
	require.NoError(t, store.CommitCompletion(ctx, key, completion.NewRecord("dishes", "alice", 5, completion.SourceTask, "", at)))

	// No member list: the period-key value alone resolves the date.
	resolved, err := r.Resolve(ctx, []Task{{ID: "dishes", Period: periodkey.Daily}}, nil)
	require.NoError(t, err)
	assert.Equal(t, SourceStore, resolved[0].Source)
	assert.Equal(t, ConfidenceHigh, resolved[0].Confidence)
	assert.Equal(t, at, resolved[0].Date)
}

func TestResolve_TaskProvidedTier(t *testing.T) {
	r, _, _ := newTestResolver(t)

	reported := frozenNow.Add(-24 * time.Hour)
	resolved, err := r.Resolve(context.Background(),
		[]Task{{ID: "dishes", CompletedDate: reported}}, nil)
	require.NoError(t, err)
	assert.Equal(t, SourceTaskProvided, resolved[0].Source)
	assert.Equal(t, ConfidenceMedium, resolved[0].Confidence)
	assert.Equal(t, reported, resolved[0].Date)
	assert.Nil(t, resolved[0].ReportedDate)
}

func TestResolve_ImplausibleDates(t *testing.T) {
	tests := []struct {
		name     string
		reported time.Time
	}{
		{"epoch", time.Unix(0, 0).UTC()},
		{"future", frozenNow.Add(48 * time.Hour)},
		{"before cutoff", time.Date(1999, 12, 31, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, store, _ := newTestResolver(t)
			ctx := context.Background()

			resolved, err := r.Resolve(ctx, []Task{{ID: "dishes", CompletedDate: tt.reported}}, nil)
			require.NoError(t, err)

			// Substitute "now", never propagate the bad date.
			assert.Equal(t, SourceHeuristic, resolved[0].Source)
			assert.Equal(t, ConfidenceMedium, resolved[0].Confidence)
			assert.Equal(t, frozenNow, resolved[0].Date)
			require.NotNil(t, resolved[0].ReportedDate)
			assert.Equal(t, tt.reported, *resolved[0].ReportedDate)

			// The original lands in the audit side channel.
			entries, err := store.ReadAudit(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.reported.Format(time.RFC3339), entries["dishes"])
		})
	}
}

func TestResolve_HeuristicFallback(t *testing.T) {
	r, _, _ := newTestResolver(t)

	resolved, err := r.Resolve(context.Background(), []Task{{ID: "dishes"}}, []string{"alice"})
	require.NoError(t, err)
	assert.Equal(t, SourceHeuristic, resolved[0].Source)
	assert.Equal(t, ConfidenceLow, resolved[0].Confidence)
	assert.Equal(t, frozenNow, resolved[0].Date, "fallback is now, never the epoch")
}

func TestResolve_TotalCoverageWhenStoreDown(t *testing.T) {
	r, _, mr := newTestResolver(t)
	mr.Close()

	tasks := []Task{
		{ID: "a", Period: periodkey.Daily},
		{ID: "b", CompletedDate: frozenNow.Add(-time.Hour)},
		{ID: "c"},
	}
	resolved, err := r.Resolve(context.Background(), tasks, []string{"alice", "bob"})
	require.NoError(t, err, "a store outage must never fail the batch")
	require.Len(t, resolved, len(tasks), "exactly one result per input")

	assert.Equal(t, "a", resolved[0].TaskID)
	assert.Equal(t, SourceHeuristic, resolved[0].Source)

	assert.Equal(t, "b", resolved[1].TaskID)
	assert.Equal(t, SourceTaskProvided, resolved[1].Source)
	assert.Equal(t, ConfidenceMedium, resolved[1].Confidence)

	assert.Equal(t, "c", resolved[2].TaskID)
	assert.Equal(t, ConfidenceLow, resolved[2].Confidence)
}

func TestResolve_MonotonicConfidence(t *testing.T) {
	r, store, _ := newTestResolver(t)
	ctx := context.Background()

	at := frozenNow.Add(-time.Hour)
	require.NoError(t, store.AppendLog(ctx, "alice", completion.NewRecord("dishes", "alice", 5, completion.SourceTask, "", at)))

	// A self-reported date is present too, but the log tier wins.
	resolved, err := r.Resolve(ctx,
		[]Task{{ID: "dishes", CompletedDate: frozenNow.Add(-10 * 24 * time.Hour)}},
		[]string{"alice"})
	require.NoError(t, err)
	assert.Equal(t, SourceLog, resolved[0].Source)
	assert.NotEqual(t, SourceHeuristic, resolved[0].Source)
	assert.Equal(t, at, resolved[0].Date)
}

func TestResolve_MalformedMemberList(t *testing.T) {
	r, _, _ := newTestResolver(t)

	_, err := r.Resolve(context.Background(), []Task{{ID: "a"}}, []string{"alice", ""})
	require.Error(t, err)
}

func TestResolve_InvalidateAndPrime(t *testing.T) {
	r, store, _ := newTestResolver(t)
	ctx := context.Background()

	at := frozenNow.Add(-time.Hour)
	require.NoError(t, store.AppendLog(ctx, "alice", completion.NewRecord("dishes", "alice", 5, completion.SourceTask, "", at)))

	_, err := r.Resolve(ctx, []Task{{ID: "dishes"}}, []string{"alice"})
	require.NoError(t, err)

	r.Invalidate("dishes")
	resolved, err := r.Resolve(ctx, []Task{{ID: "dishes"}}, []string{"alice"})
	require.NoError(t, err)
	assert.Equal(t, SourceLog, resolved[0].Source, "invalidation forces a fresh resolution")

	primed := frozenNow.Add(-5 * time.Minute)
	r.Prime("dishes", primed)
	resolved, err = r.Resolve(ctx, []Task{{ID: "dishes"}}, []string{"alice"})
	require.NoError(t, err)
	assert.Equal(t, SourceCache, resolved[0].Source)
	assert.Equal(t, primed, resolved[0].Date)
}

func TestResolve_CacheTTLExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	store := completion.NewStore(rdb)
	r := New(store, testutil.NewFrozenClock(frozenNow), WithCache(8, 50*time.Millisecond))
	ctx := context.Background()

	at := frozenNow.Add(-time.Hour)
	require.NoError(t, store.AppendLog(ctx, "alice", completion.NewRecord("dishes", "alice", 5, completion.SourceTask, "", at)))

	_, err := r.Resolve(ctx, []Task{{ID: "dishes"}}, []string{"alice"})
	require.NoError(t, err)

	time.Sleep(80 * time.Millisecond)
	resolved, err := r.Resolve(ctx, []Task{{ID: "dishes"}}, []string{"alice"})
	require.NoError(t, err)
	assert.Equal(t, SourceLog, resolved[0].Source, "expired entries fall through to the log tier")
}
