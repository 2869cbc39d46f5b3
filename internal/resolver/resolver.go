package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/errgroup"

	"github.com/choreloop/choreloop/internal/clock"
	"github.com/choreloop/choreloop/internal/completion"
)

const (
	// DefaultCacheSize bounds the resolution cache (LRU eviction).
	DefaultCacheSize = 512

	// DefaultCacheTTL time-boxes cache entries.
	DefaultCacheTTL = 5 * time.Minute

	// DefaultLogWindow is how many recent adjustment-log entries are
	// fetched per member during the log tier.
	DefaultLogWindow = 300

	// DefaultFanout caps concurrent per-member log fetches.
	DefaultFanout = 8

	// DefaultCutoffYear is the oldest year a self-reported completion
	// date may claim and still be plausible.
	DefaultCutoffYear = 2000
)

// Resolver resolves authoritative completion dates through the tier
// chain documented in the package comment.
//
// Thread-safety: safe for concurrent use; all mutable state lives in the
// thread-safe cache.
type Resolver struct {
	store      *completion.Store
	clk        clock.Clock
	cache      *lru.LRU[string, time.Time]
	logger     *slog.Logger
	window     int64
	fanout     int
	cutoffYear int
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCache overrides the cache bound and TTL.
func WithCache(size int, ttl time.Duration) Option {
	return func(r *Resolver) {
		r.cache = lru.NewLRU[string, time.Time](size, nil, ttl)
	}
}

// WithLogWindow overrides the per-member log fetch window.
func WithLogWindow(n int64) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.window = n
		}
	}
}

// WithFanout overrides the log-fetch concurrency cap.
func WithFanout(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.fanout = n
		}
	}
}

// WithLogger attaches a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithCutoffYear overrides the plausibility cutoff year.
func WithCutoffYear(year int) Option {
	return func(r *Resolver) {
		r.cutoffYear = year
	}
}

// New creates a resolver over the given store and clock.
func New(store *completion.Store, clk clock.Clock, opts ...Option) *Resolver {
	r := &Resolver{
		store:      store,
		clk:        clk,
		cache:      lru.NewLRU[string, time.Time](DefaultCacheSize, nil, DefaultCacheTTL),
		logger:     slog.Default(),
		window:     DefaultLogWindow,
		fanout:     DefaultFanout,
		cutoffYear: DefaultCutoffYear,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns one Resolved per input task, 1:1 and order-preserving.
//
// It errors only on total precondition violations (a malformed member
// list). Store failures never propagate: every failure tier converts to
// a lower-confidence successful result, so the batch always completes.
func (r *Resolver) Resolve(ctx context.Context, tasks []Task, memberIDs []string) ([]Resolved, error) {
	for i, id := range memberIDs {
		if id == "" {
			return nil, fmt.Errorf("malformed member list: empty member ID at index %d", i)
		}
	}

	latest := r.latestFromLogs(ctx, memberIDs)
	storeDates := r.storeTier(ctx, tasks)
	now := r.clk.Now()

	results := make([]Resolved, len(tasks))
	for i, task := range tasks {
		results[i] = r.resolveOne(ctx, task, storeDates, latest, now)
	}
	return results, nil
}

// Invalidate drops the cache entry for a task. Called by the protocol
// before a confirm returns, so the next read cannot be stale.
func (r *Resolver) Invalidate(taskID string) {
	r.cache.Remove(taskID)
}

// Prime repopulates the cache after a successful confirm.
func (r *Resolver) Prime(taskID string, date time.Time) {
	r.cache.Add(taskID, date)
}

func (r *Resolver) resolveOne(ctx context.Context, task Task, storeDates, latest map[string]time.Time, now time.Time) Resolved {
	// Tier 1: non-expired cache entry.
	if d, ok := r.cache.Get(task.ID); ok {
		return Resolved{TaskID: task.ID, Date: d, Source: SourceCache, Confidence: ConfidenceHigh}
	}

	// Tier 2: the current period key's stored completion timestamp.
	if d, ok := storeDates[task.ID]; ok {
		r.cache.Add(task.ID, d)
		return Resolved{TaskID: task.ID, Date: d, Source: SourceStore, Confidence: ConfidenceHigh}
	}

	// Tier 3: latest matching adjustment-log record across members.
	if d, ok := latest[task.ID]; ok {
		r.cache.Add(task.ID, d)
		return Resolved{TaskID: task.ID, Date: d, Source: SourceLog, Confidence: ConfidenceHigh}
	}

	// Tier 4: plausible self-reported date.
	if !task.CompletedDate.IsZero() {
		if r.plausible(task.CompletedDate, now) {
			d := task.CompletedDate.UTC()
			r.cache.Add(task.ID, d)
			return Resolved{TaskID: task.ID, Date: d, Source: SourceTaskProvided, Confidence: ConfidenceMedium}
		}

		// Tier 5: implausible self-report. Substitute "now" rather than
		// propagate a bad date; keep the original in the audit side
		// channel. Substituted dates are never cached.
		r.auditImplausible(ctx, task)
		reported := task.CompletedDate.UTC()
		return Resolved{
			TaskID:       task.ID,
			Date:         now,
			Source:       SourceHeuristic,
			Confidence:   ConfidenceMedium,
			ReportedDate: &reported,
		}
	}

	// Tier 6: no signal at all. "Now", never the epoch.
	return Resolved{TaskID: task.ID, Date: now, Source: SourceHeuristic, Confidence: ConfidenceLow}
}

// plausible rejects the epoch and earlier, the future, and anything
// before the cutoff year.
func (r *Resolver) plausible(d, now time.Time) bool {
	if d.Unix() <= 0 {
		return false
	}
	if d.After(now) {
		return false
	}
	return d.Year() >= r.cutoffYear
}

// storeTier fetches the current period key value for every task with a
// known cadence, in one pipelined round trip. Fail-open: a transport
// failure yields an empty map and the batch falls through to later
// tiers.
func (r *Resolver) storeTier(ctx context.Context, tasks []Task) map[string]time.Time {
	now := r.clk.Now()
	keys := make([]string, 0, len(tasks))
	ids := make([]string, 0, len(tasks))
	for _, task := range tasks {
		if !task.Period.Valid() {
			continue
		}
		key, err := periodKeyFor(task, now)
		if err != nil {
			continue
		}
		keys = append(keys, key)
		ids = append(ids, task.ID)
	}
	if len(keys) == 0 {
		return nil
	}

	values, err := r.store.BatchCompletedAt(ctx, keys)
	if err != nil {
		r.logger.Warn("store tier unavailable, degrading to log tier", "error", err)
		return nil
	}

	dates := make(map[string]time.Time)
	for i, kv := range values {
		if kv.Present && !kv.At.IsZero() {
			dates[ids[i]] = kv.At
		}
	}
	return dates
}

// latestFromLogs gathers each member's recent records in parallel and
// keeps, per task, the maximum timestamp whose source is "task".
//
// Gather with isolation: one member's fetch failure empties only that
// member's contribution. A hard failure of every fetch degrades the
// whole tier (the map comes back empty) without failing resolution.
func (r *Resolver) latestFromLogs(ctx context.Context, memberIDs []string) map[string]time.Time {
	if len(memberIDs) == 0 {
		return nil
	}

	perMember := make([][]completion.Record, len(memberIDs))
	fetchErrs := make([]error, len(memberIDs))

	g := &errgroup.Group{}
	g.SetLimit(r.fanout)
	for i, id := range memberIDs {
		i, id := i, id
		g.Go(func() error {
			recs, err := r.store.ReadLog(ctx, id, 0, r.window-1)
			if err != nil {
				fetchErrs[i] = err
				return nil
			}
			perMember[i] = recs
			return nil
		})
	}
	// Closures never return errors; failures are per-slot.
	_ = g.Wait()

	failed := 0
	for i, err := range fetchErrs {
		if err != nil {
			failed++
			r.logger.Warn("member log fetch failed, excluding member",
				"member_id", memberIDs[i],
				"error", err)
		}
	}
	if failed == len(memberIDs) {
		r.logger.Error("log tier unavailable for all members, falling back to self-reported dates")
		return nil
	}

	latest := make(map[string]time.Time)
	for _, recs := range perMember {
		for _, rec := range recs {
			if rec.Source != completion.SourceTask {
				continue
			}
			t, ok := rec.Time()
			if !ok {
				continue
			}
			if cur, seen := latest[rec.TaskID]; !seen || t.After(cur) {
				latest[rec.TaskID] = t
			}
		}
	}
	return latest
}

func (r *Resolver) auditImplausible(ctx context.Context, task Task) {
	reported := task.CompletedDate.UTC().Format(time.RFC3339)
	if err := r.store.AuditImplausibleDate(ctx, task.ID, reported); err != nil {
		r.logger.Warn("audit write failed",
			"task_id", task.ID,
			"error", err)
	}
}
