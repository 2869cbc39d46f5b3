package protocol

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/choreloop/choreloop/internal/clock"
	"github.com/choreloop/choreloop/internal/completion"
	"github.com/choreloop/choreloop/internal/periodkey"
)

// TaskMeta is the slice of task metadata the protocol needs from the
// task store: identity, cadence, score, and assignment.
type TaskMeta struct {
	ID         string
	Name       string
	Score      int
	AssigneeID string
	Period     periodkey.Period
}

// TaskSource looks up task metadata by ID. Implemented by the product's
// CRUD layer; treated as an opaque collaborator here.
type TaskSource interface {
	Task(ctx context.Context, taskID string) (TaskMeta, error)
}

// Authorizer decides whether a user may act on a task (assignee or
// elevated role). Implemented by the product's auth layer.
type Authorizer interface {
	CanComplete(ctx context.Context, userID string, task TaskMeta) error
}

// AssigneeOnly authorizes the task's assignee, or anyone when the task
// is unassigned. The product substitutes a role-aware implementation.
type AssigneeOnly struct{}

// CanComplete implements Authorizer.
func (AssigneeOnly) CanComplete(_ context.Context, userID string, task TaskMeta) error {
	if task.AssigneeID == "" || task.AssigneeID == userID {
		return nil
	}
	return ErrNotAllowed
}

// CacheControl is the slice of the resolver the protocol needs: cache
// invalidation before a confirm returns, and repopulation after.
type CacheControl interface {
	Invalidate(taskID string)
	Prime(taskID string, date time.Time)
}

// Result is a successful confirmation.
type Result struct {
	TaskID      string
	CompletedAt time.Time
}

// Protocol exposes the two-phase operations. It holds no per-attempt
// state; the Machine layers the countdown state machine on top.
type Protocol struct {
	store  *completion.Store
	vault  *Vault
	cache  CacheControl
	tasks  TaskSource
	auth   Authorizer
	clk    clock.Clock
	logger *slog.Logger
}

// NewProtocol wires the two-phase operations over their collaborators.
func NewProtocol(store *completion.Store, vault *Vault, cache CacheControl, tasks TaskSource, auth Authorizer, clk clock.Clock, logger *slog.Logger) *Protocol {
	if logger == nil {
		logger = slog.Default()
	}
	return &Protocol{store: store, vault: vault, cache: cache, tasks: tasks, auth: auth, clk: clk, logger: logger}
}

// Initiate validates that userID may act on the task and mints a
// single-use token scoped to (taskID, userID). No completion state is
// mutated.
func (p *Protocol) Initiate(ctx context.Context, taskID, userID string) (string, error) {
	meta, err := p.tasks.Task(ctx, taskID)
	if err != nil {
		return "", fmt.Errorf("initiate: %w", err)
	}
	if err := p.auth.CanComplete(ctx, userID, meta); err != nil {
		return "", fmt.Errorf("initiate: %w", err)
	}

	token, err := p.vault.Mint(ctx, taskID, userID)
	if err != nil {
		return "", err
	}
	p.logger.Debug("completion initiated",
		"task_id", taskID,
		"user_id", userID)
	return token, nil
}

// Confirm redeems the token and atomically marks the period key
// present, appends the completion record, and invalidates then
// repopulates the cache entry for the task.
//
// Errors: TokenError (re-initiate, or already completed when TokenUsed)
// versus StoreUnavailableError (retryable) are distinct so the UI can
// tell them apart.
func (p *Protocol) Confirm(ctx context.Context, token, userID string) (Result, error) {
	scope, err := p.vault.Redeem(ctx, token, userID)
	if err != nil {
		return Result{}, err
	}

	meta, err := p.tasks.Task(ctx, scope.TaskID)
	if err != nil {
		return Result{}, fmt.Errorf("confirm: %w", err)
	}

	now := p.clk.Now()
	key, err := periodkey.Generate(meta.Period, meta.ID, now)
	if err != nil {
		return Result{}, fmt.Errorf("confirm: %w", err)
	}

	rec := completion.NewRecord(meta.ID, userID, meta.Score, completion.SourceTask, "Completed: "+meta.Name, now)
	if err := p.store.CommitCompletion(ctx, key, rec); err != nil {
		return Result{}, err
	}

	// Invalidate before returning success so an immediate re-read
	// cannot see the pre-completion cache entry.
	p.cache.Invalidate(meta.ID)
	p.cache.Prime(meta.ID, now)

	p.logger.Info("completion confirmed",
		"task_id", meta.ID,
		"user_id", userID,
		"key", key)
	return Result{TaskID: meta.ID, CompletedAt: now}, nil
}

// Revert toggles a completed task back to incomplete: the period key is
// removed and a compensating record appended. History is append-only;
// nothing is deleted from the log.
func (p *Protocol) Revert(ctx context.Context, taskID, userID string) error {
	meta, err := p.tasks.Task(ctx, taskID)
	if err != nil {
		return fmt.Errorf("revert: %w", err)
	}
	if err := p.auth.CanComplete(ctx, userID, meta); err != nil {
		return fmt.Errorf("revert: %w", err)
	}

	now := p.clk.Now()
	key, err := periodkey.Generate(meta.Period, meta.ID, now)
	if err != nil {
		return fmt.Errorf("revert: %w", err)
	}

	rec := completion.NewRecord(meta.ID, userID, -meta.Score, completion.SourceTaskRevert, "Reverted: "+meta.Name, now)
	if err := p.store.RevertCompletion(ctx, key, rec); err != nil {
		return err
	}
	p.cache.Invalidate(meta.ID)

	p.logger.Info("completion reverted",
		"task_id", meta.ID,
		"user_id", userID)
	return nil
}

// Reconcile probes whether a completion actually landed for the task's
// current period instance. Used after an ambiguous confirm failure: the
// network call failed, but the server-side write may have succeeded.
func (p *Protocol) Reconcile(ctx context.Context, taskID string) (time.Time, bool, error) {
	meta, err := p.tasks.Task(ctx, taskID)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("reconcile: %w", err)
	}

	now := p.clk.Now()
	key, err := periodkey.Generate(meta.Period, meta.ID, now)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("reconcile: %w", err)
	}

	at, present, err := p.store.CompletedAt(ctx, key)
	if err != nil {
		return time.Time{}, false, err
	}
	if !present {
		return time.Time{}, false, nil
	}
	if at.IsZero() {
		at = now
	}
	return at, true, nil
}
