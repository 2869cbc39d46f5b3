package protocol

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/choreloop/choreloop/internal/completion"
)

// Countdown timing defaults. Token minting starts shortly after the
// countdown begins so it overlaps the wait instead of extending it, and
// confirmation fires a safety buffer before zero so the token is ready
// before it is needed.
const (
	DefaultCountdown     = 3 * time.Second
	DefaultInitiateDelay = 150 * time.Millisecond
	DefaultConfirmBuffer = 250 * time.Millisecond
	DefaultResetDelay    = 1500 * time.Millisecond
)

// State is a machine state.
type State string

const (
	StateIdle       State = "idle"
	StateConfirming State = "confirming"
	StateInitiating State = "initiating"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateErrored    State = "error"
)

// Timer is a cancellable scheduled call. *time.Timer satisfies it.
type Timer interface {
	Stop() bool
}

// Scheduler schedules a call after a delay. Implemented by
// SystemScheduler (real timers) and testutil.FakeScheduler (manual
// firing), so the overlap-and-buffer timing is testable without
// wall-clock waits.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

// SystemScheduler schedules on real timers.
type SystemScheduler struct{}

// AfterFunc implements Scheduler via time.AfterFunc.
func (SystemScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

type tokenResult struct {
	token string
	err   error
}

type attempt struct {
	taskID string
	userID string
	ctx    context.Context
	cancel context.CancelFunc

	// tokenCh carries the initiate outcome to the confirm step; the
	// confirm step awaits it rather than ever firing a second initiate.
	tokenCh chan tokenResult

	timers []Timer
}

// Machine drives one client's completion attempts through the countdown
// state machine:
//
//	idle → confirming → (initiating ∥ processing) → completed | error → idle
//
// At most one attempt is outstanding at a time; a repeated Run for the
// same (task, user) while one is in flight is ignored, not queued.
//
// Thread-safety: all state transitions happen under one mutex; network
// calls never run while holding it.
type Machine struct {
	proto  *Protocol
	sched  Scheduler
	logger *slog.Logger

	countdown     time.Duration
	initiateDelay time.Duration
	confirmBuffer time.Duration
	resetDelay    time.Duration

	mu         sync.Mutex
	state      State
	attempt    *attempt
	lastResult Result
	lastErr    error
}

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithTimings overrides the countdown, initiate-delay, confirm-buffer,
// and reset-delay durations. Non-positive values keep the default.
func WithTimings(countdown, initiateDelay, confirmBuffer, resetDelay time.Duration) MachineOption {
	return func(m *Machine) {
		if countdown > 0 {
			m.countdown = countdown
		}
		if initiateDelay > 0 {
			m.initiateDelay = initiateDelay
		}
		if confirmBuffer > 0 {
			m.confirmBuffer = confirmBuffer
		}
		if resetDelay > 0 {
			m.resetDelay = resetDelay
		}
	}
}

// WithMachineLogger attaches a structured logger.
func WithMachineLogger(l *slog.Logger) MachineOption {
	return func(m *Machine) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewMachine creates a machine over the protocol and scheduler.
func NewMachine(proto *Protocol, sched Scheduler, opts ...MachineOption) *Machine {
	m := &Machine{
		proto:         proto,
		sched:         sched,
		logger:        slog.Default(),
		countdown:     DefaultCountdown,
		initiateDelay: DefaultInitiateDelay,
		confirmBuffer: DefaultConfirmBuffer,
		resetDelay:    DefaultResetDelay,
		state:         StateIdle,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current machine state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Last returns the outcome of the most recently finished attempt.
func (m *Machine) Last() (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastResult, m.lastErr
}

// Run starts a completion attempt: enters confirming, schedules the
// initiate call to overlap the countdown, and schedules the confirm
// call at countdown minus the safety buffer.
//
// A repeated Run for the in-flight (task, user) pair returns nil and
// does nothing. A Run for a different pair while one is outstanding
// returns ErrInFlight.
func (m *Machine) Run(ctx context.Context, taskID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.attempt != nil {
		if m.attempt.taskID == taskID && m.attempt.userID == userID {
			return nil
		}
		return ErrInFlight
	}

	actx, cancel := context.WithCancel(ctx)
	a := &attempt{
		taskID:  taskID,
		userID:  userID,
		ctx:     actx,
		cancel:  cancel,
		tokenCh: make(chan tokenResult, 1),
	}
	m.attempt = a
	m.state = StateConfirming
	m.lastResult = Result{}
	m.lastErr = nil

	a.timers = append(a.timers,
		m.sched.AfterFunc(m.initiateDelay, func() { m.runInitiate(a) }),
		m.sched.AfterFunc(m.countdown-m.confirmBuffer, func() { m.runConfirm(a) }),
	)
	return nil
}

// Abort cancels the current attempt: timers are stopped, the attempt
// context is cancelled (propagating into any in-flight initiate or
// confirm call), and the machine returns to idle. No persisted state is
// mutated; aborting after a confirm already succeeded is a no-op on the
// data.
func (m *Machine) Abort() {
	m.mu.Lock()
	defer m.mu.Unlock()

	a := m.attempt
	if a == nil {
		return
	}
	for _, t := range a.timers {
		t.Stop()
	}
	a.cancel()
	m.attempt = nil
	m.state = StateIdle
	m.logger.Debug("attempt aborted", "task_id", a.taskID)
}

func (m *Machine) runInitiate(a *attempt) {
	if !m.transition(a, StateInitiating) {
		return
	}
	token, err := m.proto.Initiate(a.ctx, a.taskID, a.userID)
	a.tokenCh <- tokenResult{token: token, err: err}
	if err != nil {
		// Initiate failure never shows a false "completed" state; the
		// confirm step surfaces the error and the machine resets.
		m.logger.Warn("initiate failed",
			"task_id", a.taskID,
			"error", err)
	}
}

func (m *Machine) runConfirm(a *attempt) {
	if !m.transition(a, StateProcessing) {
		return
	}

	// Causal ordering: confirm never precedes its token. If the
	// countdown reached the confirm point first, wait for the in-flight
	// initiate instead of firing a second one.
	var tr tokenResult
	select {
	case tr = <-a.tokenCh:
	case <-a.ctx.Done():
		m.finish(a, Result{}, a.ctx.Err())
		return
	}
	if tr.err != nil {
		m.finish(a, Result{}, tr.err)
		return
	}

	res, err := m.proto.Confirm(a.ctx, tr.token, a.userID)
	if err != nil && completion.IsUnavailable(err) {
		// Ambiguous failure: the write may have landed server-side.
		if at, landed, rerr := m.proto.Reconcile(a.ctx, a.taskID); rerr == nil && landed {
			m.logger.Info("confirm failed but write landed, reconciled",
				"task_id", a.taskID)
			m.finish(a, Result{TaskID: a.taskID, CompletedAt: at}, nil)
			return
		}
	}
	m.finish(a, res, err)
}

// transition moves to next if the attempt is still current.
func (m *Machine) transition(a *attempt, next State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.attempt != a {
		return false
	}
	m.state = next
	return true
}

func (m *Machine) finish(a *attempt, res Result, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.attempt != a {
		return
	}
	a.cancel()
	m.lastResult = res
	m.lastErr = err
	if err != nil {
		m.state = StateErrored
	} else {
		m.state = StateCompleted
	}

	// Auto-reset to idle after a short delay so the UI can show the
	// terminal state briefly.
	m.sched.AfterFunc(m.resetDelay, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.attempt == a {
			m.attempt = nil
			m.state = StateIdle
		}
	})
}
