// Package dispatch consumes fired action plans, enforces at-most-once
// execution through the run ledger, and hands each plan to the executor
// registered for its action type.
package dispatch

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/forge/errors"
	"github.com/c360/forge/health"
	"github.com/c360/forge/ledger"
	"github.com/c360/forge/metric"
	"github.com/c360/forge/pkg/retry"
	"github.com/c360/forge/scheduler"
	"github.com/c360/forge/types"
)

// runLedger is the slice of the ledger the dispatcher uses.
type runLedger interface {
	Reserve(ctx context.Context, run *ledger.Run) (uint64, error)
	Resolve(ctx context.Context, run *ledger.Run, revision uint64, execErr error) error
}

// subscriber is the transport slice the dispatcher consumes plans on.
type subscriber interface {
	Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) error
}

// Dispatcher executes action plans at most once per dedupe key.
type Dispatcher struct {
	transport subscriber
	ledger    runLedger
	registry  *Registry
	retryCfg  retry.Config
	metrics   *dispatchMetrics
	logger    *slog.Logger

	// onExecuted, when set, observes every successfully executed plan.
	// The service layer uses it to feed the activity websocket.
	onExecuted func(*types.ActionPlan)

	started         atomic.Bool
	startTime       time.Time
	plansExecuted   atomic.Int64
	plansDuplicated atomic.Int64
	errorCount      atomic.Int64

	mu        sync.RWMutex
	lastError string
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRetryConfig overrides the retry policy for transient executor
// failures.
func WithRetryConfig(cfg retry.Config) Option {
	return func(d *Dispatcher) { d.retryCfg = cfg }
}

// WithExecutedHook installs an observer for successfully executed plans.
func WithExecutedHook(fn func(*types.ActionPlan)) Option {
	return func(d *Dispatcher) { d.onExecuted = fn }
}

// New creates a dispatcher. A nil registry of executors is rejected; a
// nil metrics registry disables metrics.
func New(transport subscriber, runs runLedger, executors *Registry, metricsRegistry *metric.Registry, logger *slog.Logger, opts ...Option) (*Dispatcher, error) {
	if transport == nil {
		return nil, errors.WrapInvalid(nil, "dispatch", "New", "transport cannot be nil")
	}
	if runs == nil {
		return nil, errors.WrapInvalid(nil, "dispatch", "New", "ledger cannot be nil")
	}
	if executors == nil {
		return nil, errors.WrapInvalid(nil, "dispatch", "New", "executor registry cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		transport: transport,
		ledger:    runs,
		registry:  executors,
		retryCfg:  retry.DefaultConfig(),
		metrics:   newDispatchMetrics(metricsRegistry),
		logger:    logger.With("component", "dispatch"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Start subscribes to the plan queue.
func (d *Dispatcher) Start(ctx context.Context) error {
	if !d.started.CompareAndSwap(false, true) {
		return errors.ErrAlreadyStarted
	}
	d.startTime = time.Now().UTC()

	if err := d.transport.Subscribe(ctx, scheduler.PlanSubject, d.handlePlan); err != nil {
		return errors.WrapTransient(err, "dispatch", "Start", "subscribe to plan queue")
	}

	d.logger.Info("dispatcher started", "subject", scheduler.PlanSubject)
	return nil
}

// Stop marks the dispatcher stopped. Subscriptions are owned by the
// NATS client and drained on its Close.
func (d *Dispatcher) Stop(context.Context) error {
	if !d.started.CompareAndSwap(true, false) {
		return errors.ErrNotStarted
	}
	d.logger.Info("dispatcher stopped",
		"plans_executed", d.plansExecuted.Load(),
		"duplicates_skipped", d.plansDuplicated.Load())
	return nil
}

// handlePlan is the plan queue message handler.
func (d *Dispatcher) handlePlan(ctx context.Context, data []byte) {
	d.metrics.recordReceived()

	var plan types.ActionPlan
	if err := json.Unmarshal(data, &plan); err != nil {
		d.recordError("decode", err)
		return
	}
	d.Dispatch(ctx, &plan)
}

// Dispatch reserves the plan's dedupe key and executes it. Duplicate
// keys are skipped silently at Debug level; that is the normal path
// for overlapping triggers, not an error.
func (d *Dispatcher) Dispatch(ctx context.Context, plan *types.ActionPlan) {
	if plan.DedupeKey == "" {
		d.recordError("validate", errors.WrapInvalid(nil, "dispatch", "Dispatch", "plan has no dedupe key"))
		return
	}

	run := &ledger.Run{
		DedupeKey:  plan.DedupeKey,
		RuleID:     plan.RuleID,
		UserID:     plan.UserID,
		ActionType: string(plan.ActionType),
	}

	revision, err := d.ledger.Reserve(ctx, run)
	if err != nil {
		if stderrors.Is(err, errors.ErrDuplicateRun) {
			d.plansDuplicated.Add(1)
			d.metrics.recordDuplicate()
			d.logger.Debug("duplicate plan skipped",
				"rule_id", plan.RuleID,
				"dedupe_key", plan.DedupeKey)
			return
		}
		d.recordError("reserve", err)
		return
	}

	execErr := d.execute(ctx, plan)
	if resolveErr := d.ledger.Resolve(ctx, run, revision, execErr); resolveErr != nil {
		d.recordError("resolve", resolveErr)
	}

	if execErr != nil {
		d.recordError("execute", execErr)
		d.metrics.recordExecution(string(plan.ActionType), "failed")
		return
	}

	d.plansExecuted.Add(1)
	d.metrics.recordExecution(string(plan.ActionType), "success")
	d.logger.Info("plan executed",
		"rule_id", plan.RuleID,
		"action_type", plan.ActionType,
		"dedupe_key", plan.DedupeKey)

	if d.onExecuted != nil {
		d.onExecuted(plan)
	}
}

// execute runs the plan's executor, retrying transient failures.
// Invalid and fatal error classes are not retried.
func (d *Dispatcher) execute(ctx context.Context, plan *types.ActionPlan) error {
	start := time.Now()
	defer func() {
		d.metrics.recordDuration(string(plan.ActionType), time.Since(start).Seconds())
	}()

	executor := d.registry.For(plan.ActionType)
	return retry.Do(ctx, d.retryCfg, func() error {
		err := executor.Execute(ctx, plan)
		if err != nil && !errors.IsTransient(err) {
			return retry.NonRetryable(err)
		}
		return err
	})
}

func (d *Dispatcher) recordError(stage string, err error) {
	d.errorCount.Add(1)
	d.metrics.recordError(stage)
	d.mu.Lock()
	d.lastError = err.Error()
	d.mu.Unlock()
	d.logger.Warn("dispatch error", "stage", stage, "error", err)
}

// Health reports the dispatcher's current state.
func (d *Dispatcher) Health() health.Status {
	d.mu.RLock()
	lastError := d.lastError
	d.mu.RUnlock()

	if !d.started.Load() {
		return health.NewUnhealthy("dispatch", "not started")
	}

	status := health.NewHealthy("dispatch", "")
	if lastError != "" {
		status = health.NewDegraded("dispatch", lastError)
	}
	return status.WithMetrics(&health.Metrics{
		Uptime:          time.Since(d.startTime),
		ErrorCount:      d.errorCount.Load(),
		EventsProcessed: d.plansExecuted.Load(),
	})
}
