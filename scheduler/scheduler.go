// Package scheduler fans events out across enabled rules and publishes
// fired action plans. It owns the clock: a minute-aligned UTC ticker
// synthesizes the cron events that time-based rules match against.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/forge/engine"
	"github.com/c360/forge/errors"
	"github.com/c360/forge/health"
	"github.com/c360/forge/metric"
	"github.com/c360/forge/pkg/worker"
	"github.com/c360/forge/types"
)

// ruleSource yields the rules to evaluate for an event owner. An empty
// userID means every owner; cron ticks use that.
type ruleSource interface {
	ListEnabled(ctx context.Context, userID string) ([]*types.ForgeRule, error)
}

// transport is the slice of the NATS client the scheduler uses.
type transport interface {
	Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) error
	Publish(ctx context.Context, subject string, data []byte) error
}

// Scheduler is the event fan-out component.
type Scheduler struct {
	config    Config
	transport transport
	rules     ruleSource
	builder   *engine.Builder
	pool      *worker.Pool[*types.ForgeEvent]
	metrics   *schedulerMetrics
	logger    *slog.Logger

	shutdown chan struct{}
	done     chan struct{}

	started         atomic.Bool
	startTime       time.Time
	eventsProcessed atomic.Int64
	plansPublished  atomic.Int64
	errorCount      atomic.Int64

	mu           sync.RWMutex
	lastError    string
	lastActivity time.Time
}

// New creates a scheduler. A nil registry disables metrics; a nil
// logger falls back to slog.Default.
func New(config Config, transport transport, rules ruleSource, registry *metric.Registry, logger *slog.Logger) (*Scheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if transport == nil {
		return nil, errors.WrapInvalid(nil, "scheduler", "New", "transport cannot be nil")
	}
	if rules == nil {
		return nil, errors.WrapInvalid(nil, "scheduler", "New", "rule source cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Scheduler{
		config:    config,
		transport: transport,
		rules:     rules,
		builder:   engine.NewBuilder(),
		metrics:   newSchedulerMetrics(registry),
		logger:    logger.With("component", "scheduler"),
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
	}

	pool, err := worker.NewPool(config.Workers, config.QueueSize, s.evaluate)
	if err != nil {
		return nil, err
	}
	s.pool = pool

	return s, nil
}

// Start subscribes to event subjects and launches the cron ticker.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.ErrAlreadyStarted
	}
	s.startTime = time.Now().UTC()

	if err := s.pool.Start(ctx); err != nil {
		return err
	}

	subject := EventSubjectPrefix + ".>"
	if err := s.transport.Subscribe(ctx, subject, s.handleEvent); err != nil {
		return errors.WrapTransient(err, "scheduler", "Start",
			fmt.Sprintf("subscribe to %s", subject))
	}

	go s.run(ctx)

	s.logger.Info("scheduler started",
		"subject", subject,
		"workers", s.config.Workers,
		"cron_ticker", s.config.CronTicker)
	return nil
}

// run drives the minute ticker until shutdown. The first tick is
// aligned to the next minute boundary so cron matching sees clean
// wall-clock minutes.
func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	if !s.config.CronTicker {
		<-s.shutdown
		return
	}

	now := time.Now().UTC()
	first := now.Truncate(time.Minute).Add(time.Minute)
	timer := time.NewTimer(first.Sub(now))
	defer timer.Stop()

	var ticker *time.Ticker
	for {
		select {
		case <-s.shutdown:
			if ticker != nil {
				ticker.Stop()
			}
			return
		case <-ctx.Done():
			if ticker != nil {
				ticker.Stop()
			}
			return
		case tick := <-timer.C:
			ticker = time.NewTicker(time.Minute)
			s.submitCronTick(tick)
			for {
				select {
				case <-s.shutdown:
					ticker.Stop()
					return
				case <-ctx.Done():
					ticker.Stop()
					return
				case tick = <-ticker.C:
					s.submitCronTick(tick)
				}
			}
		}
	}
}

// submitCronTick synthesizes a cron event for the tick's minute.
func (s *Scheduler) submitCronTick(tick time.Time) {
	event := &types.ForgeEvent{
		Type:    types.TriggerCron,
		Payload: types.ConfigMap{},
		At:      tick.UTC().Truncate(time.Minute),
	}
	s.submit(event)
}

// handleEvent decodes an inbound event and queues it for evaluation.
func (s *Scheduler) handleEvent(_ context.Context, data []byte) {
	var event types.ForgeEvent
	if err := json.Unmarshal(data, &event); err != nil {
		s.recordError("decode", err)
		return
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	if err := event.Validate(); err != nil {
		s.recordError("validate", err)
		return
	}
	s.submit(&event)
}

func (s *Scheduler) submit(event *types.ForgeEvent) {
	s.metrics.recordEvent(string(event.Type))
	if err := s.pool.TrySubmit(event); err != nil {
		s.metrics.recordDrop()
		s.recordError("queue", err)
	}
}

// evaluate runs one event against every enabled rule for its owner and
// publishes the plans that fire. It is the worker pool processor.
func (s *Scheduler) evaluate(ctx context.Context, event *types.ForgeEvent) error {
	start := time.Now()
	defer func() {
		s.metrics.recordDuration(time.Since(start).Seconds())
	}()

	rules, err := s.rules.ListEnabled(ctx, event.UserID)
	if err != nil {
		s.recordError("list_rules", err)
		return err
	}

	fired := 0
	for _, rule := range rules {
		plan := s.builder.BuildPlan(rule, event)
		if plan == nil {
			s.metrics.recordEvaluation(string(event.Type), "skipped")
			continue
		}
		s.metrics.recordEvaluation(string(event.Type), "fired")

		if err := s.publishPlan(ctx, plan); err != nil {
			s.recordError("publish", err)
			continue
		}
		fired++
		s.metrics.recordPlan(string(plan.ActionType))
		s.plansPublished.Add(1)
	}

	s.eventsProcessed.Add(1)
	s.mu.Lock()
	s.lastActivity = time.Now().UTC()
	s.mu.Unlock()

	if fired > 0 {
		s.logger.Debug("event fan-out complete",
			"event_type", event.Type,
			"rules_checked", len(rules),
			"plans_fired", fired)
	}
	return nil
}

func (s *Scheduler) publishPlan(ctx context.Context, plan *types.ActionPlan) error {
	data, err := json.Marshal(plan)
	if err != nil {
		return errors.WrapFatal(err, "scheduler", "publishPlan", "marshal plan")
	}
	if err := s.transport.Publish(ctx, PlanSubject, data); err != nil {
		return errors.WrapTransient(err, "scheduler", "publishPlan", "publish plan")
	}
	return nil
}

func (s *Scheduler) recordError(stage string, err error) {
	s.errorCount.Add(1)
	s.metrics.recordError(stage)
	s.mu.Lock()
	s.lastError = err.Error()
	s.mu.Unlock()
	s.logger.Warn("scheduler error", "stage", stage, "error", err)
}

// Stop halts the ticker and drains the worker pool.
func (s *Scheduler) Stop(ctx context.Context) error {
	if !s.started.CompareAndSwap(true, false) {
		return errors.ErrNotStarted
	}

	close(s.shutdown)
	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.pool.Stop()
	s.logger.Info("scheduler stopped",
		"events_processed", s.eventsProcessed.Load(),
		"plans_published", s.plansPublished.Load())
	return nil
}

// Health reports the scheduler's current state.
func (s *Scheduler) Health() health.Status {
	s.mu.RLock()
	lastError := s.lastError
	lastActivity := s.lastActivity
	s.mu.RUnlock()

	if !s.started.Load() {
		return health.NewUnhealthy("scheduler", "not started")
	}

	status := health.NewHealthy("scheduler", "")
	if lastError != "" {
		status = health.NewDegraded("scheduler", lastError)
	}
	return status.WithMetrics(&health.Metrics{
		Uptime:          time.Since(s.startTime),
		ErrorCount:      s.errorCount.Load(),
		EventsProcessed: s.eventsProcessed.Load(),
		LastActivity:    lastActivity,
	})
}
