package dispatch

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/forge/errors"
	"github.com/c360/forge/ledger"
	"github.com/c360/forge/pkg/retry"
	"github.com/c360/forge/types"
)

type fakeLedger struct {
	mu       sync.Mutex
	reserved map[string]*ledger.Run
	resolved map[string]ledger.RunState
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		reserved: make(map[string]*ledger.Run),
		resolved: make(map[string]ledger.RunState),
	}
}

func (f *fakeLedger) Reserve(_ context.Context, run *ledger.Run) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.reserved[run.DedupeKey]; exists {
		return 0, errors.WrapInvalid(errors.ErrDuplicateRun, "ledger", "Reserve", "dedupe key already reserved")
	}
	f.reserved[run.DedupeKey] = run
	return uint64(len(f.reserved)), nil
}

func (f *fakeLedger) Resolve(_ context.Context, run *ledger.Run, _ uint64, execErr error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	state := ledger.RunCompleted
	if execErr != nil {
		state = ledger.RunFailed
	}
	f.resolved[run.DedupeKey] = state
	return nil
}

type fakeSub struct{}

func (fakeSub) Subscribe(context.Context, string, func(context.Context, []byte)) error {
	return nil
}

type fakePub struct {
	mu        sync.Mutex
	published map[string][][]byte
}

func newFakePub() *fakePub {
	return &fakePub{published: make(map[string][][]byte)}
}

func (f *fakePub) Publish(_ context.Context, subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[subject] = append(f.published[subject], data)
	return nil
}

func samplePlan() *types.ActionPlan {
	return &types.ActionPlan{
		RuleID:      "rule-001",
		UserID:      "user-001",
		TriggerType: types.TriggerWebhook,
		ActionType:  types.ActionQueueQuest,
		ActionConfig: types.ConfigMap{
			"questId": "quest-42",
		},
		QueuedAt:  time.Date(2025, time.June, 2, 9, 30, 0, 0, time.UTC),
		EventAt:   time.Date(2025, time.June, 2, 9, 30, 0, 0, time.UTC),
		DedupeKey: "event:evt-1",
	}
}

// fastRetry keeps failing-executor tests quick.
func fastRetry() retry.Config {
	return retry.Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func newTestDispatcher(t *testing.T, runs runLedger, executors *Registry, opts ...Option) *Dispatcher {
	t.Helper()
	opts = append([]Option{WithRetryConfig(fastRetry())}, opts...)
	d, err := New(fakeSub{}, runs, executors, nil, nil, opts...)
	require.NoError(t, err)
	return d
}

func TestDispatch_DefaultExecutorForwardsPlan(t *testing.T) {
	runs := newFakeLedger()
	pub := newFakePub()
	d := newTestDispatcher(t, runs, NewRegistry(NewNATSExecutor(pub)))

	plan := samplePlan()
	d.Dispatch(context.Background(), plan)

	payloads := pub.published["forge.exec.queue-quest"]
	require.Len(t, payloads, 1)

	var forwarded types.ActionPlan
	require.NoError(t, json.Unmarshal(payloads[0], &forwarded))
	assert.Equal(t, plan.RuleID, forwarded.RuleID)
	assert.Equal(t, plan.DedupeKey, forwarded.DedupeKey)

	assert.Equal(t, ledger.RunCompleted, runs.resolved[plan.DedupeKey])
	assert.Equal(t, int64(1), d.plansExecuted.Load())
}

func TestDispatch_DuplicateSkipped(t *testing.T) {
	runs := newFakeLedger()
	pub := newFakePub()
	d := newTestDispatcher(t, runs, NewRegistry(NewNATSExecutor(pub)))

	d.Dispatch(context.Background(), samplePlan())
	d.Dispatch(context.Background(), samplePlan())

	assert.Len(t, pub.published["forge.exec.queue-quest"], 1)
	assert.Equal(t, int64(1), d.plansExecuted.Load())
	assert.Equal(t, int64(1), d.plansDuplicated.Load())
	assert.Equal(t, int64(0), d.errorCount.Load())
}

func TestDispatch_RegisteredExecutorWins(t *testing.T) {
	runs := newFakeLedger()
	pub := newFakePub()
	registry := NewRegistry(NewNATSExecutor(pub))

	var got *types.ActionPlan
	registry.Register(types.ActionQueueQuest, ExecutorFunc(func(_ context.Context, plan *types.ActionPlan) error {
		got = plan
		return nil
	}))
	d := newTestDispatcher(t, runs, registry)

	d.Dispatch(context.Background(), samplePlan())

	require.NotNil(t, got)
	assert.Equal(t, "rule-001", got.RuleID)
	assert.Empty(t, pub.published)
}

func TestDispatch_TransientErrorRetried(t *testing.T) {
	runs := newFakeLedger()
	attempts := 0
	registry := NewRegistry(ExecutorFunc(func(context.Context, *types.ActionPlan) error {
		attempts++
		if attempts < 3 {
			return errors.WrapTransient(stderrors.New("downstream timeout"), "test", "Execute", "publish quest")
		}
		return nil
	}))
	d := newTestDispatcher(t, runs, registry)

	plan := samplePlan()
	d.Dispatch(context.Background(), plan)

	assert.Equal(t, 3, attempts)
	assert.Equal(t, ledger.RunCompleted, runs.resolved[plan.DedupeKey])
}

func TestDispatch_InvalidErrorNotRetried(t *testing.T) {
	runs := newFakeLedger()
	attempts := 0
	registry := NewRegistry(ExecutorFunc(func(context.Context, *types.ActionPlan) error {
		attempts++
		return errors.WrapInvalid(nil, "test", "Execute", "malformed quest config")
	}))
	d := newTestDispatcher(t, runs, registry)

	plan := samplePlan()
	d.Dispatch(context.Background(), plan)

	assert.Equal(t, 1, attempts)
	assert.Equal(t, ledger.RunFailed, runs.resolved[plan.DedupeKey])
	assert.Equal(t, int64(0), d.plansExecuted.Load())
}

func TestDispatch_FailedRunKeepsKeyClaimed(t *testing.T) {
	runs := newFakeLedger()
	registry := NewRegistry(ExecutorFunc(func(context.Context, *types.ActionPlan) error {
		return errors.WrapFatal(stderrors.New("schema mismatch"), "test", "Execute", "decode plan")
	}))
	d := newTestDispatcher(t, runs, registry)

	d.Dispatch(context.Background(), samplePlan())
	d.Dispatch(context.Background(), samplePlan())

	assert.Equal(t, int64(1), d.plansDuplicated.Load())
}

func TestDispatch_MissingDedupeKey(t *testing.T) {
	runs := newFakeLedger()
	d := newTestDispatcher(t, runs, NewRegistry(NewNATSExecutor(newFakePub())))

	plan := samplePlan()
	plan.DedupeKey = ""
	d.Dispatch(context.Background(), plan)

	assert.Equal(t, int64(1), d.errorCount.Load())
	assert.Empty(t, runs.reserved)
}

func TestDispatch_ExecutedHook(t *testing.T) {
	runs := newFakeLedger()
	var seen []*types.ActionPlan
	d := newTestDispatcher(t, runs,
		NewRegistry(ExecutorFunc(func(context.Context, *types.ActionPlan) error { return nil })),
		WithExecutedHook(func(plan *types.ActionPlan) { seen = append(seen, plan) }))

	d.Dispatch(context.Background(), samplePlan())
	require.Len(t, seen, 1)
	assert.Equal(t, "rule-001", seen[0].RuleID)
}

func TestHandlePlan_MalformedJSON(t *testing.T) {
	d := newTestDispatcher(t, newFakeLedger(), NewRegistry(NewNATSExecutor(newFakePub())))
	d.handlePlan(context.Background(), []byte("{nope"))
	assert.Equal(t, int64(1), d.errorCount.Load())
}

func TestStartStop(t *testing.T) {
	d := newTestDispatcher(t, newFakeLedger(), NewRegistry(NewNATSExecutor(newFakePub())))

	ctx := context.Background()
	require.NoError(t, d.Start(ctx))
	assert.ErrorIs(t, d.Start(ctx), errors.ErrAlreadyStarted)
	assert.True(t, d.Health().Healthy)

	require.NoError(t, d.Stop(ctx))
	assert.ErrorIs(t, d.Stop(ctx), errors.ErrNotStarted)
	assert.False(t, d.Health().Healthy)
}
