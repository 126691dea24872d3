package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/c360/forge/errors"
	"github.com/c360/forge/types"
)

// ExecSubjectPrefix is the subject root for outbound action requests.
// Each action type gets its own subject (forge.exec.queue-quest) so
// downstream workers subscribe only to what they handle.
const ExecSubjectPrefix = "forge.exec"

// Executor performs the side effect named by a plan's action type.
// Implementations signal permanent failures with retry.NonRetryable so
// the dispatcher does not waste attempts on them.
type Executor interface {
	Execute(ctx context.Context, plan *types.ActionPlan) error
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, plan *types.ActionPlan) error

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, plan *types.ActionPlan) error {
	return f(ctx, plan)
}

// publisher is the transport slice executors need.
type publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// NewNATSExecutor returns the default executor: it forwards the plan to
// the action type's exec subject. The real side effect lives in
// whatever subscribes there.
func NewNATSExecutor(pub publisher) Executor {
	return ExecutorFunc(func(ctx context.Context, plan *types.ActionPlan) error {
		data, err := json.Marshal(plan)
		if err != nil {
			return errors.WrapFatal(err, "dispatch", "Execute", "marshal plan")
		}
		subject := fmt.Sprintf("%s.%s", ExecSubjectPrefix, plan.ActionType)
		if err := pub.Publish(ctx, subject, data); err != nil {
			return errors.WrapTransient(err, "dispatch", "Execute", "publish to exec subject")
		}
		return nil
	})
}

// Registry maps action types to executors with a fallback default.
type Registry struct {
	mu        sync.RWMutex
	executors map[types.ActionType]Executor
	fallback  Executor
}

// NewRegistry creates a registry whose unregistered action types fall
// through to the given executor.
func NewRegistry(fallback Executor) *Registry {
	return &Registry{
		executors: make(map[types.ActionType]Executor),
		fallback:  fallback,
	}
}

// Register installs an executor for one action type, replacing any
// previous registration.
func (r *Registry) Register(actionType types.ActionType, e Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[actionType] = e
}

// For returns the executor for an action type, or the fallback.
func (r *Registry) For(actionType types.ActionType) Executor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.executors[actionType]; ok {
		return e
	}
	return r.fallback
}
