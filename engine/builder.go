package engine

import (
	"time"

	"github.com/c360/forge/types"
)

// Builder composes trigger evaluation, dedupe key derivation, and config
// merging into dispatchable action plans. The only dependency is a clock
// for the QueuedAt stamp, injectable for deterministic tests.
type Builder struct {
	now func() time.Time
}

// Option configures a Builder.
type Option func(*Builder)

// WithClock overrides the clock used for QueuedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBuilder creates a plan builder. By default plans are stamped with
// time.Now in UTC.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BuildPlan returns the action plan for (rule, event), or nil exactly
// when ShouldTrigger is false for the same pair: the builder and the
// matcher never diverge because the builder delegates to it.
//
// The fired plan's ActionConfig is the rule's own config overlaid with
// the synthetic eventPayload/eventAt keys. Rule-defined keys keep
// priority on collision except for the two synthetic keys, which are
// always set from the event.
func (b *Builder) BuildPlan(rule *types.ForgeRule, event *types.ForgeEvent) *types.ActionPlan {
	if !ShouldTrigger(rule, event) {
		return nil
	}

	actionConfig := rule.ActionConfig.Clone()
	if actionConfig == nil {
		actionConfig = types.ConfigMap{}
	}
	actionConfig[types.ActionConfigEventPayload] = event.Payload.Clone()
	actionConfig[types.ActionConfigEventAt] = event.At

	return &types.ActionPlan{
		RuleID:       rule.ID,
		UserID:       rule.UserID,
		TriggerType:  rule.TriggerType,
		ActionType:   rule.ActionType,
		ActionConfig: actionConfig,
		QueuedAt:     b.now(),
		EventAt:      event.At,
		DedupeKey:    DedupeKey(rule, event),
	}
}
