package types

import "time"

// Synthetic action config keys stamped onto every fired plan.
const (
	ActionConfigEventPayload = "eventPayload"
	ActionConfigEventAt      = "eventAt"
)

// ActionPlan is the engine's sole output artifact: a fully-specified,
// idempotent-by-key action request handed to the executor. The executor
// must treat DedupeKey as a uniqueness constraint before performing the
// side effect named by ActionType.
type ActionPlan struct {
	RuleID      string      `json:"rule_id"`
	UserID      string      `json:"user_id,omitempty"`
	TriggerType TriggerType `json:"trigger_type"`
	ActionType  ActionType  `json:"action_type"`

	// ActionConfig is the rule's own config merged with the synthetic
	// eventPayload/eventAt keys. Rule-defined keys keep priority on
	// collision.
	ActionConfig ConfigMap `json:"action_config"`

	// QueuedAt is the engine's instant at plan construction, distinct
	// from EventAt.
	QueuedAt time.Time `json:"queued_at"`
	EventAt  time.Time `json:"event_at"`

	DedupeKey string `json:"dedupe_key"`
}
