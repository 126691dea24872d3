package types

import (
	"fmt"
	"time"

	"github.com/c360/forge/errors"
)

// TriggerType classifies the condition that can fire a rule.
type TriggerType string

// Supported trigger types. The set is closed: rules carrying any other
// value are rejected at construction time.
const (
	TriggerCron      TriggerType = "cron"
	TriggerSignal    TriggerType = "signal"
	TriggerEvent     TriggerType = "event"
	TriggerWebhook   TriggerType = "webhook"
	TriggerManual    TriggerType = "manual"
	TriggerCompanion TriggerType = "companion"
)

// TriggerTypes lists all valid trigger types in declaration order.
func TriggerTypes() []TriggerType {
	return []TriggerType{
		TriggerCron, TriggerSignal, TriggerEvent,
		TriggerWebhook, TriggerManual, TriggerCompanion,
	}
}

// Valid reports whether t is a member of the closed trigger type set.
func (t TriggerType) Valid() bool {
	switch t {
	case TriggerCron, TriggerSignal, TriggerEvent,
		TriggerWebhook, TriggerManual, TriggerCompanion:
		return true
	default:
		return false
	}
}

func (t TriggerType) String() string { return string(t) }

// ParseTriggerType converts a string into a TriggerType
func ParseTriggerType(s string) (TriggerType, error) {
	t := TriggerType(s)
	if !t.Valid() {
		return "", errors.WrapInvalid(
			fmt.Errorf("unknown trigger type %q", s),
			"types", "ParseTriggerType", "validate trigger type")
	}
	return t, nil
}

// ActionType classifies the side effect a fired rule requests.
type ActionType string

// Supported action types. The set is closed.
const (
	ActionQueueQuest       ActionType = "queue-quest"
	ActionSendNotification ActionType = "send-notification"
	ActionUpdateSkill      ActionType = "update-skill"
	ActionLogToVault       ActionType = "log-to-vault"
	ActionTriggerCompanion ActionType = "trigger-companion"
	ActionRunScript        ActionType = "run-script"
)

// ActionTypes lists all valid action types in declaration order.
func ActionTypes() []ActionType {
	return []ActionType{
		ActionQueueQuest, ActionSendNotification, ActionUpdateSkill,
		ActionLogToVault, ActionTriggerCompanion, ActionRunScript,
	}
}

// Valid reports whether a is a member of the closed action type set.
func (a ActionType) Valid() bool {
	switch a {
	case ActionQueueQuest, ActionSendNotification, ActionUpdateSkill,
		ActionLogToVault, ActionTriggerCompanion, ActionRunScript:
		return true
	default:
		return false
	}
}

func (a ActionType) String() string { return string(a) }

// ParseActionType converts a string into an ActionType
func ParseActionType(s string) (ActionType, error) {
	a := ActionType(s)
	if !a.Valid() {
		return "", errors.WrapInvalid(
			fmt.Errorf("unknown action type %q", s),
			"types", "ParseActionType", "validate action type")
	}
	return a, nil
}

// Reserved trigger config keys. These never participate in structural
// payload matching: "cron" holds the schedule expression and "timezone"
// is accepted but not evaluated (matching is always against UTC).
const (
	TriggerConfigCron     = "cron"
	TriggerConfigTimezone = "timezone"
)

// ForgeRule binds one trigger condition to one action, owned by a user.
// ID, TriggerType, and ActionType are fixed for the rule's lifetime;
// retyping requires creating a new rule.
type ForgeRule struct {
	ID            string      `json:"id"`
	UserID        string      `json:"user_id"`
	Name          string      `json:"name"`
	TriggerType   TriggerType `json:"trigger_type"`
	TriggerConfig ConfigMap   `json:"trigger_config,omitempty"`
	ActionType    ActionType  `json:"action_type"`
	ActionConfig  ConfigMap   `json:"action_config,omitempty"`
	Enabled       bool        `json:"enabled"`
	Version       uint64      `json:"version"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// Validate checks rule construction invariants. Evaluation never calls
// this: the engine assumes it is only handed already-valid rules, and a
// malformed trigger config makes a rule inert rather than invalid.
func (r *ForgeRule) Validate() error {
	if r == nil {
		return errors.WrapInvalid(errors.ErrInvalidRule, "types", "Validate", "rule is nil")
	}
	if r.ID == "" {
		return errors.WrapInvalid(errors.ErrInvalidRule, "types", "Validate", "rule ID is empty")
	}
	if r.UserID == "" {
		return errors.WrapInvalid(errors.ErrInvalidRule, "types", "Validate", "rule user ID is empty")
	}
	if !r.TriggerType.Valid() {
		return errors.WrapInvalid(
			fmt.Errorf("%w: trigger type %q", errors.ErrInvalidRule, r.TriggerType),
			"types", "Validate", "validate trigger type")
	}
	if !r.ActionType.Valid() {
		return errors.WrapInvalid(
			fmt.Errorf("%w: action type %q", errors.ErrInvalidRule, r.ActionType),
			"types", "Validate", "validate action type")
	}
	if !r.CreatedAt.IsZero() && !r.UpdatedAt.IsZero() && r.UpdatedAt.Before(r.CreatedAt) {
		return errors.WrapInvalid(
			fmt.Errorf("%w: updated_at precedes created_at", errors.ErrInvalidRule),
			"types", "Validate", "validate timestamps")
	}
	return nil
}

// Clone returns a deep copy of the rule. Stores hand out clones so callers
// cannot mutate cached state through shared config maps.
func (r *ForgeRule) Clone() *ForgeRule {
	if r == nil {
		return nil
	}
	clone := *r
	clone.TriggerConfig = r.TriggerConfig.Clone()
	clone.ActionConfig = r.ActionConfig.Clone()
	return &clone
}
