package engine

import (
	"github.com/c360/forge/cron"
	"github.com/c360/forge/types"
)

// ShouldTrigger decides whether rule's trigger condition is satisfied by
// event. Disabled rules and trigger-type mismatches never fire. Cron rules
// delegate to the cron evaluator against the event instant; all other
// types match structurally against the event payload.
//
// Malformed trigger configuration is fail-closed: the rule simply never
// matches, it never produces an error.
func ShouldTrigger(rule *types.ForgeRule, event *types.ForgeEvent) bool {
	if rule == nil || event == nil {
		return false
	}
	if !rule.Enabled || rule.TriggerType != event.Type {
		return false
	}

	if rule.TriggerType == types.TriggerCron {
		expr, ok := rule.TriggerConfig[types.TriggerConfigCron].(string)
		if !ok || expr == "" {
			return false
		}
		return cron.Matches(expr, event.At)
	}

	return payloadMatches(rule.TriggerConfig, event.Payload)
}

// payloadMatches treats every trigger config key except the reserved
// cron/timezone keys as a required payload assertion. An empty assertion
// set matches any payload of the right type; otherwise every key must be
// present and deep-equal, with no partial credit.
func payloadMatches(triggerConfig, payload types.ConfigMap) bool {
	for key, want := range triggerConfig {
		if key == types.TriggerConfigCron || key == types.TriggerConfigTimezone {
			continue
		}
		got, exists := payload[key]
		if !exists || !types.DeepEqual(want, got) {
			return false
		}
	}
	return true
}
