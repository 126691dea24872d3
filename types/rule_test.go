package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/forge/errors"
)

func validRule() *ForgeRule {
	now := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	return &ForgeRule{
		ID:          "rule-001",
		UserID:      "user-001",
		Name:        "morning check-in",
		TriggerType: TriggerCron,
		TriggerConfig: ConfigMap{
			"cron": "30 9 * * *",
		},
		ActionType:   ActionSendNotification,
		ActionConfig: ConfigMap{"message": "good morning"},
		Enabled:      true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestForgeRule_Validate(t *testing.T) {
	assert.NoError(t, validRule().Validate())

	tests := []struct {
		name   string
		mutate func(*ForgeRule)
	}{
		{"empty_id", func(r *ForgeRule) { r.ID = "" }},
		{"empty_user", func(r *ForgeRule) { r.UserID = "" }},
		{"unknown_trigger_type", func(r *ForgeRule) { r.TriggerType = "telepathy" }},
		{"unknown_action_type", func(r *ForgeRule) { r.ActionType = "format-disk" }},
		{"updated_before_created", func(r *ForgeRule) {
			r.UpdatedAt = r.CreatedAt.Add(-time.Hour)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := validRule()
			tt.mutate(rule)
			err := rule.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err), "validation failures must classify as invalid")
		})
	}
}

func TestForgeRule_ValidateNil(t *testing.T) {
	var rule *ForgeRule
	assert.Error(t, rule.Validate())
}

func TestForgeRule_Clone(t *testing.T) {
	rule := validRule()
	clone := rule.Clone()

	clone.TriggerConfig["cron"] = "* * * * *"
	clone.ActionConfig["message"] = "mutated"

	assert.Equal(t, "30 9 * * *", rule.TriggerConfig["cron"])
	assert.Equal(t, "good morning", rule.ActionConfig["message"])
}

func TestParseTriggerType(t *testing.T) {
	for _, typ := range TriggerTypes() {
		parsed, err := ParseTriggerType(string(typ))
		require.NoError(t, err)
		assert.Equal(t, typ, parsed)
	}

	_, err := ParseTriggerType("carrier-pigeon")
	assert.Error(t, err)
}

func TestParseActionType(t *testing.T) {
	for _, typ := range ActionTypes() {
		parsed, err := ParseActionType(string(typ))
		require.NoError(t, err)
		assert.Equal(t, typ, parsed)
	}

	_, err := ParseActionType("")
	assert.Error(t, err)
}

func TestForgeEvent_Validate(t *testing.T) {
	event := &ForgeEvent{
		Type: TriggerWebhook,
		At:   time.Now(),
	}
	assert.NoError(t, event.Validate())

	assert.Error(t, (&ForgeEvent{Type: "bogus", At: time.Now()}).Validate())
	assert.Error(t, (&ForgeEvent{Type: TriggerWebhook}).Validate())

	var nilEvent *ForgeEvent
	assert.Error(t, nilEvent.Validate())
}
