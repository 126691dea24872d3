package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeepEqual(t *testing.T) {
	tests := []struct {
		name     string
		a, b     any
		expected bool
	}{
		{"strings", "a", "a", true},
		{"strings_differ", "a", "b", false},
		{"bools", true, true, true},
		{"nils", nil, nil, true},
		{"nil_vs_value", nil, "x", false},
		{"int_vs_float", 5, float64(5), true},
		{"int_vs_float_differ", 5, float64(5.5), false},
		{"json_number", json.Number("3"), 3, true},
		{"number_vs_string", 5, "5", false},
		{"slices", []any{1, "two"}, []any{float64(1), "two"}, true},
		{"slices_order_matters", []any{1, 2}, []any{2, 1}, false},
		{"slices_length", []any{1}, []any{1, 2}, false},
		{"maps", map[string]any{"a": 1}, map[string]any{"a": float64(1)}, true},
		{"maps_missing_key", map[string]any{"a": 1}, map[string]any{"b": 1}, false},
		{"maps_extra_key", map[string]any{"a": 1}, map[string]any{"a": 1, "b": 2}, false},
		{"configmap_vs_map", ConfigMap{"a": 1}, map[string]any{"a": 1}, true},
		{"nested", map[string]any{"a": []any{map[string]any{"x": 1}}},
			map[string]any{"a": []any{map[string]any{"x": float64(1)}}}, true},
		{"map_vs_slice", map[string]any{}, []any{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DeepEqual(tt.a, tt.b))
			assert.Equal(t, tt.expected, DeepEqual(tt.b, tt.a), "deep equality must be symmetric")
		})
	}
}

func TestDeepEqual_RoundTripThroughJSON(t *testing.T) {
	original := ConfigMap{
		"action": "task.completed",
		"count":  3,
		"meta":   map[string]any{"tags": []any{"daily"}},
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.True(t, DeepEqual(original, decoded),
		"a config must deep-equal its own JSON round trip")
}

func TestCanonicalJSON_SortedKeys(t *testing.T) {
	a := map[string]any{}
	a["zulu"] = 1
	a["alpha"] = 2

	b := map[string]any{}
	b["alpha"] = 2
	b["zulu"] = 1

	assert.Equal(t, CanonicalJSON(a), CanonicalJSON(b))
	assert.Equal(t, `{"alpha":2,"zulu":1}`, CanonicalJSON(a))
}

func TestCanonicalJSON_Unserializable(t *testing.T) {
	assert.Equal(t, "{}", CanonicalJSON(map[string]any{"fn": func() {}}))
}

func TestConfigMap_Clone(t *testing.T) {
	original := ConfigMap{
		"scalar": "value",
		"nested": map[string]any{"list": []any{1, 2}},
	}

	clone := original.Clone()
	clone["scalar"] = "changed"
	clone["nested"].(map[string]any)["list"].([]any)[0] = 99

	assert.Equal(t, "value", original["scalar"])
	assert.Equal(t, 1, original["nested"].(map[string]any)["list"].([]any)[0])

	var nilMap ConfigMap
	assert.Nil(t, nilMap.Clone())
}
