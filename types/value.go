package types

import "encoding/json"

// ConfigMap is a loosely-typed string-keyed configuration mapping. Values
// are restricted by convention to JSON shapes: string, bool, nil, numbers,
// []any, and nested map[string]any. Keeping the union closed makes deep
// equality and canonical serialization well-defined.
type ConfigMap map[string]any

// Clone returns a deep copy of the map.
func (m ConfigMap) Clone() ConfigMap {
	if m == nil {
		return nil
	}
	clone := make(ConfigMap, len(m))
	for k, v := range m {
		clone[k] = cloneValue(v)
	}
	return clone
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	case ConfigMap:
		return map[string]any(val.Clone())
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return val
	}
}

// DeepEqual reports structural value equality between two values of the
// JSON shape union. Numbers compare by value across Go numeric types, so
// an int 5 written by a caller equals the float64 5 produced by JSON
// decoding. Maps and slices compare recursively; everything else compares
// with ==.
func DeepEqual(a, b any) bool {
	if am, ok := asMap(a); ok {
		bm, ok := asMap(b)
		if !ok || len(am) != len(bm) {
			return false
		}
		for k, av := range am {
			bv, exists := bm[k]
			if !exists || !DeepEqual(av, bv) {
				return false
			}
		}
		return true
	}

	if as, ok := a.([]any); ok {
		bs, ok := b.([]any)
		if !ok || len(as) != len(bs) {
			return false
		}
		for i := range as {
			if !DeepEqual(as[i], bs[i]) {
				return false
			}
		}
		return true
	}

	if af, ok := asNumber(a); ok {
		bf, bok := asNumber(b)
		return bok && af == bf
	}

	return a == b
}

func asMap(v any) (map[string]any, bool) {
	switch val := v.(type) {
	case map[string]any:
		return val, true
	case ConfigMap:
		return val, true
	default:
		return nil, false
	}
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// CanonicalJSON serializes v with deterministic key ordering. Go's
// encoding/json sorts map keys at every nesting level, so two maps built
// in different insertion order serialize identically. Returns "{}" for
// values that cannot be serialized; callers use this for signatures, not
// round-tripping.
func CanonicalJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}
