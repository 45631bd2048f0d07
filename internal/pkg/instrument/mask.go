package instrument

import (
	"encoding/json"
	"strings"
)

// Masked is the placeholder written in place of a masked value.
const Masked = "***"

// MaskKeys is a case-insensitive set of field names whose values are hidden
// from logs.
type MaskKeys map[string]struct{}

// NewMaskKeys builds a MaskKeys from field names, ignoring blanks.
func NewMaskKeys(fields []string) MaskKeys {
	keys := make(MaskKeys, len(fields))
	for _, field := range fields {
		field = strings.TrimSpace(strings.ToLower(field))
		if field == "" {
			continue
		}
		keys[field] = struct{}{}
	}
	return keys
}

// Has reports whether key must be masked.
func (m MaskKeys) Has(key string) bool {
	_, ok := m[strings.ToLower(key)]
	return ok
}

// Mask walks decoded JSON (maps and slices) and replaces masked values.
func (m MaskKeys) Mask(v any) any {
	switch val := v.(type) {
	case map[string]any:
		masked := make(map[string]any, len(val))
		for k, v2 := range val {
			if m.Has(k) {
				masked[k] = Masked
			} else {
				masked[k] = m.Mask(v2)
			}
		}
		return masked
	case map[string]string:
		masked := make(map[string]any, len(val))
		for k, v2 := range val {
			if m.Has(k) {
				masked[k] = Masked
			} else {
				masked[k] = v2
			}
		}
		return masked
	case []any:
		res := make([]any, len(val))
		for i, v2 := range val {
			res[i] = m.Mask(v2)
		}
		return res
	default:
		return v
	}
}

// MaskJSON masks a JSON document. ok is false when payload is not JSON.
func (m MaskKeys) MaskJSON(payload []byte) (string, bool) {
	if len(payload) == 0 || (payload[0] != '{' && payload[0] != '[') {
		return "", false
	}
	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return "", false
	}
	out, err := json.Marshal(m.Mask(doc))
	if err != nil {
		return "", false
	}
	return string(out), true
}
