package validate

import (
	"fmt"
	"strconv"
	"strings"
)

// lookupPath resolves a dotted path (e.g. "conclusion_per_pillar.materiality.detail")
// against a nested map[string]any tree.
func lookupPath(m map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = m
	for _, part := range parts {
		node, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		val, ok := node[part]
		if !ok {
			return nil, false
		}
		cur = val
	}
	return cur, true
}

// setPath writes val at a dotted path. It does not create intermediate
// maps: if one is missing, nothing is written. Used only by
// ValidateAndCorrect to write back a coerced leaf, so it cannot fabricate
// missing fields.
func setPath(m map[string]any, path string, val any) {
	parts := strings.Split(path, ".")
	cur := m
	for i, part := range parts {
		if i == len(parts)-1 {
			cur[part] = val
			return
		}
		next, ok := cur[part].(map[string]any)
		if !ok {
			return
		}
		cur = next
	}
}

func deepCopy(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			out[k] = deepCopy(nested)
		} else {
			out[k] = v
		}
	}
	return out
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}

// checkKind returns a non-empty error description if val does not conform
// to f's declared kind/constraints.
func checkKind(f FieldSchema, val any) string {
	switch f.Kind {
	case FieldString:
		s, ok := val.(string)
		if !ok {
			return fmt.Sprintf("expected string, got %T", val)
		}
		if f.MinLength > 0 && len(s) < f.MinLength {
			return fmt.Sprintf("must be at least %d characters, got %d", f.MinLength, len(s))
		}
		if len(f.Enum) > 0 && !contains(f.Enum, s) {
			return fmt.Sprintf("value %q not in allowed set %v", s, f.Enum)
		}
	case FieldNumber:
		switch val.(type) {
		case int, int64, float64:
		default:
			return fmt.Sprintf("expected number, got %T", val)
		}
	case FieldBool:
		if _, ok := val.(bool); !ok {
			return fmt.Sprintf("expected bool, got %T", val)
		}
	case FieldList:
		list, ok := val.([]any)
		if !ok {
			return fmt.Sprintf("expected list, got %T", val)
		}
		if f.MinItems > 0 && len(list) < f.MinItems {
			return fmt.Sprintf("must have at least %d items, got %d", f.MinItems, len(list))
		}
	case FieldObject:
		if _, ok := val.(map[string]any); !ok {
			return fmt.Sprintf("expected object, got %T", val)
		}
	}
	return ""
}

// coerce applies the three narrow coercions the spec allows: numeric
// string -> number, "true"/"false" -> bool, scalar -> single-element list
// only when the schema demands a list. Returns the (possibly unchanged)
// value and a non-empty description if a coercion was applied.
func coerce(f FieldSchema, val any) (any, string) {
	switch f.Kind {
	case FieldNumber:
		if s, ok := val.(string); ok {
			if n, err := strconv.ParseFloat(s, 64); err == nil {
				return n, fmt.Sprintf("coerced numeric string %q to number", s)
			}
		}
	case FieldBool:
		if s, ok := val.(string); ok {
			switch strings.ToLower(s) {
			case "true":
				return true, "coerced string \"true\" to bool"
			case "false":
				return false, "coerced string \"false\" to bool"
			}
		}
	case FieldList:
		if _, ok := val.([]any); !ok {
			return []any{val}, "coerced scalar to single-element list"
		}
	}
	return val, ""
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
