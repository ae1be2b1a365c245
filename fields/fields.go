// Package fields reads the text of indexed fields out of document bodies.
package fields

import (
	"encoding/json"
	"slices"
	"strconv"
	"strings"
)

// Spec names a document field and the boost applied to its matches.
// Paths containing dots address nested properties.
type Spec struct {
	Path     string
	Segments []string
	Boost    float64
}

// Parse builds a Spec from a field path.
func Parse(path string, boost float64) Spec {
	spec := Spec{Path: path, Boost: boost}
	if strings.Contains(path, ".") {
		spec.Segments = strings.Split(path, ".")
	}
	return spec
}

// IsNested reports whether the field addresses a nested property.
func (s Spec) IsNested() bool {
	return len(s.Segments) > 0
}

// Sort orders specs by path. Field indices are positions in the sorted list.
func Sort(specs []Spec) []Spec {
	sorted := slices.Clone(specs)
	slices.SortStableFunc(sorted, func(a, b Spec) int {
		return strings.Compare(a.Path, b.Path)
	})
	return sorted
}

// Extract returns the text held by the field, or false when the field is
// missing or holds nothing textual. Falsy scalars (zero, false, empty
// string) hold no text.
func Extract(spec Spec, body map[string]any) (string, bool) {
	var value any
	if !spec.IsNested() {
		value = body[spec.Path]
	} else {
		value = walk(body, spec.Segments)
	}
	text := stringify(value)
	return text, text != ""
}

// walk follows segments through nested objects. Reaching an array maps the
// remaining segments over its elements.
func walk(value any, segments []string) any {
	for i, segment := range segments {
		switch v := value.(type) {
		case []any:
			rest := segments[i:]
			parts := make([]any, 0, len(v))
			for _, elem := range v {
				if text := stringify(walk(elem, rest)); text != "" {
					parts = append(parts, text)
				}
			}
			return parts
		case map[string]any:
			value = v[segment]
		default:
			return nil
		}
	}
	return value
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		if !v {
			return ""
		}
		return "true"
	case float64:
		if v == 0 {
			return ""
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return stringify(float64(v))
	case int:
		return stringify(float64(v))
	case int64:
		return stringify(float64(v))
	case json.Number:
		if f, err := v.Float64(); err == nil && f == 0 {
			return ""
		}
		return v.String()
	case []any:
		parts := make([]string, 0, len(v))
		for _, elem := range v {
			if text := stringify(elem); text != "" {
				parts = append(parts, text)
			}
		}
		return strings.Join(parts, " ")
	case []string:
		return strings.Join(slices.DeleteFunc(slices.Clone(v), func(s string) bool { return s == "" }), " ")
	}
	return ""
}
