package dsl

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aretw0/espalier/pkg/domain"
)

// Render replaces every {{dotted.path}} in template with the value found in
// data. Missing paths render as empty strings; scripts that need stronger
// guarantees declare an expects schema on the receive instead.
func Render(template string, data map[string]any) string {
	if !strings.Contains(template, "{{") {
		return template
	}

	var out strings.Builder
	rest := template
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			out.WriteString(rest)
			return out.String()
		}
		end := strings.Index(rest[start:], "}}")
		if end < 0 {
			out.WriteString(rest)
			return out.String()
		}
		out.WriteString(rest[:start])

		path := strings.TrimSpace(rest[start+2 : start+end])
		if value, ok := Lookup(path, data); ok && value != nil {
			out.WriteString(stringify(value))
		}
		rest = rest[start+end+2:]
	}
}

// RenderValue interpolates string values against data. A string that is
// exactly one "{{path}}" returns the referenced value itself, preserving its
// type; other strings are rendered textually. Non-string values pass
// through untouched.
func RenderValue(value any, data map[string]any) any {
	s, ok := value.(string)
	if !ok || !strings.Contains(s, "{{") {
		return value
	}

	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "{{") && strings.HasSuffix(trimmed, "}}") {
		inner := strings.TrimSpace(trimmed[2 : len(trimmed)-2])
		if !strings.Contains(inner, "{{") && !strings.Contains(inner, "}}") {
			if v, ok := Lookup(inner, data); ok {
				return v
			}
			return nil
		}
	}
	return Render(s, data)
}

// Lookup resolves a dotted path against nested string-keyed maps. The
// leading segment "locals" is optional and refers to the root.
func Lookup(path string, data map[string]any) (any, bool) {
	segments := strings.Split(path, ".")
	if len(segments) > 1 && segments[0] == "locals" {
		segments = segments[1:]
	}

	var current any = data
	for _, seg := range segments {
		switch node := current.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			current = v
		case domain.Locals:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			current = v
		default:
			return nil, false
		}
	}
	return current, true
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		// Keep whole numbers free of a trailing ".0".
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
