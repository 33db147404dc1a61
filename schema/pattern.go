// ABOUTME: Destructuring-pattern parser producing object schemas from strings like "{a, b: {c}}"
// ABOUTME: Depth-aware splitting so nested patterns never break sibling delimiting

package schema

import (
	"fmt"
	"strings"
)

// FromPattern parses an object-destructuring pattern into an input
// schema. "{a, b}" yields an object schema requiring a and b; a key may
// carry a nested pattern, "{a, b: {c, d}}", producing a nested object
// schema to arbitrary depth. Property schemas are untyped placeholders:
// the pattern establishes required names, never value types.
func FromPattern(pattern string) (map[string]interface{}, error) {
	body, err := unwrapBraces(strings.TrimSpace(pattern))
	if err != nil {
		return nil, fmt.Errorf("schema: pattern %q: %w", pattern, err)
	}
	return parseBody(body)
}

func unwrapBraces(s string) (string, error) {
	if len(s) < 2 || s[0] != '{' || s[len(s)-1] != '}' {
		return "", fmt.Errorf("expected an object pattern {...}")
	}
	return s[1 : len(s)-1], nil
}

func parseBody(body string) (map[string]interface{}, error) {
	properties := map[string]interface{}{}
	required := []interface{}{}

	for _, entry := range splitTop(body, ',') {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		// a default value never affects the schema shape
		if parts := splitTop(entry, '='); len(parts) > 1 {
			entry = strings.TrimSpace(parts[0])
		}

		key := entry
		var nested string
		if parts := splitTop(entry, ':'); len(parts) == 2 {
			key = strings.TrimSpace(parts[0])
			nested = strings.TrimSpace(parts[1])
		} else if len(parts) > 2 {
			return nil, fmt.Errorf("schema: malformed pattern entry %q", entry)
		}

		if !isIdentifier(key) {
			return nil, fmt.Errorf("schema: %q is not a valid parameter name", key)
		}
		if _, dup := properties[key]; dup {
			return nil, fmt.Errorf("schema: duplicate parameter %q", key)
		}

		if strings.HasPrefix(nested, "{") {
			inner, err := FromPattern(nested)
			if err != nil {
				return nil, err
			}
			properties[key] = inner
		} else {
			// renames and type-ish annotations collapse to the plain key
			properties[key] = map[string]interface{}{}
		}
		required = append(required, key)
	}

	return objectSchema(properties, required), nil
}

// splitTop splits on sep only at bracket depth zero. A naive split
// breaks on nested patterns; depth tracking covers {}, [] and ().
func splitTop(s string, sep byte) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{', '[', '(':
			depth++
		case '}', ']', ')':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
