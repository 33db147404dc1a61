// ABOUTME: JSON Schema construction for exported function signatures
// ABOUTME: Shared helpers for normalization and the fixed result envelope schema

// Package schema derives JSON Schemas for exported functions so they
// can cross the process boundary without hand-authored annotations.
//
// Two derivation paths exist: reflection over a function's struct
// parameter (the primary, typed path) and parsing of a destructuring
// pattern string like "{a, b: {c, d}}" (a best-effort convenience that
// only establishes required names, never value types). An explicit
// schema supplied at registration always takes precedence over either.
package schema

// DefaultOutputSchema returns the fixed result envelope schema. The
// framework always wraps a callback's return value in a "result" field.
func DefaultOutputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"result": map[string]interface{}{},
		},
		"required": []interface{}{"result"},
	}
}

// Normalize turns an absent or empty schema into the permissive
// "any object" schema. Registration never leaves a schema nil.
func Normalize(s map[string]interface{}) map[string]interface{} {
	if len(s) == 0 {
		return map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		}
	}
	return s
}

func objectSchema(properties map[string]interface{}, required []interface{}) map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}
