// ABOUTME: Call-time schema validation with per-schema validator memoization
// ABOUTME: Wraps the jsonschema-go resolver as the compile/validate collaborator

package validate

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

// Validator checks values against one compiled schema.
type Validator struct {
	resolved *jsonschema.Resolved
}

// Validate reports nil for a conforming value and a descriptive error
// otherwise.
func (v *Validator) Validate(value interface{}) error {
	if err := v.resolved.Validate(value); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

// Cache memoizes compiled validators per distinct schema so repeated
// calls against the same registered function reuse one compilation.
type Cache struct {
	mu         sync.Mutex
	validators map[string]*Validator
}

func NewCache() *Cache {
	return &Cache{validators: make(map[string]*Validator)}
}

// GetValidator compiles (or returns the cached validator for) the given
// schema. A nil or uncompilable schema is a configuration fault in the
// registration that produced it, not a per-call validation failure.
func (c *Cache) GetValidator(schemaMap map[string]interface{}) (*Validator, error) {
	if schemaMap == nil {
		return nil, fmt.Errorf("validate: no schema to compile")
	}

	// json.Marshal sorts map keys, so equal schemas share a cache key.
	key, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("validate: unusable schema: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.validators[string(key)]; ok {
		return v, nil
	}

	var s jsonschema.Schema
	if err := json.Unmarshal(key, &s); err != nil {
		return nil, fmt.Errorf("validate: schema does not describe a JSON Schema: %w", err)
	}
	resolved, err := s.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("validate: compiling schema: %w", err)
	}

	v := &Validator{resolved: resolved}
	c.validators[string(key)] = v
	return v, nil
}

// Len reports how many distinct schemas have been compiled.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.validators)
}
