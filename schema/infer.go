// ABOUTME: Reflection-based schema inference for exported Go functions
// ABOUTME: Derives a function's name, input schema, and output schema from its signature

package schema

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"strings"
)

// Inferred is the result of introspecting a function value.
type Inferred struct {
	Name         string
	InputSchema  map[string]interface{}
	OutputSchema map[string]interface{}
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// Infer derives schemas from a function value. The function must take a
// single struct parameter, optionally preceded by a context.Context.
// The struct plays the role of a named-argument bundle, since the wire
// protocol only carries keyed arguments. Each exported field becomes a
// required property; nested structs recurse. The output schema is
// always the fixed {result} envelope.
//
// Inference is idempotent: the same function yields an equal Inferred
// every time.
func Infer(fn interface{}) (*Inferred, error) {
	v := reflect.ValueOf(fn)
	if !v.IsValid() || v.Kind() != reflect.Func {
		return nil, fmt.Errorf("schema: cannot infer from %T, not a function", fn)
	}

	name, err := functionName(v)
	if err != nil {
		return nil, err
	}

	in, err := inputStructType(v.Type())
	if err != nil {
		return nil, fmt.Errorf("schema: function %s: %w", name, err)
	}

	input, err := ForStruct(in)
	if err != nil {
		return nil, fmt.Errorf("schema: function %s: %w", name, err)
	}

	return &Inferred{
		Name:         name,
		InputSchema:  input,
		OutputSchema: DefaultOutputSchema(),
	}, nil
}

// inputStructType locates the single named-argument struct parameter.
func inputStructType(t reflect.Type) (reflect.Type, error) {
	args := make([]reflect.Type, 0, t.NumIn())
	for i := 0; i < t.NumIn(); i++ {
		p := t.In(i)
		if p.Implements(contextType) {
			continue
		}
		args = append(args, p)
	}
	if len(args) != 1 {
		return nil, fmt.Errorf("must declare exactly one argument struct, found %d parameters", len(args))
	}
	in := args[0]
	if in.Kind() == reflect.Ptr {
		in = in.Elem()
	}
	if in.Kind() != reflect.Struct {
		return nil, fmt.Errorf("argument must be a struct of named parameters, got %s", in.Kind())
	}
	return in, nil
}

// ForStruct builds an object schema from a struct type: one required
// property per exported field, recursing into nested structs.
func ForStruct(t reflect.Type) (map[string]interface{}, error) {
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("expected struct, got %s", t.Kind())
	}

	properties := map[string]interface{}{}
	required := []interface{}{}

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := fieldName(f)
		if name == "-" {
			continue
		}
		prop, err := typeSchema(f.Type)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		properties[name] = prop
		required = append(required, name)
	}

	return objectSchema(properties, required), nil
}

func fieldName(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	if tag == "" {
		return f.Name
	}
	name := strings.Split(tag, ",")[0]
	if name == "" {
		return f.Name
	}
	return name
}

// typeSchema maps a Go type to a property schema. Types without a clean
// JSON Schema counterpart stay untyped placeholders.
func typeSchema(t reflect.Type) (map[string]interface{}, error) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return map[string]interface{}{"type": "string"}, nil
	case reflect.Bool:
		return map[string]interface{}{"type": "boolean"}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return map[string]interface{}{"type": "integer"}, nil
	case reflect.Float32, reflect.Float64:
		return map[string]interface{}{"type": "number"}, nil
	case reflect.Slice, reflect.Array:
		return map[string]interface{}{"type": "array"}, nil
	case reflect.Map:
		return map[string]interface{}{"type": "object"}, nil
	case reflect.Struct:
		return ForStruct(t)
	case reflect.Interface:
		// accept-anything placeholder
		return map[string]interface{}{}, nil
	default:
		return nil, fmt.Errorf("type %s cannot cross the wire", t)
	}
}

// functionName recovers the declared name of fn. Anonymous functions
// have no usable name and cannot be exported without one.
func functionName(v reflect.Value) (string, error) {
	pc := v.Pointer()
	rf := runtime.FuncForPC(pc)
	if rf == nil {
		return "", fmt.Errorf("schema: cannot resolve function name")
	}
	full := rf.Name()
	if i := strings.LastIndex(full, "/"); i >= 0 {
		full = full[i+1:]
	}
	if strings.Contains(full, ".func") {
		return "", fmt.Errorf("schema: anonymous functions cannot be exported, register with an explicit name")
	}
	// method values carry a -fm suffix
	full = strings.TrimSuffix(full, "-fm")
	if i := strings.LastIndex(full, "."); i >= 0 {
		full = full[i+1:]
	}
	if full == "" {
		return "", fmt.Errorf("schema: cannot resolve function name")
	}
	return full, nil
}
