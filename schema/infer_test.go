package schema

import (
	"context"
	"reflect"
	"sort"
	"testing"
)

type addArgs struct {
	A int `json:"a"`
	B int `json:"b"`
}

type profileArgs struct {
	Name    string `json:"name"`
	Address struct {
		City string `json:"city"`
		Zip  string `json:"zip"`
	} `json:"address"`
}

func add(args addArgs) (interface{}, error) {
	return args.A + args.B, nil
}

func describe(ctx context.Context, args profileArgs) (interface{}, error) {
	return args.Name, nil
}

func requiredNames(t *testing.T, s map[string]interface{}) []string {
	t.Helper()
	raw, ok := s["required"].([]interface{})
	if !ok {
		t.Fatalf("schema has no required list: %v", s)
	}
	names := make([]string, len(raw))
	for i, r := range raw {
		names[i] = r.(string)
	}
	sort.Strings(names)
	return names
}

func TestInferRequiredKeys(t *testing.T) {
	inf, err := Infer(add)
	if err != nil {
		t.Fatalf("infer: %v", err)
	}

	if inf.Name != "add" {
		t.Errorf("expected name add, got %s", inf.Name)
	}

	got := requiredNames(t, inf.InputSchema)
	if !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("expected required [a b], got %v", got)
	}

	props := inf.InputSchema["properties"].(map[string]interface{})
	if props["a"].(map[string]interface{})["type"] != "integer" {
		t.Errorf("expected integer property for a, got %v", props["a"])
	}
}

func TestInferNestedStruct(t *testing.T) {
	inf, err := Infer(describe)
	if err != nil {
		t.Fatalf("infer: %v", err)
	}

	if inf.Name != "describe" {
		t.Errorf("expected name describe, got %s", inf.Name)
	}

	props := inf.InputSchema["properties"].(map[string]interface{})
	address, ok := props["address"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected nested object schema for address, got %v", props["address"])
	}
	nested := requiredNames(t, address)
	if !reflect.DeepEqual(nested, []string{"city", "zip"}) {
		t.Errorf("expected nested required [city zip], got %v", nested)
	}
}

func TestInferIdempotent(t *testing.T) {
	first, err := Infer(add)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Infer(add)
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Error("re-inferring the same function yielded a different schema")
	}
}

func TestInferOutputSchemaShape(t *testing.T) {
	inf, err := Infer(add)
	if err != nil {
		t.Fatal(err)
	}

	want := DefaultOutputSchema()
	if !reflect.DeepEqual(inf.OutputSchema, want) {
		t.Errorf("expected fixed result envelope schema, got %v", inf.OutputSchema)
	}
}

func TestInferRejectsBadShapes(t *testing.T) {
	cases := map[string]interface{}{
		"not a function":     42,
		"scalar parameter":   func(n int) (interface{}, error) { return n, nil },
		"two parameters":     func(a addArgs, b addArgs) (interface{}, error) { return nil, nil },
		"no parameters":      func() (interface{}, error) { return nil, nil },
		"anonymous function": func(args addArgs) (interface{}, error) { return nil, nil },
	}

	for name, fn := range cases {
		if _, err := Infer(fn); err == nil {
			t.Errorf("%s: expected inference to fail", name)
		}
	}
}

func TestNormalize(t *testing.T) {
	n := Normalize(nil)
	if n["type"] != "object" {
		t.Errorf("expected permissive object schema, got %v", n)
	}

	explicit := map[string]interface{}{"type": "object", "properties": map[string]interface{}{"x": map[string]interface{}{}}}
	if !reflect.DeepEqual(Normalize(explicit), explicit) {
		t.Error("normalize must not touch a non-empty schema")
	}
}
