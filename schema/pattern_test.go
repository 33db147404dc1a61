package schema

import (
	"reflect"
	"testing"
)

func TestFromPatternFlat(t *testing.T) {
	s, err := FromPattern("{a, b}")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	got := requiredNames(t, s)
	if !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("expected required [a b], got %v", got)
	}

	props := s["properties"].(map[string]interface{})
	if len(props["a"].(map[string]interface{})) != 0 {
		t.Error("pattern properties must be untyped placeholders")
	}
}

func TestFromPatternNested(t *testing.T) {
	s, err := FromPattern("{a, b: {c, d: {e}}, f}")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if got := requiredNames(t, s); !reflect.DeepEqual(got, []string{"a", "b", "f"}) {
		t.Errorf("nested pattern broke sibling delimiting: %v", got)
	}

	b := s["properties"].(map[string]interface{})["b"].(map[string]interface{})
	if got := requiredNames(t, b); !reflect.DeepEqual(got, []string{"c", "d"}) {
		t.Errorf("expected [c d] inside b, got %v", got)
	}

	d := b["properties"].(map[string]interface{})["d"].(map[string]interface{})
	if got := requiredNames(t, d); !reflect.DeepEqual(got, []string{"e"}) {
		t.Errorf("expected [e] inside d, got %v", got)
	}
}

func TestFromPatternDefaultsAndRenames(t *testing.T) {
	s, err := FromPattern("{a = 1, b: renamed}")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := requiredNames(t, s); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("expected required [a b], got %v", got)
	}
}

func TestFromPatternIdempotent(t *testing.T) {
	const pattern = "{x, y: {z}}"
	first, err := FromPattern(pattern)
	if err != nil {
		t.Fatal(err)
	}
	second, err := FromPattern(pattern)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("re-parsing the same pattern yielded a different schema")
	}
}

func TestFromPatternRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"a, b",
		"{a, 1bad}",
		"{a, a}",
		"{a: b: c}",
	}
	for _, pattern := range cases {
		if _, err := FromPattern(pattern); err == nil {
			t.Errorf("%q: expected parse error", pattern)
		}
	}
}
