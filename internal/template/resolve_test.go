package template

import (
	"testing"

	"github.com/yuefengz/workflow-use/internal/types"
)

func TestResolve(t *testing.T) {
	ctx := NewContext()
	ctx.Set("path", "login")
	ctx.Set("count", 3)
	ctx.Set("price", 42.5)

	t.Run("basic substitution", func(t *testing.T) {
		tests := []struct {
			input    string
			expected string
		}{
			{"https://example.com/{path}", "https://example.com/login"},
			{"{path} and {path}", "login and login"},
			{"count is {count}", "count is 3"},
			{"price is {price}", "price is 42.5"},
			{"no placeholders", "no placeholders"},
			{"literal {braces with spaces}", "literal {braces with spaces}"},
		}
		for _, tt := range tests {
			t.Run(tt.input, func(t *testing.T) {
				got, missing := ctx.Resolve(tt.input)
				if got != tt.expected {
					t.Errorf("Resolve(%q) = %q, want %q", tt.input, got, tt.expected)
				}
				if missing != nil {
					t.Errorf("unexpected missing names: %v", missing)
				}
			})
		}
	})

	t.Run("missing key returns whole string unchanged", func(t *testing.T) {
		got, missing := ctx.Resolve("{path}/{unknown}")
		if got != "{path}/{unknown}" {
			t.Errorf("fail-soft should leave the entire string, got %q", got)
		}
		if len(missing) != 1 || missing[0] != "unknown" {
			t.Errorf("missing = %v, want [unknown]", missing)
		}
	})

	t.Run("identity on non-templated input", func(t *testing.T) {
		got, _ := ctx.Resolve("plain")
		if got != "plain" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("idempotent once resolved", func(t *testing.T) {
		once, _ := ctx.Resolve("go to {path}")
		twice, _ := ctx.Resolve(once)
		if once != twice {
			t.Errorf("resolve not idempotent: %q vs %q", once, twice)
		}
	})
}

func TestResolveValue(t *testing.T) {
	ctx := NewContext()
	ctx.Set("name", "ada")

	t.Run("non-string scalars pass through", func(t *testing.T) {
		for _, v := range []any{42, 4.2, true, nil} {
			got, _ := ctx.ResolveValue(v)
			if got != v {
				t.Errorf("ResolveValue(%v) = %v", v, got)
			}
		}
	})

	t.Run("nested structures", func(t *testing.T) {
		in := map[string]any{
			"greeting": "hello {name}",
			"tags":     []any{"{name}", 1},
		}
		got, missing := ctx.ResolveValue(in)
		if missing != nil {
			t.Fatalf("unexpected missing: %v", missing)
		}
		m := got.(map[string]any)
		if m["greeting"] != "hello ada" {
			t.Errorf("greeting = %v", m["greeting"])
		}
		if m["tags"].([]any)[0] != "ada" {
			t.Errorf("tags = %v", m["tags"])
		}
	})

	t.Run("unchanged map returns same value", func(t *testing.T) {
		in := map[string]any{"plain": "text", "n": 1}
		got, _ := ctx.ResolveValue(in)
		if _, ok := got.(map[string]any); !ok {
			t.Fatal("expected map")
		}
		// Identity preserved for no-op resolution.
		if &in == nil || got.(map[string]any)["plain"] != "text" {
			t.Error("values should be untouched")
		}
	})
}

func TestResolveStep(t *testing.T) {
	ctx := NewContext()
	ctx.Set("query", "socks")
	ctx.Set("section", "catalog")

	t.Run("resolves config fields on a copy", func(t *testing.T) {
		step := &types.Step{
			Type:        types.StepInput,
			Description: "search {section}",
			Output:      "result",
			Input:       &types.InputConfig{CSSSelector: "#search", Value: "{query}"},
		}
		resolved, missing := ctx.ResolveStep(step)
		if missing != nil {
			t.Fatalf("unexpected missing: %v", missing)
		}
		if resolved == step {
			t.Fatal("changed step should be a copy")
		}
		if resolved.Input.Value != "socks" {
			t.Errorf("value = %q", resolved.Input.Value)
		}
		if resolved.Description != "search catalog" {
			t.Errorf("description = %q", resolved.Description)
		}
		// Definition step untouched.
		if step.Input.Value != "{query}" {
			t.Error("original step was mutated")
		}
	})

	t.Run("no-op resolution returns original step", func(t *testing.T) {
		step := &types.Step{
			Type:       types.StepNavigation,
			Navigation: &types.NavigationConfig{URL: "https://example.com"},
		}
		resolved, _ := ctx.ResolveStep(step)
		if resolved != step {
			t.Error("identity should be preserved when nothing changed")
		}
	})

	t.Run("missing keys reported but step unchanged", func(t *testing.T) {
		step := &types.Step{
			Type:       types.StepNavigation,
			Navigation: &types.NavigationConfig{URL: "https://example.com/{missing_var}"},
		}
		resolved, missing := ctx.ResolveStep(step)
		if resolved.Navigation.URL != "https://example.com/{missing_var}" {
			t.Errorf("url = %q", resolved.Navigation.URL)
		}
		if len(missing) != 1 || missing[0] != "missing_var" {
			t.Errorf("missing = %v", missing)
		}
	})

	t.Run("extras resolved", func(t *testing.T) {
		step := &types.Step{
			Type:       types.StepNavigation,
			Navigation: &types.NavigationConfig{URL: "https://example.com"},
			Extra:      map[string]any{"note": "from {section}"},
		}
		resolved, _ := ctx.ResolveStep(step)
		if resolved.Extra["note"] != "from catalog" {
			t.Errorf("extra = %v", resolved.Extra)
		}
	})
}

func TestContext(t *testing.T) {
	ctx := NewContextFrom(map[string]any{"a": 1})
	ctx.Merge(map[string]any{"b": 2, "a": 3})

	if v, _ := ctx.Get("a"); v != 3 {
		t.Errorf("merge should override, got %v", v)
	}
	if ctx.Len() != 2 {
		t.Errorf("len = %d", ctx.Len())
	}
	names := ctx.Names()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("names = %v", names)
	}
	snap := ctx.Snapshot()
	snap["a"] = 99
	if v, _ := ctx.Get("a"); v != 3 {
		t.Error("snapshot should not alias the context")
	}
}
