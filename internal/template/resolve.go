package template

import (
	"regexp"
	"strings"

	"github.com/yuefengz/workflow-use/internal/types"
)

// placeholderPattern matches {name} tokens. Only identifier-shaped
// names are treated as placeholders; literal braces around anything
// else pass through untouched.
var placeholderPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Resolve substitutes placeholders in a string against the context.
//
// Resolution is all-or-nothing per string: if any referenced name is
// absent, the entire original string is returned unchanged and the
// missing names are reported. This fail-soft policy keeps steps that
// reference not-yet-defined or optional variables from aborting the
// run; callers may surface the missing names as a diagnostic.
func (c *Context) Resolve(input string) (string, []string) {
	if !strings.Contains(input, "{") || !strings.Contains(input, "}") {
		return input, nil
	}

	var missing []string
	for _, match := range placeholderPattern.FindAllStringSubmatch(input, -1) {
		if _, ok := c.vars[match[1]]; !ok {
			missing = append(missing, match[1])
		}
	}
	if len(missing) > 0 {
		return input, missing
	}

	resolved := placeholderPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := match[1 : len(match)-1]
		return stringify(c.vars[name])
	})
	return resolved, nil
}

// ResolveValue recursively substitutes placeholders in an arbitrary
// value. Strings resolve per Resolve; slices and maps resolve
// element-by-element; non-string scalars pass through. The original
// value is returned when nothing changed.
func (c *Context) ResolveValue(value any) (any, []string) {
	switch v := value.(type) {
	case string:
		return c.Resolve(v)
	case []any:
		var missing []string
		out := make([]any, len(v))
		changed := false
		for i, item := range v {
			resolved, miss := c.ResolveValue(item)
			missing = append(missing, miss...)
			out[i] = resolved
			if resolved != nil && !sameValue(resolved, item) {
				changed = true
			}
		}
		if !changed {
			return v, missing
		}
		return out, missing
	case map[string]any:
		var missing []string
		out := make(map[string]any, len(v))
		changed := false
		for key, item := range v {
			resolved, miss := c.ResolveValue(item)
			missing = append(missing, miss...)
			out[key] = resolved
			if resolved != nil && !sameValue(resolved, item) {
				changed = true
			}
		}
		if !changed {
			return v, missing
		}
		return out, missing
	default:
		return value, nil
	}
}

// sameValue reports shallow equality for change detection. Non-comparable
// kinds (nested maps/slices) conservatively report changed.
func sameValue(a, b any) bool {
	switch a.(type) {
	case []any, map[string]any:
		return false
	}
	switch b.(type) {
	case []any, map[string]any:
		return false
	}
	return a == b
}

// ResolveStep returns a copy of the step with placeholders substituted
// in every string field, including the preserved Extra fields. The
// original step is returned unchanged (same config pointers) when no
// field resolved differently; the definition itself is never mutated.
// Missing placeholder names across all fields are reported.
func (c *Context) ResolveStep(step *types.Step) (*types.Step, []string) {
	var missing []string
	changed := false

	resolve := func(s string) string {
		out, miss := c.Resolve(s)
		missing = append(missing, miss...)
		if out != s {
			changed = true
		}
		return out
	}

	out := *step
	out.Description = resolve(step.Description)
	out.Output = resolve(step.Output)

	switch step.Type {
	case types.StepNavigation:
		if step.Navigation != nil {
			cfg := *step.Navigation
			cfg.URL = resolve(cfg.URL)
			out.Navigation = &cfg
		}
	case types.StepClick:
		if step.Click != nil {
			cfg := *step.Click
			cfg.CSSSelector = resolve(cfg.CSSSelector)
			cfg.XPath = resolve(cfg.XPath)
			cfg.ElementTag = resolve(cfg.ElementTag)
			cfg.ElementText = resolve(cfg.ElementText)
			out.Click = &cfg
		}
	case types.StepInput:
		if step.Input != nil {
			cfg := *step.Input
			cfg.CSSSelector = resolve(cfg.CSSSelector)
			cfg.XPath = resolve(cfg.XPath)
			cfg.ElementTag = resolve(cfg.ElementTag)
			cfg.Value = resolve(cfg.Value)
			out.Input = &cfg
		}
	case types.StepSelectChange:
		if step.SelectChange != nil {
			cfg := *step.SelectChange
			cfg.CSSSelector = resolve(cfg.CSSSelector)
			cfg.XPath = resolve(cfg.XPath)
			cfg.ElementTag = resolve(cfg.ElementTag)
			cfg.SelectedText = resolve(cfg.SelectedText)
			out.SelectChange = &cfg
		}
	case types.StepKeyPress:
		if step.KeyPress != nil {
			cfg := *step.KeyPress
			cfg.CSSSelector = resolve(cfg.CSSSelector)
			cfg.XPath = resolve(cfg.XPath)
			cfg.ElementTag = resolve(cfg.ElementTag)
			cfg.Key = resolve(cfg.Key)
			out.KeyPress = &cfg
		}
	case types.StepAgent:
		if step.Agent != nil {
			cfg := *step.Agent
			cfg.Task = resolve(cfg.Task)
			out.Agent = &cfg
		}
	}

	if len(step.Extra) > 0 {
		resolved, miss := c.ResolveValue(map[string]any(step.Extra))
		missing = append(missing, miss...)
		if m, ok := resolved.(map[string]any); ok && !sameMap(m, step.Extra) {
			out.Extra = m
			changed = true
		}
	}

	if !changed {
		return step, missing
	}
	return &out, missing
}

// sameMap reports whether two flat maps hold identical comparable values.
func sameMap(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for key, av := range a {
		bv, ok := b[key]
		if !ok || !sameValue(av, bv) {
			return false
		}
	}
	return true
}
