// Package template provides the run-scoped execution context and the
// placeholder resolution applied to steps before execution.
package template

import (
	"fmt"
	"sort"
)

// Context is the mutable variable store for one workflow run. It is
// initialized from validated caller inputs; steps that declare an
// output key write into it, and later steps resolve placeholders
// against it. Not safe for concurrent use; runs are strictly
// sequential.
type Context struct {
	vars map[string]any
}

// NewContext creates an empty context.
func NewContext() *Context {
	return &Context{vars: make(map[string]any)}
}

// NewContextFrom creates a context seeded with the given values.
func NewContextFrom(values map[string]any) *Context {
	c := NewContext()
	c.Merge(values)
	return c
}

// Set stores a variable.
func (c *Context) Set(name string, value any) {
	c.vars[name] = value
}

// Get returns a variable and whether it exists.
func (c *Context) Get(name string) (any, bool) {
	v, ok := c.vars[name]
	return v, ok
}

// Merge copies values into the context, overriding duplicates.
func (c *Context) Merge(values map[string]any) {
	for name, value := range values {
		c.vars[name] = value
	}
}

// Len returns the number of stored variables.
func (c *Context) Len() int {
	return len(c.vars)
}

// Names returns the stored variable names, sorted.
func (c *Context) Names() []string {
	names := make([]string, 0, len(c.vars))
	for name := range c.vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a shallow copy of the variable mapping.
func (c *Context) Snapshot() map[string]any {
	out := make(map[string]any, len(c.vars))
	for name, value := range c.vars {
		out[name] = value
	}
	return out
}

// stringify renders a context value for placeholder substitution.
func stringify(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", value)
}
