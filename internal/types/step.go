package types

import (
	werrors "github.com/yuefengz/workflow-use/internal/errors"
)

// StepType discriminates the step variants in a workflow definition.
// IMPORTANT: There are exactly 7 step types. Six deterministic browser
// actions plus the agentic variant.
type StepType string

const (
	// Deterministic steps - scripted browser interactions
	StepNavigation   StepType = "navigation"    // Load a URL
	StepClick        StepType = "click"         // Click an element
	StepInput        StepType = "input"         // Fill a value into an element
	StepSelectChange StepType = "select_change" // Pick a dropdown option by label
	StepKeyPress     StepType = "key_press"     // Dispatch a key event
	StepScroll       StepType = "scroll"        // Scroll the page by pixel offsets

	// Agentic step - objective delegated to an LLM-driven agent
	StepAgent StepType = "agent"
)

// Valid returns true if this is a recognized step type.
func (t StepType) Valid() bool {
	switch t {
	case StepNavigation, StepClick, StepInput, StepSelectChange, StepKeyPress, StepScroll, StepAgent:
		return true
	}
	return false
}

// Deterministic returns true if this step type executes via scripted
// browser interaction rather than an agent.
func (t StepType) Deterministic() bool {
	return t.Valid() && t != StepAgent
}

// NavigationConfig for step type: navigation
type NavigationConfig struct {
	URL string `json:"url" yaml:"url"`
}

// ClickConfig for step type: click
type ClickConfig struct {
	CSSSelector string `json:"cssSelector" yaml:"cssSelector"`
	XPath       string `json:"xpath,omitempty" yaml:"xpath,omitempty"`             // Fallback selector hint
	ElementTag  string `json:"elementTag,omitempty" yaml:"elementTag,omitempty"`   // Informational
	ElementText string `json:"elementText,omitempty" yaml:"elementText,omitempty"` // Fallback text hint
}

// InputConfig for step type: input
type InputConfig struct {
	CSSSelector string `json:"cssSelector" yaml:"cssSelector"`
	Value       string `json:"value" yaml:"value"`
	XPath       string `json:"xpath,omitempty" yaml:"xpath,omitempty"`
	ElementTag  string `json:"elementTag,omitempty" yaml:"elementTag,omitempty"`
}

// SelectChangeConfig for step type: select_change
type SelectChangeConfig struct {
	CSSSelector  string `json:"cssSelector" yaml:"cssSelector"`
	SelectedText string `json:"selectedText" yaml:"selectedText"` // Visible label of the option
	XPath        string `json:"xpath,omitempty" yaml:"xpath,omitempty"`
	ElementTag   string `json:"elementTag,omitempty" yaml:"elementTag,omitempty"`
}

// KeyPressConfig for step type: key_press
type KeyPressConfig struct {
	CSSSelector string `json:"cssSelector" yaml:"cssSelector"`
	Key         string `json:"key" yaml:"key"` // e.g. "Enter", "Tab"
	XPath       string `json:"xpath,omitempty" yaml:"xpath,omitempty"`
	ElementTag  string `json:"elementTag,omitempty" yaml:"elementTag,omitempty"`
}

// ScrollConfig for step type: scroll
type ScrollConfig struct {
	ScrollX int `json:"scrollX" yaml:"scrollX"`
	ScrollY int `json:"scrollY" yaml:"scrollY"`
}

// DefaultAgentMaxSteps bounds an agent step when max_steps is omitted.
const DefaultAgentMaxSteps = 5

// AgentConfig for step type: agent
type AgentConfig struct {
	Task     string `json:"task" yaml:"task"`
	MaxSteps int    `json:"max_steps,omitempty" yaml:"max_steps,omitempty"` // 0 means DefaultAgentMaxSteps
}

// Budget returns the effective step budget for this agent step.
func (c *AgentConfig) Budget() int {
	if c == nil || c.MaxSteps <= 0 {
		return DefaultAgentMaxSteps
	}
	return c.MaxSteps
}

// Step is the single unit of workflow execution. Exactly one config is
// populated, matching Type. Recordings attach informational fields
// (timestamps, tab ids, original selectors) that are not modeled; these
// survive round-trips in Extra.
type Step struct {
	// Common fields
	Type        StepType `json:"type"`
	Description string   `json:"description,omitempty"` // Used for fallback prompts and logs
	Output      string   `json:"output,omitempty"`      // Context key to store the step result under

	// Type-specific config (exactly one populated based on Type)
	Navigation   *NavigationConfig   `json:"-"`
	Click        *ClickConfig        `json:"-"`
	Input        *InputConfig        `json:"-"`
	SelectChange *SelectChangeConfig `json:"-"`
	KeyPress     *KeyPressConfig     `json:"-"`
	Scroll       *ScrollConfig       `json:"-"`
	Agent        *AgentConfig        `json:"-"`

	// Unmodeled fields preserved from the source document
	Extra map[string]any `json:"-"`
}

// Validate checks the step is well-formed. index is the zero-based
// position of the step in the workflow, used in error messages.
func (s *Step) Validate(index int) error {
	if !s.Type.Valid() {
		return werrors.SchemaUnknownType(index, string(s.Type))
	}
	if err := s.validateConfig(index); err != nil {
		return err
	}
	return s.validateRequired(index)
}

// validateConfig ensures exactly one config is set matching the type.
func (s *Step) validateConfig(index int) error {
	configs := map[StepType]bool{
		StepNavigation:   s.Navigation != nil,
		StepClick:        s.Click != nil,
		StepInput:        s.Input != nil,
		StepSelectChange: s.SelectChange != nil,
		StepKeyPress:     s.KeyPress != nil,
		StepScroll:       s.Scroll != nil,
		StepAgent:        s.Agent != nil,
	}

	if !configs[s.Type] {
		return werrors.SchemaMissingField(index, string(s.Type))
	}
	for typ, hasConfig := range configs {
		if hasConfig && typ != s.Type {
			return werrors.SchemaInvalidValue(index, string(typ), "config does not match step type "+string(s.Type))
		}
	}
	return nil
}

// validateRequired checks the required fields for the step's type.
// String fields must be non-empty; numeric fields accept zero.
func (s *Step) validateRequired(index int) error {
	missing := func(field string) error {
		return werrors.SchemaMissingField(index, field)
	}

	switch s.Type {
	case StepNavigation:
		if s.Navigation.URL == "" {
			return missing("url")
		}
	case StepClick:
		if s.Click.CSSSelector == "" {
			return missing("cssSelector")
		}
	case StepInput:
		if s.Input.CSSSelector == "" {
			return missing("cssSelector")
		}
		if s.Input.Value == "" {
			return missing("value")
		}
	case StepSelectChange:
		if s.SelectChange.CSSSelector == "" {
			return missing("cssSelector")
		}
		if s.SelectChange.SelectedText == "" {
			return missing("selectedText")
		}
	case StepKeyPress:
		if s.KeyPress.CSSSelector == "" {
			return missing("cssSelector")
		}
		if s.KeyPress.Key == "" {
			return missing("key")
		}
	case StepScroll:
		// scrollX/scrollY are ints; zero offsets are valid
	case StepAgent:
		if s.Agent.Task == "" {
			return missing("task")
		}
		if s.Agent.MaxSteps < 0 {
			return werrors.SchemaInvalidValue(index, "max_steps", "must not be negative")
		}
	}
	return nil
}

// Selector returns the primary CSS selector for element-targeting steps,
// or empty string for steps that do not resolve an element.
func (s *Step) Selector() string {
	switch s.Type {
	case StepClick:
		if s.Click != nil {
			return s.Click.CSSSelector
		}
	case StepInput:
		if s.Input != nil {
			return s.Input.CSSSelector
		}
	case StepSelectChange:
		if s.SelectChange != nil {
			return s.SelectChange.CSSSelector
		}
	case StepKeyPress:
		if s.KeyPress != nil {
			return s.KeyPress.CSSSelector
		}
	}
	return ""
}

// Params returns the step's type-specific parameters as a flat map,
// used for diagnostics and fallback task rendering.
func (s *Step) Params() map[string]any {
	params := make(map[string]any)
	switch s.Type {
	case StepNavigation:
		if s.Navigation != nil {
			params["url"] = s.Navigation.URL
		}
	case StepClick:
		if s.Click != nil {
			params["cssSelector"] = s.Click.CSSSelector
			if s.Click.ElementText != "" {
				params["elementText"] = s.Click.ElementText
			}
		}
	case StepInput:
		if s.Input != nil {
			params["cssSelector"] = s.Input.CSSSelector
			params["value"] = s.Input.Value
		}
	case StepSelectChange:
		if s.SelectChange != nil {
			params["cssSelector"] = s.SelectChange.CSSSelector
			params["selectedText"] = s.SelectChange.SelectedText
		}
	case StepKeyPress:
		if s.KeyPress != nil {
			params["cssSelector"] = s.KeyPress.CSSSelector
			params["key"] = s.KeyPress.Key
		}
	case StepScroll:
		if s.Scroll != nil {
			params["scrollX"] = s.Scroll.ScrollX
			params["scrollY"] = s.Scroll.ScrollY
		}
	case StepAgent:
		if s.Agent != nil {
			params["task"] = s.Agent.Task
			params["max_steps"] = s.Agent.Budget()
		}
	}
	return params
}
