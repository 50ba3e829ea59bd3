package types

import (
	"encoding/json"
	"fmt"
)

// commonStepKeys are the fields shared by every step variant.
var commonStepKeys = map[string]bool{
	"type":        true,
	"description": true,
	"output":      true,
}

// configStepKeys maps each step type to the JSON keys its config models.
// Anything else found on a step object is preserved in Extra.
var configStepKeys = map[StepType]map[string]bool{
	StepNavigation:   {"url": true},
	StepClick:        {"cssSelector": true, "xpath": true, "elementTag": true, "elementText": true},
	StepInput:        {"cssSelector": true, "value": true, "xpath": true, "elementTag": true},
	StepSelectChange: {"cssSelector": true, "selectedText": true, "xpath": true, "elementTag": true},
	StepKeyPress:     {"cssSelector": true, "key": true, "xpath": true, "elementTag": true},
	StepScroll:       {"scrollX": true, "scrollY": true},
	StepAgent:        {"task": true, "max_steps": true},
}

// UnmarshalJSON decodes a flat step object into the tagged union. Unknown
// keys are kept in Extra rather than rejected; recordings carry
// informational fields that must not break loading.
func (s *Step) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("step is not an object: %w", err)
	}

	if v, ok := raw["type"]; ok {
		if err := json.Unmarshal(v, &s.Type); err != nil {
			return fmt.Errorf("field \"type\": %w", err)
		}
	}
	if v, ok := raw["description"]; ok {
		if err := json.Unmarshal(v, &s.Description); err != nil {
			return fmt.Errorf("field \"description\": %w", err)
		}
	}
	if v, ok := raw["output"]; ok {
		if err := json.Unmarshal(v, &s.Output); err != nil {
			return fmt.Errorf("field \"output\": %w", err)
		}
	}

	// Decode the type-specific config from the same flat object. An
	// unrecognized type leaves all configs nil; Validate reports it.
	var err error
	switch s.Type {
	case StepNavigation:
		s.Navigation = &NavigationConfig{}
		err = json.Unmarshal(data, s.Navigation)
	case StepClick:
		s.Click = &ClickConfig{}
		err = json.Unmarshal(data, s.Click)
	case StepInput:
		s.Input = &InputConfig{}
		err = json.Unmarshal(data, s.Input)
	case StepSelectChange:
		s.SelectChange = &SelectChangeConfig{}
		err = json.Unmarshal(data, s.SelectChange)
	case StepKeyPress:
		s.KeyPress = &KeyPressConfig{}
		err = json.Unmarshal(data, s.KeyPress)
	case StepScroll:
		s.Scroll = &ScrollConfig{}
		err = json.Unmarshal(data, s.Scroll)
	case StepAgent:
		s.Agent = &AgentConfig{}
		err = json.Unmarshal(data, s.Agent)
	}
	if err != nil {
		return fmt.Errorf("config for type %s: %w", s.Type, err)
	}

	known := configStepKeys[s.Type]
	for key, value := range raw {
		if commonStepKeys[key] || known[key] {
			continue
		}
		var val any
		if err := json.Unmarshal(value, &val); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		if s.Extra == nil {
			s.Extra = make(map[string]any)
		}
		s.Extra[key] = val
	}
	return nil
}

// MarshalJSON re-flattens the tagged union, merging the preserved Extra
// fields back into the object.
func (s Step) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(s.Extra)+8)
	for key, value := range s.Extra {
		flat[key] = value
	}

	flat["type"] = s.Type
	if s.Description != "" {
		flat["description"] = s.Description
	}
	if s.Output != "" {
		flat["output"] = s.Output
	}

	var cfg any
	switch s.Type {
	case StepNavigation:
		cfg = s.Navigation
	case StepClick:
		cfg = s.Click
	case StepInput:
		cfg = s.Input
	case StepSelectChange:
		cfg = s.SelectChange
	case StepKeyPress:
		cfg = s.KeyPress
	case StepScroll:
		cfg = s.Scroll
	case StepAgent:
		cfg = s.Agent
	}
	if cfg != nil {
		data, err := json.Marshal(cfg)
		if err != nil {
			return nil, err
		}
		var fields map[string]any
		if err := json.Unmarshal(data, &fields); err != nil {
			return nil, err
		}
		for key, value := range fields {
			flat[key] = value
		}
	}

	return json.Marshal(flat)
}
