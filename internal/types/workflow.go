package types

import (
	werrors "github.com/yuefengz/workflow-use/internal/errors"
)

// InputType is the declared type of a workflow input.
type InputType string

const (
	InputString InputType = "string"
	InputNumber InputType = "number"
	InputBool   InputType = "bool"
)

// Valid returns true if this is a supported input type.
func (t InputType) Valid() bool {
	switch t {
	case InputString, InputNumber, InputBool:
		return true
	}
	return false
}

// InputDef declares one named, typed workflow input.
type InputDef struct {
	Name     string    `json:"name" yaml:"name"`
	Type     InputType `json:"type" yaml:"type"`
	Required bool      `json:"required,omitempty" yaml:"required,omitempty"` // Defaults false
}

// Definition is a loaded workflow document. Immutable once loaded; the
// unit of distribution and persistence.
type Definition struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Version     string     `json:"version"`
	InputSchema []InputDef `json:"input_schema,omitempty"`
	Steps       []Step     `json:"steps"`
}

// ValidateInputs checks caller-supplied inputs against the declared
// input schema. A definition with no input schema accepts anything,
// including an empty mapping.
func (d *Definition) ValidateInputs(inputs map[string]any) error {
	for _, def := range d.InputSchema {
		value, ok := inputs[def.Name]
		if !ok {
			if def.Required {
				return werrors.InputMissing(def.Name)
			}
			continue
		}

		switch def.Type {
		case InputString:
			if _, ok := value.(string); !ok {
				return werrors.InputTypeMismatch(def.Name, "string", value)
			}
		case InputNumber:
			switch value.(type) {
			case int, int64, float64:
				// OK
			default:
				return werrors.InputTypeMismatch(def.Name, "number", value)
			}
		case InputBool:
			if _, ok := value.(bool); !ok {
				return werrors.InputTypeMismatch(def.Name, "bool", value)
			}
		default:
			return werrors.InputUnknownType(def.Name, string(def.Type))
		}
	}
	return nil
}
