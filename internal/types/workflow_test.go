package types

import (
	"testing"

	werrors "github.com/yuefengz/workflow-use/internal/errors"
)

func TestValidateInputs(t *testing.T) {
	def := &Definition{
		Name:        "checkout",
		Description: "Buy a thing",
		Version:     "1.0",
		InputSchema: []InputDef{
			{Name: "query", Type: InputString, Required: true},
			{Name: "quantity", Type: InputNumber},
			{Name: "express", Type: InputBool},
		},
	}

	t.Run("accepts complete inputs", func(t *testing.T) {
		err := def.ValidateInputs(map[string]any{
			"query":    "socks",
			"quantity": 2.0,
			"express":  true,
		})
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("optional inputs may be absent", func(t *testing.T) {
		if err := def.ValidateInputs(map[string]any{"query": "socks"}); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("missing required input", func(t *testing.T) {
		err := def.ValidateInputs(map[string]any{})
		if !werrors.HasCode(err, werrors.CodeInputMissing) {
			t.Errorf("expected INPUT_001, got %v", err)
		}
	})

	t.Run("mistyped input", func(t *testing.T) {
		err := def.ValidateInputs(map[string]any{"query": "socks", "quantity": "two"})
		if !werrors.HasCode(err, werrors.CodeInputTypeMismatch) {
			t.Errorf("expected INPUT_002, got %v", err)
		}
	})

	t.Run("int accepted as number", func(t *testing.T) {
		if err := def.ValidateInputs(map[string]any{"query": "socks", "quantity": 3}); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("empty schema accepts empty inputs", func(t *testing.T) {
		bare := &Definition{Name: "n", Description: "d", Version: "1"}
		if err := bare.ValidateInputs(map[string]any{}); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("unsupported declared type", func(t *testing.T) {
		odd := &Definition{
			InputSchema: []InputDef{{Name: "blob", Type: InputType("object")}},
		}
		err := odd.ValidateInputs(map[string]any{"blob": "x"})
		if !werrors.HasCode(err, werrors.CodeInputUnknownType) {
			t.Errorf("expected INPUT_003, got %v", err)
		}
	})
}
