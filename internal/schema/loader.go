// Package schema loads and validates persisted workflow documents.
package schema

import (
	"encoding/json"
	"os"

	werrors "github.com/yuefengz/workflow-use/internal/errors"
	"github.com/yuefengz/workflow-use/internal/types"
)

// WorkflowExt is the conventional file suffix for workflow documents.
const WorkflowExt = ".workflow.json"

// document is the loading envelope. Top-level fields are pointers so a
// missing key is distinguishable from an empty value; steps stay raw so
// per-step errors can name the offending index.
type document struct {
	Name        *string           `json:"name"`
	Description *string           `json:"description"`
	Version     *string           `json:"version"`
	InputSchema []types.InputDef  `json:"input_schema"`
	Steps       []json.RawMessage `json:"steps"`
}

// Load parses and validates a workflow document.
func Load(data []byte) (*types.Definition, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, werrors.SchemaParseError(err)
	}

	if doc.Name == nil {
		return nil, werrors.SchemaMissingField(-1, "name")
	}
	if doc.Description == nil {
		return nil, werrors.SchemaMissingField(-1, "description")
	}
	if doc.Version == nil {
		return nil, werrors.SchemaMissingField(-1, "version")
	}
	if len(doc.Steps) == 0 {
		return nil, werrors.SchemaMissingField(-1, "steps")
	}

	for _, def := range doc.InputSchema {
		if def.Name == "" {
			return nil, werrors.SchemaMissingField(-1, "input_schema.name")
		}
		if !def.Type.Valid() {
			return nil, werrors.SchemaInvalidValue(-1, "input_schema."+def.Name,
				"unsupported type "+string(def.Type))
		}
	}

	steps := make([]types.Step, len(doc.Steps))
	for i, raw := range doc.Steps {
		if err := json.Unmarshal(raw, &steps[i]); err != nil {
			return nil, werrors.SchemaInvalidValue(i, "step", err.Error())
		}
		if err := steps[i].Validate(i); err != nil {
			return nil, err
		}
	}

	return &types.Definition{
		Name:        *doc.Name,
		Description: *doc.Description,
		Version:     *doc.Version,
		InputSchema: doc.InputSchema,
		Steps:       steps,
	}, nil
}

// LoadFile reads and parses a workflow document from disk.
func LoadFile(path string) (*types.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, werrors.IONotFound(path)
		}
		return nil, werrors.IOReadError(path, err)
	}
	return Load(data)
}

// Marshal serializes a definition back to an indented document,
// preserving any unmodeled step fields.
func Marshal(def *types.Definition) ([]byte, error) {
	return json.MarshalIndent(def, "", "  ")
}

// SaveFile writes a definition to disk in document form.
func SaveFile(path string, def *types.Definition) error {
	data, err := Marshal(def)
	if err != nil {
		return werrors.IOWriteError(path, err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return werrors.IOWriteError(path, err)
	}
	return nil
}
