// Package errors provides structured error types for workflow-use.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Error codes for workflow-use operations.
const (
	// Schema errors - malformed workflow documents, fatal at load time
	CodeSchemaParseError   = "SCHEMA_001" // Document is not valid JSON
	CodeSchemaMissingField = "SCHEMA_002" // Missing required field
	CodeSchemaUnknownType  = "SCHEMA_003" // Unknown step type
	CodeSchemaInvalidValue = "SCHEMA_004" // Field present but mistyped/invalid

	// Input errors - caller-supplied inputs, fatal at run start
	CodeInputMissing      = "INPUT_001" // Required input absent
	CodeInputTypeMismatch = "INPUT_002" // Input value has wrong type
	CodeInputUnknownType  = "INPUT_003" // input_schema declares unsupported type

	// Action errors - deterministic browser interaction failed, recoverable
	CodeActionElementNotFound = "ACTION_001" // No selector strategy resolved
	CodeActionFailed          = "ACTION_002" // Interaction itself failed
	CodeActionBadStep         = "ACTION_003" // Step kind not dispatchable

	// Agent errors
	CodeAgentNotConfigured = "AGENT_001" // No agent delegate available
	CodeAgentFailed        = "AGENT_002" // Agent infrastructure failure

	// Infrastructure errors - always fatal
	CodeInfraBrowser   = "INFRA_001" // Browser session unreachable
	CodeInfraCancelled = "INFRA_002" // Run cancelled by caller

	// IO errors
	CodeIOReadError  = "IO_001" // Read error
	CodeIOWriteError = "IO_002" // Write error
	CodeIONotFound   = "IO_003" // File not found
)

// Error is the structured error type for workflow-use operations.
type Error struct {
	Code    string         `json:"code"`              // Error code (e.g., "SCHEMA_001")
	Message string         `json:"message"`           // Human-readable message
	Details map[string]any `json:"details,omitempty"` // Context (step_index, selector, etc.)
	Cause   error          `json:"-"`                 // Wrapped error (not serialized)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// MarshalJSON implements json.Marshaler with cause error message.
func (e *Error) MarshalJSON() ([]byte, error) {
	type alias Error
	aux := struct {
		*alias
		CauseMsg string `json:"cause,omitempty"`
	}{
		alias: (*alias)(e),
	}
	if e.Cause != nil {
		aux.CauseMsg = e.Cause.Error()
	}
	return json.Marshal(aux)
}

// New creates a new Error.
func New(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new Error with formatted message.
func Newf(code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an error with an Error.
func Wrap(code, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with a formatted Error.
func Wrapf(code string, err error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// --- Schema Errors ---

// SchemaParseError creates an error for an unparseable document.
func SchemaParseError(err error) *Error {
	return Wrap(CodeSchemaParseError, "failed to parse workflow document", err)
}

// SchemaMissingField creates an error for a missing required field.
// stepIndex is -1 for top-level document fields.
func SchemaMissingField(stepIndex int, field string) *Error {
	if stepIndex < 0 {
		return Newf(CodeSchemaMissingField, "workflow document missing required field: %s", field).
			WithDetail("field", field)
	}
	return Newf(CodeSchemaMissingField, "step %d missing required field: %s", stepIndex, field).
		WithDetail("step_index", stepIndex).
		WithDetail("field", field)
}

// SchemaUnknownType creates an error for an unrecognized step type.
func SchemaUnknownType(stepIndex int, stepType string) *Error {
	return Newf(CodeSchemaUnknownType, "step %d has unknown type: %q", stepIndex, stepType).
		WithDetail("step_index", stepIndex).
		WithDetail("type", stepType)
}

// SchemaInvalidValue creates an error for a mistyped or invalid field value.
func SchemaInvalidValue(stepIndex int, field, reason string) *Error {
	if stepIndex < 0 {
		return Newf(CodeSchemaInvalidValue, "invalid value for %s: %s", field, reason).
			WithDetail("field", field).
			WithDetail("reason", reason)
	}
	return Newf(CodeSchemaInvalidValue, "step %d: invalid value for %s: %s", stepIndex, field, reason).
		WithDetail("step_index", stepIndex).
		WithDetail("field", field).
		WithDetail("reason", reason)
}

// --- Input Errors ---

// InputMissing creates an error for a missing required input.
func InputMissing(name string) *Error {
	return Newf(CodeInputMissing, "missing required input: %s", name).
		WithDetail("input", name)
}

// InputTypeMismatch creates an error for a mistyped input value.
func InputTypeMismatch(name, expected string, actual any) *Error {
	return Newf(CodeInputTypeMismatch, "input %s: expected %s, got %T", name, expected, actual).
		WithDetail("input", name).
		WithDetail("expected", expected).
		WithDetail("actual", fmt.Sprintf("%T", actual))
}

// InputUnknownType creates an error for an unsupported input_schema type.
func InputUnknownType(name, typeStr string) *Error {
	return Newf(CodeInputUnknownType, "input %s declares unsupported type: %q", name, typeStr).
		WithDetail("input", name).
		WithDetail("type", typeStr)
}

// --- Action Errors ---

// ActionElementNotFound creates an error for failed element resolution.
func ActionElementNotFound(action, selector string, strategies []string, err error) *Error {
	return Wrapf(CodeActionElementNotFound, err, "%s: no element found for selector %q", action, selector).
		WithDetail("action", action).
		WithDetail("selector", selector).
		WithDetail("strategies", strategies)
}

// ActionFailed creates an error for a failed browser interaction.
func ActionFailed(action, selector string, err error) *Error {
	return Wrapf(CodeActionFailed, err, "%s failed", action).
		WithDetail("action", action).
		WithDetail("selector", selector)
}

// ActionBadStep creates an error for a step kind the dispatcher cannot handle.
func ActionBadStep(kind string) *Error {
	return Newf(CodeActionBadStep, "no deterministic action for step type: %s", kind).
		WithDetail("type", kind)
}

// --- Agent Errors ---

// AgentNotConfigured creates an error for a missing agent delegate.
func AgentNotConfigured(reason string) *Error {
	return Newf(CodeAgentNotConfigured, "agent delegate required: %s", reason)
}

// AgentFailed creates an error for an agent infrastructure failure.
func AgentFailed(err error) *Error {
	return Wrap(CodeAgentFailed, "agent run failed", err)
}

// --- Infrastructure Errors ---

// InfraBrowser creates an error for an unreachable browser session.
func InfraBrowser(op string, err error) *Error {
	return Wrapf(CodeInfraBrowser, err, "browser session: %s failed", op)
}

// Cancelled creates an error for a cancelled run.
func Cancelled(stepIndex int) *Error {
	return Newf(CodeInfraCancelled, "run cancelled before step %d", stepIndex+1).
		WithDetail("step_index", stepIndex)
}

// --- IO Errors ---

// IOReadError creates an error for read failures.
func IOReadError(path string, err error) *Error {
	return Wrap(CodeIOReadError, "failed to read file", err).
		WithDetail("path", path)
}

// IOWriteError creates an error for write failures.
func IOWriteError(path string, err error) *Error {
	return Wrap(CodeIOWriteError, "failed to write file", err).
		WithDetail("path", path)
}

// IONotFound creates an error for a missing file.
func IONotFound(path string) *Error {
	return Newf(CodeIONotFound, "file not found: %s", path).
		WithDetail("path", path)
}

// HasCode checks if an error is an Error with the given code.
// It handles wrapped errors by unwrapping to find an Error.
func HasCode(err error, code string) bool {
	var werr *Error
	if errors.As(err, &werr) {
		return werr.Code == code
	}
	return false
}

// Code returns the error code if err is an Error, empty string otherwise.
// It handles wrapped errors by unwrapping to find an Error.
func Code(err error) string {
	var werr *Error
	if errors.As(err, &werr) {
		return werr.Code
	}
	return ""
}

// IsSchema reports whether err is a schema-validation error.
func IsSchema(err error) bool {
	switch Code(err) {
	case CodeSchemaParseError, CodeSchemaMissingField, CodeSchemaUnknownType, CodeSchemaInvalidValue:
		return true
	}
	return false
}

// IsInput reports whether err is an input-validation error.
func IsInput(err error) bool {
	switch Code(err) {
	case CodeInputMissing, CodeInputTypeMismatch, CodeInputUnknownType:
		return true
	}
	return false
}

// IsAction reports whether err is a recoverable action error.
func IsAction(err error) bool {
	switch Code(err) {
	case CodeActionElementNotFound, CodeActionFailed, CodeActionBadStep:
		return true
	}
	return false
}

// IsCancelled reports whether err marks a cancelled run.
func IsCancelled(err error) bool {
	return HasCode(err, CodeInfraCancelled)
}
