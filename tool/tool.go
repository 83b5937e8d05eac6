// Package tool implements the function calling subsystem of the agent loop:
// schema-described callables, a closed registry keyed by unique names and
// consistent error wrapping so every tool failure surfaces the same way.
package tool

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentloop/internal/schema"
)

// Tool is a named, schema-described callable the agent may invoke instead of,
// or alongside, answering directly.
//
// Implementations should:
//   - Provide clear, descriptive names (snake_case recommended) and descriptions
//   - Define a proper JSON schema for parameters
//   - Be safe for concurrent use; calls within one execute phase may run in parallel
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description of what this tool does.
	// It is provided to the model to help it decide when to call the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected arguments.
	Parameters() map[string]any

	// Call executes the tool with already-parsed arguments. Blocking work
	// must respect ctx cancellation.
	Call(ctx context.Context, args map[string]any) (any, error)
}

// ValidationError is re-exported so tool authors do not need to import the
// internal schema package.
type ValidationError = schema.ValidationError

// Error codes used by ToolError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodePanic      = "PANIC"
)

// ToolError represents an error raised during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{Tool: tool, Message: message, Code: code}
}
