package tool

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentloop/internal/schema"
)

// FunctionTool is a generic adapter that exposes a plain Go function as a
// Tool. It validates supplied arguments against its declared schema before
// execution and normalizes failures into *ToolError values:
//
//	*ToolError (returned directly) -> forwarded unchanged
//	validation failure             -> *ToolError{Code: CodeValidation}
//	other error                    -> *ToolError{Code: CodeExecution}
//
// A FunctionTool has no mutable state after construction and is safe for
// concurrent use.
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]any
	fn          func(ctx context.Context, args map[string]any) (any, error)
}

// NewFunctionTool constructs a FunctionTool from an explicit schema and
// function.
//
// Example:
//
//	sumTool := tool.NewFunctionTool(
//	  "calculate_sum",
//	  "Calculate the sum of two numbers",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "a": map[string]any{"type": "number"},
//	      "b": map[string]any{"type": "number"},
//	    },
//	    "required": []string{"a", "b"},
//	  },
//	  func(ctx context.Context, args map[string]any) (any, error) {
//	    return args["a"].(float64) + args["b"].(float64), nil
//	  },
//	)
func NewFunctionTool(
	name, description string,
	parameters map[string]any,
	fn func(ctx context.Context, args map[string]any) (any, error),
) *FunctionTool {
	return &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
	}
}

// NewFunctionToolFromStruct derives the parameter schema from a struct using
// reflection, equivalent to schema.FromStruct(structType).
//
// Example:
//
//	type SumArgs struct {
//	  A float64 `json:"a" description:"First addend"`
//	  B float64 `json:"b" description:"Second addend"`
//	}
//
//	sumTool := tool.NewFunctionToolFromStruct("calculate_sum",
//	  "Calculate the sum of two numbers", SumArgs{}, sumFn)
func NewFunctionToolFromStruct(
	name, description string,
	structType any,
	fn func(ctx context.Context, args map[string]any) (any, error),
) *FunctionTool {
	return NewFunctionTool(name, description, schema.FromStruct(structType), fn)
}

// Name returns the unique tool name used in call requests and routing.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the natural language description exposed to models.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the JSON schema describing expected arguments.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// Call validates args against the declared schema then invokes the underlying
// function.
func (t *FunctionTool) Call(ctx context.Context, args map[string]any) (any, error) {
	if err := schema.Validate(args, t.parameters); err != nil {
		return nil, &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
		}
	}

	result, err := t.fn(ctx, args)
	if err != nil {
		if toolErr, ok := err.(*ToolError); ok {
			return nil, toolErr
		}
		return nil, &ToolError{Tool: t.name, Message: err.Error(), Code: CodeExecution}
	}

	return result, nil
}
