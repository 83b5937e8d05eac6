package model

import (
	"context"

	"github.com/hupe1980/agentloop/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the
// model. Parameters is a JSON Schema object (minimal subset expected).
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request captures the normalized model input produced by the loop controller:
// an optional system instruction, the full conversation so far and the tool
// definitions the model may call.
type Request struct {
	System   string           `json:"system,omitempty"`
	Messages []core.Message   `json:"messages"`
	Tools    []ToolDefinition `json:"tools,omitempty"`
	Stream   bool             `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a completed turn.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a chunk emitted by a Model.
//
// Partial chunks carry an incremental text Delta. The final chunk (Partial
// false) carries the complete assistant Message, including any tool call
// requests, plus the finish reason and optional usage statistics. Adapters
// must emit exactly one final chunk per successful generation and must never
// emit partial tool call payloads.
type Response struct {
	Partial      bool         `json:"partial"`
	Delta        string       `json:"delta,omitempty"`
	Message      core.Message `json:"message"`
	FinishReason string       `json:"finish_reason,omitempty"`
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "scripted", ...
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface the loop controller needs to drive
// generation. Generate returns immediately; chunks arrive on the response
// channel and a transport failure on the error channel. Both channels are
// closed when the turn is complete. Implementations must respect ctx
// cancellation.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}
