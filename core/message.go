package core

import "github.com/google/uuid"

// Role identifies the conversational author of a Message.
type Role string

// Conversation roles understood by model transports.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// ToolCallRequest is a (name, arguments) pair emitted by the model asking the
// agent to invoke a tool. Arguments carries the raw, semi-structured JSON text
// exactly as produced by the model; parsing and validation happen later at the
// invocation boundary so a malformed payload can be reported back to the model
// instead of failing the run.
type ToolCallRequest struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"`
}

// ToolResult records the outcome of exactly one ToolCallRequest. ToolCallID
// always references the ID of a request from the immediately preceding
// assistant message.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content,omitempty"`
	Succeeded  bool   `json:"succeeded"`
	Err        string `json:"error,omitempty"`
}

// Text returns the payload handed back to the model: the serialized tool
// output on success, the error description on failure.
func (r ToolResult) Text() string {
	if r.Succeeded {
		return r.Content
	}
	return "error: " + r.Err
}

// Message is one entry of a conversation transcript.
//
// ToolCalls is populated only on assistant messages that request tool
// execution. ToolCallID and Result are populated only on tool-role messages
// and tie the message back to the originating request.
type Message struct {
	Role       Role              `json:"role"`
	Content    string            `json:"content,omitempty"`
	ToolCalls  []ToolCallRequest `json:"tool_calls,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
	Result     *ToolResult       `json:"result,omitempty"`
}

// NewUserMessage creates a user-authored text message.
func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// NewSystemMessage creates a system instruction message.
func NewSystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

// NewAssistantMessage creates an assistant message carrying optional text and
// pending tool call requests.
func NewAssistantMessage(text string, calls ...ToolCallRequest) Message {
	return Message{Role: RoleAssistant, Content: text, ToolCalls: calls}
}

// NewToolMessage wraps a ToolResult as a tool-role transcript message.
func NewToolMessage(result ToolResult) Message {
	return Message{
		Role:       RoleTool,
		Content:    result.Text(),
		ToolCallID: result.ToolCallID,
		Result:     &result,
	}
}

// HasToolCalls reports whether the message carries pending tool call requests.
func (m Message) HasToolCalls() bool { return len(m.ToolCalls) > 0 }

// NewID generates a unique identifier for call requests whose provider did
// not supply one.
func NewID() string { return uuid.NewString() }
