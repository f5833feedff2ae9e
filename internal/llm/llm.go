// Package llm provides the reasoning model client abstraction.
package llm

import "context"

// Message roles. The wire format follows the OpenAI chat convention.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message represents a chat message exchanged with the model.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // set on tool result messages
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	// ID is the provider-assigned call id, required to correlate the
	// tool result message. Synthesized when the provider omits it.
	ID string `json:"id,omitempty"`

	// Name is the tool to invoke.
	Name string `json:"name"`

	// Arguments are the decoded call arguments.
	Arguments map[string]any `json:"arguments"`
}

// ChatResponse is the unified response from a model provider. Wire
// format conversion happens at the provider boundary (openai.go).
type ChatResponse struct {
	Model   string
	Message Message

	// Token usage, when the provider reports it.
	InputTokens  int
	OutputTokens int
}

// Client is the interface a reasoning model provider must implement.
// tools carries the registry's descriptor list in wire form; pass nil
// to disable tool calling for the request.
type Client interface {
	Chat(ctx context.Context, messages []Message, tools []map[string]any) (*ChatResponse, error)

	// Ping checks that the provider is reachable and the credentials
	// are accepted.
	Ping(ctx context.Context) error
}
