package model

import (
	"context"
	"encoding/json"
	"iter"
	"strings"

	"github.com/nstogner/roster/pkg/domain"
)

// ContentType discriminates the parts of a Message.
type ContentType string

const (
	ContentTypeText       ContentType = "text"
	ContentTypeToolCall   ContentType = "tool_call"
	ContentTypeToolResult ContentType = "tool_result"
)

// Message represents a message in the model's conversation context.
type Message struct {
	// Role indicates the sender (user, assistant, tool).
	Role domain.Role
	// Content holds the message parts.
	Content []Content
}

// Content represents a single component of a message.
type Content struct {
	Type ContentType

	// Text content (when Type == "text").
	Text string `json:"text,omitempty"`

	// Tool call (when Type == "tool_call").
	ToolCall *ToolCall `json:"tool_call,omitempty"`

	// Tool result (when Type == "tool_result").
	ToolResult *ToolResult `json:"tool_result,omitempty"`

	// ThoughtSignature is an opaque signature for the model's internal state.
	// Must be round-tripped back to the model on the next request.
	ThoughtSignature []byte `json:"thought_signature,omitempty"`
}

// ToolCall is a function call exactly as the model emitted it.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ToolResult is the textual outcome of a tool call handed back to the model.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// Text returns the concatenated text parts of m.
func (m Message) Text() string {
	var b strings.Builder
	for _, c := range m.Content {
		if c.Type == ContentTypeText {
			b.WriteString(c.Text)
		}
	}
	return b.String()
}

// ToolCalls returns the tool calls of m in the order the model emitted them.
func (m Message) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, c := range m.Content {
		if c.Type == ContentTypeToolCall && c.ToolCall != nil {
			calls = append(calls, *c.ToolCall)
		}
	}
	return calls
}

// Request is one model invocation.
type Request struct {
	// SystemPrompt is the system instruction.
	SystemPrompt string
	// History is the bounded client-owned conversation, oldest first.
	History []domain.Turn
	// UserMessage is the new user message, sent after History.
	UserMessage string
	// Messages are appended after UserMessage. The controller uses them to
	// carry the tool-call round.
	Messages []Message
	// Tools exposes the ToolManifest to the model.
	Tools bool
}

// Provider represents a service that provides LLMs (e.g. Gemini).
// Implementations hold their own credentials and endpoint; nothing is read
// from process-wide state at call time.
type Provider interface {
	// Name returns the provider's identifier (e.g. "gemini").
	Name() string

	// Chat sends req and blocks until the complete response is available.
	Chat(ctx context.Context, req Request) (Message, error)

	// Stream sends req and returns a lazy sequence of text fragments.
	// Tool calls are not surfaced in streaming mode.
	Stream(ctx context.Context, req Request) (iter.Seq2[string, error], error)

	// Extract asks for a JSON document matching schema.
	Extract(ctx context.Context, req Request, schema *Schema) (json.RawMessage, error)
}
