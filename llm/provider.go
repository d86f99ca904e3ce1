// Package llm defines the narrow contract this engine consumes from an LLM
// provider: a single-shot completion call and an ordered event stream. The
// provider's internals (model selection, sampling, transport) live outside
// this repository.
package llm

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cowelltechlab/ipse-student-dashboard-backend-sub000/types"
)

// Role represents the role of a message participant.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a role-tagged prompt message.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// ToolSchema describes one tool the provider may call.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"` // JSON Schema
}

// ChatRequest is a provider-agnostic chat request.
type ChatRequest struct {
	TraceID     string            `json:"trace_id,omitempty"`
	Model       string            `json:"model,omitempty"`
	Messages    []Message         `json:"messages"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Temperature float32           `json:"temperature,omitempty"`
	Tools       []ToolSchema      `json:"tools,omitempty"`
	ToolChoice  string            `json:"tool_choice,omitempty"` // auto/none/<tool name>
	Timeout     time.Duration     `json:"timeout,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ChatResponse is the complete, single-shot provider response.
type ChatResponse struct {
	ID        string    `json:"id,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	Model     string    `json:"model,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Provider is the unified LLM adapter interface.
//
// Stream returns an ordered sequence of tagged events for one request. The
// channel is closed after a terminal event (response_complete or
// response_error); a close without a terminal event means the source was
// cancelled and consumers must treat it as failure.
type Provider interface {
	// Completion issues a synchronous request and returns the full response.
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Stream issues a streaming request and returns the event channel.
	Stream(ctx context.Context, req *ChatRequest) (<-chan types.ProviderEvent, error)

	// Name returns the provider's unique identifier.
	Name() string
}
