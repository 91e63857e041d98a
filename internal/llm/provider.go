// Package llm defines the chat-completion interface the examiner talks to.
//
// Implementations wrap a concrete SDK (see the openai and anyllm
// subpackages) and must be safe for concurrent use.
package llm

import "context"

// Roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of a chat conversation.
type Message struct {
	Role    string
	Content string
}

// CompletionRequest carries a single prompt round-trip.
type CompletionRequest struct {
	// SystemPrompt, when set, is sent before Messages with the system role.
	SystemPrompt string
	Messages     []Message

	// Temperature in [0, 2]. Zero leaves the provider default.
	Temperature float64

	// MaxTokens caps the completion length. Zero leaves the provider default.
	MaxTokens int
}

// Usage is the token accounting reported by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionResponse is the assistant's reply.
type CompletionResponse struct {
	Content string
	Usage   Usage
}

// Provider performs blocking chat completions.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// UserPrompt builds a request holding a single user message.
func UserPrompt(prompt string, temperature float64) CompletionRequest {
	return CompletionRequest{
		Messages:    []Message{{Role: RoleUser, Content: prompt}},
		Temperature: temperature,
	}
}
