package conversation

import (
	"context"
	"errors"
)

// Roles accepted in ChatMessage.Role and stored in Turn.Role.
const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

var (
	// ErrEmptyCompletion is returned when a provider answers without any text.
	ErrEmptyCompletion = errors.New("conversation: model returned no text")
	// ErrUnsupportedRole is returned for history messages a provider cannot map.
	ErrUnsupportedRole = errors.New("conversation: unsupported message role")
)

// ChatMessage is the provider-neutral message shape sent to an LLMClient.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TokenUsage is reported when the provider returns it; zero otherwise.
type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

// LLMRequest is one completion call: the receptionist instructions in System
// and the session's turns, oldest first, in Messages. Messages start with a
// user turn and alternate roles. A zero MaxTokens or TopP and a negative
// Temperature leave the provider default in place; Temperature 0 is sent as
// is. An empty Model uses the client's own model.
type LLMRequest struct {
	Model       string
	System      []string
	Messages    []ChatMessage
	MaxTokens   int32
	Temperature float32
	TopP        float32
}

// LLMResponse carries the raw reply text, control blocks included.
type LLMResponse struct {
	Text       string
	Usage      TokenUsage
	StopReason string
}

// LLMClient is the single-call completion contract every provider implements.
type LLMClient interface {
	Complete(ctx context.Context, req LLMRequest) (LLMResponse, error)
}
