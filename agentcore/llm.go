package agentcore

import (
	"context"
	"fmt"
)

// ModelConfig selects which model a generate call targets.
type ModelConfig struct {
	Name     string
	Provider string
}

// ChatMessage is the wire shape an LLMClient.Generate call exchanges with a
// provider: a flat role/content pair, independent of the richer multi-part
// model.Message used by concrete provider adapters.
type ChatMessage struct {
	Role    string
	Content string
}

// LLMResponse is the normalized result of a generate call.
type LLMResponse struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ProviderError normalizes transport-layer failures from an LLM provider.
// Retriable mirrors the status codes the source system treats as transient:
// 408, 409, 429, 500, 502, 503, 504.
type ProviderError struct {
	StatusCode int
	Code       string
	Message    string
	Retriable  bool
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// IsRetriableStatus reports whether an HTTP status code is treated as a
// transient provider failure.
func IsRetriableStatus(statusCode int) bool {
	switch statusCode {
	case 408, 409, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// LLMClient is the external LLM provider collaborator. In this module
// agent/model.ChatAdapter implements it over a model.Client such as
// model.AnthropicClient; no OpenAI or Azure adapter is included.
type LLMClient interface {
	Generate(ctx context.Context, messages []ChatMessage, cfg ModelConfig) (*LLMResponse, error)
}
