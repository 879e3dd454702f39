package model

import (
	"context"
	"errors"
	"fmt"

	"github.com/agentsdk/agentsdk/agentcore"
)

// ChatAdapter implements agentcore.LLMClient on top of a Client, translating
// the flat ChatMessage/LLMResponse contract used by the planner and executor
// into a Request/Response exchange against a concrete provider adapter (for
// example AnthropicClient, which implements it over anthropic-sdk-go).
// ChatAdapter is what actually puts that contract in front of agentcore.
type ChatAdapter struct {
	client Client
}

// NewChatAdapter wraps client so it satisfies agentcore.LLMClient.
func NewChatAdapter(client Client) *ChatAdapter {
	return &ChatAdapter{client: client}
}

// Generate converts messages into a Request, invokes the wrapped Client, and
// flattens the response's assistant text content back into an
// agentcore.LLMResponse.
func (a *ChatAdapter) Generate(ctx context.Context, messages []agentcore.ChatMessage, cfg agentcore.ModelConfig) (*agentcore.LLMResponse, error) {
	entries := make([]TranscriptEntry, 0, len(messages))
	for _, m := range messages {
		role := ConversationRole(m.Role)
		switch role {
		case ConversationRoleSystem, ConversationRoleUser, ConversationRoleAssistant:
		default:
			role = ConversationRoleUser
		}
		entries = append(entries, TranscriptEntry{
			Role:  role,
			Parts: []Part{TextPart{Text: m.Content}},
		})
	}
	msgs := BuildMessagesFromTranscript(entries)
	if len(msgs) == 0 {
		return nil, errors.New("model: at least one non-empty message is required")
	}

	resp, err := a.client.Complete(ctx, &Request{
		Model:      cfg.Name,
		ModelClass: ModelClassDefault,
		Messages:   msgs,
	})
	if err != nil {
		return nil, a.translateErr(err)
	}

	var text string
	for _, m := range resp.Content {
		for _, p := range m.Parts {
			if tp, ok := p.(TextPart); ok {
				text += tp.Text
			}
		}
	}

	return &agentcore.LLMResponse{
		Text:             text,
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}, nil
}

// translateErr maps a Client failure onto agentcore.ProviderError so callers
// can use agentcore.IsRetriableStatus without depending on this package's own
// error types.
func (a *ChatAdapter) translateErr(err error) error {
	if pe, ok := AsProviderError(err); ok {
		return &agentcore.ProviderError{
			StatusCode: pe.HTTPStatus(),
			Code:       pe.Code(),
			Message:    pe.Error(),
			Retriable:  pe.Retryable(),
		}
	}
	if errors.Is(err, ErrRateLimited) {
		return &agentcore.ProviderError{
			StatusCode: 429,
			Code:       "rate_limited",
			Message:    err.Error(),
			Retriable:  true,
		}
	}
	return fmt.Errorf("model: generate: %w", err)
}
