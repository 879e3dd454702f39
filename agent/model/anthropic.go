package model

import (
	"context"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// MessagesClient captures the subset of the Anthropic SDK client used by
// AnthropicClient. It is satisfied by *sdk.MessageService so callers can pass
// either the real client or a fake in tests.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// AnthropicOptions configures an AnthropicClient.
type AnthropicOptions struct {
	// DefaultModel is the model identifier used when Request.Model and
	// Request.ModelClass do not resolve to HighModel or SmallModel.
	DefaultModel string

	// HighModel is used when Request.ModelClass is ModelClassHighReasoning.
	HighModel string

	// SmallModel is used when Request.ModelClass is ModelClassSmall.
	SmallModel string

	// MaxTokens sets the completion cap when a request does not specify
	// MaxTokens.
	MaxTokens int

	// Temperature is used when a request does not specify Temperature.
	Temperature float64
}

// AnthropicClient implements Client on top of the Anthropic Claude Messages
// API. It encodes only TextPart content: ToolUsePart/ToolResultPart/
// ThinkingPart encoding is out of scope for this runtime core's single
// reference adapter (see DESIGN.md), which exists to exercise the wire
// contract above rather than to reproduce the teacher's full tool-calling
// provider surface.
type AnthropicClient struct {
	msg          MessagesClient
	defaultModel string
	highModel    string
	smallModel   string
	maxTok       int
	temp         float64
}

// NewAnthropicClient builds an Anthropic-backed Client from the given
// Messages client and configuration.
func NewAnthropicClient(msg MessagesClient, opts AnthropicOptions) (*AnthropicClient, error) {
	if msg == nil {
		return nil, errors.New("model: anthropic messages client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("model: default model identifier is required")
	}
	return &AnthropicClient{
		msg:          msg,
		defaultModel: opts.DefaultModel,
		highModel:    opts.HighModel,
		smallModel:   opts.SmallModel,
		maxTok:       opts.MaxTokens,
		temp:         opts.Temperature,
	}, nil
}

// NewAnthropicClientFromAPIKey constructs a client using the default
// Anthropic HTTP client configured with the given API key.
func NewAnthropicClientFromAPIKey(apiKey string, opts AnthropicOptions) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, errors.New("model: api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return NewAnthropicClient(&ac.Messages, opts)
}

// Complete issues a non-streaming Messages.New request and translates the
// response into assistant text content.
func (c *AnthropicClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	params, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	msg, err := c.msg.New(ctx, *params)
	if err != nil {
		if isAnthropicRateLimited(err) {
			return nil, fmt.Errorf("%w: %w", ErrRateLimited, err)
		}
		return nil, fmt.Errorf("anthropic messages.new: %w", err)
	}
	return translateAnthropicResponse(msg), nil
}

// Stream is unsupported by the text-only reference adapter.
func (c *AnthropicClient) Stream(context.Context, *Request) (Streamer, error) {
	return nil, ErrStreamingUnsupported
}

func (c *AnthropicClient) prepareRequest(req *Request) (*sdk.MessageNewParams, error) {
	if req == nil || len(req.Messages) == 0 {
		return nil, errors.New("anthropic: messages are required")
	}
	modelID := c.resolveModelID(req)
	if modelID == "" {
		return nil, errors.New("anthropic: model identifier is required")
	}
	msgs, system, err := encodeAnthropicMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTok
	}
	if maxTokens <= 0 {
		return nil, errors.New("anthropic: max_tokens must be positive")
	}
	params := sdk.MessageNewParams{
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
		Model:     sdk.Model(modelID),
	}
	if len(system) > 0 {
		params.System = system
	}
	temp := float64(req.Temperature)
	if temp <= 0 {
		temp = c.temp
	}
	if temp > 0 {
		params.Temperature = sdk.Float(temp)
	}
	return &params, nil
}

func (c *AnthropicClient) resolveModelID(req *Request) string {
	if req.Model != "" {
		return req.Model
	}
	switch req.ModelClass {
	case ModelClassHighReasoning:
		if c.highModel != "" {
			return c.highModel
		}
	case ModelClassSmall:
		if c.smallModel != "" {
			return c.smallModel
		}
	}
	return c.defaultModel
}

func encodeAnthropicMessages(msgs []*Message) ([]sdk.MessageParam, []sdk.TextBlockParam, error) {
	conversation := make([]sdk.MessageParam, 0, len(msgs))
	system := make([]sdk.TextBlockParam, 0, len(msgs))

	for _, m := range msgs {
		if m == nil {
			continue
		}
		if m.Role == ConversationRoleSystem {
			for _, p := range m.Parts {
				if v, ok := p.(TextPart); ok && v.Text != "" {
					system = append(system, sdk.TextBlockParam{Text: v.Text})
				}
			}
			continue
		}

		blocks := make([]sdk.ContentBlockParamUnion, 0, len(m.Parts))
		for _, p := range m.Parts {
			if v, ok := p.(TextPart); ok && v.Text != "" {
				blocks = append(blocks, sdk.NewTextBlock(v.Text))
			}
		}
		if len(blocks) == 0 {
			continue
		}
		switch m.Role {
		case ConversationRoleUser:
			conversation = append(conversation, sdk.NewUserMessage(blocks...))
		case ConversationRoleAssistant:
			conversation = append(conversation, sdk.NewAssistantMessage(blocks...))
		default:
			return nil, nil, fmt.Errorf("anthropic: unsupported message role %q", m.Role)
		}
	}
	if len(conversation) == 0 {
		return nil, nil, errors.New("anthropic: at least one user/assistant message is required")
	}
	return conversation, system, nil
}

func isAnthropicRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == 429 {
		return true
	}
	return false
}

func translateAnthropicResponse(msg *sdk.Message) *Response {
	resp := &Response{}
	for _, block := range msg.Content {
		if block.Type != "text" || block.Text == "" {
			continue
		}
		resp.Content = append(resp.Content, Message{
			Role:  ConversationRoleAssistant,
			Parts: []Part{TextPart{Text: block.Text}},
		})
	}
	if u := msg.Usage; u.InputTokens != 0 || u.OutputTokens != 0 || u.CacheReadInputTokens != 0 || u.CacheCreationInputTokens != 0 {
		resp.Usage = TokenUsage{
			InputTokens:      int(u.InputTokens),
			OutputTokens:     int(u.OutputTokens),
			TotalTokens:      int(u.InputTokens + u.OutputTokens),
			CacheReadTokens:  int(u.CacheReadInputTokens),
			CacheWriteTokens: int(u.CacheCreationInputTokens),
		}
	}
	resp.StopReason = string(msg.StopReason)
	return resp
}
