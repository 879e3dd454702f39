package model

import (
	"context"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/require"
)

type fakeMessagesClient struct {
	resp *sdk.Message
	err  error
	got  sdk.MessageNewParams
}

func (f *fakeMessagesClient) New(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	f.got = body
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func newTestMessage(text string) *sdk.Message {
	return &sdk.Message{
		Content: []sdk.ContentBlockUnion{{Type: "text", Text: text}},
	}
}

func TestAnthropicClientCompleteEncodesSystemAndUserText(t *testing.T) {
	fake := &fakeMessagesClient{resp: newTestMessage("hello back")}
	client, err := NewAnthropicClient(fake, AnthropicOptions{DefaultModel: "claude-test", MaxTokens: 512})
	require.NoError(t, err)

	req := &Request{
		Messages: []*Message{
			{Role: ConversationRoleSystem, Parts: []Part{TextPart{Text: "be terse"}}},
			{Role: ConversationRoleUser, Parts: []Part{TextPart{Text: "hi"}}},
		},
	}

	resp, err := client.Complete(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, resp.Content, 1)
	require.Equal(t, "hello back", resp.Content[0].Parts[0].(TextPart).Text)

	require.Len(t, fake.got.System, 1)
	require.Equal(t, "be terse", fake.got.System[0].Text)
	require.Equal(t, sdk.Model("claude-test"), fake.got.Model)
}

func TestAnthropicClientCompleteRequiresMaxTokens(t *testing.T) {
	fake := &fakeMessagesClient{resp: newTestMessage("x")}
	client, err := NewAnthropicClient(fake, AnthropicOptions{DefaultModel: "claude-test"})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), &Request{
		Messages: []*Message{{Role: ConversationRoleUser, Parts: []Part{TextPart{Text: "hi"}}}},
	})
	require.Error(t, err)
}

func TestAnthropicClientResolveModelIDPrefersModelClass(t *testing.T) {
	fake := &fakeMessagesClient{resp: newTestMessage("x")}
	client, err := NewAnthropicClient(fake, AnthropicOptions{
		DefaultModel: "default-model",
		HighModel:    "high-model",
		MaxTokens:    256,
	})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), &Request{
		ModelClass: ModelClassHighReasoning,
		Messages:   []*Message{{Role: ConversationRoleUser, Parts: []Part{TextPart{Text: "hi"}}}},
	})
	require.NoError(t, err)
	require.Equal(t, sdk.Model("high-model"), fake.got.Model)
}

func TestAnthropicClientStreamUnsupported(t *testing.T) {
	fake := &fakeMessagesClient{}
	client, err := NewAnthropicClient(fake, AnthropicOptions{DefaultModel: "claude-test", MaxTokens: 256})
	require.NoError(t, err)

	_, err = client.Stream(context.Background(), &Request{})
	require.ErrorIs(t, err, ErrStreamingUnsupported)
}
