package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/turnos-ai/pkg/logging"
)

type fakeChatCompletion struct {
	lastReq openai.ChatCompletionRequest
	resp    openai.ChatCompletionResponse
	err     error
}

func (f *fakeChatCompletion) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.lastReq = req
	return f.resp, f.err
}

func TestOpenAILLMClient_Complete(t *testing.T) {
	fake := &fakeChatCompletion{resp: openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message:      openai.ChatCompletionMessage{Content: "  Hola  "},
			FinishReason: openai.FinishReasonStop,
		}},
		Usage: openai.Usage{PromptTokens: 10, CompletionTokens: 2, TotalTokens: 12},
	}}
	client := newOpenAILLMClient(fake, "")

	resp, err := client.Complete(context.Background(), LLMRequest{
		System:      []string{"sos recepcionista"},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: "hola"}, {Role: ChatRoleAssistant, Content: " "}},
		MaxTokens:   256,
		Temperature: 0.4,
	})
	require.NoError(t, err)
	assert.Equal(t, "Hola", resp.Text)
	assert.Equal(t, "stop", resp.StopReason)
	assert.Equal(t, int32(12), resp.Usage.TotalTokens)

	assert.Equal(t, defaultOpenAIModel, fake.lastReq.Model)
	assert.Equal(t, 256, fake.lastReq.MaxTokens)
	require.Len(t, fake.lastReq.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, fake.lastReq.Messages[0].Role)
	assert.Equal(t, openai.ChatMessageRoleUser, fake.lastReq.Messages[1].Role)
}

func TestOpenAILLMClient_Errors(t *testing.T) {
	client := newOpenAILLMClient(&fakeChatCompletion{err: errors.New("429")}, "gpt-x")
	_, err := client.Complete(context.Background(), LLMRequest{Messages: []ChatMessage{{Role: ChatRoleUser, Content: "hola"}}})
	require.Error(t, err)

	client = newOpenAILLMClient(&fakeChatCompletion{}, "gpt-x")
	_, err = client.Complete(context.Background(), LLMRequest{Messages: []ChatMessage{{Role: ChatRoleUser, Content: "hola"}}})
	require.ErrorIs(t, err, ErrEmptyCompletion)

	_, err = NewOpenAILLMClient(" ", "")
	require.Error(t, err)
}

type fakeConverse struct {
	lastInput *bedrockruntime.ConverseInput
	out       *bedrockruntime.ConverseOutput
	err       error
}

func (f *fakeConverse) Converse(ctx context.Context, in *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.lastInput = in
	return f.out, f.err
}

func TestBedrockLLMClient_Complete(t *testing.T) {
	fake := &fakeConverse{out: &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
			Role:    brtypes.ConversationRoleAssistant,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: "Buen día"}},
		}},
		StopReason: brtypes.StopReasonEndTurn,
		Usage:      &brtypes.TokenUsage{InputTokens: aws.Int32(5), OutputTokens: aws.Int32(2), TotalTokens: aws.Int32(7)},
	}}
	client := NewBedrockLLMClient(fake, "anthropic.claude-3-haiku")

	resp, err := client.Complete(context.Background(), LLMRequest{
		System:      []string{"instrucciones"},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: "hola"}},
		Temperature: -1,
	})
	require.NoError(t, err)
	assert.Equal(t, "Buen día", resp.Text)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, int32(7), resp.Usage.TotalTokens)

	assert.Equal(t, "anthropic.claude-3-haiku", aws.ToString(fake.lastInput.ModelId))
	assert.Nil(t, fake.lastInput.InferenceConfig)
	require.Len(t, fake.lastInput.Messages, 1)
	require.Len(t, fake.lastInput.System, 1)
}

func TestBedrockLLMClient_ZeroTemperatureIsSent(t *testing.T) {
	fake := &fakeConverse{out: &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
			Role:    brtypes.ConversationRoleAssistant,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: "ok"}},
		}},
	}}
	client := NewBedrockLLMClient(fake, "m")

	_, err := client.Complete(context.Background(), LLMRequest{
		Messages: []ChatMessage{{Role: ChatRoleUser, Content: "hola"}},
	})
	require.NoError(t, err)
	require.NotNil(t, fake.lastInput.InferenceConfig)
	assert.Equal(t, float32(0), aws.ToFloat32(fake.lastInput.InferenceConfig.Temperature))
	assert.NotNil(t, fake.lastInput.InferenceConfig.Temperature)
	assert.Nil(t, fake.lastInput.InferenceConfig.MaxTokens)
	assert.Nil(t, fake.lastInput.InferenceConfig.TopP)
}

func TestBedrockLLMClient_RejectsUnknownRole(t *testing.T) {
	client := NewBedrockLLMClient(&fakeConverse{}, "m")
	_, err := client.Complete(context.Background(), LLMRequest{Messages: []ChatMessage{{Role: "tool", Content: "x"}}})
	require.ErrorIs(t, err, ErrUnsupportedRole)
}

func TestFallbackLLMClient(t *testing.T) {
	ctx := context.Background()
	req := LLMRequest{Model: "primary-model", Messages: []ChatMessage{{Role: ChatRoleUser, Content: "hola"}}}

	primary := &stubLLMClient{responses: []LLMResponse{{Text: "primario"}}}
	resp, err := NewFallbackLLMClient(primary, &stubLLMClient{}, logging.Default()).Complete(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "primario", resp.Text)

	primary = &stubLLMClient{errs: []error{errors.New("down")}}
	fallback := &stubLLMClient{responses: []LLMResponse{{Text: "respaldo"}}}
	resp, err = NewFallbackLLMClient(primary, fallback, nil).Complete(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "respaldo", resp.Text)
	require.Len(t, fallback.requests, 1)
	assert.Empty(t, fallback.requests[0].Model, "fallback uses its own model")

	primary = &stubLLMClient{errs: []error{errors.New("down")}}
	_, err = NewFallbackLLMClient(primary, nil, nil).Complete(ctx, req)
	require.EqualError(t, err, "down")
}

func TestFallbackLLMClient_BothFail(t *testing.T) {
	primaryErr := errors.New("primary down")
	secondaryErr := errors.New("secondary down")
	client := NewFallbackLLMClient(
		&stubLLMClient{errs: []error{primaryErr}},
		&stubLLMClient{errs: []error{secondaryErr}},
		nil,
	)

	_, err := client.Complete(context.Background(), LLMRequest{})
	require.ErrorIs(t, err, primaryErr)
	require.ErrorIs(t, err, secondaryErr)
}

func TestFallbackLLMClient_CancelledContextSkipsSecondary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	secondary := &stubLLMClient{responses: []LLMResponse{{Text: "respaldo"}}}
	client := NewFallbackLLMClient(&stubLLMClient{errs: []error{context.Canceled}}, secondary, nil)

	_, err := client.Complete(ctx, LLMRequest{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, secondary.requests)
}
