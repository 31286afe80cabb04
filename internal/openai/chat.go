package openai

import (
	"context"
	"errors"
	"strings"

	"github.com/cloo-solutions/counsel/internal/domain"
	openai "github.com/sashabaranov/go-openai"
)

// ChatClient runs chat completions against an OpenAI-compatible endpoint.
type ChatClient struct {
	client *openai.Client
}

func NewChatClient(cfg Config) *ChatClient {
	return &ChatClient{client: newAPIClient(cfg)}
}

// OpenStream starts one streaming completion. Errors returned here happen before
// any output was produced.
func (c *ChatClient) OpenStream(ctx context.Context, req domain.CompletionRequest) (domain.EventStream, error) {
	if req.Model == "" {
		return nil, errors.New("openai model is required")
	}

	chatReq := openai.ChatCompletionRequest{
		Model:               req.Model,
		Messages:            toChatMessages(req.System, req.Turns),
		MaxCompletionTokens: req.MaxTokens,
		Stream:              true,
		StreamOptions:       &openai.StreamOptions{IncludeUsage: true},
		Tools:               toTools(req.Tools),
		ReasoningEffort:     req.ReasoningEffort,
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, classifyError(err)
	}

	return newChatStream(stream, req.Model), nil
}

// Complete runs a single non-streaming completion and returns the answer text.
func (c *ChatClient) Complete(ctx context.Context, model, system, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", classifyError(err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no completion choices returned")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
