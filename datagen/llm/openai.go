package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

type OpenAIProvider struct {
	client *openai.Client
	model  string
}

func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	return &OpenAIProvider{client: openai.NewClient(apiKey), model: model}
}

func (p *OpenAIProvider) Generate(ctx context.Context, req *Request) (RawGenerations, error) {
	systemPrompt, userPrompt, err := BuildPrompt(req)
	if err != nil {
		return nil, Permanent(err)
	}
	if err := checkPromptBudget(systemPrompt, userPrompt, req.MaxOutputTokens); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = p.model
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userPrompt,
			},
		},
		MaxTokens:   req.MaxOutputTokens,
		Temperature: req.Temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, classifyOpenAIError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	return SplitBatchOutput(resp.Choices[0].Message.Content, len(req.Tasks), req.NumGenerations), nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500 {
			return fmt.Errorf("error creating chat completion: %w", err)
		}
		return Permanent(fmt.Errorf("error creating chat completion: %w", err))
	}
	return fmt.Errorf("error creating chat completion: %w", err)
}
