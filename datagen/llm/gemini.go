package llm

import (
	"context"
	"fmt"

	genai "google.golang.org/genai"
)

type GeminiProvider struct {
	client *genai.Client
	model  string
}

func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	// The genai client falls back to GEMINI_API_KEY from the env when no key
	// is passed explicitly.
	cfg := &genai.ClientConfig{Backend: genai.BackendGeminiAPI}
	if apiKey != "" {
		cfg.APIKey = apiKey
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("error creating gemini client: %w", err)
	}

	return &GeminiProvider{client: client, model: model}, nil
}

func (p *GeminiProvider) Generate(ctx context.Context, req *Request) (RawGenerations, error) {
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

	full := systemPrompt + "\n\n" + userPrompt
	resp, err := p.client.Models.GenerateContent(ctx, model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: full}}}},
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"},
	)
	if err != nil {
		return nil, fmt.Errorf("error generating content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("gemini returned no candidates")
	}

	return SplitBatchOutput(resp.Candidates[0].Content.Parts[0].Text, len(req.Tasks), req.NumGenerations), nil
}
