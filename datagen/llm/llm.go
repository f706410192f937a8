package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"datagen_platform/datagen/config"
	"datagen_platform/datagen/templates"
)

// Request is one batched generation request: a window of task descriptions
// plus the sampling configuration of the branch issuing it.
type Request struct {
	Tasks []templates.TaskDescription

	Language       string
	Difficulty     string
	Clarity        string
	NumGenerations int

	Model           string
	MaxOutputTokens int
	Temperature     float32
}

// RawGenerations holds the raw model outputs for a request. The outer slice
// is aligned with Request.Tasks; each inner slice holds at most
// NumGenerations raw outputs for that task.
type RawGenerations [][]string

func (g RawGenerations) Total() int {
	total := 0
	for _, outputs := range g {
		total += len(outputs)
	}
	return total
}

// Provider is a generative backend. Generate returns raw outputs only;
// whether an output parses into a usable example is the caller's concern.
// Errors returned are transport level. Implementations must honor ctx.
type Provider interface {
	Generate(ctx context.Context, req *Request) (RawGenerations, error)
}

// This pattern helps in easily mocking the provider in tests
// NewProviderFunc is the type for the provider factory function
type NewProviderFunc func(cfg *config.LLMConfig, apiKey string) (Provider, error)

var NewProvider NewProviderFunc = func(cfg *config.LLMConfig, apiKey string) (Provider, error) {
	switch cfg.Provider {
	case "openai":
		if apiKey == "" {
			return nil, fmt.Errorf("API key required for OpenAI")
		}
		return NewOpenAIProvider(apiKey, cfg.Model), nil
	case "gemini":
		return NewGeminiProvider(context.Background(), apiKey, cfg.Model)
	case "onprem":
		return NewOnPremProvider(cfg.Endpoint, cfg.Model)
	case "mock":
		return NewMockProvider(0), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

// DefaultHTTPClient returns an http.Client with sensible defaults for connection pooling
func DefaultHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 5 * time.Minute,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
