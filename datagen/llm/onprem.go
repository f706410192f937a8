package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// OnPremProvider talks to a self-hosted OpenAI-compatible chat completion
// endpoint. Responses are streamed and accumulated into the full document
// before splitting, since self-hosted servers commonly only support the
// streaming path.
type OnPremProvider struct {
	endpoint string
	model    string
	client   *http.Client
}

func NewOnPremProvider(endpoint, model string) (*OnPremProvider, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("endpoint required for on-prem provider")
	}

	baseURL, err := url.JoinPath(endpoint, "v1/chat/completions")
	if err != nil {
		return nil, fmt.Errorf("error creating API URL: %w", err)
	}

	return &OnPremProvider{
		endpoint: baseURL,
		model:    model,
		client:   DefaultHTTPClient(),
	}, nil
}

func (p *OnPremProvider) Generate(ctx context.Context, req *Request) (RawGenerations, error) {
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

	body := map[string]interface{}{
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
		"stream":      true,
		"model":       model,
		"max_tokens":  req.MaxOutputTokens,
		"temperature": req.Temperature,
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, Permanent(fmt.Errorf("error marshaling request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.endpoint, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, Permanent(fmt.Errorf("error creating request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(respBody))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, err
		}
		return nil, Permanent(err)
	}

	content, err := accumulateStream(resp.Body)
	if err != nil {
		return nil, err
	}

	return SplitBatchOutput(content, len(req.Tasks), req.NumGenerations), nil
}

func accumulateStream(body io.Reader) (string, error) {
	var content strings.Builder

	reader := bufio.NewReader(body)
	for {
		line, err := reader.ReadString('\n')
		if err == io.EOF {
			return content.String(), nil
		}
		if err != nil {
			return "", fmt.Errorf("error reading stream: %w", err)
		}

		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		line = strings.TrimPrefix(line, "data: ")
		if line == "[DONE]" {
			return content.String(), nil
		}

		var chunk map[string]interface{}
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			continue
		}

		if choices, ok := chunk["choices"].([]interface{}); ok && len(choices) > 0 {
			if choice, ok := choices[0].(map[string]interface{}); ok {
				if delta, ok := choice["delta"].(map[string]interface{}); ok {
					if text, ok := delta["content"].(string); ok && text != "" {
						content.WriteString(text)
					}
				}
			}
		}
	}
}
