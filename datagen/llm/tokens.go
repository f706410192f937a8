package llm

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Upper bound on prompt + completion tokens for one request. Requests over
// this are a configuration problem (batch too large), not a transport one.
const contextTokenBudget = 16000

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

func initEncoding() {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})
}

// CountTokens returns the cl100k_base token count, falling back to a
// character heuristic if the encoding is unavailable.
func CountTokens(text string) int {
	initEncoding()
	if encoding != nil {
		return len(encoding.Encode(text, nil, nil))
	}
	return estimateTokens(text)
}

func estimateTokens(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	estimate := len([]rune(trimmed)) / 4
	if words := len(strings.Fields(trimmed)); estimate < words {
		estimate = words
	}
	if estimate == 0 {
		estimate = 1
	}
	return estimate
}

// checkPromptBudget rejects requests whose prompt plus completion budget
// cannot fit the model context. Permanent: shrinking the batch is the fix,
// not retrying.
func checkPromptBudget(system, user string, maxOutputTokens int) error {
	promptTokens := CountTokens(system) + CountTokens(user)
	if promptTokens+maxOutputTokens > contextTokenBudget {
		return Permanent(fmt.Errorf(
			"prompt of %d tokens plus %d output tokens exceeds the %d token context budget, reduce batch_size or num_generations",
			promptTokens, maxOutputTokens, contextTokenBudget,
		))
	}
	return nil
}
