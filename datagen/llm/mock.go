package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
)

// MockProvider fabricates well formed generations without a backend. Selected
// with the "mock" provider setting; keeps local runs and tests hermetic.
type MockProvider struct {
	mu  sync.Mutex
	rng *rand.Rand
	seq int
}

func NewMockProvider(seed int64) *MockProvider {
	if seed == 0 {
		seed = 1
	}
	return &MockProvider{rng: rand.New(rand.NewSource(seed))}
}

func (p *MockProvider) Generate(ctx context.Context, req *Request) (RawGenerations, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	outputs := make(RawGenerations, len(req.Tasks))
	for i, task := range req.Tasks {
		for g := 0; g < req.NumGenerations; g++ {
			p.seq++

			labelIdx := p.rng.Intn(len(task.Labels))
			label := task.Labels[labelIdx]
			misleading := task.Labels[(labelIdx+1)%len(task.Labels)]

			raw, err := json.Marshal(ParsedExample{
				InputText:       mockText(req, label, p.seq),
				Label:           label,
				MisleadingLabel: misleading,
			})
			if err != nil {
				return nil, err
			}
			outputs[i] = append(outputs[i], string(raw))
		}
	}

	return outputs, nil
}

func mockText(req *Request, label string, seq int) string {
	return fmt.Sprintf("Synthetic %s passage no. %d about %s, written at a %s level and %s to classify.",
		req.Language, seq, label, req.Difficulty, req.Clarity)
}
