package trainer

import (
	"context"
	"fmt"
	"slices"

	"datagen_platform/datagen/dataset"
)

// MockTrainer memorizes its training rows and predicts the label of an
// exactly matching text, falling back to the most frequent training label.
// Deterministic, so tests can assert on its metrics.
type MockTrainer struct{}

func (MockTrainer) Train(ctx context.Context, train, eval []dataset.LabeledRow, labels []string) (Model, Metrics, error) {
	if len(labels) == 0 {
		return nil, Metrics{}, fmt.Errorf("trainer requires a label set")
	}

	model := &mockModel{
		byText: make(map[string]string, len(train)),
		labels: slices.Clone(labels),
	}

	counts := make(map[string]int)
	for _, row := range train {
		if !slices.Contains(labels, row.Label) {
			return nil, Metrics{}, fmt.Errorf("training row %d has label %q outside the label set", row.Id, row.Label)
		}
		model.byText[row.Text] = row.Label
		counts[row.Label]++
	}

	// Tie break by label set order so the fallback is stable.
	for _, label := range labels {
		if model.fallback == "" || counts[label] > counts[model.fallback] {
			model.fallback = label
		}
	}

	metrics, err := Evaluate(ctx, model, eval)
	if err != nil {
		return nil, Metrics{}, err
	}
	return model, metrics, nil
}

type mockModel struct {
	byText   map[string]string
	labels   []string
	fallback string
}

func (m *mockModel) Predict(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if label, ok := m.byText[text]; ok {
		return label, nil
	}
	return m.fallback, nil
}

func (m *mockModel) Labels() []string {
	return m.labels
}
