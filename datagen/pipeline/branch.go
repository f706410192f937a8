package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"datagen_platform/datagen/config"
	"datagen_platform/datagen/llm"
	"datagen_platform/utils/logging"
)

// BranchConfig is the fixed sampling configuration of one branch.
type BranchConfig struct {
	Language   string `json:"language"`
	Difficulty string `json:"difficulty"`
	Clarity    string `json:"clarity"`

	NumGenerations int `json:"num_generations"`
	BatchSize      int `json:"batch_size"`

	MaxOutputTokens int     `json:"max_output_tokens"`
	Temperature     float32 `json:"temperature"`
}

type Branch struct {
	Name   string
	Config BranchConfig
}

// BuildBranches constructs the static branch list: one branch per
// (difficulty, clarity) pair, difficulty-major, named by its pair. The list
// order is the deterministic iteration order for downstream consumers.
func BuildBranches(branchOpts config.BranchOptions, genOpts config.GenerationOptions) []Branch {
	branches := make([]Branch, 0, len(branchOpts.Difficulties)*len(branchOpts.Clarities))
	for _, difficulty := range branchOpts.Difficulties {
		for _, clarity := range branchOpts.Clarities {
			branches = append(branches, Branch{
				Name: BranchName(difficulty, clarity),
				Config: BranchConfig{
					Language:        genOpts.Language,
					Difficulty:      difficulty,
					Clarity:         clarity,
					NumGenerations:  genOpts.NumGenerations,
					BatchSize:       genOpts.BatchSize,
					MaxOutputTokens: genOpts.MaxOutputTokens,
					Temperature:     genOpts.Temperature,
				},
			})
		}
	}
	return branches
}

func BranchName(difficulty, clarity string) string {
	slug := func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "-")
	}
	return slug(difficulty) + "-" + slug(clarity)
}

// run executes the branch over the loader's batches in submission order.
// Batches are sequential within a branch; a dropped batch loses only its own
// examples. The branch fails only if it produced nothing and at least one
// request permanently failed.
func (b *Branch) run(ctx context.Context, provider llm.Provider, loader *Loader, metadata GenerationMetadata) *BranchResult {
	result := &BranchResult{Name: b.Name, Config: b.Config}

	metadata.Difficulty = b.Config.Difficulty
	metadata.Clarity = b.Config.Clarity
	metadata.Language = b.Config.Language

	start := time.Now()
	defer func() {
		result.Status.Generated = len(result.Examples)
		branchDurationMetric.Observe(time.Since(start).Seconds())
	}()

	var lastErr error
	for _, batch := range loader.Batches(b.Config.BatchSize) {
		select {
		case <-ctx.Done():
			result.Status.State = BranchCanceled
			result.Status.Error = ctx.Err().Error()
			return result
		default:
		}

		req := &llm.Request{
			Tasks:           batch,
			Language:        b.Config.Language,
			Difficulty:      b.Config.Difficulty,
			Clarity:         b.Config.Clarity,
			NumGenerations:  b.Config.NumGenerations,
			Model:           metadata.Model,
			MaxOutputTokens: b.Config.MaxOutputTokens,
			Temperature:     b.Config.Temperature,
		}

		result.Status.RequestsIssued++
		outputs, err := provider.Generate(ctx, req)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				result.Status.State = BranchCanceled
				result.Status.Error = err.Error()
				return result
			}

			// Retry budget is spent inside the provider; at this point the
			// request is dropped and the branch moves on.
			result.Status.RequestsDropped++
			requestsDroppedMetric.Inc()
			lastErr = err
			slog.Error("generation request dropped", "branch", b.Name, "error", err, "code", logging.GEN_DISPATCH)
			continue
		}

		for taskIdx, rawOutputs := range outputs {
			if taskIdx >= len(batch) {
				break
			}
			for _, raw := range rawOutputs {
				example := GeneratedExample{
					Task:           batch[taskIdx],
					RawModelOutput: raw,
					Metadata:       metadata,
				}

				if parsed, ok := llm.ParseExample(raw); ok {
					example.InputText = parsed.InputText
					example.Label = parsed.Label
					example.MisleadingLabel = parsed.MisleadingLabel
				} else {
					result.Status.ParseFailures++
					parseFailuresMetric.Inc()
				}

				result.Examples = append(result.Examples, example)
				examplesGeneratedMetric.Inc()
			}
		}
	}

	if lastErr != nil && len(result.Examples) == 0 {
		result.Status.State = BranchFailed
		result.Status.Error = lastErr.Error()
		return result
	}

	result.Status.State = BranchCompleted
	return result
}
