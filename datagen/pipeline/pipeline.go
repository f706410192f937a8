package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"datagen_platform/datagen/config"
	"datagen_platform/datagen/llm"
	"datagen_platform/datagen/templates"
	"datagen_platform/utils/logging"
)

// Pipeline runs every configured branch over a shared task stream. All state
// is owned by the instance; multiple pipelines can coexist in one process.
type Pipeline struct {
	loader   *Loader
	branches []Branch
	provider llm.Provider
	metadata GenerationMetadata
}

func New(cfg *config.DatagenConfig, provider llm.Provider, tasks []templates.TaskDescription) *Pipeline {
	return &Pipeline{
		loader:   NewLoader(tasks),
		branches: BuildBranches(cfg.Branches, cfg.Generation),
		provider: provider,
		metadata: GenerationMetadata{
			Provider: cfg.LLM.Provider,
			Model:    cfg.LLM.Model,
		},
	}
}

func (p *Pipeline) Branches() []Branch {
	return p.branches
}

// Result holds every branch's output keyed by branch name. Order preserves
// the construction order of the branch list so downstream iteration is
// deterministic.
type Result struct {
	Order    []string
	Branches map[string]*BranchResult
}

// InOrder returns branch results in the static branch list order.
func (r *Result) InOrder() []*BranchResult {
	results := make([]*BranchResult, 0, len(r.Order))
	for _, name := range r.Order {
		if result, ok := r.Branches[name]; ok {
			results = append(results, result)
		}
	}
	return results
}

// Statuses returns the per branch statuses keyed by branch name.
func (r *Result) Statuses() map[string]BranchStatus {
	statuses := make(map[string]BranchStatus, len(r.Branches))
	for name, result := range r.Branches {
		statuses[name] = result.Status
	}
	return statuses
}

// TotalExamples counts examples across all branches, parsed or not.
func (r *Result) TotalExamples() int {
	total := 0
	for _, result := range r.Branches {
		total += len(result.Examples)
	}
	return total
}

// Run executes all branches concurrently and waits for completion. Branch
// failures are recorded in the result, never propagated; a canceled context
// stops branches from issuing new batches while completed branches keep
// their results.
func (p *Pipeline) Run(ctx context.Context) *Result {
	result := &Result{
		Order:    make([]string, 0, len(p.branches)),
		Branches: make(map[string]*BranchResult, len(p.branches)),
	}
	for _, branch := range p.branches {
		result.Order = append(result.Order, branch.Name)
	}

	slog.Info("starting generation pipeline", "branches", len(p.branches), "tasks", p.loader.Len(), "code", logging.GEN_RUN)

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, branch := range p.branches {
		wg.Add(1)
		go func(branch Branch) {
			defer wg.Done()

			branchResult := branch.run(ctx, p.provider, p.loader, p.metadata)

			slog.Info("branch finished",
				"branch", branch.Name,
				"state", branchResult.Status.State,
				"generated", len(branchResult.Examples),
				"dropped_requests", branchResult.Status.RequestsDropped,
				"parse_failures", branchResult.Status.ParseFailures,
				"code", logging.GEN_BRANCH,
			)

			mu.Lock()
			result.Branches[branch.Name] = branchResult
			mu.Unlock()
		}(branch)
	}
	wg.Wait()

	slog.Info("generation pipeline finished", "examples", result.TotalExamples(), "code", logging.GEN_RUN)

	return result
}
