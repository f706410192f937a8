package datagen

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"datagen_platform/datagen/config"
	"datagen_platform/datagen/dataset"
	"datagen_platform/datagen/llm"
	"datagen_platform/datagen/pipeline"
	"datagen_platform/datagen/storage"
)

func runConfig() *config.DatagenConfig {
	return &config.DatagenConfig{
		RunId:     uuid.New(),
		RunName:   "news-classifier",
		Templates: []string{"Classify the following news article as {}."},
		Vocabularies: []config.VocabularyOptions{
			{Name: "news", Labels: []string{"World", "Sports", "Business", "Sci/Tech"}, Repetitions: 4},
			{Name: "fact_opinion", Labels: []string{"fact", "opinion"}, Repetitions: 1},
		},
		Branches: config.BranchOptions{
			Difficulties: []string{"college"},
			Clarities:    []string{"clear", "ambiguous"},
		},
		Generation: config.GenerationOptions{
			Language:       "english",
			NumGenerations: 2,
			BatchSize:      2,
		},
		LLM:                  config.LLMConfig{Provider: "mock"},
		TrainSamplesPerLabel: 2,
		RandomSeed:           42,
	}
}

func TestRunnerEndToEnd(t *testing.T) {
	store := storage.NewSharedDisk(t.TempDir())
	cfg := runConfig()

	report, err := NewRunner(cfg, store, RunnerOptions{}).Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	// 4 news tasks + 1 fact_opinion task, 2 branches, 2 generations each.
	if report.Tasks != 5 {
		t.Fatalf("expected 5 tasks, got %d", report.Tasks)
	}
	if report.TotalExamples != 20 {
		t.Fatalf("expected 20 examples, got %d", report.TotalExamples)
	}
	if !reflect.DeepEqual(report.BranchOrder, []string{"college-clear", "college-ambiguous"}) {
		t.Fatalf("unexpected branch order: %v", report.BranchOrder)
	}
	for name, status := range report.Branches {
		if status.State != pipeline.BranchCompleted {
			t.Fatalf("branch %s did not complete: %+v", name, status)
		}
	}
	if len(report.FailedBranches()) != 0 {
		t.Fatalf("unexpected failed branches: %v", report.FailedBranches())
	}

	if len(report.Datasets) != 2 {
		t.Fatalf("expected a dataset per vocabulary, got %d", len(report.Datasets))
	}
	news := report.Datasets[0]
	if news.Vocab != "news" || news.Rows != 16 {
		t.Fatalf("unexpected news dataset report: %+v", news)
	}
	if news.Noise.Total() != 0 {
		t.Fatalf("mock provider output should all validate, got noise %+v", news.Noise)
	}
	if news.TrainRows+news.EvalRows != news.Rows {
		t.Fatalf("split must cover every row: %d + %d != %d", news.TrainRows, news.EvalRows, news.Rows)
	}
	for label, count := range news.TrainLabelCounts {
		if count > cfg.TrainSamplesPerLabel {
			t.Fatalf("label %s exceeds the per label cap: %d", label, count)
		}
	}

	// Artifacts land under the run directory.
	for _, path := range []string{
		storage.ConfigFile(cfg.RunId),
		storage.ReportFile(cfg.RunId),
		storage.TrainFile(cfg.RunId, "news"),
		storage.TestFile(cfg.RunId, "news"),
		storage.TrainFile(cfg.RunId, "fact_opinion"),
		storage.TestFile(cfg.RunId, "fact_opinion"),
	} {
		exists, err := store.Exists(path)
		if err != nil || !exists {
			t.Fatalf("expected artifact %v (exists=%v err=%v)", path, exists, err)
		}
	}
}

func TestRunnerReproducibleWithSeed(t *testing.T) {
	// A single branch keeps provider calls sequential, so a fixed seed pins
	// the whole artifact chain.
	firstStore := storage.NewSharedDisk(t.TempDir())
	secondStore := storage.NewSharedDisk(t.TempDir())

	runOnce := func(store storage.Storage) ([]dataset.LabeledRow, *Report) {
		cfg := runConfig()
		cfg.Branches.Clarities = []string{"clear"}

		report, err := NewRunner(cfg, store, RunnerOptions{}).Run(context.Background())
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
		rows, err := dataset.ReadRowsCSV(store, storage.TrainFile(cfg.RunId, "news"))
		if err != nil {
			t.Fatalf("reading train rows failed: %v", err)
		}
		return rows, report
	}

	firstRows, firstReport := runOnce(firstStore)
	secondRows, secondReport := runOnce(secondStore)

	if !reflect.DeepEqual(firstRows, secondRows) {
		t.Fatal("same seed must reproduce the same training rows")
	}
	if !reflect.DeepEqual(firstReport.Datasets, secondReport.Datasets) {
		t.Fatal("same seed must reproduce the same dataset summaries")
	}
	if firstReport.Seed != 42 {
		t.Fatalf("expected the configured seed to be recorded, got %d", firstReport.Seed)
	}
}

func TestRunnerDerivesSeedWhenUnset(t *testing.T) {
	store := storage.NewSharedDisk(t.TempDir())
	cfg := runConfig()
	cfg.RandomSeed = 0

	report, err := NewRunner(cfg, store, RunnerOptions{}).Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if report.Seed == 0 {
		t.Fatal("expected a derived seed to be recorded")
	}
	if cfg.RandomSeed != report.Seed {
		t.Fatal("derived seed must be written back to the config")
	}
}

func TestRunnerMergesSeedData(t *testing.T) {
	store := storage.NewSharedDisk(t.TempDir())

	writeFile := func(path, content string) {
		if err := store.Write(path, strings.NewReader(content)); err != nil {
			t.Fatalf("failed writing %v: %v", path, err)
		}
	}
	writeFile("seed/labels.json", `["World", "Sports", "Business", "Sci/Tech"]`)
	writeFile("seed/data.csv", "text,label\nTroops withdrew from the region.,1\nThe cup final went to penalties.,2\nMarkets closed mixed.,3\n")

	cfg := runConfig()
	cfg.SeedData = []config.SeedDataOptions{{
		Vocabulary:     "news",
		DataPath:       "seed/data.csv",
		LabelNamesPath: "seed/labels.json",
		LabelOffset:    1,
	}}

	report, err := NewRunner(cfg, store, RunnerOptions{}).Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	news := report.Datasets[0]
	if news.SeedRows != 3 {
		t.Fatalf("expected 3 seed rows, got %d", news.SeedRows)
	}
	if news.Rows != 16+3 {
		t.Fatalf("expected synthetic plus seed rows, got %d", news.Rows)
	}
}

func TestRunnerBadSeedPathFailsBeforeGeneration(t *testing.T) {
	provider := &countingProvider{}
	originalFactory := llm.NewProvider
	llm.NewProvider = func(cfg *config.LLMConfig, apiKey string) (llm.Provider, error) {
		return provider, nil
	}
	defer func() { llm.NewProvider = originalFactory }()

	store := storage.NewSharedDisk(t.TempDir())
	cfg := runConfig()
	cfg.SeedData = []config.SeedDataOptions{{
		Vocabulary:     "news",
		DataPath:       "seed/missing.csv",
		LabelNamesPath: "seed/missing.json",
	}}

	if _, err := NewRunner(cfg, store, RunnerOptions{}).Run(context.Background()); err == nil {
		t.Fatal("expected missing seed data to fail the run")
	}
	if calls := provider.count(); calls != 0 {
		t.Fatalf("seed data errors must surface before any generation request, got %d calls", calls)
	}
}

type countingProvider struct {
	mu    sync.Mutex
	calls int
}

func (p *countingProvider) Generate(ctx context.Context, req *llm.Request) (llm.RawGenerations, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return nil, llm.Permanent(fmt.Errorf("should not be called"))
}

func (p *countingProvider) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestRunnerRejectsBadConfig(t *testing.T) {
	store := storage.NewSharedDisk(t.TempDir())

	t.Run("template without slot", func(t *testing.T) {
		cfg := runConfig()
		cfg.Templates = []string{"Classify this article."}
		if _, err := NewRunner(cfg, store, RunnerOptions{}).Run(context.Background()); err == nil {
			t.Fatal("expected template without slot to fail at setup")
		}
	})

	t.Run("single label vocabulary", func(t *testing.T) {
		cfg := runConfig()
		cfg.Vocabularies = []config.VocabularyOptions{{Name: "news", Labels: []string{"World"}}}
		if _, err := NewRunner(cfg, store, RunnerOptions{}).Run(context.Background()); err == nil {
			t.Fatal("expected single label vocabulary to fail at setup")
		}
	})
}

func TestRunnerStoppedByCancellation(t *testing.T) {
	store := storage.NewSharedDisk(t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRunner(runConfig(), store, RunnerOptions{}).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

type failingProvider struct{}

func (failingProvider) Generate(ctx context.Context, req *llm.Request) (llm.RawGenerations, error) {
	return nil, llm.Permanent(fmt.Errorf("backend rejected the request"))
}

func TestRunnerAllBranchesFailed(t *testing.T) {
	originalFactory := llm.NewProvider
	llm.NewProvider = func(cfg *config.LLMConfig, apiKey string) (llm.Provider, error) {
		return failingProvider{}, nil
	}
	defer func() { llm.NewProvider = originalFactory }()

	store := storage.NewSharedDisk(t.TempDir())

	report, err := NewRunner(runConfig(), store, RunnerOptions{}).Run(context.Background())
	if !errors.Is(err, ErrAllBranchesFailed) {
		t.Fatalf("expected ErrAllBranchesFailed, got %v", err)
	}
	if report == nil {
		t.Fatal("the report must still be returned for diagnostics")
	}
	if len(report.FailedBranches()) != len(report.BranchOrder) {
		t.Fatalf("expected every branch to fail, got %v", report.FailedBranches())
	}
}
