package datagen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"slices"
	"time"

	"github.com/google/uuid"

	"datagen_platform/datagen/config"
	"datagen_platform/datagen/dataset"
	"datagen_platform/datagen/llm"
	"datagen_platform/datagen/pipeline"
	"datagen_platform/datagen/storage"
	"datagen_platform/datagen/templates"
	"datagen_platform/utils/logging"
)

var ErrAllBranchesFailed = errors.New("all generation branches failed")

// Runner executes one generation run end to end: template expansion, the
// branch pipeline, assembly, the stratified split, and artifact export.
// Run status bookkeeping belongs to the caller; the runner only reports
// through its return values.
type Runner struct {
	cfg   *config.DatagenConfig
	store storage.Storage

	apiKey   string
	exporter *storage.S3Exporter
}

type RunnerOptions struct {
	// ApiKey authenticates to the configured llm provider. Ignored by the
	// mock and on prem providers.
	ApiKey string

	// Exporter, when set, mirrors the finished run's artifacts to a bucket.
	Exporter *storage.S3Exporter
}

func NewRunner(cfg *config.DatagenConfig, store storage.Storage, opts RunnerOptions) *Runner {
	return &Runner{cfg: cfg, store: store, apiKey: opts.ApiKey, exporter: opts.Exporter}
}

// Run executes the whole generation flow. Configuration problems fail here
// before any backend call; branch failures during generation do not, they
// are recorded in the report. The error is ErrAllBranchesFailed when the
// run finished but produced nothing usable, with the report still returned
// for diagnostics.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	start := time.Now().UTC()

	if err := r.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run config: %w", err)
	}
	r.resolveRunDefaults()

	if err := r.saveConfigSnapshot(); err != nil {
		return nil, err
	}

	tasks, err := r.expandTasks()
	if err != nil {
		return nil, err
	}

	// Seed data is read before the pipeline runs so a bad path fails at
	// setup, not after generation.
	seedRows, err := r.loadSeedData()
	if err != nil {
		return nil, err
	}

	provider, err := r.buildProvider()
	if err != nil {
		return nil, err
	}

	result := pipeline.New(r.cfg, provider, tasks).Run(ctx)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	datasets := dataset.Assemble(result, r.cfg.Vocabularies)
	for vocab, rows := range seedRows {
		datasets[vocab].Merge(rows)
	}

	report := &Report{
		RunId:         r.cfg.RunId,
		RunName:       r.cfg.RunName,
		Seed:          r.cfg.RandomSeed,
		StartTime:     start,
		Tasks:         len(tasks),
		TotalExamples: result.TotalExamples(),
		BranchOrder:   result.Order,
		Branches:      result.Statuses(),
	}

	for i, vocab := range r.cfg.Vocabularies {
		ds := datasets[vocab.Name]

		splitRng := rand.New(rand.NewSource(r.cfg.RandomSeed + int64(i) + 1))
		split := dataset.StratifiedSplit(ds, r.cfg.TrainSamplesPerLabel, splitRng)

		if err := dataset.ExportSplit(r.store, r.cfg.RunId, vocab.Name, split); err != nil {
			return nil, err
		}

		slog.Info("assembled dataset",
			"vocab", vocab.Name,
			"rows", ds.Len(),
			"noise", ds.Noise.Total(),
			"train_rows", len(split.Train),
			"eval_rows", len(split.Eval),
			"code", logging.DATA_ASSEMBLY,
		)

		report.Datasets = append(report.Datasets, DatasetReport{
			Vocab:            vocab.Name,
			Labels:           ds.Labels,
			Rows:             ds.Len(),
			SeedRows:         len(seedRows[vocab.Name]),
			LabelCounts:      ds.LabelCounts(),
			MinLabelCount:    ds.MinLabelCount(),
			Noise:            ds.Noise,
			TrainRows:        len(split.Train),
			EvalRows:         len(split.Eval),
			TrainLabelCounts: split.TrainLabelCounts(),
		})
	}

	report.EndTime = time.Now().UTC()

	if err := r.saveReport(report); err != nil {
		return nil, err
	}

	if r.exporter != nil {
		// The shared disk copy is canonical; a failed bucket mirror is not
		// worth failing a finished run over.
		if err := r.exporter.ExportDir(ctx, r.store, storage.RunDir(r.cfg.RunId)); err != nil {
			slog.Error("error exporting artifacts to s3", "error", err, "code", logging.DATA_EXPORT)
		}
	}

	if failed := report.FailedBranches(); len(failed) == len(report.BranchOrder) && len(failed) > 0 {
		return report, ErrAllBranchesFailed
	}

	return report, nil
}

// resolveRunDefaults assigns a run id for purely local runs and pins a
// concrete seed when the config asks for a derived one, so the recorded
// config always reproduces the run.
func (r *Runner) resolveRunDefaults() {
	if r.cfg.RunId == uuid.Nil {
		r.cfg.RunId = uuid.New()
	}
	if r.cfg.RandomSeed == 0 {
		r.cfg.RandomSeed = time.Now().UnixNano()
		slog.Info("derived random seed", "seed", r.cfg.RandomSeed, "code", logging.GEN_RUN)
	}
}

func (r *Runner) saveConfigSnapshot() error {
	data, err := json.MarshalIndent(r.cfg, "", "    ")
	if err != nil {
		return fmt.Errorf("error encoding config snapshot: %w", err)
	}
	if err := r.store.Write(storage.ConfigFile(r.cfg.RunId), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("error saving config snapshot: %w", err)
	}
	return nil
}

func (r *Runner) saveReport(report *Report) error {
	data, err := json.MarshalIndent(report, "", "    ")
	if err != nil {
		return fmt.Errorf("error encoding run report: %w", err)
	}
	if err := r.store.Write(storage.ReportFile(r.cfg.RunId), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("error saving run report: %w", err)
	}
	return nil
}

func (r *Runner) loadSeedData() (map[string][]dataset.Row, error) {
	seedRows := make(map[string][]dataset.Row)
	for _, opts := range r.cfg.SeedData {
		rows, err := dataset.LoadSeedRows(r.store, opts)
		if err != nil {
			return nil, fmt.Errorf("error loading seed data for vocabulary %v: %w", opts.Vocabulary, err)
		}
		seedRows[opts.Vocabulary] = append(seedRows[opts.Vocabulary], rows...)
	}
	return seedRows, nil
}

// expandTasks instantiates every template against every vocabulary. All
// vocabularies share one task stream; the assembler routes examples back to
// their vocabulary's dataset.
func (r *Runner) expandTasks() ([]templates.TaskDescription, error) {
	templateList := slices.Clone(r.cfg.Templates)
	if r.cfg.TemplateFile != "" {
		fromFile, err := templates.LoadTemplateFile(r.cfg.TemplateFile)
		if err != nil {
			return nil, err
		}
		templateList = append(templateList, fromFile...)
	}

	rng := rand.New(rand.NewSource(r.cfg.RandomSeed))

	var tasks []templates.TaskDescription
	for _, vocab := range r.cfg.Vocabularies {
		expanded, err := templates.Expand(templateList, vocab, rng)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, expanded...)

		slog.Info("expanded templates", "vocab", vocab.Name, "templates", len(templateList), "tasks", len(expanded), "code", logging.GEN_RUN)
	}
	return tasks, nil
}

func (r *Runner) buildProvider() (llm.Provider, error) {
	provider, err := llm.NewProvider(&r.cfg.LLM, r.apiKey)
	if err != nil {
		return nil, fmt.Errorf("error creating llm provider: %w", err)
	}

	provider = llm.WithRetries(provider, r.cfg.LLM.RetryAttempts)

	// The cache sits outside the retry layer so a hit never spends retry
	// budget.
	provider, err = llm.WithCache(provider, r.cfg.LLM.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("error creating llm cache: %w", err)
	}
	return provider, nil
}
