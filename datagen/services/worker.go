package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"datagen_platform/datagen"
	"datagen_platform/datagen/config"
	"datagen_platform/datagen/schema"
	"datagen_platform/datagen/storage"
	"datagen_platform/utils/logging"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// runWorker executes generation runs in-process. Each started run gets its
// own goroutine and cancel function, a stop request cancels the context and
// the pipeline winds down cooperatively.
type runWorker struct {
	db      *gorm.DB
	store   storage.Storage
	limiter RunLimiter

	llmApiKey string
	exporter  *storage.S3Exporter

	mu     sync.Mutex
	active map[uuid.UUID]context.CancelFunc
	wg     sync.WaitGroup
}

func newRunWorker(db *gorm.DB, store storage.Storage, limiter RunLimiter, llmApiKey string, exporter *storage.S3Exporter) *runWorker {
	return &runWorker{
		db:        db,
		store:     store,
		limiter:   limiter,
		llmApiKey: llmApiKey,
		exporter:  exporter,
		active:    make(map[uuid.UUID]context.CancelFunc),
	}
}

func (w *runWorker) Start(run schema.DatagenRun) error {
	var cfg config.DatagenConfig
	if err := json.Unmarshal([]byte(run.Config), &cfg); err != nil {
		return CodedError(fmt.Errorf("error parsing stored run config: %w", err), http.StatusInternalServerError)
	}
	cfg.RunId = run.Id

	if err := w.limiter.Acquire(context.Background()); err != nil {
		if errors.Is(err, ErrTooManyRuns) {
			return CodedError(err, http.StatusTooManyRequests)
		}
		return CodedError(err, http.StatusInternalServerError)
	}

	ctx, cancel := context.WithCancel(context.Background())

	w.mu.Lock()
	if _, ok := w.active[run.Id]; ok {
		w.mu.Unlock()
		cancel()
		w.limiter.Release(context.Background())
		return CodedError(fmt.Errorf("run %v is already executing", run.Id), http.StatusConflict)
	}
	w.active[run.Id] = cancel
	w.mu.Unlock()

	now := time.Now()
	err := updateRunStatus(w.db, run.Id, run.Status, map[string]interface{}{
		"status": schema.Running, "started_at": &now,
	})
	if err != nil {
		w.remove(run.Id)
		cancel()
		w.limiter.Release(context.Background())
		return CodedError(err, http.StatusInternalServerError)
	}

	runsStartedMetric.Inc()
	activeRunsMetric.Inc()

	w.wg.Add(1)
	go w.execute(ctx, run.Id, &cfg)

	return nil
}

func (w *runWorker) execute(ctx context.Context, runId uuid.UUID, cfg *config.DatagenConfig) {
	defer w.wg.Done()
	defer activeRunsMetric.Dec()
	defer w.limiter.Release(context.Background())
	defer w.remove(runId)

	runner := datagen.NewRunner(cfg, w.store, datagen.RunnerOptions{
		ApiKey:   w.llmApiKey,
		Exporter: w.exporter,
	})

	report, err := runner.Run(ctx)
	now := time.Now()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			// The stop handler already moved the run to stopped.
			slog.Info("run stopped by request", "code", logging.GEN_RUN, "run_id", runId)
			return
		}

		slog.Error("run failed", "code", logging.GEN_RUN, "run_id", runId, "error", err)
		if dbErr := updateRunStatus(w.db, runId, schema.Running, map[string]interface{}{
			"status": schema.Failed, "completed_at": &now,
		}); dbErr != nil {
			slog.Error("error recording run failure", "run_id", runId, "error", dbErr)
		}
		if evErr := schema.AddRunEvent(w.db, runId, schema.EventError, err.Error()); evErr != nil {
			slog.Error("error recording run failure event", "run_id", runId, "error", evErr)
		}
		runsFailedMetric.Inc()
		return
	}

	for _, branch := range report.FailedBranches() {
		message := fmt.Sprintf("branch %v produced no examples: %v", branch, report.Branches[branch].Error)
		if evErr := schema.AddRunEvent(w.db, runId, schema.EventWarning, message); evErr != nil {
			slog.Error("error recording branch failure event", "run_id", runId, "error", evErr)
		}
	}

	if dbErr := updateRunStatus(w.db, runId, schema.Running, map[string]interface{}{
		"status": schema.Complete, "completed_at": &now,
	}); dbErr != nil {
		slog.Error("error recording run completion", "run_id", runId, "error", dbErr)
		return
	}

	runsCompletedMetric.Inc()
	slog.Info("run completed", "code", logging.GEN_RUN, "run_id", runId, "examples", report.TotalExamples)
}

func (w *runWorker) remove(runId uuid.UUID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.active, runId)
}

// Stop cancels a run's context if this process is executing it. The report
// for work finished before the cancellation is still written by the runner.
func (w *runWorker) Stop(runId uuid.UUID) bool {
	w.mu.Lock()
	cancel, ok := w.active[runId]
	w.mu.Unlock()

	if ok {
		cancel()
	}
	return ok
}

func (w *runWorker) IsActive(runId uuid.UUID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.active[runId]
	return ok
}

// Shutdown cancels every active run and waits for the workers to exit.
func (w *runWorker) Shutdown() {
	w.mu.Lock()
	for _, cancel := range w.active {
		cancel()
	}
	w.mu.Unlock()

	w.wg.Wait()
}
