package services

import (
	"log"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"time"

	"datagen_platform/datagen/auth"
	"datagen_platform/datagen/config"
	"datagen_platform/datagen/schema"
	"datagen_platform/datagen/storage"
	"datagen_platform/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

type DatagenService struct {
	runs RunService

	db     *gorm.DB
	worker *runWorker
	stop   chan bool
}

// Variables holds the deployment settings threaded into the services.
type Variables struct {
	// ApiKey guards the user facing endpoints. Empty disables the check.
	ApiKey string

	// LlmApiKey is handed to generation runs for their model provider.
	LlmApiKey string

	Review config.ReviewConfig

	MaxConcurrentRuns int
}

func NewDatagenService(db *gorm.DB, store storage.Storage, redisClient *redis.Client, exporter *storage.S3Exporter, variables Variables, secret []byte) *DatagenService {
	jobAuth := auth.NewJwtManager(slices.Concat(secret, []byte("job")))

	limiter := NewRunLimiter(redisClient, max(variables.MaxConcurrentRuns, 1))
	worker := newRunWorker(db, store, limiter, variables.LlmApiKey, exporter)

	return &DatagenService{
		runs: RunService{
			db:       db,
			storage:  store,
			worker:   worker,
			userAuth: auth.ApiKeyAuth(variables.ApiKey),
			jobAuth:  jobAuth,
			review:   variables.Review,
		},
		db:     db,
		worker: worker,
		stop:   make(chan bool, 1),
	}
}

func (d *DatagenService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger: log.New(os.Stderr, "", log.LstdFlags), NoColor: false,
	}))

	r.Mount("/runs", d.runs.Routes())

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteSuccess(w)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

// statusSync marks runs that claim to be running but have no worker in this
// process as failed. StartedAt has to be older than the stall timeout so runs
// executed outside the server, which report over the job endpoints instead,
// are not clobbered mid flight.
func (d *DatagenService) statusSync(stallTimeout time.Duration) {
	var runs []schema.DatagenRun

	result := d.db.Where("status = ?", schema.Running).Find(&runs)
	if result.Error != nil {
		slog.Error("status sync: sql error querying running runs", "error", result.Error)
		return
	}

	for _, run := range runs {
		if d.worker.IsActive(run.Id) {
			continue
		}
		if run.StartedAt != nil && time.Since(*run.StartedAt) < stallTimeout {
			continue
		}

		now := time.Now()
		err := updateRunStatus(d.db, run.Id, schema.Running, map[string]interface{}{
			"status": schema.Failed, "completed_at": &now,
		})
		if err != nil {
			slog.Error("status sync: error updating stalled run", "run_id", run.Id, "error", err)
			continue
		}
		if err := schema.AddRunEvent(d.db, run.Id, schema.EventError, "run was interrupted before completing"); err != nil {
			slog.Error("status sync: error recording stalled run event", "run_id", run.Id, "error", err)
		}
		slog.Info("status sync: marked stalled run as failed", "run_id", run.Id)
	}
}

func (d *DatagenService) RunStatusSync(interval, stallTimeout time.Duration) {
	slog.Info("status sync: starting")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.statusSync(stallTimeout)
		case <-d.stop:
			slog.Info("status sync: process stopped")
			return
		}
	}
}

func (d *DatagenService) StopRunStatusSync() {
	close(d.stop)
}

// Shutdown cancels in flight runs and waits for their workers to exit.
func (d *DatagenService) Shutdown() {
	d.worker.Shutdown()
}
