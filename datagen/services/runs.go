package services

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"datagen_platform/datagen"
	"datagen_platform/datagen/auth"
	"datagen_platform/datagen/config"
	"datagen_platform/datagen/dataset"
	"datagen_platform/datagen/review"
	"datagen_platform/datagen/schema"
	"datagen_platform/datagen/storage"
	"datagen_platform/utils"
	"datagen_platform/utils/logging"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RunService struct {
	db      *gorm.DB
	storage storage.Storage
	worker  *runWorker

	userAuth chi.Middlewares
	jobAuth  *auth.JwtManager

	review config.ReviewConfig
}

func (s *RunService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth...)

		r.Get("/list", s.ListRuns)
		r.With(checkSufficientStorage(s.storage)).Post("/create", s.CreateRun)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.jobAuth.Verifier())
		r.Use(s.jobAuth.Authenticator())

		r.Post("/update-status", s.UpdateStatus)
		r.Post("/log", s.JobLog)
	})

	r.Route("/{run_id}", func(r chi.Router) {
		r.Use(s.userAuth...)

		r.Post("/start", s.StartRun)
		r.Post("/stop", s.StopRun)
		r.Delete("/", s.DeleteRun)

		r.Get("/status", s.GetStatus)
		r.Get("/config", s.GetConfig)
		r.Get("/report", s.GetReport)
		r.Get("/counts", s.GetLabelCounts)
		r.Get("/download", s.Download)

		r.Post("/review", s.PushToReview)
		r.Post("/review/import", s.ImportReviewed)
	})

	return r
}

type createRunResponse struct {
	RunId uuid.UUID `json:"run_id"`

	// JobToken lets an externally scheduled generation job report status and
	// logs back through the job endpoints.
	JobToken string `json:"job_token"`
}

func (s *RunService) CreateRun(w http.ResponseWriter, r *http.Request) {
	var cfg config.DatagenConfig
	if !utils.ParseRequestBody(w, r, &cfg) {
		return
	}

	if err := cfg.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	runId := uuid.New()
	cfg.RunId = runId

	snapshot, err := json.Marshal(&cfg)
	if err != nil {
		slog.Error("error serializing run config", "error", err)
		http.Error(w, "error serializing run config", http.StatusInternalServerError)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		var duplicate schema.DatagenRun
		result := txn.Limit(1).Find(&duplicate, "name = ?", cfg.RunName)
		if result.Error != nil {
			slog.Error("sql error checking for duplicate run", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result.RowsAffected != 0 {
			return CodedError(fmt.Errorf("a run with name %v already exists", cfg.RunName), http.StatusConflict)
		}

		run := schema.DatagenRun{
			Id:        runId,
			Name:      cfg.RunName,
			Status:    schema.Pending,
			Config:    string(snapshot),
			CreatedAt: time.Now(),
		}
		if result := txn.Create(&run); result.Error != nil {
			slog.Error("sql error creating run entry", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	jobToken, err := s.jobAuth.CreateRunJwt(runId, 1000*24*time.Hour)
	if err != nil {
		slog.Error("error creating job token for run", "run_id", runId, "error", err)
		http.Error(w, "error setting up run", http.StatusInternalServerError)
		return
	}

	slog.Info("created run", "code", logging.GEN_RUN, "run_id", runId, "run_name", cfg.RunName)

	utils.WriteJsonResponse(w, createRunResponse{RunId: runId, JobToken: jobToken})
}

type RunInfo struct {
	RunId       uuid.UUID  `json:"run_id"`
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (s *RunService) ListRuns(w http.ResponseWriter, r *http.Request) {
	var runs []schema.DatagenRun
	result := s.db.Order("created_at desc").Find(&runs)
	if result.Error != nil {
		slog.Error("sql error listing runs", "error", result.Error)
		http.Error(w, schema.ErrDbAccessFailed.Error(), http.StatusInternalServerError)
		return
	}

	infos := make([]RunInfo, 0, len(runs))
	for _, run := range runs {
		infos = append(infos, RunInfo{
			RunId:       run.Id,
			Name:        run.Name,
			Status:      run.Status,
			CreatedAt:   run.CreatedAt,
			StartedAt:   run.StartedAt,
			CompletedAt: run.CompletedAt,
		})
	}

	utils.WriteJsonResponse(w, infos)
}

func (s *RunService) StartRun(w http.ResponseWriter, r *http.Request) {
	runId, err := utils.URLParamUUID(r, "run_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	run, err := getRunForRequest(runId, s.db)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	if run.Status == schema.Running {
		http.Error(w, fmt.Sprintf("run %v is already running", runId), http.StatusConflict)
		return
	}

	if err := s.worker.Start(run); err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	slog.Info("started run", "code", logging.GEN_RUN, "run_id", runId)

	utils.WriteSuccess(w)
}

func (s *RunService) StopRun(w http.ResponseWriter, r *http.Request) {
	runId, err := utils.URLParamUUID(r, "run_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	run, err := getRunForRequest(runId, s.db)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	if run.Status != schema.Running {
		http.Error(w, fmt.Sprintf("run %v has status %v, only running runs can be stopped", runId, run.Status), http.StatusUnprocessableEntity)
		return
	}

	// Status moves first so the worker's exit path sees the stop has won.
	now := time.Now()
	err = updateRunStatus(s.db, runId, schema.Running, map[string]interface{}{
		"status": schema.Stopped, "completed_at": &now,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if !s.worker.Stop(runId) {
		slog.Warn("stop requested for run not executing in this process", "run_id", runId)
	}

	runsStoppedMetric.Inc()
	slog.Info("stopped run", "code", logging.GEN_RUN, "run_id", runId)

	utils.WriteSuccess(w)
}

func (s *RunService) DeleteRun(w http.ResponseWriter, r *http.Request) {
	runId, err := utils.URLParamUUID(r, "run_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	run, err := getRunForRequest(runId, s.db)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	if run.Status == schema.Running {
		http.Error(w, "stop the run before deleting it", http.StatusUnprocessableEntity)
		return
	}

	exists, err := s.storage.Exists(storage.RunDir(runId))
	if err != nil {
		http.Error(w, fmt.Sprintf("error checking run artifacts: %v", err), http.StatusInternalServerError)
		return
	}
	if exists {
		if err := s.storage.Delete(storage.RunDir(runId)); err != nil {
			http.Error(w, fmt.Sprintf("error deleting run artifacts: %v", err), http.StatusInternalServerError)
			return
		}
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if result := txn.Delete(&schema.RunEvent{}, "run_id = ?", runId); result.Error != nil {
			slog.Error("sql error deleting run events", "run_id", runId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result := txn.Delete(&schema.DatagenRun{}, "id = ?", runId); result.Error != nil {
			slog.Error("sql error deleting run", "run_id", runId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	slog.Info("deleted run", "code", logging.GEN_RUN, "run_id", runId)

	utils.WriteSuccess(w)
}

type StatusResponse struct {
	Status   string   `json:"status"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (s *RunService) GetStatus(w http.ResponseWriter, r *http.Request) {
	runId, err := utils.URLParamUUID(r, "run_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	run, err := getRunForRequest(runId, s.db)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	events, err := schema.GetRunEvents(runId, s.db)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	res := StatusResponse{Status: run.Status, Errors: []string{}, Warnings: []string{}}
	for _, event := range events {
		switch event.Level {
		case schema.EventError:
			res.Errors = append(res.Errors, event.Message)
		case schema.EventWarning:
			res.Warnings = append(res.Warnings, event.Message)
		}
	}

	utils.WriteJsonResponse(w, res)
}

func (s *RunService) GetConfig(w http.ResponseWriter, r *http.Request) {
	runId, err := utils.URLParamUUID(r, "run_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	run, err := getRunForRequest(runId, s.db)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(run.Config)); err != nil {
		slog.Error("error writing run config response", "run_id", runId, "error", err)
	}
}

func (s *RunService) loadReport(runId uuid.UUID) (*datagen.Report, error) {
	reportPath := storage.ReportFile(runId)

	exists, err := s.storage.Exists(reportPath)
	if err != nil {
		return nil, CodedError(fmt.Errorf("error checking for run report: %w", err), http.StatusInternalServerError)
	}
	if !exists {
		return nil, CodedError(fmt.Errorf("no report available for run %v", runId), http.StatusNotFound)
	}

	data, err := storage.ReadAll(s.storage, reportPath)
	if err != nil {
		return nil, CodedError(fmt.Errorf("error reading run report: %w", err), http.StatusInternalServerError)
	}

	var report datagen.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, CodedError(fmt.Errorf("error parsing run report: %w", err), http.StatusInternalServerError)
	}

	return &report, nil
}

func (s *RunService) GetReport(w http.ResponseWriter, r *http.Request) {
	runId, err := utils.URLParamUUID(r, "run_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, err := getRunForRequest(runId, s.db); err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	report, err := s.loadReport(runId)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, report)
}

type LabelCounts struct {
	Vocabs map[string]map[string]int `json:"vocabs"`
}

func (s *RunService) GetLabelCounts(w http.ResponseWriter, r *http.Request) {
	runId, err := utils.URLParamUUID(r, "run_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, err := getRunForRequest(runId, s.db); err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	report, err := s.loadReport(runId)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	res := LabelCounts{Vocabs: map[string]map[string]int{}}
	for _, ds := range report.Datasets {
		res.Vocabs[ds.Vocab] = ds.LabelCounts
	}

	utils.WriteJsonResponse(w, res)
}

func (s *RunService) Download(w http.ResponseWriter, r *http.Request) {
	runId, err := utils.URLParamUUID(r, "run_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	run, err := getRunForRequest(runId, s.db)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	if run.Status != schema.Complete {
		http.Error(w, fmt.Sprintf("can only download data from a completed run, run has status %v", run.Status), http.StatusUnprocessableEntity)
		return
	}

	downloadPath := storage.GeneratedDataDir(runId)
	if err := s.storage.Zip(downloadPath); err != nil {
		slog.Error("error preparing zipfile for data download", "run_id", runId, "error", err)
		http.Error(w, "error preparing download archive", http.StatusInternalServerError)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "http response does not support chunked response.", http.StatusInternalServerError)
		return
	}

	file, err := s.storage.Read(downloadPath + ".zip")
	if err != nil {
		slog.Error("error opening zipfile for data download", "run_id", runId, "error", err)
		http.Error(w, "error reading download archive", http.StatusInternalServerError)
		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%v.zip", run.Name))

	buffer := bufio.NewReader(file)
	chunk := make([]byte, 10*1024*1024)

	for {
		readN, err := buffer.Read(chunk)
		isEof := err == io.EOF
		if err != nil && !isEof {
			slog.Error("error reading chunk of download archive", "run_id", runId, "error", err)
			http.Error(w, "error reading from download archive", http.StatusInternalServerError)
			return
		}

		writeN, err := w.Write(chunk[:readN])
		if err != nil {
			slog.Error("error writing download chunk", "run_id", runId, "error", err)
			http.Error(w, fmt.Sprintf("error sending download chunk: %v", err), http.StatusInternalServerError)
			return
		}
		if writeN != readN {
			slog.Error("error writing download chunk", "run_id", runId, "error", fmt.Sprintf("expected to write %d bytes to stream, wrote %d", readN, writeN))
			http.Error(w, "error sending download chunk", http.StatusInternalServerError)
			return
		}
		flusher.Flush() // Sends chunk

		if isEof {
			break
		}
	}
}

// reviewConfigForRun prefers the review settings stored in the run's own
// config over the service wide default.
func (s *RunService) reviewConfigForRun(run schema.DatagenRun) config.ReviewConfig {
	var cfg config.DatagenConfig
	if err := json.Unmarshal([]byte(run.Config), &cfg); err == nil && cfg.Review != nil {
		return *cfg.Review
	}
	return s.review
}

func (s *RunService) reviewDatasetLabels(runId uuid.UUID, vocab string) ([]string, error) {
	report, err := s.loadReport(runId)
	if err != nil {
		return nil, err
	}

	for _, ds := range report.Datasets {
		if ds.Vocab == vocab {
			return ds.Labels, nil
		}
	}

	return nil, CodedError(fmt.Errorf("run has no dataset for vocabulary %v", vocab), http.StatusNotFound)
}

type reviewPushRequest struct {
	Vocab string `json:"vocab"`
	Split string `json:"split"`
}

type reviewPushResponse struct {
	Dataset string `json:"dataset"`
	Records int    `json:"records"`
}

func (s *RunService) PushToReview(w http.ResponseWriter, r *http.Request) {
	runId, err := utils.URLParamUUID(r, "run_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	run, err := getRunForRequest(runId, s.db)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	reviewCfg := s.reviewConfigForRun(run)
	if reviewCfg.Endpoint == "" {
		http.Error(w, "review integration is not configured", http.StatusUnprocessableEntity)
		return
	}

	var params reviewPushRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Vocab == "" {
		http.Error(w, "vocab is required", http.StatusUnprocessableEntity)
		return
	}
	if params.Split == "" {
		params.Split = "train"
	}

	var path string
	switch params.Split {
	case "train":
		path = storage.TrainFile(runId, params.Vocab)
	case "test":
		path = storage.TestFile(runId, params.Vocab)
	default:
		http.Error(w, fmt.Sprintf("invalid split '%v', must be 'train' or 'test'", params.Split), http.StatusUnprocessableEntity)
		return
	}

	exists, err := s.storage.Exists(path)
	if err != nil {
		http.Error(w, fmt.Sprintf("error checking for split data: %v", err), http.StatusInternalServerError)
		return
	}
	if !exists {
		http.Error(w, fmt.Sprintf("no %v split found for vocabulary %v", params.Split, params.Vocab), http.StatusNotFound)
		return
	}

	rows, err := dataset.ReadRowsCSV(s.storage, path)
	if err != nil {
		http.Error(w, fmt.Sprintf("error reading split data: %v", err), http.StatusInternalServerError)
		return
	}

	labels, err := s.reviewDatasetLabels(runId, params.Vocab)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	client, err := review.NewClient(reviewCfg)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	name := fmt.Sprintf("%v-%v", run.Name, params.Vocab)
	if err := client.Push(r.Context(), name, rows, labels); err != nil {
		http.Error(w, fmt.Sprintf("error pushing records for review: %v", err), http.StatusBadGateway)
		return
	}

	utils.WriteJsonResponse(w, reviewPushResponse{Dataset: name, Records: len(rows)})
}

type reviewImportRequest struct {
	Vocab string `json:"vocab"`
}

type reviewImportResponse struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// ImportReviewed appends human approved records from the review service to a
// run's train split. Records whose label is not in the vocabulary are skipped
// and counted.
func (s *RunService) ImportReviewed(w http.ResponseWriter, r *http.Request) {
	runId, err := utils.URLParamUUID(r, "run_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	run, err := getRunForRequest(runId, s.db)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	reviewCfg := s.reviewConfigForRun(run)
	if reviewCfg.Endpoint == "" {
		http.Error(w, "review integration is not configured", http.StatusUnprocessableEntity)
		return
	}

	var params reviewImportRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Vocab == "" {
		http.Error(w, "vocab is required", http.StatusUnprocessableEntity)
		return
	}

	labels, err := s.reviewDatasetLabels(runId, params.Vocab)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	client, err := review.NewClient(reviewCfg)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	name := fmt.Sprintf("%v-%v", run.Name, params.Vocab)
	fetched, err := client.FetchSubmitted(r.Context(), name)
	if err != nil {
		http.Error(w, fmt.Sprintf("error fetching reviewed records: %v", err), http.StatusBadGateway)
		return
	}

	trainPath := storage.TrainFile(runId, params.Vocab)
	existing, err := dataset.ReadRowsCSV(s.storage, trainPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("error reading train split: %v", err), http.StatusInternalServerError)
		return
	}

	res := reviewImportResponse{}
	for _, row := range fetched {
		if !slices.Contains(labels, row.Label) {
			res.Skipped++
			continue
		}
		existing = append(existing, dataset.LabeledRow{Text: row.Text, Label: row.Label, Id: len(existing)})
		res.Imported++
	}

	if res.Imported > 0 {
		if err := dataset.WriteRowsCSV(s.storage, trainPath, existing); err != nil {
			http.Error(w, fmt.Sprintf("error writing train split: %v", err), http.StatusInternalServerError)
			return
		}
	}

	slog.Info("imported reviewed records", "code", logging.REVIEW_PULL, "run_id", runId, "imported", res.Imported, "skipped", res.Skipped)

	utils.WriteJsonResponse(w, res)
}

type updateStatusRequest struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func (s *RunService) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	runId, err := auth.RunIdFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params updateStatusRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if err := schema.CheckValidStatus(params.Status); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	slog.Info("updating run status", "code", logging.GEN_RUN, "run_id", runId, "status", params.Status)

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if _, err := getRunForRequest(runId, txn); err != nil {
			return err
		}

		now := time.Now()
		updates := map[string]interface{}{"status": params.Status}
		switch params.Status {
		case schema.Running:
			updates["started_at"] = &now
		case schema.Complete, schema.Failed, schema.Stopped:
			updates["completed_at"] = &now
		}

		result := txn.Model(&schema.DatagenRun{}).Where("id = ?", runId).Updates(updates)
		if result.Error != nil {
			slog.Error("sql error updating run status", "run_id", runId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	if params.Message != "" {
		if err := schema.AddRunEvent(s.db, runId, schema.EventInfo, params.Message); err != nil {
			slog.Error("error recording status message", "run_id", runId, "error", err)
		}
	}

	utils.WriteSuccess(w)
}

type jobLogRequest struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

func (s *RunService) JobLog(w http.ResponseWriter, r *http.Request) {
	runId, err := auth.RunIdFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params jobLogRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Level != schema.EventInfo && params.Level != schema.EventWarning && params.Level != schema.EventError {
		http.Error(w, fmt.Sprintf("invalid log level '%v', must be 'info', 'warning', or 'error'", params.Level), http.StatusUnprocessableEntity)
		return
	}

	if err := schema.AddRunEvent(s.db, runId, params.Level, params.Message); err != nil {
		http.Error(w, fmt.Sprintf("error creating run event: %v", err), http.StatusInternalServerError)
		return
	}

	utils.WriteSuccess(w)
}
