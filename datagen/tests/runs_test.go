package tests

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"datagen_platform/datagen/config"
	"datagen_platform/datagen/schema"
	"datagen_platform/datagen/services"

	"github.com/google/uuid"
)

func testRunConfig(name string) config.DatagenConfig {
	return config.DatagenConfig{
		RunName:   name,
		Templates: []string{"Classify the following text as {}:"},
		Vocabularies: []config.VocabularyOptions{
			{Name: "news", Labels: []string{"World", "Sports", "Business", "Sci/Tech"}, Repetitions: 2},
		},
		Branches:             config.BranchOptions{Difficulties: []string{"college"}, Clarities: []string{"clear"}},
		Generation:           config.GenerationOptions{NumGenerations: 2, BatchSize: 2},
		LLM:                  config.LLMConfig{Provider: "mock"},
		TrainSamplesPerLabel: 2,
		RandomSeed:           7,
	}
}

func waitForStatus(t *testing.T, c client, runId, want string) services.StatusResponse {
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		status, err := c.runStatus(runId)
		if err != nil {
			t.Fatal(err)
		}
		if status.Status == want {
			return status
		}
		if schema.IsTerminal(status.Status) {
			t.Fatalf("run reached terminal status %v, expected %v, errors: %v", status.Status, want, status.Errors)
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for run to reach status %v", want)
	return services.StatusResponse{}
}

func TestCreateAndListRuns(t *testing.T) {
	env := setupTestEnv(t)
	c := env.newClient()

	res, err := c.createRun(testRunConfig("news-classifier"))
	if err != nil {
		t.Fatal(err)
	}
	if res["run_id"] == "" {
		t.Fatal("expected run_id in create response")
	}
	if res["job_token"] == "" {
		t.Fatal("expected job_token in create response")
	}

	if _, err := c.createRun(testRunConfig("news-classifier")); err == nil {
		t.Fatal("expected duplicate run name to be rejected")
	}

	runs, err := c.listRuns()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if runs[0].Name != "news-classifier" || runs[0].Status != schema.Pending {
		t.Fatalf("unexpected run info: %+v", runs[0])
	}

	cfg, err := c.runConfig(res["run_id"])
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RunName != "news-classifier" || cfg.RunId.String() != res["run_id"] {
		t.Fatalf("stored config does not match created run: %+v", cfg)
	}
	if cfg.LLM.Provider != "mock" {
		t.Fatalf("expected config snapshot to record validated defaults, got provider %v", cfg.LLM.Provider)
	}
}

func TestCreateRunRejectsInvalidConfig(t *testing.T) {
	env := setupTestEnv(t)
	c := env.newClient()

	badTemplate := testRunConfig("bad-template")
	badTemplate.Templates = []string{"no substitution slot here"}
	if _, err := c.createRun(badTemplate); err == nil {
		t.Fatal("expected template without slot to be rejected")
	}

	badVocab := testRunConfig("bad-vocab")
	badVocab.Vocabularies = []config.VocabularyOptions{{Name: "tiny", Labels: []string{"Only"}}}
	if _, err := c.createRun(badVocab); err == nil {
		t.Fatal("expected single label vocabulary to be rejected")
	}
}

func TestRunLifecycle(t *testing.T) {
	env := setupTestEnv(t)
	c := env.newClient()

	res, err := c.createRun(testRunConfig("lifecycle-run"))
	if err != nil {
		t.Fatal(err)
	}
	runId := res["run_id"]

	if err := c.startRun(runId); err != nil {
		t.Fatal(err)
	}

	waitForStatus(t, c, runId, schema.Complete)

	report, err := c.runReport(runId)
	if err != nil {
		t.Fatal(err)
	}
	if report.RunId.String() != runId {
		t.Fatalf("report run id %v does not match %v", report.RunId, runId)
	}
	// 2 tasks, 2 generations each, single branch.
	if report.TotalExamples != 4 {
		t.Fatalf("expected 4 examples, got %d", report.TotalExamples)
	}
	if len(report.Datasets) != 1 || report.Datasets[0].Vocab != "news" {
		t.Fatalf("unexpected datasets in report: %+v", report.Datasets)
	}
	if report.Datasets[0].Rows != 4 {
		t.Fatalf("expected 4 dataset rows, got %d", report.Datasets[0].Rows)
	}

	counts, err := c.labelCounts(runId)
	if err != nil {
		t.Fatal(err)
	}
	newsCounts, ok := counts.Vocabs["news"]
	if !ok {
		t.Fatalf("expected counts for news vocab, got %+v", counts.Vocabs)
	}
	total := 0
	for _, label := range []string{"World", "Sports", "Business", "Sci/Tech"} {
		count, ok := newsCounts[label]
		if !ok {
			t.Fatalf("expected a count for label %v even if zero", label)
		}
		total += count
	}
	if total != 4 {
		t.Fatalf("label counts should sum to 4, got %d", total)
	}

	archive, err := c.download(runId)
	if err != nil {
		t.Fatal(err)
	}
	data, err := io.ReadAll(archive)
	if err != nil {
		t.Fatal(err)
	}
	zipReader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	files := make(map[string]bool)
	for _, f := range zipReader.File {
		files[f.Name] = true
	}
	if !files["news/train/train.csv"] || !files["news/test/test.csv"] {
		t.Fatalf("expected train and test splits in archive, got %v", files)
	}

	if err := c.deleteRun(runId); err != nil {
		t.Fatal(err)
	}
	runs, err := c.listRuns()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 0 {
		t.Fatalf("expected no runs after delete, got %d", len(runs))
	}
}

func TestStopRequiresRunningRun(t *testing.T) {
	env := setupTestEnv(t)
	c := env.newClient()

	res, err := c.createRun(testRunConfig("stop-pending"))
	if err != nil {
		t.Fatal(err)
	}

	if err := c.stopRun(res["run_id"]); err == nil {
		t.Fatal("expected stopping a pending run to be rejected")
	}
}

func TestEndpointsRequireApiKey(t *testing.T) {
	env := setupTestEnv(t)
	anon := env.anonClient()

	if _, err := anon.listRuns(); err != ErrUnauthorized {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
	if _, err := anon.createRun(testRunConfig("anon-run")); err != ErrUnauthorized {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
}

func TestJobEndpointsRequireToken(t *testing.T) {
	env := setupTestEnv(t)
	c := env.newClient()

	if err := c.jobUpdateStatus("not-a-token", schema.Running, ""); err != ErrUnauthorized {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
	if err := c.jobLog("not-a-token", schema.EventWarning, "message"); err != ErrUnauthorized {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
}

func TestJobStatusReporting(t *testing.T) {
	env := setupTestEnv(t)
	c := env.newClient()

	res, err := c.createRun(testRunConfig("external-run"))
	if err != nil {
		t.Fatal(err)
	}
	runId, token := res["run_id"], res["job_token"]

	if err := c.jobUpdateStatus(token, schema.Running, "generation started"); err != nil {
		t.Fatal(err)
	}
	status, err := c.runStatus(runId)
	if err != nil {
		t.Fatal(err)
	}
	if status.Status != schema.Running {
		t.Fatalf("expected running status, got %v", status.Status)
	}

	if err := c.jobLog(token, schema.EventWarning, "branch phd-clear produced no examples"); err != nil {
		t.Fatal(err)
	}
	if err := c.jobUpdateStatus(token, schema.Complete, ""); err != nil {
		t.Fatal(err)
	}

	status, err = c.runStatus(runId)
	if err != nil {
		t.Fatal(err)
	}
	if status.Status != schema.Complete {
		t.Fatalf("expected complete status, got %v", status.Status)
	}
	if len(status.Warnings) != 1 || !strings.Contains(status.Warnings[0], "phd-clear") {
		t.Fatalf("expected branch warning in status, got %v", status.Warnings)
	}

	if err := c.jobUpdateStatus(token, "sideways", ""); err == nil {
		t.Fatal("expected invalid status to be rejected")
	}

	runs, err := c.listRuns()
	if err != nil {
		t.Fatal(err)
	}
	if runs[0].StartedAt == nil || runs[0].CompletedAt == nil {
		t.Fatalf("expected status updates to record timestamps: %+v", runs[0])
	}
}

func TestStalledRunSync(t *testing.T) {
	env := setupTestEnv(t)
	c := env.newClient()

	startedAt := time.Now().Add(-time.Hour)
	run := schema.DatagenRun{
		Id:        uuid.New(),
		Name:      "orphaned-run",
		Status:    schema.Running,
		Config:    "{}",
		CreatedAt: startedAt,
		StartedAt: &startedAt,
	}
	if result := env.db.Create(&run); result.Error != nil {
		t.Fatal(result.Error)
	}

	go env.service.RunStatusSync(10*time.Millisecond, time.Minute)
	defer env.service.StopRunStatusSync()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		status, err := c.runStatus(run.Id.String())
		if err != nil {
			t.Fatal(err)
		}
		if status.Status == schema.Failed {
			if len(status.Errors) == 0 {
				t.Fatal("expected an event explaining the failure")
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timeout waiting for stalled run to be marked failed")
}

func TestReviewRoundTrip(t *testing.T) {
	env := setupTestEnv(t)
	c := env.newClient()

	type pushedPayload struct {
		Labels  []string `json:"labels"`
		Records []struct {
			Text  string `json:"text"`
			Label string `json:"label"`
		} `json:"records"`
	}

	var pushed pushedPayload
	reviewServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/datasets/review-run-news/records") {
			http.NotFound(w, r)
			return
		}
		switch r.Method {
		case http.MethodPost:
			if err := json.NewDecoder(r.Body).Decode(&pushed); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			w.Write([]byte("{}"))
		case http.MethodGet:
			records := []map[string]string{
				{"text": "Reviewed story about the cup final", "label": "Sports", "status": "submitted"},
				{"text": "Label outside the vocabulary", "label": "Weather", "status": "submitted"},
			}
			json.NewEncoder(w).Encode(map[string]interface{}{"records": records})
		default:
			http.Error(w, "unexpected method", http.StatusMethodNotAllowed)
		}
	}))
	defer reviewServer.Close()

	cfg := testRunConfig("review-run")
	cfg.Review = &config.ReviewConfig{Endpoint: reviewServer.URL, Workspace: "default"}

	res, err := c.createRun(cfg)
	if err != nil {
		t.Fatal(err)
	}
	runId := res["run_id"]

	if err := c.startRun(runId); err != nil {
		t.Fatal(err)
	}
	waitForStatus(t, c, runId, schema.Complete)

	pushRes, err := c.pushReview(runId, "news")
	if err != nil {
		t.Fatal(err)
	}
	if pushRes["dataset"] != "review-run-news" {
		t.Fatalf("unexpected review dataset name: %v", pushRes["dataset"])
	}
	if len(pushed.Records) == 0 {
		t.Fatal("expected pushed records to reach the review service")
	}
	if len(pushed.Labels) != 4 {
		t.Fatalf("expected vocabulary labels alongside records, got %v", pushed.Labels)
	}

	importRes, err := c.importReviewed(runId, "news")
	if err != nil {
		t.Fatal(err)
	}
	if importRes["imported"].(float64) != 1 {
		t.Fatalf("expected 1 imported record, got %v", importRes["imported"])
	}
	if importRes["skipped"].(float64) != 1 {
		t.Fatalf("expected 1 skipped record, got %v", importRes["skipped"])
	}
}
