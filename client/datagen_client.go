package client

import (
	"fmt"
	"io"
	"os"
	"time"

	"datagen_platform/datagen"
	"datagen_platform/datagen/config"
	"datagen_platform/datagen/schema"
	"datagen_platform/datagen/services"

	"github.com/google/uuid"
)

type DatagenClient struct {
	BaseClient
}

func New(baseUrl string) *DatagenClient {
	return &DatagenClient{BaseClient: BaseClient{baseUrl: baseUrl}}
}

func (c *DatagenClient) Health() error {
	return c.Get("/api/v1/health").Do(nil)
}

type createRunResponse struct {
	RunId    uuid.UUID `json:"run_id"`
	JobToken string    `json:"job_token"`
}

// CreateRun registers a run and returns a client bound to it along with the
// job token an externally scheduled generation job uses to report back.
func (c *DatagenClient) CreateRun(cfg config.DatagenConfig) (RunClient, string, error) {
	var res createRunResponse
	err := c.Post("/api/v1/runs/create").Json(cfg).Do(&res)
	if err != nil {
		return RunClient{}, "", fmt.Errorf("failed to create run: %w", err)
	}

	return RunClient{BaseClient: c.BaseClient, runId: res.RunId}, res.JobToken, nil
}

func (c *DatagenClient) ListRuns() ([]services.RunInfo, error) {
	var res []services.RunInfo
	err := c.Get("/api/v1/runs/list").Do(&res)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return res, nil
}

func (c *DatagenClient) RunClient(runId uuid.UUID) RunClient {
	return RunClient{BaseClient: c.BaseClient, runId: runId}
}

type RunClient struct {
	BaseClient
	runId uuid.UUID
}

func (c *RunClient) RunId() uuid.UUID {
	return c.runId
}

func (c *RunClient) Start() error {
	return c.Post(fmt.Sprintf("/api/v1/runs/%v/start", c.runId)).Do(nil)
}

func (c *RunClient) Stop() error {
	return c.Post(fmt.Sprintf("/api/v1/runs/%v/stop", c.runId)).Do(nil)
}

func (c *RunClient) DeleteRun() error {
	return c.Delete(fmt.Sprintf("/api/v1/runs/%v", c.runId)).Do(nil)
}

func (c *RunClient) Status() (services.StatusResponse, error) {
	var res services.StatusResponse
	err := c.Get(fmt.Sprintf("/api/v1/runs/%v/status", c.runId)).Do(&res)
	return res, err
}

// AwaitCompletion polls until the run completes, returning an error if it
// fails or is stopped, or if the timeout elapses first.
func (c *RunClient) AwaitCompletion(timeout time.Duration) error {
	check := time.Tick(2 * time.Second)
	stop := time.Tick(timeout)
	for {
		select {
		case <-check:
			status, err := c.Status()
			if err != nil {
				return err
			}
			if status.Status == schema.Complete {
				return nil
			}
			if schema.IsTerminal(status.Status) {
				return fmt.Errorf("run has status: %v, errors: %v", status.Status, status.Errors)
			}
		case <-stop:
			return fmt.Errorf("timeout reached before run completed")
		}
	}
}

func (c *RunClient) Config() (config.DatagenConfig, error) {
	var res config.DatagenConfig
	err := c.Get(fmt.Sprintf("/api/v1/runs/%v/config", c.runId)).Do(&res)
	return res, err
}

func (c *RunClient) Report() (datagen.Report, error) {
	var res datagen.Report
	err := c.Get(fmt.Sprintf("/api/v1/runs/%v/report", c.runId)).Do(&res)
	return res, err
}

func (c *RunClient) LabelCounts() (services.LabelCounts, error) {
	var res services.LabelCounts
	err := c.Get(fmt.Sprintf("/api/v1/runs/%v/counts", c.runId)).Do(&res)
	return res, err
}

// Download writes the zipped dataset archive of a completed run to dstPath.
func (c *RunClient) Download(dstPath string) error {
	dst, err := os.Create(dstPath)
	if err != nil {
		return err
	}
	defer dst.Close()

	return c.Get(fmt.Sprintf("/api/v1/runs/%v/download", c.runId)).Process(
		func(body io.Reader) error {
			_, err := io.Copy(dst, body)
			return err
		},
	)
}

type reviewPushResponse struct {
	Dataset string `json:"dataset"`
	Records int    `json:"records"`
}

func (c *RunClient) PushToReview(vocab, split string) (string, int, error) {
	body := map[string]string{"vocab": vocab, "split": split}

	var res reviewPushResponse
	err := c.Post(fmt.Sprintf("/api/v1/runs/%v/review", c.runId)).Json(body).Do(&res)
	if err != nil {
		return "", 0, fmt.Errorf("failed to push rows for review: %w", err)
	}
	return res.Dataset, res.Records, nil
}

type reviewImportResponse struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

func (c *RunClient) ImportReviewed(vocab string) (int, int, error) {
	body := map[string]string{"vocab": vocab}

	var res reviewImportResponse
	err := c.Post(fmt.Sprintf("/api/v1/runs/%v/review/import", c.runId)).Json(body).Do(&res)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to import reviewed rows: %w", err)
	}
	return res.Imported, res.Skipped, nil
}
