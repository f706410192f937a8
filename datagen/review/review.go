package review

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"time"

	"datagen_platform/datagen/config"
	"datagen_platform/datagen/dataset"
	"datagen_platform/utils/logging"
)

// Record states assigned by the annotation tool. Only submitted records flow
// back into training data.
const (
	StatusPending   = "pending"
	StatusSubmitted = "submitted"
	StatusDiscarded = "discarded"
)

type Record struct {
	Text   string `json:"text"`
	Label  string `json:"label"`
	Status string `json:"status,omitempty"`
}

var ErrDatasetNotFound = errors.New("review dataset not found")

// Client talks to the external annotation tool. Generated rows are pushed
// there for human review; reviewers submit each record with a possibly
// corrected label, and submitted records are pulled back for training.
type Client struct {
	endpoint  string
	apiKey    string
	workspace string
	client    *http.Client
}

func NewClient(cfg config.ReviewConfig) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("review client requires an endpoint")
	}

	workspace := cfg.Workspace
	if workspace == "" {
		workspace = "default"
	}

	return &Client{
		endpoint:  cfg.Endpoint,
		apiKey:    cfg.ApiKey,
		workspace: workspace,
		client:    &http.Client{Timeout: 60 * time.Second},
	}, nil
}

func (c *Client) request(ctx context.Context, method, endpoint string, body interface{}, result interface{}) error {
	fullEndpoint, err := url.JoinPath(c.endpoint, endpoint)
	if err != nil {
		return fmt.Errorf("error formatting url for review endpoint %v: %w", endpoint, err)
	}

	var reqBody io.Reader
	if body != nil {
		data := new(bytes.Buffer)
		if err := json.NewEncoder(data).Encode(body); err != nil {
			return fmt.Errorf("error encoding body for review endpoint %v: %w", endpoint, err)
		}
		reqBody = data
	}

	req, err := http.NewRequestWithContext(ctx, method, fullEndpoint, reqBody)
	if err != nil {
		return fmt.Errorf("error creating %v request for review endpoint %v: %w", method, endpoint, err)
	}
	req.Header.Add("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Add("X-API-Key", c.apiKey)
	}

	res, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("error sending %v request to review endpoint %v: %w", method, endpoint, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return ErrDatasetNotFound
	}
	if res.StatusCode != http.StatusOK {
		data, err := io.ReadAll(res.Body)
		if err == nil {
			slog.Error("review tool returned error", "method", method, "endpoint", endpoint, "status", res.StatusCode, "response", string(data))
		}
		return fmt.Errorf("%v request to review endpoint %v returned status %d", method, endpoint, res.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(res.Body).Decode(result); err != nil {
			return fmt.Errorf("error parsing %v response from review endpoint %v: %w", method, endpoint, err)
		}
	}

	return nil
}

func (c *Client) datasetEndpoint(name string) string {
	return path.Join("api", "workspaces", c.workspace, "datasets", name, "records")
}

type pushRequest struct {
	Labels  []string `json:"labels"`
	Records []Record `json:"records"`
}

// Push uploads rows for annotation under the named dataset, creating it if
// needed. The label list drives the choices shown to reviewers.
func (c *Client) Push(ctx context.Context, name string, rows []dataset.LabeledRow, labels []string) error {
	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, Record{Text: row.Text, Label: row.Label})
	}

	err := c.request(ctx, "POST", c.datasetEndpoint(name), pushRequest{Labels: labels, Records: records}, nil)
	if err != nil {
		return err
	}

	slog.Info("pushed rows for review", "dataset", name, "rows", len(records), "code", logging.REVIEW_PUSH)
	return nil
}

// FetchSubmitted returns the rows a reviewer submitted, with any label
// corrections applied. Pending and discarded records are excluded.
func (c *Client) FetchSubmitted(ctx context.Context, name string) ([]dataset.Row, error) {
	var response struct {
		Records []Record `json:"records"`
	}
	err := c.request(ctx, "GET", c.datasetEndpoint(name)+"?status="+StatusSubmitted, nil, &response)
	if err != nil {
		return nil, err
	}

	rows := make([]dataset.Row, 0, len(response.Records))
	for _, record := range response.Records {
		if record.Status != StatusSubmitted {
			continue
		}
		rows = append(rows, dataset.Row{Text: record.Text, Label: record.Label})
	}

	slog.Info("fetched reviewed rows", "dataset", name, "rows", len(rows), "code", logging.REVIEW_PULL)
	return rows, nil
}
