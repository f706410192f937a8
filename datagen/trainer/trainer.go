package trainer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"datagen_platform/datagen/dataset"
)

// Metrics summarizes one evaluation pass over held out rows.
type Metrics struct {
	Accuracy  float64 `json:"accuracy"`
	Evaluated int     `json:"evaluated"`
}

// Model is an opaque trained classifier handle. Predictions are restricted
// to the label set the model was trained with.
type Model interface {
	Predict(ctx context.Context, text string) (string, error)
	Labels() []string
}

// Trainer builds a few-shot classifier from a small labeled sample. The
// training and evaluation collections must be disjoint; the trainer treats
// them as opaque {text, label, id} streams.
type Trainer interface {
	Train(ctx context.Context, train, eval []dataset.LabeledRow, labels []string) (Model, Metrics, error)
}

// Evaluate runs the model over held out rows and reports accuracy. Usable
// with any Model, including ones trained elsewhere.
func Evaluate(ctx context.Context, model Model, eval []dataset.LabeledRow) (Metrics, error) {
	if len(eval) == 0 {
		return Metrics{}, nil
	}

	correct := 0
	for _, row := range eval {
		predicted, err := model.Predict(ctx, row.Text)
		if err != nil {
			return Metrics{}, fmt.Errorf("error predicting label for row %d: %w", row.Id, err)
		}
		if predicted == row.Label {
			correct++
		}
	}

	return Metrics{
		Accuracy:  float64(correct) / float64(len(eval)),
		Evaluated: len(eval),
	}, nil
}

// RemoteTrainer delegates training to an external trainer service.
type RemoteTrainer struct {
	endpoint string
	model    string
	client   *http.Client
}

func NewRemoteTrainer(endpoint, model string) (*RemoteTrainer, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("remote trainer requires an endpoint")
	}
	return &RemoteTrainer{
		endpoint: endpoint,
		model:    model,
		client:   &http.Client{Timeout: 10 * time.Minute},
	}, nil
}

func (t *RemoteTrainer) request(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	fullEndpoint, err := url.JoinPath(t.endpoint, endpoint)
	if err != nil {
		return fmt.Errorf("error formatting url for trainer endpoint %v: %w", endpoint, err)
	}

	data := new(bytes.Buffer)
	if err := json.NewEncoder(data).Encode(body); err != nil {
		return fmt.Errorf("error encoding body for trainer endpoint %v: %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", fullEndpoint, data)
	if err != nil {
		return fmt.Errorf("error creating request for trainer endpoint %v: %w", endpoint, err)
	}
	req.Header.Add("Content-Type", "application/json")

	res, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("error sending request to trainer endpoint %v: %w", endpoint, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		content, err := io.ReadAll(res.Body)
		if err == nil {
			slog.Error("trainer returned error", "endpoint", endpoint, "status", res.StatusCode, "response", string(content))
		}
		return fmt.Errorf("request to trainer endpoint %v returned status %d", endpoint, res.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(res.Body).Decode(result); err != nil {
			return fmt.Errorf("error parsing response from trainer endpoint %v: %w", endpoint, err)
		}
	}
	return nil
}

type trainRequest struct {
	Model  string               `json:"model,omitempty"`
	Labels []string             `json:"labels"`
	Train  []dataset.LabeledRow `json:"train"`
	Eval   []dataset.LabeledRow `json:"eval"`
}

type trainResponse struct {
	ModelId   string  `json:"model_id"`
	Accuracy  float64 `json:"accuracy"`
	Evaluated int     `json:"evaluated"`
}

func (t *RemoteTrainer) Train(ctx context.Context, train, eval []dataset.LabeledRow, labels []string) (Model, Metrics, error) {
	if len(labels) == 0 {
		return nil, Metrics{}, fmt.Errorf("trainer requires a label set")
	}

	var response trainResponse
	err := t.request(ctx, "api/v1/train", trainRequest{
		Model:  t.model,
		Labels: labels,
		Train:  train,
		Eval:   eval,
	}, &response)
	if err != nil {
		return nil, Metrics{}, err
	}

	model := &remoteModel{
		trainer: t,
		modelId: response.ModelId,
		labels:  labels,
	}
	return model, Metrics{Accuracy: response.Accuracy, Evaluated: response.Evaluated}, nil
}

type remoteModel struct {
	trainer *RemoteTrainer
	modelId string
	labels  []string
}

type predictRequest struct {
	Text   string   `json:"text"`
	Labels []string `json:"labels"`
}

type predictResponse struct {
	Label string `json:"label"`
}

func (m *remoteModel) Predict(ctx context.Context, text string) (string, error) {
	var response predictResponse
	err := m.trainer.request(ctx, fmt.Sprintf("api/v1/models/%v/predict", m.modelId), predictRequest{
		Text:   text,
		Labels: m.labels,
	}, &response)
	if err != nil {
		return "", err
	}
	return response.Label, nil
}

func (m *remoteModel) Labels() []string {
	return m.labels
}
