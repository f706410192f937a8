package trainer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"datagen_platform/datagen/dataset"
)

var newsLabels = []string{"World", "Sports", "Business", "Sci/Tech"}

func TestMockTrainerRecallsTrainingRows(t *testing.T) {
	train := []dataset.LabeledRow{
		{Text: "The summit ended without a deal.", Label: "World", Id: 0},
		{Text: "The home side won in extra time.", Label: "Sports", Id: 1},
	}
	eval := []dataset.LabeledRow{
		{Text: "The summit ended without a deal.", Label: "World", Id: 2},
		{Text: "Completely unseen text.", Label: "Business", Id: 3},
	}

	model, metrics, err := MockTrainer{}.Train(context.Background(), train, eval, newsLabels)
	if err != nil {
		t.Fatalf("train failed: %v", err)
	}

	if metrics.Evaluated != 2 {
		t.Fatalf("expected 2 evaluated rows, got %d", metrics.Evaluated)
	}
	// The memorized row is right, the unseen one falls back to a training
	// label and misses.
	if metrics.Accuracy != 0.5 {
		t.Fatalf("expected accuracy 0.5, got %v", metrics.Accuracy)
	}

	predicted, err := model.Predict(context.Background(), "The home side won in extra time.")
	if err != nil || predicted != "Sports" {
		t.Fatalf("expected Sports, got %q (err=%v)", predicted, err)
	}
}

func TestMockTrainerRejectsForeignLabels(t *testing.T) {
	train := []dataset.LabeledRow{{Text: "text", Label: "Weather", Id: 0}}

	_, _, err := MockTrainer{}.Train(context.Background(), train, nil, newsLabels)
	if err == nil {
		t.Fatal("expected label outside the set to fail")
	}
}

func TestEvaluateEmptyEval(t *testing.T) {
	model, _, err := MockTrainer{}.Train(context.Background(), nil, nil, newsLabels)
	if err != nil {
		t.Fatalf("train failed: %v", err)
	}

	metrics, err := Evaluate(context.Background(), model, nil)
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if metrics.Evaluated != 0 || metrics.Accuracy != 0 {
		t.Fatalf("expected empty metrics, got %+v", metrics)
	}
}

func TestRemoteTrainer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/train":
			var req trainRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if len(req.Train) != 1 || len(req.Labels) != 4 {
				http.Error(w, "bad payload", http.StatusUnprocessableEntity)
				return
			}
			json.NewEncoder(w).Encode(trainResponse{ModelId: "m-123", Accuracy: 0.85, Evaluated: 20})
		case "/api/v1/models/m-123/predict":
			var req predictRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			json.NewEncoder(w).Encode(predictResponse{Label: req.Labels[0]})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	trainer, err := NewRemoteTrainer(server.URL, "setfit-mini")
	if err != nil {
		t.Fatalf("failed to create trainer: %v", err)
	}

	train := []dataset.LabeledRow{{Text: "Rates held steady.", Label: "Business", Id: 0}}
	model, metrics, err := trainer.Train(context.Background(), train, nil, newsLabels)
	if err != nil {
		t.Fatalf("train failed: %v", err)
	}
	if metrics.Accuracy != 0.85 || metrics.Evaluated != 20 {
		t.Fatalf("unexpected metrics: %+v", metrics)
	}

	predicted, err := model.Predict(context.Background(), "Any text at all.")
	if err != nil || predicted != "World" {
		t.Fatalf("expected World, got %q (err=%v)", predicted, err)
	}
	if len(model.Labels()) != 4 {
		t.Fatalf("model should carry its label set, got %v", model.Labels())
	}
}

func TestRemoteTrainerRequiresEndpoint(t *testing.T) {
	if _, err := NewRemoteTrainer("", ""); err == nil {
		t.Fatal("expected missing endpoint to fail")
	}
}
