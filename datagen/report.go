package datagen

import (
	"time"

	"github.com/google/uuid"

	"datagen_platform/datagen/dataset"
	"datagen_platform/datagen/pipeline"
)

// DatasetReport summarizes one vocabulary's assembled dataset and its
// train/test split.
type DatasetReport struct {
	Vocab  string   `json:"vocab"`
	Labels []string `json:"labels"`

	Rows     int `json:"rows"`
	SeedRows int `json:"seed_rows"`

	LabelCounts   map[string]int      `json:"label_counts"`
	MinLabelCount int                 `json:"min_label_count"`
	Noise         dataset.NoiseCounts `json:"noise"`

	TrainRows        int            `json:"train_rows"`
	EvalRows         int            `json:"eval_rows"`
	TrainLabelCounts map[string]int `json:"train_label_counts"`
}

// Report is the run summary written beside the generated data and surfaced
// through the control plane.
type Report struct {
	RunId   uuid.UUID `json:"run_id"`
	RunName string    `json:"run_name"`

	// Seed is the concrete seed the run used, recorded even when the config
	// asked for a derived one.
	Seed int64 `json:"seed"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	Tasks         int `json:"tasks"`
	TotalExamples int `json:"total_examples"`

	BranchOrder []string                         `json:"branch_order"`
	Branches    map[string]pipeline.BranchStatus `json:"branches"`

	Datasets []DatasetReport `json:"datasets"`
}

// FailedBranches lists branches that produced nothing, in branch order.
func (r *Report) FailedBranches() []string {
	var failed []string
	for _, name := range r.BranchOrder {
		if status, ok := r.Branches[name]; ok && status.State == pipeline.BranchFailed {
			failed = append(failed, name)
		}
	}
	return failed
}
