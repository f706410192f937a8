package pipeline

import (
	"datagen_platform/datagen/templates"
)

const (
	BranchCompleted = "completed"
	BranchFailed    = "failed"
	BranchCanceled  = "canceled"
)

type GenerationMetadata struct {
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Difficulty string `json:"difficulty"`
	Clarity    string `json:"clarity"`
	Language   string `json:"language"`
}

// GeneratedExample is one synthetic example produced by a branch. Label
// fields are empty when the raw output failed to parse; the raw output is
// kept either way for debugging. Examples are immutable once produced.
type GeneratedExample struct {
	Task templates.TaskDescription `json:"task"`

	InputText       string `json:"input_text"`
	Label           string `json:"label"`
	MisleadingLabel string `json:"misleading_label"`

	RawModelOutput string             `json:"raw_model_output"`
	Metadata       GenerationMetadata `json:"generation_metadata"`
}

// Parsed reports whether the raw output yielded usable label fields.
func (e *GeneratedExample) Parsed() bool {
	return e.InputText != "" && e.Label != ""
}

type BranchStatus struct {
	State string `json:"state"`
	Error string `json:"error,omitempty"`

	RequestsIssued  int `json:"requests_issued"`
	RequestsDropped int `json:"requests_dropped"`
	Generated       int `json:"generated"`
	ParseFailures   int `json:"parse_failures"`
}

// BranchResult is the full output of one branch across all tasks, in
// submission order.
type BranchResult struct {
	Name     string             `json:"name"`
	Config   BranchConfig       `json:"config"`
	Examples []GeneratedExample `json:"examples"`
	Status   BranchStatus       `json:"status"`
}
