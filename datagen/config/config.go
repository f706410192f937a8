package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/google/uuid"
)

const TemplateSlot = "{}"

var (
	DefaultDifficulties = []string{"college", "high school", "PhD"}
	DefaultClarities    = []string{"clear", "effortful", "ambiguous"}
)

// VocabularyOptions is one label vocabulary tasks are instantiated against. A
// run may carry several vocabularies (e.g. a topic vocabulary and a small
// fact/opinion vocabulary) sharing the same template set, each with its own
// repetition count.
type VocabularyOptions struct {
	Name        string   `json:"name"`
	Labels      []string `json:"labels"`
	Repetitions int      `json:"repetitions"`
}

func (opts *VocabularyOptions) Validate() error {
	if opts.Name == "" {
		return fmt.Errorf("each vocabulary must have a specified name")
	}

	if len(opts.Labels) < 2 {
		return fmt.Errorf("vocabulary '%v' must contain at least 2 labels", opts.Name)
	}

	seen := map[string]bool{}
	for _, label := range opts.Labels {
		if label == "" {
			return fmt.Errorf("vocabulary '%v' contains an empty label", opts.Name)
		}
		if seen[label] {
			return fmt.Errorf("vocabulary '%v' contains duplicate label '%v'", opts.Name, label)
		}
		seen[label] = true
	}

	if opts.Repetitions == 0 {
		opts.Repetitions = 10
	}
	if opts.Repetitions < 0 {
		return fmt.Errorf("vocabulary '%v' has negative repetitions", opts.Name)
	}

	return nil
}

// BranchOptions lists the difficulty and clarity levels whose cross product
// forms the pipeline branches.
type BranchOptions struct {
	Difficulties []string `json:"difficulties"`
	Clarities    []string `json:"clarities"`
}

func (opts *BranchOptions) Validate() error {
	if len(opts.Difficulties) == 0 {
		opts.Difficulties = slices.Clone(DefaultDifficulties)
	}
	if len(opts.Clarities) == 0 {
		opts.Clarities = slices.Clone(DefaultClarities)
	}

	for _, d := range opts.Difficulties {
		if strings.TrimSpace(d) == "" {
			return fmt.Errorf("difficulty levels cannot be blank")
		}
	}
	for _, c := range opts.Clarities {
		if strings.TrimSpace(c) == "" {
			return fmt.Errorf("clarity levels cannot be blank")
		}
	}

	return nil
}

type GenerationOptions struct {
	Language        string  `json:"language"`
	NumGenerations  int     `json:"num_generations"`
	BatchSize       int     `json:"batch_size"`
	MaxOutputTokens int     `json:"max_output_tokens"`
	Temperature     float32 `json:"temperature"`
}

func (opts *GenerationOptions) Validate() error {
	if opts.Language == "" {
		opts.Language = "english"
	}
	if opts.NumGenerations == 0 {
		opts.NumGenerations = 4
	}
	if opts.NumGenerations < 0 {
		return fmt.Errorf("'num_generations' cannot be negative")
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = 5
	}
	if opts.BatchSize < 0 {
		return fmt.Errorf("'batch_size' cannot be negative")
	}
	if opts.MaxOutputTokens == 0 {
		opts.MaxOutputTokens = 1024
	}
	if opts.Temperature == 0 {
		opts.Temperature = 1.0
	}
	return nil
}

type LLMConfig struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`

	// Endpoint of the backend for the on-prem provider.
	Endpoint string `json:"endpoint,omitempty"`

	CacheSize     int `json:"cache_size"`
	RetryAttempts int `json:"retry_attempts"`
}

func (opts *LLMConfig) Validate() error {
	if opts.Provider == "" {
		opts.Provider = "openai"
	}
	opts.Provider = strings.ToLower(opts.Provider)

	if !slices.Contains([]string{"openai", "gemini", "onprem", "mock"}, opts.Provider) {
		return fmt.Errorf("invalid llm provider '%v', must be one of 'openai', 'gemini', 'onprem', or 'mock'", opts.Provider)
	}

	if opts.Provider == "onprem" && opts.Endpoint == "" {
		return fmt.Errorf("'endpoint' must be specified for the onprem llm provider")
	}

	if opts.Model == "" {
		switch opts.Provider {
		case "openai":
			opts.Model = "gpt-4o-mini"
		case "gemini":
			opts.Model = "gemini-2.5-flash"
		case "mock":
			opts.Model = "mock"
		}
	}

	if opts.CacheSize == 0 {
		opts.CacheSize = 1024
	}
	if opts.RetryAttempts == 0 {
		opts.RetryAttempts = 3
	}

	return nil
}

// SeedDataOptions points at a small real-world dataset merged into one
// vocabulary's assembled rows. The csv carries integer label indexes which are
// resolved against the label names file, offset by LabelOffset for sources
// whose indexes start at 1.
type SeedDataOptions struct {
	Vocabulary     string `json:"vocabulary"`
	DataPath       string `json:"data_path"`
	LabelNamesPath string `json:"label_names_path"`
	LabelOffset    int    `json:"label_offset"`
}

func (opts *SeedDataOptions) Validate() error {
	if opts.Vocabulary == "" {
		return fmt.Errorf("seed data must specify the vocabulary it belongs to")
	}
	if opts.DataPath == "" {
		return fmt.Errorf("seed data for vocabulary '%v' must specify 'data_path'", opts.Vocabulary)
	}
	if opts.LabelNamesPath == "" {
		return fmt.Errorf("seed data for vocabulary '%v' must specify 'label_names_path'", opts.Vocabulary)
	}
	return nil
}

type ReviewConfig struct {
	Endpoint  string `json:"endpoint"`
	ApiKey    string `json:"api_key"`
	Workspace string `json:"workspace"`
}

type DatagenConfig struct {
	RunId   uuid.UUID `json:"run_id"`
	RunName string    `json:"run_name"`

	StorageDir string `json:"storage_dir"`

	// Endpoint and token for reporting job status back to the control plane.
	// Both empty for purely local runs.
	PlatformEndpoint string `json:"platform_endpoint,omitempty"`
	JobAuthToken     string `json:"job_auth_token,omitempty"`

	// Templates are phrasing templates, each containing exactly one '{}' slot
	// where the sampled label pair is substituted. TemplateFile optionally
	// names a yaml template set loaded in addition to the inline list.
	Templates    []string `json:"templates"`
	TemplateFile string   `json:"template_file,omitempty"`

	Vocabularies []VocabularyOptions `json:"vocabularies"`

	Branches   BranchOptions     `json:"branches"`
	Generation GenerationOptions `json:"generation"`
	LLM        LLMConfig         `json:"llm"`

	SeedData []SeedDataOptions `json:"seed_data,omitempty"`

	Review *ReviewConfig `json:"review,omitempty"`

	// TrainSamplesPerLabel is the per label cap for the training side of the
	// stratified split.
	TrainSamplesPerLabel int `json:"train_samples_per_label"`

	// RandomSeed drives label sampling and split sampling. 0 means a seed is
	// drawn at setup time and recorded in the run report.
	RandomSeed int64 `json:"random_seed"`
}

func (c *DatagenConfig) Validate() error {
	allErrors := make([]error, 0)

	if c.RunName == "" {
		allErrors = append(allErrors, fmt.Errorf("'run_name' must be specified"))
	}

	if len(c.Templates) == 0 && c.TemplateFile == "" {
		allErrors = append(allErrors, fmt.Errorf("at least one template must be specified"))
	}
	for _, template := range c.Templates {
		if err := ValidateTemplate(template); err != nil {
			allErrors = append(allErrors, err)
		}
	}

	if len(c.Vocabularies) == 0 {
		allErrors = append(allErrors, fmt.Errorf("at least one vocabulary must be specified"))
	}
	vocabNames := map[string]bool{}
	for i := range c.Vocabularies {
		if err := c.Vocabularies[i].Validate(); err != nil {
			allErrors = append(allErrors, err)
			continue
		}
		if vocabNames[c.Vocabularies[i].Name] {
			allErrors = append(allErrors, fmt.Errorf("duplicate vocabulary name '%v'", c.Vocabularies[i].Name))
		}
		vocabNames[c.Vocabularies[i].Name] = true
	}

	if err := c.Branches.Validate(); err != nil {
		allErrors = append(allErrors, err)
	}
	if err := c.Generation.Validate(); err != nil {
		allErrors = append(allErrors, err)
	}
	if err := c.LLM.Validate(); err != nil {
		allErrors = append(allErrors, err)
	}

	for i := range c.SeedData {
		if err := c.SeedData[i].Validate(); err != nil {
			allErrors = append(allErrors, err)
			continue
		}
		if !vocabNames[c.SeedData[i].Vocabulary] {
			allErrors = append(allErrors, fmt.Errorf("seed data references unknown vocabulary '%v'", c.SeedData[i].Vocabulary))
		}
	}

	if c.TrainSamplesPerLabel == 0 {
		c.TrainSamplesPerLabel = 8
	}
	if c.TrainSamplesPerLabel < 0 {
		allErrors = append(allErrors, fmt.Errorf("'train_samples_per_label' cannot be negative"))
	}

	return errors.Join(allErrors...)
}

// ValidateTemplate checks that a phrasing template carries exactly one
// substitution slot. Templates with zero slots have nowhere to place the
// sampled label pair and are a setup error.
func ValidateTemplate(template string) error {
	switch n := strings.Count(template, TemplateSlot); {
	case strings.TrimSpace(template) == "":
		return fmt.Errorf("templates cannot be blank")
	case n == 0:
		return fmt.Errorf("template '%v' does not contain a '%v' substitution slot", template, TemplateSlot)
	case n > 1:
		return fmt.Errorf("template '%v' contains %d substitution slots, expected exactly 1", template, n)
	default:
		return nil
	}
}

func LoadDatagenConfig(configPath string) (*DatagenConfig, error) {
	configData, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config DatagenConfig
	err = json.Unmarshal(configData, &config)
	if err != nil {
		return nil, fmt.Errorf("error decoding config file: %w", err)
	}

	return &config, nil
}

func (c *DatagenConfig) Save(configPath string) error {
	configData, err := json.MarshalIndent(c, "", "    ")
	if err != nil {
		return fmt.Errorf("error serializing config: %w", err)
	}

	if err := os.WriteFile(configPath, configData, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}
