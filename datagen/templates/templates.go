package templates

import (
	"fmt"
	"math/rand"
	"os"
	"strings"

	"datagen_platform/datagen/config"

	"gopkg.in/yaml.v3"
)

// TaskDescription is one concrete classification instruction produced by
// template expansion. The label set is carried as structured data, the task
// string is presentation only and is never re-parsed for validation.
type TaskDescription struct {
	Task   string   `json:"task"`
	Labels []string `json:"labels"`
	Vocab  string   `json:"vocab"`
}

// ValidLabel reports whether the given label is one of the labels the task
// names. Labels outside this set are noise regardless of whether they appear
// elsewhere in the vocabulary.
func (t *TaskDescription) ValidLabel(label string) bool {
	for _, l := range t.Labels {
		if l == label {
			return true
		}
	}
	return false
}

type templateFile struct {
	Templates []string `yaml:"templates"`
}

// LoadTemplateFile reads a yaml template set. Each entry must contain exactly
// one substitution slot.
func LoadTemplateFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading template file: %w", err)
	}

	var parsed templateFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("error decoding template file: %w", err)
	}

	if len(parsed.Templates) == 0 {
		return nil, fmt.Errorf("template file '%v' contains no templates", path)
	}
	for _, template := range parsed.Templates {
		if err := config.ValidateTemplate(template); err != nil {
			return nil, err
		}
	}

	return parsed.Templates, nil
}

// Expand instantiates every template against the vocabulary, repeating each
// template the vocabulary's repetition count. Each instantiation samples 2
// distinct labels without replacement and joins them with " or " in the
// sampled order. A 2 label vocabulary yields the same pair every time, only
// the order varies.
func Expand(templateList []string, vocab config.VocabularyOptions, rng *rand.Rand) ([]TaskDescription, error) {
	if len(vocab.Labels) < 2 {
		return nil, fmt.Errorf("vocabulary '%v' must contain at least 2 labels", vocab.Name)
	}

	tasks := make([]TaskDescription, 0, len(templateList)*vocab.Repetitions)
	for _, template := range templateList {
		if err := config.ValidateTemplate(template); err != nil {
			return nil, err
		}

		for i := 0; i < vocab.Repetitions; i++ {
			pair := samplePair(vocab.Labels, rng)
			tasks = append(tasks, TaskDescription{
				Task:   strings.Replace(template, config.TemplateSlot, strings.Join(pair, " or "), 1),
				Labels: pair,
				Vocab:  vocab.Name,
			})
		}
	}

	return tasks, nil
}

func samplePair(labels []string, rng *rand.Rand) []string {
	perm := rng.Perm(len(labels))
	return []string{labels[perm[0]], labels[perm[1]]}
}
