package dataset

import (
	"slices"

	"github.com/samber/lo"

	"datagen_platform/datagen/config"
	"datagen_platform/datagen/pipeline"
)

// Row is an unnumbered {text, label} pair from an external source such as a
// seed dataset or reviewer corrections. Rows receive ids when merged into a
// Dataset.
type Row struct {
	Text  string `json:"text"`
	Label string `json:"label"`
}

// LabeledRow is a normalized training row. Ids are assigned by enumeration
// order at assembly time and are unique within one dataset, including rows
// merged in afterwards.
type LabeledRow struct {
	Text  string `json:"text"`
	Label string `json:"label"`
	Id    int    `json:"id"`
}

// NoiseCounts tracks examples excluded during assembly, split by cause.
type NoiseCounts struct {
	ParseFailures int `json:"parse_failures"`
	InvalidLabels int `json:"invalid_labels"`
}

func (n NoiseCounts) Total() int {
	return n.ParseFailures + n.InvalidLabels
}

// Dataset is the label indexed row collection for one vocabulary. Rows hold
// only validated labels; everything excluded is accounted for in Noise.
type Dataset struct {
	Vocab  string       `json:"vocab"`
	Labels []string     `json:"labels"`
	Rows   []LabeledRow `json:"rows"`
	Noise  NoiseCounts  `json:"noise"`
}

func (d *Dataset) Len() int {
	return len(d.Rows)
}

// ByLabel groups rows by label, preserving enumeration order within each
// group.
func (d *Dataset) ByLabel() map[string][]LabeledRow {
	return lo.GroupBy(d.Rows, func(row LabeledRow) string { return row.Label })
}

// LabelCounts returns the per label row frequency. Labels with no rows are
// present with count 0 so coverage gaps are visible.
func (d *Dataset) LabelCounts() map[string]int {
	counts := lo.CountValuesBy(d.Rows, func(row LabeledRow) string { return row.Label })
	for _, label := range d.Labels {
		if _, ok := counts[label]; !ok {
			counts[label] = 0
		}
	}
	return counts
}

// MinLabelCount returns the smallest per label count, the usual threshold
// check before sampling a training split.
func (d *Dataset) MinLabelCount() int {
	if len(d.Labels) == 0 {
		return 0
	}
	counts := d.LabelCounts()
	lowest := counts[d.Labels[0]]
	for _, label := range d.Labels[1:] {
		if counts[label] < lowest {
			lowest = counts[label]
		}
	}
	return lowest
}

// append adds a validated row, numbering it after every existing row.
func (d *Dataset) append(text, label string) {
	d.Rows = append(d.Rows, LabeledRow{Text: text, Label: label, Id: len(d.Rows)})
}

// Merge appends external rows with ids continuing from the existing range.
// Rows whose label is outside the vocabulary are excluded and counted as
// noise like any other invalid label.
func (d *Dataset) Merge(rows []Row) {
	for _, row := range rows {
		if !slices.Contains(d.Labels, row.Label) {
			d.Noise.InvalidLabels++
			continue
		}
		d.append(row.Text, row.Label)
	}
}

// Assemble reduces branch results into one dataset per vocabulary. Branches
// are consumed in their construction order and examples in their generation
// order, so assembly over the same immutable results always yields identical
// datasets. An example lands in the dataset of the vocabulary its task was
// expanded from; examples that failed to parse, or whose label is not one of
// the two labels their task named, are excluded and counted.
func Assemble(result *pipeline.Result, vocabs []config.VocabularyOptions) map[string]*Dataset {
	datasets := make(map[string]*Dataset, len(vocabs))
	for _, vocab := range vocabs {
		datasets[vocab.Name] = &Dataset{
			Vocab:  vocab.Name,
			Labels: slices.Clone(vocab.Labels),
		}
	}

	for _, branch := range result.InOrder() {
		for _, example := range branch.Examples {
			dataset, ok := datasets[example.Task.Vocab]
			if !ok {
				continue
			}

			if !example.Parsed() {
				dataset.Noise.ParseFailures++
				continue
			}
			if !example.Task.ValidLabel(example.Label) {
				dataset.Noise.InvalidLabels++
				continue
			}

			dataset.append(example.InputText, example.Label)
		}
	}

	return datasets
}
