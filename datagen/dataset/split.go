package dataset

import (
	"math/rand"

	"github.com/samber/lo"
)

// Split is a stratified partition of a dataset. Train holds up to the target
// count per label, Eval holds every row not selected for training.
type Split struct {
	Train []LabeledRow `json:"train"`
	Eval  []LabeledRow `json:"eval"`
}

func (s *Split) TrainLabelCounts() map[string]int {
	return lo.CountValuesBy(s.Train, func(row LabeledRow) string { return row.Label })
}

func (s *Split) EvalLabelCounts() map[string]int {
	return lo.CountValuesBy(s.Eval, func(row LabeledRow) string { return row.Label })
}

// StratifiedSplit samples up to perLabel training rows for each label and
// puts everything else in the evaluation side. A label with fewer than
// perLabel rows contributes all of them and an empty evaluation share; the
// shortfall is visible in the counts, never an error. Both sides preserve
// the dataset's enumeration order, so the result is reproducible for a given
// seed and input order.
func StratifiedSplit(d *Dataset, perLabel int, rng *rand.Rand) Split {
	if perLabel < 0 {
		perLabel = 0
	}

	selected := make(map[int]bool, len(d.Rows))

	byLabel := d.ByLabel()
	for _, label := range d.Labels {
		rows := byLabel[label]
		if len(rows) <= perLabel {
			for _, row := range rows {
				selected[row.Id] = true
			}
			continue
		}
		for _, idx := range rng.Perm(len(rows))[:perLabel] {
			selected[rows[idx].Id] = true
		}
	}

	var split Split
	for _, row := range d.Rows {
		if selected[row.Id] {
			split.Train = append(split.Train, row)
		} else {
			split.Eval = append(split.Eval, row)
		}
	}
	return split
}
