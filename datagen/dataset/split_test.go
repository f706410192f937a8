package dataset

import (
	"fmt"
	"math/rand"
	"reflect"
	"testing"
)

func datasetWithCounts(counts map[string]int) *Dataset {
	d := &Dataset{
		Vocab:  "news",
		Labels: []string{"World", "Sports", "Business", "Sci/Tech"},
	}
	for _, label := range d.Labels {
		for i := 0; i < counts[label]; i++ {
			d.append(fmt.Sprintf("%s article %d", label, i), label)
		}
	}
	return d
}

func TestStratifiedSplitCapsPerLabel(t *testing.T) {
	d := datasetWithCounts(map[string]int{"World": 10, "Sports": 5})

	split := StratifiedSplit(d, 8, rand.New(rand.NewSource(7)))

	trainCounts := split.TrainLabelCounts()
	if trainCounts["World"] != 8 {
		t.Fatalf("expected 8 World training rows, got %d", trainCounts["World"])
	}
	// A label short of the target contributes everything it has and nothing
	// to the evaluation side.
	if trainCounts["Sports"] != 5 {
		t.Fatalf("expected all 5 Sports rows in training, got %d", trainCounts["Sports"])
	}

	evalCounts := split.EvalLabelCounts()
	if evalCounts["World"] != 2 {
		t.Fatalf("expected 2 World evaluation rows, got %d", evalCounts["World"])
	}
	if evalCounts["Sports"] != 0 {
		t.Fatalf("expected 0 Sports evaluation rows, got %d", evalCounts["Sports"])
	}
}

func TestStratifiedSplitDisjointAndComplete(t *testing.T) {
	d := datasetWithCounts(map[string]int{"World": 9, "Sports": 3, "Business": 12, "Sci/Tech": 1})

	split := StratifiedSplit(d, 4, rand.New(rand.NewSource(11)))

	if len(split.Train)+len(split.Eval) != d.Len() {
		t.Fatalf("split must cover every row: %d + %d != %d", len(split.Train), len(split.Eval), d.Len())
	}

	trainIds := make(map[int]bool, len(split.Train))
	for _, row := range split.Train {
		trainIds[row.Id] = true
	}
	for _, row := range split.Eval {
		if trainIds[row.Id] {
			t.Fatalf("id %d appears in both subsets", row.Id)
		}
	}
}

func TestStratifiedSplitReproducible(t *testing.T) {
	d := datasetWithCounts(map[string]int{"World": 20, "Sports": 20})

	first := StratifiedSplit(d, 6, rand.New(rand.NewSource(42)))
	second := StratifiedSplit(d, 6, rand.New(rand.NewSource(42)))

	if !reflect.DeepEqual(first, second) {
		t.Fatal("same seed and input order must produce the same split")
	}
}

func TestStratifiedSplitPreservesRowOrder(t *testing.T) {
	d := datasetWithCounts(map[string]int{"World": 15, "Business": 15})

	split := StratifiedSplit(d, 5, rand.New(rand.NewSource(3)))

	for i := 1; i < len(split.Train); i++ {
		if split.Train[i].Id <= split.Train[i-1].Id {
			t.Fatal("training rows must keep enumeration order")
		}
	}
	for i := 1; i < len(split.Eval); i++ {
		if split.Eval[i].Id <= split.Eval[i-1].Id {
			t.Fatal("evaluation rows must keep enumeration order")
		}
	}
}

func TestStratifiedSplitZeroTarget(t *testing.T) {
	d := datasetWithCounts(map[string]int{"World": 4})

	split := StratifiedSplit(d, 0, rand.New(rand.NewSource(1)))

	if len(split.Train) != 0 {
		t.Fatalf("expected empty training set, got %d rows", len(split.Train))
	}
	if len(split.Eval) != 4 {
		t.Fatalf("expected every row in evaluation, got %d", len(split.Eval))
	}
}
