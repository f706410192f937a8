package llm

import (
	"strings"
	"testing"
)

func TestParseExample(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		ok    bool
		label string
	}{
		{
			name:  "well formed",
			raw:   `{"input_text": "Stocks rallied on Friday.", "label": "Business", "misleading_label": "World"}`,
			ok:    true,
			label: "Business",
		},
		{
			name:  "repairable single quotes",
			raw:   `{'input_text': 'The match went to penalties.', 'label': 'Sports', 'misleading_label': 'World'}`,
			ok:    true,
			label: "Sports",
		},
		{
			name:  "repairable trailing comma",
			raw:   `{"input_text": "New chip announced.", "label": "Sci/Tech", "misleading_label": "Business",}`,
			ok:    true,
			label: "Sci/Tech",
		},
		{
			name: "missing label",
			raw:  `{"input_text": "Some text", "misleading_label": "World"}`,
			ok:   false,
		},
		{
			name: "missing input text",
			raw:  `{"label": "World", "misleading_label": "Sports"}`,
			ok:   false,
		},
		{
			name: "not json",
			raw:  "the model wrote prose instead of json",
			ok:   false,
		},
		{
			name: "empty",
			raw:  "",
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, ok := ParseExample(tt.raw)
			if ok != tt.ok {
				t.Fatalf("expected ok=%v, got %v (parsed=%+v)", tt.ok, ok, parsed)
			}
			if tt.ok && parsed.Label != tt.label {
				t.Errorf("expected label %q, got %q", tt.label, parsed.Label)
			}
			if !tt.ok && (parsed.InputText != "" || parsed.Label != "") {
				t.Errorf("failed parse should yield empty fields, got %+v", parsed)
			}
		})
	}
}

func TestSplitBatchOutput(t *testing.T) {
	content := `{"examples": [
		{"task": 0, "input_text": "a", "label": "World", "misleading_label": "Sports"},
		{"task": 0, "input_text": "b", "label": "Sports", "misleading_label": "World"},
		{"task": 1, "input_text": "c", "label": "Business", "misleading_label": "Sci/Tech"},
		{"task": 5, "input_text": "d", "label": "World", "misleading_label": "Sports"},
		{"task": -1, "input_text": "e", "label": "World", "misleading_label": "Sports"}
	]}`

	outputs := SplitBatchOutput(content, 2, 2)

	if len(outputs) != 2 {
		t.Fatalf("expected 2 task buckets, got %d", len(outputs))
	}
	if len(outputs[0]) != 2 || len(outputs[1]) != 1 {
		t.Fatalf("unexpected bucket sizes: %d, %d", len(outputs[0]), len(outputs[1]))
	}

	parsed, ok := ParseExample(outputs[0][1])
	if !ok || parsed.InputText != "b" {
		t.Fatalf("expected second generation of task 0 to be 'b', got %+v", parsed)
	}
}

func TestSplitBatchOutputBareArray(t *testing.T) {
	content := `[{"task": 0, "input_text": "a", "label": "World", "misleading_label": "Sports"}]`

	outputs := SplitBatchOutput(content, 1, 3)
	if len(outputs[0]) != 1 {
		t.Fatalf("expected 1 output, got %d", len(outputs[0]))
	}
}

func TestSplitBatchOutputCapsGenerations(t *testing.T) {
	var examples []string
	for i := 0; i < 10; i++ {
		examples = append(examples, `{"task": 0, "input_text": "x", "label": "World", "misleading_label": "Sports"}`)
	}
	content := `{"examples": [` + strings.Join(examples, ",") + `]}`

	outputs := SplitBatchOutput(content, 1, 4)
	if len(outputs[0]) != 4 {
		t.Fatalf("expected generations capped at 4, got %d", len(outputs[0]))
	}
}

func TestSplitBatchOutputGarbage(t *testing.T) {
	content := "I am sorry, I cannot help with that."

	outputs := SplitBatchOutput(content, 2, 3)

	for i, bucket := range outputs {
		if len(bucket) != 3 {
			t.Fatalf("garbage content should fill every slot, task %d has %d", i, len(bucket))
		}
		for _, raw := range bucket {
			if raw != content {
				t.Fatalf("raw output should carry the original content for debugging")
			}
			if _, ok := ParseExample(raw); ok {
				t.Fatal("garbage output should not parse into an example")
			}
		}
	}
}
