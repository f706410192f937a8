package llm

import (
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ParsedExample is the decoded form of one raw model output. All fields empty
// means the output could not be parsed; that is an expected outcome, the
// caller records it and moves on.
type ParsedExample struct {
	InputText       string `json:"input_text"`
	Label           string `json:"label"`
	MisleadingLabel string `json:"misleading_label"`
}

// ParseExample decodes a raw model output into a ParsedExample. Malformed
// JSON gets one repair attempt before the output is declared unparseable.
// Returns false if no usable input_text and label could be recovered.
func ParseExample(raw string) (ParsedExample, bool) {
	var parsed ParsedExample

	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(raw)
		if repairErr != nil {
			return ParsedExample{}, false
		}
		if err := json.Unmarshal([]byte(repaired), &parsed); err != nil {
			return ParsedExample{}, false
		}
	}

	if strings.TrimSpace(parsed.InputText) == "" || strings.TrimSpace(parsed.Label) == "" {
		return ParsedExample{}, false
	}

	return parsed, true
}

type batchExample struct {
	Task            int    `json:"task"`
	InputText       string `json:"input_text"`
	Label           string `json:"label"`
	MisleadingLabel string `json:"misleading_label"`
}

type batchResponse struct {
	Examples []batchExample `json:"examples"`
}

// SplitBatchOutput splits a whole-response JSON document into per task raw
// outputs. Models sometimes answer with a bare array instead of the requested
// object; both forms are accepted. If the document cannot be decoded at all,
// every expected slot is filled with the full content so downstream parsing
// degrades each one to a null record while keeping the raw output for
// debugging. Never fails.
func SplitBatchOutput(content string, numTasks, numGenerations int) RawGenerations {
	outputs := make(RawGenerations, numTasks)

	examples, ok := decodeBatch(content)
	if !ok {
		for i := range outputs {
			for j := 0; j < numGenerations; j++ {
				outputs[i] = append(outputs[i], content)
			}
		}
		return outputs
	}

	for _, example := range examples {
		if example.Task < 0 || example.Task >= numTasks {
			continue
		}
		if len(outputs[example.Task]) >= numGenerations {
			continue
		}

		raw, err := json.Marshal(ParsedExample{
			InputText:       example.InputText,
			Label:           example.Label,
			MisleadingLabel: example.MisleadingLabel,
		})
		if err != nil {
			continue
		}
		outputs[example.Task] = append(outputs[example.Task], string(raw))
	}

	return outputs
}

func decodeBatch(content string) ([]batchExample, bool) {
	if examples, ok := decodeBatchStrict(content); ok {
		return examples, true
	}

	repaired, err := jsonrepair.JSONRepair(content)
	if err != nil {
		return nil, false
	}
	return decodeBatchStrict(repaired)
}

func decodeBatchStrict(content string) ([]batchExample, bool) {
	var parsed batchResponse
	if err := json.Unmarshal([]byte(content), &parsed); err == nil {
		return parsed.Examples, true
	}

	var examples []batchExample
	if err := json.Unmarshal([]byte(content), &examples); err == nil {
		return examples, true
	}

	return nil, false
}
