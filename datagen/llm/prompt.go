package llm

import (
	"bytes"
	"fmt"
	"text/template"
)

// GenerationSystem frames the model as a labeled-data writer.
const GenerationSystem = `You are an expert dataset generator for text classification. You write realistic texts for classification tasks and label them correctly. You always answer with a single valid JSON object and nothing else.`

// GenerationUser is the user-role template for one batched request.
const GenerationUser = `Generate synthetic labeled examples for the classification tasks below.

For every task write {{ .NumGenerations }} diverse texts in {{ .Language }}, at a {{ .Difficulty }} writing level. The texts must be {{ .Clarity }} to classify.

Tasks:
{{ range $i, $t := .Tasks }}{{ $i }}. {{ $t.Task }}
{{ end }}
Answer with a JSON object of the form:
{"examples": [{"task": <task number>, "input_text": "<generated text>", "label": "<correct label>", "misleading_label": "<plausible but wrong label from the same task>"}, ...]}

"label" and "misleading_label" must both be labels named by the example's task, and they must differ. Produce exactly {{ .NumGenerations }} examples per task.`

var generationTmpl = template.Must(template.New("generation").Parse(GenerationUser))

// BuildPrompt renders the system and user prompts for a request.
func BuildPrompt(req *Request) (string, string, error) {
	var buf bytes.Buffer
	if err := generationTmpl.Execute(&buf, req); err != nil {
		return "", "", fmt.Errorf("error rendering generation prompt: %w", err)
	}
	return GenerationSystem, buf.String(), nil
}
