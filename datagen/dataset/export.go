package dataset

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"slices"

	"github.com/google/uuid"

	"datagen_platform/datagen/storage"
)

// WriteRowsCSV writes rows at path in the two column training format
// consumed by the trainer and the review tool.
func WriteRowsCSV(store storage.Storage, path string, rows []LabeledRow) error {
	var buf bytes.Buffer

	writer := csv.NewWriter(&buf)
	writer.Write([]string{"text", "label"})
	for _, row := range rows {
		writer.Write([]string{row.Text, row.Label})
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("error encoding rows for %v: %w", path, err)
	}

	return store.Write(path, &buf)
}

// ReadRowsCSV reads rows written by WriteRowsCSV. Ids are reassigned from
// row order since the format does not carry them.
func ReadRowsCSV(store storage.Storage, path string) ([]LabeledRow, error) {
	file, err := store.Read(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("error reading header of %v: %w", path, err)
	}
	if err := validateHeader(header, []string{"text", "label"}); err != nil {
		return nil, fmt.Errorf("%v: %w", path, err)
	}

	textCol := slices.Index(header, "text")
	labelCol := slices.Index(header, "label")

	var rows []LabeledRow
	for {
		line, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading %v: %w", path, err)
		}
		rows = append(rows, LabeledRow{Text: line[textCol], Label: line[labelCol], Id: len(rows)})
	}
	return rows, nil
}

// ExportSplit writes one vocabulary's train and test artifacts for a run.
func ExportSplit(store storage.Storage, runId uuid.UUID, vocab string, split Split) error {
	if err := WriteRowsCSV(store, storage.TrainFile(runId, vocab), split.Train); err != nil {
		return fmt.Errorf("error writing train split for %v: %w", vocab, err)
	}
	if err := WriteRowsCSV(store, storage.TestFile(runId, vocab), split.Eval); err != nil {
		return fmt.Errorf("error writing test split for %v: %w", vocab, err)
	}
	return nil
}
