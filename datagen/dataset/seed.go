package dataset

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"

	"datagen_platform/datagen/config"
	"datagen_platform/datagen/storage"
	"datagen_platform/utils/logging"
)

// LoadSeedRows reads a seed dataset of real examples. The csv carries a text
// column and an integer label column; indices resolve through the label
// names file, shifted down by the configured offset for sources whose
// indices are not zero based.
func LoadSeedRows(store storage.Storage, opts config.SeedDataOptions) ([]Row, error) {
	names, err := loadLabelNames(store, opts.LabelNamesPath)
	if err != nil {
		return nil, err
	}

	file, err := store.Read(opts.DataPath)
	if err != nil {
		return nil, fmt.Errorf("error opening seed data %v: %w", opts.DataPath, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("error reading seed data header: %w", err)
	}
	if err := validateHeader(header, []string{"text", "label"}); err != nil {
		return nil, fmt.Errorf("seed data %v: %w", opts.DataPath, err)
	}

	textCol := slices.Index(header, "text")
	labelCol := slices.Index(header, "label")

	var rows []Row
	for {
		line, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading seed data %v: %w", opts.DataPath, err)
		}

		rawLabel, err := strconv.Atoi(line[labelCol])
		if err != nil {
			return nil, fmt.Errorf("seed data %v: label %q is not an integer index: %w", opts.DataPath, line[labelCol], err)
		}
		idx := rawLabel - opts.LabelOffset
		if idx < 0 || idx >= len(names) {
			return nil, fmt.Errorf("seed data %v: label index %d (offset %d) is outside the %d label names", opts.DataPath, rawLabel, opts.LabelOffset, len(names))
		}

		rows = append(rows, Row{Text: line[textCol], Label: names[idx]})
	}

	slog.Info("loaded seed dataset", "path", opts.DataPath, "rows", len(rows), "code", logging.DATA_SEED)
	return rows, nil
}

// loadLabelNames reads the index to name mapping as a json string array.
func loadLabelNames(store storage.Storage, path string) ([]string, error) {
	data, err := storage.ReadAll(store, path)
	if err != nil {
		return nil, fmt.Errorf("error reading label names %v: %w", path, err)
	}

	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, fmt.Errorf("error parsing label names %v: %w", path, err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("label names file %v contains no labels", path)
	}
	return names, nil
}

func validateHeader(header []string, expected []string) error {
	if len(header) != len(expected) {
		return fmt.Errorf("invalid columns: expected %v, got %v", expected, header)
	}
	for _, key := range expected {
		if !slices.Contains(header, key) {
			return fmt.Errorf("invalid columns: expected %v, got %v", expected, header)
		}
	}
	return nil
}
