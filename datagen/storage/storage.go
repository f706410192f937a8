package storage

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/google/uuid"
)

type UsageStats struct {
	TotalBytes uint64 `json:"total_bytes"`
	FreeBytes  uint64 `json:"free_bytes"`
}

func (u UsageStats) UsedFraction() float64 {
	if u.TotalBytes == 0 {
		return 0
	}
	return 1 - float64(u.FreeBytes)/float64(u.TotalBytes)
}

// Storage is the artifact store shared by the control plane and generation
// jobs. Paths are relative to the store root so the same config works from
// any replica that mounts the share.
type Storage interface {
	Read(path string) (io.ReadCloser, error)
	Write(path string, data io.Reader) error
	Append(path string, data io.Reader) error
	Delete(path string) error
	List(path string) ([]string, error)
	Exists(path string) (bool, error)
	Size(path string) (int64, error)
	Zip(path string) error
	Usage() (UsageStats, error)
	Location() string
}

// RunDir is the root of one run's artifacts within a store.
func RunDir(runId uuid.UUID) string {
	return filepath.Join("runs", runId.String())
}

// GeneratedDataDir holds the assembled datasets of a run, one subdirectory
// per vocabulary with train/ and test/ splits beneath it.
func GeneratedDataDir(runId uuid.UUID) string {
	return filepath.Join(RunDir(runId), "generated_data")
}

func VocabDir(runId uuid.UUID, vocab string) string {
	return filepath.Join(GeneratedDataDir(runId), vocab)
}

func TrainFile(runId uuid.UUID, vocab string) string {
	return filepath.Join(VocabDir(runId, vocab), "train", "train.csv")
}

func TestFile(runId uuid.UUID, vocab string) string {
	return filepath.Join(VocabDir(runId, vocab), "test", "test.csv")
}

func ReportFile(runId uuid.UUID) string {
	return filepath.Join(RunDir(runId), "report.json")
}

func ConfigFile(runId uuid.UUID) string {
	return filepath.Join(RunDir(runId), "config.json")
}

// ReadAll is a convenience wrapper for small artifacts like reports.
func ReadAll(store Storage, path string) ([]byte, error) {
	reader, err := store.Read(path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("error reading contents of %v: %w", path, err)
	}
	return data, nil
}
