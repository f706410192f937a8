package schema

import (
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrRunNotFound = errors.New("run not found")

	ErrDbAccessFailed = errors.New("error accessing db")
)

func GetRun(runId uuid.UUID, txn *gorm.DB, preloads ...string) (DatagenRun, error) {
	var run DatagenRun

	query := txn
	for _, preload := range preloads {
		query = query.Preload(preload)
	}

	result := query.First(&run, "id = ?", runId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return DatagenRun{}, ErrRunNotFound
		}
		slog.Error("sql error retrieving run", "run_id", runId, "error", result.Error)
		return DatagenRun{}, ErrDbAccessFailed
	}

	return run, nil
}

func GetRunEvents(runId uuid.UUID, txn *gorm.DB) ([]RunEvent, error) {
	var events []RunEvent

	result := txn.Order("created_at asc").Find(&events, "run_id = ?", runId)
	if result.Error != nil {
		slog.Error("sql error retrieving run events", "run_id", runId, "error", result.Error)
		return nil, ErrDbAccessFailed
	}

	return events, nil
}

func AddRunEvent(txn *gorm.DB, runId uuid.UUID, level, message string) error {
	event := RunEvent{
		Id:        uuid.New(),
		RunId:     runId,
		Level:     level,
		Message:   message,
		CreatedAt: time.Now(),
	}

	result := txn.Create(&event)
	if result.Error != nil {
		slog.Error("sql error saving run event", "run_id", runId, "error", result.Error)
		return ErrDbAccessFailed
	}

	return nil
}
