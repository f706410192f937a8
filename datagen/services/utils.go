package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"datagen_platform/datagen/schema"
	"datagen_platform/datagen/storage"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type codedError struct {
	err  error
	code int
}

func (e *codedError) Error() string {
	return e.err.Error()
}

func (e *codedError) Unwrap() error {
	return e.err
}

func CodedError(err error, code int) error {
	return &codedError{err: err, code: code}
}

func GetResponseCode(err error) int {
	var cerr *codedError
	if errors.As(err, &cerr) {
		return cerr.code
	}
	slog.Error("non coded error passed to GetResponseCode", "error", err)
	return http.StatusInternalServerError
}

func getRunForRequest(runId uuid.UUID, txn *gorm.DB, preloads ...string) (schema.DatagenRun, error) {
	run, err := schema.GetRun(runId, txn, preloads...)
	if err != nil {
		if errors.Is(err, schema.ErrRunNotFound) {
			return schema.DatagenRun{}, CodedError(err, http.StatusNotFound)
		}
		return schema.DatagenRun{}, CodedError(err, http.StatusInternalServerError)
	}
	return run, nil
}

// updateRunStatus transitions a run's status only if it is still in the
// expected state, so a stop that has already won the race is not overwritten
// by the worker's own exit path.
func updateRunStatus(txn *gorm.DB, runId uuid.UUID, fromStatus string, updates map[string]interface{}) error {
	result := txn.Model(&schema.DatagenRun{}).Where("id = ?", runId).Where("status = ?", fromStatus).Updates(updates)
	if result.Error != nil {
		slog.Error("sql error updating run status", "run_id", runId, "error", result.Error)
		return schema.ErrDbAccessFailed
	}
	return nil
}

func checkDiskUsage(store storage.Storage) error {
	stats, err := store.Usage()
	if err != nil {
		slog.Error("unable to get disk usage from storage", "error", err)
		return CodedError(errors.New("unable to get disk usage"), http.StatusInternalServerError)
	}
	oneMib := uint64(1024 * 1024)
	// Either 20% disk needs to be free or 20Gb (in case the disk is very large)
	threshold := min(stats.TotalBytes/5, 20*1024*oneMib)
	if stats.FreeBytes < threshold {
		used := (stats.TotalBytes - stats.FreeBytes) / oneMib
		total := stats.TotalBytes / oneMib
		delta := (threshold - stats.FreeBytes) / oneMib
		return CodedError(fmt.Errorf("insufficient disk space available, usage: %d/%d Mib, please clear %d Mib", used, total, delta), http.StatusInsufficientStorage)
	}
	return nil
}

func checkSufficientStorage(store storage.Storage) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		handler := func(w http.ResponseWriter, r *http.Request) {
			if err := checkDiskUsage(store); err != nil {
				slog.Error(err.Error())
				http.Error(w, err.Error(), GetResponseCode(err))
				return
			}
			next.ServeHTTP(w, r)
		}

		return http.HandlerFunc(handler)
	}
}
