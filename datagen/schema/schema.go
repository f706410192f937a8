package schema

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Run statuses. The lifecycle is pending -> running -> one of complete,
// failed, or stopped.
const (
	Pending  = "pending"
	Running  = "running"
	Complete = "complete"
	Failed   = "failed"
	Stopped  = "stopped"
)

var validStatuses = []string{Pending, Running, Complete, Failed, Stopped}

func CheckValidStatus(status string) error {
	if !slices.Contains(validStatuses, status) {
		return fmt.Errorf("invalid run status '%v', must be one of %v", status, validStatuses)
	}
	return nil
}

// IsTerminal reports whether a run in this status can never change again.
func IsTerminal(status string) bool {
	return status == Complete || status == Failed || status == Stopped
}

type DatagenRun struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Name   string `gorm:"size:100;not null"`
	Status string `gorm:"size:100;not null"`

	// Config is the serialized generation config, the exact snapshot the
	// run executes.
	Config string `gorm:"not null"`

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time

	Events []RunEvent `gorm:"foreignKey:RunId;constraint:OnDelete:CASCADE"`
}

// RunEvent is a message reported by a run, shown alongside its status.
type RunEvent struct {
	Id    uuid.UUID `gorm:"type:uuid;primaryKey"`
	RunId uuid.UUID `gorm:"type:uuid;index;not null"`

	Level   string `gorm:"size:50;not null"`
	Message string

	CreatedAt time.Time
}

const (
	EventInfo    = "info"
	EventWarning = "warning"
	EventError   = "error"
)
