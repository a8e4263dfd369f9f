package runs

import (
	"time"

	"github.com/lib/pq"
)

const (
	StatusRunning   = "RUNNING"
	StatusDone      = "DONE"
	StatusFailed    = "FAILED"
	StatusCancelled = "CANCELLED"
	StatusAbandoned = "ABANDONED"
)

// CycleRun is one scheduling cycle, whatever triggered it.
type CycleRun struct {
	ID      uint64 `gorm:"primaryKey" json:"id"`
	Trigger string `gorm:"type:text;not null" json:"trigger"` // http/cron/cli
	Status  string `gorm:"index;not null;default:'RUNNING'" json:"status"`

	At   time.Time `gorm:"type:timestamptz;not null" json:"at"`
	Task *string   `gorm:"type:text" json:"task,omitempty"`

	Attempted int           `gorm:"not null;default:0" json:"attempted"`
	Sent      int           `gorm:"not null;default:0" json:"sent"`
	Skipped   int           `gorm:"not null;default:0" json:"skipped"`
	Failed    int           `gorm:"not null;default:0" json:"failed"`
	Uncertain int           `gorm:"not null;default:0" json:"uncertain"`
	FailedIDs pq.Int64Array `gorm:"type:bigint[]" json:"failed_ids,omitempty"`

	LastError *string `gorm:"type:text" json:"last_error,omitempty"`

	StartedAt  time.Time  `gorm:"not null;default:now()" json:"started_at"`
	FinishedAt *time.Time `gorm:"type:timestamptz" json:"finished_at,omitempty"`
}

func (CycleRun) TableName() string { return "cycle_runs" }
