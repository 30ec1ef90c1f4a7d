// Package domain defines the records flowing through the idea generator: the
// raw ideas returned by the model, the canonical corpus rows written to CSV,
// and the run journal models mapped with GORM.
package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"time"
)

// Idea is one canonical corpus row.
//
// Fields:
//   - ID: positive, strictly increasing across runs, never reused.
//   - Idea: trimmed, non-empty idea text.
//   - ManualDevHours: estimated manual development hours; NaN when the model's
//     estimate carried no numeric token.
type Idea struct {
	ID             int64   `json:"id"`
	Idea           string  `json:"idea"`
	ManualDevHours float64 `json:"manual_dev_hours"`
}

// HasHours reports whether the hour estimate was coerced to a number.
func (i Idea) HasHours() bool { return !math.IsNaN(i.ManualDevHours) }

// RawIdea is a single record as produced by the model, before normalization.
// The hour estimate is free text ("4 hr", "4.5", "about 3 hours").
type RawIdea struct {
	Idea           string    `json:"idea"`
	ManualDevHours HoursText `json:"manual_dev_hours"`
}

// HoursText holds an hour estimate as text. It decodes from any JSON value,
// since models return strings, numbers and occasionally other shapes.
type HoursText string

// UnmarshalJSON never fails a record. Strings are unquoted, null becomes
// empty, and any other value (numbers, booleans, arrays, objects) is kept as
// its raw JSON text for later coercion.
func (h *HoursText) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*h = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err == nil {
			*h = HoursText(s)
			return nil
		}
	}
	*h = HoursText(b)
	return nil
}

// Run status values.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
	RunCanceled  = "canceled"
)

// Batch status values.
const (
	BatchSucceeded = "succeeded"
	BatchFailed    = "failed"
)

// Run is one process-level generation run recorded in the journal.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - Status: running|completed|failed|canceled.
//   - Batches: number of batches attempted.
//   - Accepted: ideas accepted and persisted during the run.
//   - FirstID / LastID: id range assigned during the run (0 when none).
//   - Error: terminal error message, if any.
type Run struct {
	ID         string     `json:"id"          gorm:"type:char(36);primaryKey"`
	StartedAt  time.Time  `json:"started_at"  gorm:"not null;index"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     string     `json:"status"      gorm:"type:varchar(16);not null;check:status IN ('running','completed','failed','canceled')"`
	OutputPath string     `json:"output_path" gorm:"type:varchar(1024);not null"`
	Batches    int        `json:"batches"     gorm:"not null;default:0"`
	Accepted   int        `json:"accepted"    gorm:"not null;default:0"`
	FirstID    int64      `json:"first_id"    gorm:"not null;default:0"`
	LastID     int64      `json:"last_id"     gorm:"not null;default:0"`
	Error      string     `json:"error,omitempty" gorm:"type:text"`
}

// TableName returns the database table name for Run.
func (Run) TableName() string { return "runs" }

// Batch is the outcome of one request/response cycle within a run.
type Batch struct {
	ID         string    `json:"id"         gorm:"type:char(36);primaryKey"`
	RunID      string    `json:"run_id"     gorm:"type:char(36);not null;index:idx_run_batches,priority:1"`
	Index      int       `json:"index"      gorm:"column:batch_index;not null;index:idx_run_batches,priority:2"`
	Received   int       `json:"received"   gorm:"not null;default:0"`
	Accepted   int       `json:"accepted"   gorm:"not null;default:0"`
	Duplicates int       `json:"duplicates" gorm:"not null;default:0"`
	Empty      int       `json:"empty"      gorm:"not null;default:0"`
	Status     string    `json:"status"     gorm:"type:varchar(16);not null;check:status IN ('succeeded','failed')"`
	Error      string    `json:"error,omitempty" gorm:"type:text"`
	DurationMS int64     `json:"duration_ms" gorm:"not null;default:0"`
	CreatedAt  time.Time `json:"created_at"`

	// Run is the owning run. Batches are cascade-deleted with it.
	Run Run `json:"-" gorm:"foreignKey:RunID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Batch.
func (Batch) TableName() string { return "batches" }
