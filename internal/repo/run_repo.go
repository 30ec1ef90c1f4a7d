// Package repo implements the run journal persisted with GORM. This file
// provides repository functions for the Run and Batch models.
//
// All functions are context-aware and accept a *gorm.DB handle, so they can be
// used inside transactions. They hold no business logic: the generation loop
// decides what a run or batch looks like, these functions only store and read.
//
// Error semantics:
//   - When a run is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound).
//   - Other database errors are propagated unchanged.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-idea-generator/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateRun inserts a running Run for outputPath with a UUID primary key and a
// UTC start timestamp.
func CreateRun(ctx context.Context, db *gorm.DB, outputPath string) (*domain.Run, error) {
	r := &domain.Run{
		ID:         uuid.NewString(),
		StartedAt:  time.Now().UTC(),
		Status:     domain.RunRunning,
		OutputPath: outputPath,
	}
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		return nil, err
	}
	return r, nil
}

// FinishRun writes the terminal fields of run. Zero values are written too,
// so a run that accepted nothing ends with accepted=0 rather than keeping a
// stale value. Returns ErrNotFound if the run does not exist.
func FinishRun(ctx context.Context, db *gorm.DB, run *domain.Run) error {
	res := db.WithContext(ctx).
		Model(&domain.Run{ID: run.ID}).
		Select("finished_at", "status", "batches", "accepted", "first_id", "last_id", "error").
		Updates(run)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateBatch inserts b, assigning an id and creation time when unset. The
// owning run is never upserted through the association.
func CreateBatch(ctx context.Context, db *gorm.DB, b *domain.Batch) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Omit(clause.Associations).Create(b).Error
}

// GetRun fetches a single run by id, or ErrNotFound.
func GetRun(ctx context.Context, db *gorm.DB, id string) (*domain.Run, error) {
	var r domain.Run
	if err := db.WithContext(ctx).First(&r, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// CountRuns returns the number of journaled runs.
func CountRuns(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Run{}).Count(&n).Error
	return n, err
}

// ListRunsPage returns runs newest first.
func ListRunsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Run, error) {
	var out []domain.Run
	err := db.WithContext(ctx).
		Order("started_at DESC").
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListBatches returns the batches of runID in execution order.
func ListBatches(ctx context.Context, db *gorm.DB, runID string) ([]domain.Batch, error) {
	var out []domain.Batch
	err := db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("batch_index ASC").
		Find(&out).Error
	return out, err
}
