// Package repo implements the run journal persisted with GORM. This file
// provides small aggregate queries used for conditional responses (ETag
// generation) in the ops HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-idea-generator/internal/domain"
)

// RunsStats returns the number of runs, the latest start time and the latest
// finish time. Both timestamps are nil when the journal is empty; the finish
// time is also nil while no run has finished.
//
// A run changes twice (start and finish), so an ETag built from the count
// alone would go stale when a run finishes.
func RunsStats(ctx context.Context, db *gorm.DB) (count int64, lastStarted, lastFinished *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Run{})

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, nil, err
	}
	if count == 0 {
		return 0, nil, nil, nil
	}

	// Avoid MAX() -> TEXT in SQLite.
	var started struct{ StartedAt time.Time }
	if err = db.WithContext(ctx).Model(&domain.Run{}).
		Select("started_at").Order("started_at DESC").Limit(1).
		Scan(&started).Error; err != nil {
		return 0, nil, nil, err
	}

	var finished struct{ FinishedAt *time.Time }
	if err = db.WithContext(ctx).Model(&domain.Run{}).
		Select("finished_at").Where("finished_at IS NOT NULL").
		Order("finished_at DESC").Limit(1).
		Scan(&finished).Error; err != nil {
		return 0, nil, nil, err
	}
	return count, &started.StartedAt, finished.FinishedAt, nil
}
