package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-idea-generator/internal/domain"
	"github.com/tbourn/go-idea-generator/internal/utils"
)

// Journal binds the run repository functions to a database handle. It records
// runs for the generation loop and serves them to the ops HTTP handlers.
// Safe for concurrent use.
type Journal struct {
	DB *gorm.DB
}

// NewJournal returns a Journal backed by db.
func NewJournal(db *gorm.DB) *Journal { return &Journal{DB: db} }

// StartRun journals a new running run.
func (j *Journal) StartRun(ctx context.Context, outputPath string) (*domain.Run, error) {
	return CreateRun(ctx, j.DB, outputPath)
}

// RecordBatch journals one batch outcome.
func (j *Journal) RecordBatch(ctx context.Context, b *domain.Batch) error {
	return CreateBatch(ctx, j.DB, b)
}

// FinishRun writes the terminal state of run.
func (j *Journal) FinishRun(ctx context.Context, run *domain.Run) error {
	return FinishRun(ctx, j.DB, run)
}

// ListPage returns a page of runs (1-based) and the total count.
func (j *Journal) ListPage(ctx context.Context, page, pageSize int) ([]domain.Run, int64, error) {
	page, pageSize = max(page, 1), max(pageSize, 1)
	total, err := CountRuns(ctx, j.DB)
	if err != nil {
		return nil, 0, err
	}
	runs, err := ListRunsPage(ctx, j.DB, utils.Offset(page, pageSize), pageSize)
	if err != nil {
		return nil, 0, err
	}
	return runs, total, nil
}

// Get returns a run and its batches, or ErrNotFound.
func (j *Journal) Get(ctx context.Context, id string) (*domain.Run, []domain.Batch, error) {
	run, err := GetRun(ctx, j.DB, id)
	if err != nil {
		return nil, nil, err
	}
	batches, err := ListBatches(ctx, j.DB, id)
	if err != nil {
		return nil, nil, err
	}
	return run, batches, nil
}

// Stats proxies RunsStats.
func (j *Journal) Stats(ctx context.Context) (int64, *time.Time, *time.Time, error) {
	return RunsStats(ctx, j.DB)
}
