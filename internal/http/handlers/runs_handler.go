// Run journal HTTP handlers.
//
//   - GET /runs        (list, paginated, newest first, weak ETag)
//   - GET /runs/{id}   (one run with its batches)
//
// Handlers are transport-thin: they validate input, call the journal and
// translate results into HTTP responses.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-idea-generator/internal/domain"
	"github.com/tbourn/go-idea-generator/internal/utils"
)

// RunJournal is the read side of the run journal consumed by the handlers.
// Implementations must be safe for concurrent use.
type RunJournal interface {
	// ListPage returns a page of runs (1-based) and the total count.
	ListPage(ctx context.Context, page, pageSize int) ([]domain.Run, int64, error)
	// Get returns a run and its batches, or gorm.ErrRecordNotFound.
	Get(ctx context.Context, id string) (*domain.Run, []domain.Batch, error)
	// Stats returns the run count and the latest start and finish times.
	Stats(ctx context.Context) (int64, *time.Time, *time.Time, error)
}

// Handlers groups the ops API endpoints.
type Handlers struct {
	journal RunJournal
}

// New constructs Handlers bound to journal.
func New(journal RunJournal) *Handlers {
	return &Handlers{journal: journal}
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListRunsResponse wraps a page of runs and pagination information.
type ListRunsResponse struct {
	Runs       []domain.Run `json:"runs"`
	Pagination Pagination   `json:"pagination"`
}

// RunResponse is a run together with its batches in execution order.
type RunResponse struct {
	Run     *domain.Run    `json:"run"`
	Batches []domain.Batch `json:"batches"`
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func unixOrZero(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.UnixNano()
}

// ListRuns returns a page of runs. A weak ETag derived from the journal stats
// allows If-None-Match to short-circuit with 304.
func (h *Handlers) ListRuns(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := utils.Page(c.Query("page"), c.Query("page_size"), defaultPageSize, maxPageSize)

	// ETag pre-check (best effort).
	if count, started, finished, err := h.journal.Stats(ctx); err == nil {
		etag := fmt.Sprintf(`W/"runs:%d:%d:%d:%d:%d"`, count, unixOrZero(started), unixOrZero(finished), page, pageSize)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	} else {
		_ = c.Error(err)
	}

	runs, total, err := h.journal.ListPage(ctx, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	if runs == nil {
		runs = []domain.Run{}
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListRunsResponse{
		Runs: runs,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// GetRun returns one run and its batches.
func (h *Handlers) GetRun(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "run id must be a UUID")
		return
	}

	run, batches, err := h.journal.Get(c.Request.Context(), id)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "run not found")
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeGetFailed, err.Error())
		return
	}
	if batches == nil {
		batches = []domain.Batch{}
	}
	ok(c, http.StatusOK, RunResponse{Run: run, Batches: batches})
}
