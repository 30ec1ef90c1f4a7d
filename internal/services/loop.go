// Package services – GenerationLoop
//
// This file implements the orchestrator that drives batches end to end:
// prompt -> generate -> filter against the duplicate index -> normalize ->
// append to the corpus, followed by a fixed inter-batch pause.
//
// A failed generation or a failed append stops the run (fail-fast). However
// the loop exits, including by panic or cancellation, a deferred finalization
// step persists any accepted rows that have not reached the store yet. Rows
// already persisted are never written twice.
//
// The optional RunRecorder journals the run and each batch. Journal failures
// are logged and never stop generation.

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-idea-generator/internal/domain"
	"github.com/tbourn/go-idea-generator/internal/observability"
)

// Generator produces raw idea records for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) ([]domain.RawIdea, error)
}

// IdeaIndex is the duplicate index consulted for each candidate.
type IdeaIndex interface {
	IsDuplicate(candidate string, threshold float64) bool
	Accept(candidate string)
	Len() int
}

// Store appends corpus rows.
type Store interface {
	Append(rows []domain.Idea) error
}

// RunRecorder journals a run. Implementations assign ids and timestamps.
type RunRecorder interface {
	StartRun(ctx context.Context, outputPath string) (*domain.Run, error)
	RecordBatch(ctx context.Context, b *domain.Batch) error
	FinishRun(ctx context.Context, run *domain.Run) error
}

// StopReason says why a run ended.
type StopReason string

const (
	StopCompleted        StopReason = "completed"
	StopGenerationFailed StopReason = "generation_failed"
	StopStoreFailed      StopReason = "store_failed"
	StopCanceled         StopReason = "canceled"
	StopPanicked         StopReason = "panicked"
)

// RunSummary reports what a run did.
type RunSummary struct {
	RunID    string
	Batches  int
	Accepted int
	FirstID  int64 // 0 when nothing was accepted
	LastID   int64
	Reason   StopReason
	Err      error
}

// GenerationLoop drives batches. Fields mirror the run configuration; zero
// values fall back to defaults where one exists.
type GenerationLoop struct {
	Generator Generator
	Index     IdeaIndex
	Store     Store
	Recorder  RunRecorder // optional

	BatchSize  int
	MaxBatches int
	Threshold  float64
	BatchDelay time.Duration

	// LastID is the largest id already persisted; new ids start at LastID+1.
	LastID int64
	// OutputPath is journaled with the run.
	OutputPath string

	Logger zerolog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// batchState is the per-run mutable state shared with finalization.
type batchState struct {
	nextID  int64
	pending []PendingIdea
	sum     RunSummary
	run     *domain.Run
}

// Run executes up to MaxBatches batches and returns the run summary. The
// returned error is the stop cause for failed or canceled runs and nil when
// all batches completed.
func (l *GenerationLoop) Run(ctx context.Context) (summary RunSummary, err error) {
	ctx, span := observability.Tracer("services").Start(ctx, "GenerationLoop.Run",
		trace.WithAttributes(
			attribute.Int("loop.max_batches", l.MaxBatches),
			attribute.Int("loop.batch_size", l.BatchSize),
		),
	)
	defer span.End()

	st := &batchState{nextID: l.LastID + 1}
	st.sum.Reason = StopCompleted
	st.sum.RunID = uuid.NewString()
	if l.Recorder != nil {
		run, rerr := l.Recorder.StartRun(ctx, l.OutputPath)
		if rerr != nil {
			l.Logger.Warn().Err(rerr).Msg("journal: start run failed")
		} else {
			st.run = run
			st.sum.RunID = run.ID
		}
	}
	log := l.Logger.With().Str("run_id", st.sum.RunID).Logger()
	observability.CorpusSize.Set(float64(l.Index.Len()))

	defer func() {
		r := recover()
		if r != nil {
			st.sum.Reason = StopPanicked
			st.sum.Err = fmt.Errorf("panic: %v", r)
		}
		l.finalize(ctx, log, st)
		summary, err = st.sum, st.sum.Err
		span.SetAttributes(
			attribute.Int("loop.batches", summary.Batches),
			attribute.Int("loop.accepted", summary.Accepted),
			attribute.String("loop.reason", string(summary.Reason)),
		)
		if r != nil {
			panic(r)
		}
	}()

	maxBatches := l.MaxBatches
	if maxBatches < 1 {
		maxBatches = 1
	}
	for i := 1; i <= maxBatches; i++ {
		log.Info().Int("batch", i).Int("of", maxBatches).Msg("batch started")
		reason, berr := l.runBatch(ctx, log, st, i)
		if berr != nil {
			st.sum.Reason, st.sum.Err = reason, berr
			return
		}
		if i == maxBatches {
			break
		}
		if serr := l.pause(ctx); serr != nil {
			st.sum.Reason, st.sum.Err = StopCanceled, serr
			return
		}
	}
	return
}

// runBatch executes batch i and reports the stop reason on failure.
func (l *GenerationLoop) runBatch(ctx context.Context, log zerolog.Logger, st *batchState, i int) (StopReason, error) {
	started := time.Now()
	st.sum.Batches++
	rec := &domain.Batch{Index: i}
	if st.run != nil {
		rec.RunID = st.run.ID
	}
	defer l.recordBatch(ctx, log, rec, started)

	raw, err := l.Generator.Generate(ctx, BuildPrompt(l.BatchSize))
	if err != nil {
		rec.Status, rec.Error = domain.BatchFailed, err.Error()
		if ctx.Err() != nil {
			log.Warn().Err(err).Int("batch", i).Msg("batch canceled")
			return StopCanceled, err
		}
		log.Error().Err(err).Int("batch", i).Msg("generation failed; stopping run")
		return StopGenerationFailed, err
	}
	rec.Received = len(raw)

	var accepted []PendingIdea
	for _, r := range raw {
		idea := strings.TrimSpace(r.Idea)
		if idea == "" {
			rec.Empty++
			observability.IdeasRejected.WithLabelValues(observability.ReasonEmpty).Inc()
			continue
		}
		if l.Index.IsDuplicate(idea, l.Threshold) {
			rec.Duplicates++
			observability.IdeasRejected.WithLabelValues(observability.ReasonDuplicate).Inc()
			continue
		}
		// Buffer before Accept so an idea in the index is always flushable.
		p := PendingIdea{ID: st.nextID, Idea: idea, Hours: string(r.ManualDevHours)}
		st.nextID++
		st.pending = append(st.pending, p)
		accepted = append(accepted, p)
		l.Index.Accept(idea)
		observability.IdeasAccepted.Inc()
	}
	rec.Accepted = len(accepted)
	observability.CorpusSize.Set(float64(l.Index.Len()))

	if len(accepted) == 0 {
		rec.Status = domain.BatchSucceeded
		log.Info().Int("batch", i).Int("received", rec.Received).Msg("no new ideas in batch")
		return "", nil
	}

	if err := l.Store.Append(Normalize(accepted)); err != nil {
		rec.Status, rec.Error = domain.BatchFailed, err.Error()
		log.Error().Err(err).Int("batch", i).Int("pending", len(st.pending)).Msg("append failed; stopping run")
		return StopStoreFailed, err
	}
	l.markPersisted(st, accepted)
	st.pending = st.pending[:0]
	rec.Status = domain.BatchSucceeded

	log.Info().
		Int("batch", i).
		Int("received", rec.Received).
		Int("accepted", rec.Accepted).
		Int("duplicates", rec.Duplicates).
		Int64("last_id", st.sum.LastID).
		Msg("batch saved")
	return "", nil
}

// finalize flushes rows accepted but not yet persisted, then closes the journal.
func (l *GenerationLoop) finalize(ctx context.Context, log zerolog.Logger, st *batchState) {
	if n := len(st.pending); n > 0 {
		rows := append([]PendingIdea(nil), st.pending...)
		if err := l.Store.Append(Normalize(rows)); err != nil {
			log.Error().Err(err).Int("rows", n).Msg("finalize: flush failed; accepted rows were not persisted")
			st.sum.Err = errors.Join(st.sum.Err, fmt.Errorf("finalize: %w", err))
		} else {
			l.markPersisted(st, rows)
			st.pending = nil
			log.Info().Int("rows", n).Msg("finalize: flushed pending rows")
		}
	}

	if l.Recorder != nil && st.run != nil {
		jctx := context.WithoutCancel(ctx)
		now := time.Now().UTC()
		st.run.FinishedAt = &now
		st.run.Status = runStatus(st.sum.Reason)
		st.run.Batches = st.sum.Batches
		st.run.Accepted = st.sum.Accepted
		st.run.FirstID, st.run.LastID = st.sum.FirstID, st.sum.LastID
		if st.sum.Err != nil {
			st.run.Error = st.sum.Err.Error()
		}
		if err := l.Recorder.FinishRun(jctx, st.run); err != nil {
			log.Warn().Err(err).Msg("journal: finish run failed")
		}
	}

	log.Info().
		Str("reason", string(st.sum.Reason)).
		Int("batches", st.sum.Batches).
		Int("accepted", st.sum.Accepted).
		Int("corpus_size", l.Index.Len()).
		Msg("run finished")
}

func (l *GenerationLoop) markPersisted(st *batchState, rows []PendingIdea) {
	if len(rows) == 0 {
		return
	}
	if st.sum.FirstID == 0 {
		st.sum.FirstID = rows[0].ID
	}
	st.sum.LastID = rows[len(rows)-1].ID
	st.sum.Accepted += len(rows)
}

func (l *GenerationLoop) recordBatch(ctx context.Context, log zerolog.Logger, rec *domain.Batch, started time.Time) {
	rec.DurationMS = time.Since(started).Milliseconds()
	if rec.Status == "" {
		rec.Status, rec.Error = domain.BatchFailed, "batch aborted"
	}
	observability.Batches.WithLabelValues(rec.Status).Inc()
	if l.Recorder == nil || rec.RunID == "" {
		return
	}
	if err := l.Recorder.RecordBatch(context.WithoutCancel(ctx), rec); err != nil {
		log.Warn().Err(err).Int("batch", rec.Index).Msg("journal: record batch failed")
	}
}

func (l *GenerationLoop) pause(ctx context.Context) error {
	sleep := l.sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	return sleep(ctx, l.BatchDelay)
}

func runStatus(r StopReason) string {
	switch r {
	case StopCompleted:
		return domain.RunCompleted
	case StopCanceled:
		return domain.RunCanceled
	default:
		return domain.RunFailed
	}
}
