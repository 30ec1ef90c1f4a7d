// Package services – GenerationService
//
// This file implements GenerationService, which turns one prompt into raw idea
// records. Each attempt is an explicit composition of three layers:
//
//  1. Soft quota gate: while the quota tracker has no room, pause and re-check.
//  2. Hard throttle: a token bucket that blocks until a call slot is free.
//  3. Dispatch: one model call, then fence stripping and JSON parsing.
//
// Transport and parse failures are retried with exponential backoff. Context
// cancellation aborts immediately and is never retried.
//
// Observability: Generate is OpenTelemetry-instrumented and every dispatch is
// counted in the ideagen Prometheus collectors.

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/tbourn/go-idea-generator/internal/domain"
	"github.com/tbourn/go-idea-generator/internal/llm"
	"github.com/tbourn/go-idea-generator/internal/observability"
	"github.com/tbourn/go-idea-generator/internal/quota"
)

// Retry and pause defaults.
const (
	DefaultAttempts   = 3
	DefaultBaseDelay  = 2 * time.Second
	DefaultQuotaPause = 5 * time.Second
)

// NewMinuteLimiter returns a blocking throttle admitting perMinute calls per
// 60 seconds with a burst of one.
func NewMinuteLimiter(perMinute int) *rate.Limiter {
	if perMinute < 1 {
		perMinute = 1
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
}

// GenerationService issues prompts to the model under quota and throttle.
// It is driven from a single goroutine, like the quota tracker it owns.
type GenerationService struct {
	Model   llm.Model
	Quota   *quota.Tracker // optional soft gate
	Limiter *rate.Limiter  // optional hard throttle

	QuotaPause time.Duration
	Attempts   int
	BaseDelay  time.Duration

	Logger zerolog.Logger

	// sleep is the ctx-aware pause used by the quota gate; tests replace it.
	sleep func(ctx context.Context, d time.Duration) error
}

// Generate returns the records parsed from the model's reply to prompt.
// After all attempts fail it returns ErrGenerationUnavailable wrapping the
// last cause. If ctx ends first, the context error is returned as is.
func (s *GenerationService) Generate(ctx context.Context, prompt string) ([]domain.RawIdea, error) {
	ctx, span := observability.Tracer("services").Start(ctx, "GenerationService.Generate")
	defer span.End()

	attempts := s.Attempts
	if attempts < 1 {
		attempts = DefaultAttempts
	}
	base := s.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	span.SetAttributes(attribute.Int("generation.max_attempts", attempts))

	n := 0
	op := func() ([]domain.RawIdea, error) {
		n++
		ideas, err := s.attempt(ctx, prompt)
		if err == nil {
			return ideas, nil
		}
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		s.Logger.Warn().Err(err).Int("attempt", n).Int("max_attempts", attempts).Msg("generation attempt failed")
		return nil, err
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     base,
		Multiplier:          2,
		RandomizationFactor: 0,
		MaxInterval:         base << uint(attempts),
	}
	ideas, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			observability.GenerationRetries.Inc()
			s.Logger.Info().Dur("backoff", next).Msg("retrying generation")
		}),
	)
	span.SetAttributes(attribute.Int("generation.attempts", n))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, err
		}
		return nil, fmt.Errorf("%w after %d attempts: %w", ErrGenerationUnavailable, n, err)
	}
	span.SetAttributes(attribute.Int("generation.records", len(ideas)))
	return ideas, nil
}

// attempt runs one gate -> throttle -> dispatch -> parse pass.
func (s *GenerationService) attempt(ctx context.Context, prompt string) ([]domain.RawIdea, error) {
	if err := s.awaitQuota(ctx); err != nil {
		return nil, err
	}
	if s.Limiter != nil {
		if err := s.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	text, err := s.Model.Complete(ctx, prompt)
	if err != nil {
		observability.APICalls.WithLabelValues(observability.OutcomeError).Inc()
		return nil, err
	}
	if s.Quota != nil {
		s.Quota.Record()
		c := s.Quota.Counts()
		observability.SetQuotaUsed(c.Day, c.Minute)
	}

	ideas, err := ParseIdeas(text)
	if err != nil {
		observability.APICalls.WithLabelValues(observability.OutcomeParseError).Inc()
		return nil, err
	}
	observability.APICalls.WithLabelValues(observability.OutcomeOK).Inc()
	return ideas, nil
}

// awaitQuota pauses in fixed steps until the tracker has room.
func (s *GenerationService) awaitQuota(ctx context.Context) error {
	if s.Quota == nil {
		return nil
	}
	pause := s.QuotaPause
	if pause <= 0 {
		pause = DefaultQuotaPause
	}
	sleep := s.sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	for !s.Quota.CanRequest() {
		observability.QuotaWaits.Inc()
		c := s.Quota.Counts()
		s.Logger.Info().Int("day", c.Day).Int("minute", c.Minute).Dur("pause", pause).Msg("quota reached; pausing")
		if err := sleep(ctx, pause); err != nil {
			return err
		}
	}
	return nil
}

// sleepCtx waits for d or until ctx ends, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
