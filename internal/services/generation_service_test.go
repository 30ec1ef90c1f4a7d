package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tbourn/go-idea-generator/internal/observability"
	"github.com/tbourn/go-idea-generator/internal/quota"
)

// ---------- test helpers ----------

type reply struct {
	text string
	err  error
}

// scriptedModel returns replies in order and repeats the last one.
type scriptedModel struct {
	replies []reply
	calls   int
	onCall  func(n int)
}

func (m *scriptedModel) Complete(ctx context.Context, prompt string) (string, error) {
	m.calls++
	if m.onCall != nil {
		m.onCall(m.calls)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	r := m.replies[len(m.replies)-1]
	if m.calls <= len(m.replies) {
		r = m.replies[m.calls-1]
	}
	return r.text, r.err
}

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time { return c.t }

const okReply = "```json\n[{\"idea\":\"Build a todo app\",\"manual_dev_hours\":\"4 hr\"}]\n```"

func fastService(m *scriptedModel) *GenerationService {
	return &GenerationService{Model: m, Attempts: 3, BaseDelay: time.Millisecond}
}

// ---------- Generate ----------

func TestGenerate_SuccessFirstAttempt(t *testing.T) {
	m := &scriptedModel{replies: []reply{{text: okReply}}}
	baseOK := testutil.ToFloat64(observability.APICalls.WithLabelValues(observability.OutcomeOK))

	ideas, err := fastService(m).Generate(context.Background(), "p")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(ideas) != 1 || ideas[0].Idea != "Build a todo app" || ideas[0].ManualDevHours != "4 hr" {
		t.Fatalf("unexpected ideas: %+v", ideas)
	}
	if m.calls != 1 {
		t.Fatalf("calls = %d; want 1", m.calls)
	}
	if got := testutil.ToFloat64(observability.APICalls.WithLabelValues(observability.OutcomeOK)); got != baseOK+1 {
		t.Fatalf("ok counter = %v; want %v", got, baseOK+1)
	}
}

func TestGenerate_OddHoursValueDoesNotFailBatch(t *testing.T) {
	m := &scriptedModel{replies: []reply{{text: `[{"idea":"x","manual_dev_hours":true},{"idea":"y","manual_dev_hours":{"min":2}}]`}}}

	ideas, err := fastService(m).Generate(context.Background(), "p")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if m.calls != 1 || len(ideas) != 2 {
		t.Fatalf("calls=%d ideas=%+v; want one call and two ideas", m.calls, ideas)
	}
	if ParseHours(string(ideas[1].ManualDevHours)) != 2 {
		t.Fatalf("hours for y = %q", ideas[1].ManualDevHours)
	}
}

func TestGenerate_RetriesTransportAndParseFailures(t *testing.T) {
	m := &scriptedModel{replies: []reply{
		{err: errors.New("connection reset")},
		{text: "this is not json"},
		{text: okReply},
	}}
	baseRetries := testutil.ToFloat64(observability.GenerationRetries)

	ideas, err := fastService(m).Generate(context.Background(), "p")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(ideas) != 1 || m.calls != 3 {
		t.Fatalf("ideas=%d calls=%d; want 1 and 3", len(ideas), m.calls)
	}
	if got := testutil.ToFloat64(observability.GenerationRetries); got != baseRetries+2 {
		t.Fatalf("retries counter = %v; want %v", got, baseRetries+2)
	}
}

func TestGenerate_ExhaustionIsGenerationUnavailable(t *testing.T) {
	cause := errors.New("upstream 503")
	m := &scriptedModel{replies: []reply{{err: cause}}}

	_, err := fastService(m).Generate(context.Background(), "p")
	if !errors.Is(err, ErrGenerationUnavailable) {
		t.Fatalf("expected ErrGenerationUnavailable, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected last cause to be wrapped, got %v", err)
	}
	if m.calls != 3 {
		t.Fatalf("calls = %d; want exactly 3 attempts", m.calls)
	}
}

func TestGenerate_BackoffDoubles(t *testing.T) {
	m := &scriptedModel{replies: []reply{{err: errors.New("boom")}}}
	s := &GenerationService{Model: m, Attempts: 3, BaseDelay: 20 * time.Millisecond}

	start := time.Now()
	_, err := s.Generate(context.Background(), "p")
	elapsed := time.Since(start)
	if !errors.Is(err, ErrGenerationUnavailable) {
		t.Fatalf("expected ErrGenerationUnavailable, got %v", err)
	}
	// 20ms + 40ms between the three attempts.
	if elapsed < 60*time.Millisecond {
		t.Fatalf("elapsed %v; want at least 60ms of backoff", elapsed)
	}
}

func TestGenerate_CanceledContextIsNotRetried(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := &scriptedModel{
		replies: []reply{{err: errors.New("transport")}},
		onCall:  func(int) { cancel() },
	}

	_, err := fastService(m).Generate(ctx, "p")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, ErrGenerationUnavailable) {
		t.Fatalf("cancellation must not be reported as generation unavailable")
	}
	if m.calls != 1 {
		t.Fatalf("calls = %d; want 1", m.calls)
	}
}

func TestGenerate_RecordsQuotaOnlyAfterDispatchReturns(t *testing.T) {
	clk := &testClock{t: time.Date(2025, 1, 1, 9, 0, 0, 0, time.Local)}
	tr := quota.New(100, 100, quota.WithClock(clk.now))

	failing := &scriptedModel{replies: []reply{{err: errors.New("dial tcp: refused")}}}
	s := fastService(failing)
	s.Quota = tr
	_, _ = s.Generate(context.Background(), "p")
	if c := tr.Counts(); c.Day != 0 {
		t.Fatalf("failed dispatches must not be recorded, got %+v", c)
	}

	// Parse failures still count: the dispatch itself returned.
	garbled := &scriptedModel{replies: []reply{{text: "nope"}, {text: okReply}}}
	s.Model = garbled
	if _, err := s.Generate(context.Background(), "p"); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if c := tr.Counts(); c.Day != 2 || c.Minute != 2 {
		t.Fatalf("counts = %+v; want day=2 minute=2", c)
	}
}

func TestGenerate_PausesWhileQuotaExhausted(t *testing.T) {
	clk := &testClock{t: time.Date(2025, 1, 1, 9, 0, 0, 0, time.Local)}
	tr := quota.New(100, 1, quota.WithClock(clk.now))
	tr.Record() // minute window already full

	m := &scriptedModel{replies: []reply{{text: okReply}}}
	s := fastService(m)
	s.Quota = tr
	s.QuotaPause = 5 * time.Second

	var pauses []time.Duration
	s.sleep = func(ctx context.Context, d time.Duration) error {
		pauses = append(pauses, d)
		clk.t = clk.t.Add(d * 6) // 30s per pause: two pauses roll the window
		return nil
	}
	baseWaits := testutil.ToFloat64(observability.QuotaWaits)

	if _, err := s.Generate(context.Background(), "p"); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(pauses) != 2 || pauses[0] != 5*time.Second {
		t.Fatalf("pauses = %v; want two 5s pauses", pauses)
	}
	if got := testutil.ToFloat64(observability.QuotaWaits); got != baseWaits+2 {
		t.Fatalf("quota waits = %v; want %v", got, baseWaits+2)
	}
	if m.calls != 1 {
		t.Fatalf("model should be called once after the window rolled, got %d", m.calls)
	}
}

func TestGenerate_QuotaPauseHonorsCancellation(t *testing.T) {
	clk := &testClock{t: time.Date(2025, 1, 1, 9, 0, 0, 0, time.Local)}
	tr := quota.New(1, 1, quota.WithClock(clk.now))
	tr.Record()

	m := &scriptedModel{replies: []reply{{text: okReply}}}
	s := fastService(m)
	s.Quota = tr
	s.QuotaPause = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.Generate(ctx, "p")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if m.calls != 0 {
		t.Fatalf("model must not be called while quota is exhausted")
	}
}

func TestNewMinuteLimiter(t *testing.T) {
	l := NewMinuteLimiter(15)
	if l.Burst() != 1 {
		t.Fatalf("burst = %d; want 1", l.Burst())
	}
	if got, want := float64(l.Limit()), 15.0/60.0; got < want-1e-9 || got > want+1e-9 {
		t.Fatalf("limit = %v/s; want %v/s", got, want)
	}
	if NewMinuteLimiter(0).Burst() != 1 {
		t.Fatalf("non-positive rate should clamp")
	}
}

func TestGenerate_LimiterBlocksSecondCall(t *testing.T) {
	m := &scriptedModel{replies: []reply{{text: okReply}}}
	s := fastService(m)
	s.Limiter = NewMinuteLimiter(1) // one slot per minute

	if _, err := s.Generate(context.Background(), "p"); err != nil {
		t.Fatalf("first Generate: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := s.Generate(ctx, "p"); err == nil {
		t.Fatalf("second call inside the minute must not get a slot before the deadline")
	}
	if m.calls != 1 {
		t.Fatalf("model calls = %d; want 1", m.calls)
	}
}
