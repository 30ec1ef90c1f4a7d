// Package quota tracks call counts against a per-day and a per-minute ceiling.
//
// The day window resets when the local calendar date changes. The minute
// window is rolling: it resets once 60 seconds have elapsed since it opened,
// not on calendar-minute boundaries.
//
// A Tracker is advisory. Callers ask CanRequest before dispatching and call
// Record only after a dispatch actually returned. It is not safe for
// concurrent use; the generation loop drives it from a single goroutine.
package quota

import "time"

// Default ceilings.
const (
	DefaultDayLimit    = 1499
	DefaultMinuteLimit = 15
)

const minuteWindow = 60 * time.Second

// Counts is a snapshot of the current window counters.
type Counts struct {
	Day    int
	Minute int
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the time source. Tests use it to step across windows.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// Tracker counts calls in a calendar-day window and a rolling 60s window.
type Tracker struct {
	dayLimit    int
	minuteLimit int

	dayCount    int
	minuteCount int
	dayStart    time.Time
	minuteStart time.Time

	now func() time.Time
}

// New returns a Tracker with the given ceilings. Non-positive limits fall back
// to the defaults.
func New(dayLimit, minuteLimit int, opts ...Option) *Tracker {
	if dayLimit <= 0 {
		dayLimit = DefaultDayLimit
	}
	if minuteLimit <= 0 {
		minuteLimit = DefaultMinuteLimit
	}
	t := &Tracker{dayLimit: dayLimit, minuteLimit: minuteLimit, now: time.Now}
	for _, o := range opts {
		o(t)
	}
	now := t.now()
	t.dayStart = now
	t.minuteStart = now
	return t
}

// CanRequest reports whether both windows still have room after applying any
// due resets.
func (t *Tracker) CanRequest() bool {
	t.roll()
	return t.dayCount < t.dayLimit && t.minuteCount < t.minuteLimit
}

// Record counts one dispatched call in both windows.
func (t *Tracker) Record() {
	t.roll()
	t.dayCount++
	t.minuteCount++
}

// Counts returns the current counters after applying any due resets.
func (t *Tracker) Counts() Counts {
	t.roll()
	return Counts{Day: t.dayCount, Minute: t.minuteCount}
}

// Limits returns the configured day and minute ceilings.
func (t *Tracker) Limits() (day, minute int) { return t.dayLimit, t.minuteLimit }

func (t *Tracker) roll() {
	now := t.now()
	if !sameDate(now, t.dayStart) {
		t.dayCount = 0
		t.dayStart = now
	}
	if now.Sub(t.minuteStart) >= minuteWindow {
		t.minuteCount = 0
		t.minuteStart = now
	}
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Local().Date()
	by, bm, bd := b.Local().Date()
	return ay == by && am == bm && ad == bd
}
