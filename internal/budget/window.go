package budget

import (
	"time"

	"github.com/centsible/centsible/internal/database/repository"
	"github.com/centsible/centsible/internal/schedule"
)

// Window is the half-open period interval [Start, End). A transaction
// timestamped exactly at End belongs to the next window, never to two.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// CurrentWindow returns the unique period-aligned window containing now.
// The anchor may sit far in the past or the future relative to now; the walk
// steps one period at a time in either direction, keeping monthly and yearly
// windows on the anchor's clamped day-of-month cadence.
func CurrentWindow(anchor time.Time, p schedule.Period, now time.Time) Window {
	if !p.Valid() || anchor.IsZero() {
		return Window{}
	}
	start := anchor
	for now.Before(start) {
		start = schedule.PrevDue(p, start, anchor)
	}
	for {
		end := schedule.NextDue(p, start, anchor)
		if !end.After(start) {
			return Window{}
		}
		if end.After(now) {
			return Window{Start: start, End: end}
		}
		start = end
	}
}

// PreviousWindow returns the window immediately before w.
func PreviousWindow(w Window, anchor time.Time, p schedule.Period) Window {
	if w.Start.IsZero() {
		return Window{}
	}
	return Window{Start: schedule.PrevDue(p, w.Start, anchor), End: w.Start}
}

// Rollover computes the unused budget carried forward out of a period:
// max(0, target - previousPeriodSpent) when the budget opts in, else 0. The
// caller decides what to do with it; the core never folds carry-forward into
// the next period's target.
func Rollover(b repository.Budget, previousSpentCents int64) int64 {
	if !b.Rollover {
		return 0
	}
	carry := b.TargetCents - previousSpentCents
	if carry < 0 {
		return 0
	}
	return carry
}
