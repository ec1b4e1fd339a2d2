package schedule

import (
	"fmt"
	"strings"
	"time"
)

// Period is the repetition unit for recurring definitions and budget windows.
type Period string

const (
	Daily   Period = "daily"
	Weekly  Period = "weekly"
	Monthly Period = "monthly"
	Yearly  Period = "yearly"
)

// ParsePeriod validates a stored period string.
func ParsePeriod(s string) (Period, error) {
	p := Period(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("unknown period %q", s)
	}
	return p, nil
}

// Valid reports whether p is a supported period unit.
func (p Period) Valid() bool {
	switch p {
	case Daily, Weekly, Monthly, Yearly:
		return true
	}
	return false
}

// NextDue advances from by exactly one period. Monthly and yearly advances are
// calendar-aware: the result is anchored to the anchor date's day-of-month (and
// month, for yearly) and clamped to the last valid day of the target month, so a
// monthly advance from Jan 31 lands on Feb 28/29 and recovers to the 31st in
// months that have one. Time of day is preserved from `from`.
//
// An invalid period returns the zero time, which no caller ever treats as due.
func NextDue(p Period, from, anchor time.Time) time.Time {
	switch p {
	case Daily:
		return from.AddDate(0, 0, 1)
	case Weekly:
		return from.AddDate(0, 0, 7)
	case Monthly:
		return addMonths(from, 1, anchorDay(anchor, from))
	case Yearly:
		return addYears(from, 1, anchor)
	}
	return time.Time{}
}

// PrevDue steps from back by exactly one period, the calendar-aware inverse of
// NextDue. Used when a window walk has to reach back before the anchor.
func PrevDue(p Period, from, anchor time.Time) time.Time {
	switch p {
	case Daily:
		return from.AddDate(0, 0, -1)
	case Weekly:
		return from.AddDate(0, 0, -7)
	case Monthly:
		return addMonths(from, -1, anchorDay(anchor, from))
	case Yearly:
		return addYears(from, -1, anchor)
	}
	return time.Time{}
}

// CatchUpFrom walks forward from start one period at a time while the result is
// still strictly before now, returning the first due date >= now (and always
// >= start). This seeds a definition's due pointer at creation time; it is not
// the incremental single-step advance the catch-up loop uses, which must visit
// every elapsed period.
func CatchUpFrom(p Period, start, now time.Time) time.Time {
	due := start
	for due.Before(now) {
		next := NextDue(p, due, start)
		if !next.After(due) {
			// invalid period, refuse to loop
			return time.Time{}
		}
		due = next
	}
	return due
}

// anchorDay picks the day-of-month the monthly cadence is anchored to.
func anchorDay(anchor, from time.Time) int {
	if anchor.IsZero() {
		return from.Day()
	}
	return anchor.Day()
}

func addMonths(t time.Time, months, day int) time.Time {
	year, month, _ := t.Date()
	h, m, s := t.Clock()
	target := time.Month(int(month) + months)
	if max := daysInMonth(year, target, t.Location()); day > max {
		day = max
	}
	return time.Date(year, target, day, h, m, s, t.Nanosecond(), t.Location())
}

func addYears(t time.Time, years int, anchor time.Time) time.Time {
	month, day := t.Month(), t.Day()
	if !anchor.IsZero() {
		month, day = anchor.Month(), anchor.Day()
	}
	h, m, s := t.Clock()
	year := t.Year() + years
	if max := daysInMonth(year, month, t.Location()); day > max {
		day = max
	}
	return time.Date(year, month, day, h, m, s, t.Nanosecond(), t.Location())
}

// daysInMonth tolerates out-of-range months (time.Date normalizes them).
func daysInMonth(year int, month time.Month, loc *time.Location) int {
	firstOfNext := time.Date(year, month+1, 1, 0, 0, 0, 0, loc)
	return firstOfNext.AddDate(0, 0, -1).Day()
}
