// Package deadline computes statutory response deadlines in business days.
//
// A business day is Monday through Friday. Public holidays are not
// considered; a holiday calendar would be a policy input to Policy, not a
// change to AddBusinessDays.
package deadline

import "time"

// AddBusinessDays advances start one calendar day at a time and counts only
// weekdays toward n. Weekend days are skipped entirely, so for n >= 1 the
// result is never a Saturday or Sunday. n <= 0 returns start unchanged.
// The time of day and location of start are preserved.
func AddBusinessDays(start time.Time, n int) time.Time {
	d := start
	for n > 0 {
		d = d.AddDate(0, 0, 1)
		if IsBusinessDay(d) {
			n--
		}
	}
	return d
}

// IsBusinessDay reports whether t falls on Monday through Friday.
func IsBusinessDay(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	default:
		return true
	}
}

// BusinessDaysBetween counts business days after from up to and including
// to. It returns 0 when to is not after from.
func BusinessDaysBetween(from, to time.Time) int {
	n := 0
	for d := from.AddDate(0, 0, 1); !d.After(to); d = d.AddDate(0, 0, 1) {
		if IsBusinessDay(d) {
			n++
		}
	}
	return n
}

// Policy is a response window measured in business days.
type Policy struct {
	ResponseDays int
}

// Due returns the response deadline for a request received at received.
func (p Policy) Due(received time.Time) time.Time {
	return AddBusinessDays(received, p.ResponseDays)
}

// Remaining returns the business days left before the deadline for a
// request received at received, as seen at now. Overdue requests report a
// negative count.
func (p Policy) Remaining(received, now time.Time) int {
	due := p.Due(received)
	if now.After(due) {
		return -BusinessDaysBetween(due, now)
	}
	return BusinessDaysBetween(now, due)
}
