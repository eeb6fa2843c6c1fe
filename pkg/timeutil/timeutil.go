// Package timeutil provides calendar-day helpers bound to a configured
// time zone. Attendance days are local days of the student's zone, so
// every helper takes the *time.Location explicitly.
package timeutil

import (
	"time"
)

// DayLength is the fixed window used for day bounds.
const DayLength = 24 * time.Hour

// NoonHour is the canonical hour for sessions added for a whole day.
const NoonHour = 12

// FormatDateTime is the layout used for session times in logs.
const FormatDateTime = "2006-01-02 15:04"

// StartOfDay returns local midnight of the day containing t.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// DayBounds returns the inclusive millisecond window of the local day
// containing t: [midnight, midnight + 24h - 1ms].
func DayBounds(t time.Time, loc *time.Location) (startMillis, endMillis int64) {
	start := StartOfDay(t, loc).UnixMilli()
	return start, start + DayLength.Milliseconds() - 1
}

// AddDays moves local midnight of t by n calendar days.
func AddDays(t time.Time, n int, loc *time.Location) time.Time {
	return StartOfDay(t, loc).AddDate(0, 0, n)
}

// NoonOf returns local noon of the day containing t.
func NoonOf(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), NoonHour, 0, 0, 0, loc)
}

// FormatMillis formats epoch milliseconds as a local datetime string.
func FormatMillis(millis int64, loc *time.Location) string {
	return time.UnixMilli(millis).In(loc).Format(FormatDateTime)
}
