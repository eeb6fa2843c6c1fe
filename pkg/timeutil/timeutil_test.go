package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDayBounds(t *testing.T) {
	loc := time.FixedZone("UTC-4", -4*60*60)
	at := time.Date(2025, 3, 10, 15, 30, 0, 0, loc)

	start, end := DayBounds(at, loc)

	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, loc).UnixMilli(), start)
	assert.Equal(t, start+24*60*60*1000-1, end)
	assert.True(t, at.UnixMilli() >= start && at.UnixMilli() <= end)
}

func TestDayBounds_UsesLocalDay(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*60*60)
	// 21:00 UTC is already the next day at UTC+5.
	at := time.Date(2025, 3, 10, 21, 0, 0, 0, time.UTC)

	start, _ := DayBounds(at, loc)

	assert.Equal(t, time.Date(2025, 3, 11, 0, 0, 0, 0, loc).UnixMilli(), start)
}

func TestAddDaysAndNoon(t *testing.T) {
	loc := time.UTC
	at := time.Date(2025, 3, 1, 8, 0, 0, 0, loc)

	yesterday := AddDays(at, -1, loc)
	assert.Equal(t, time.Date(2025, 2, 28, 0, 0, 0, 0, loc), yesterday)
	assert.Equal(t, time.Date(2025, 2, 28, 12, 0, 0, 0, loc), NoonOf(yesterday, loc))
	assert.Equal(t, time.Date(2025, 3, 2, 0, 0, 0, 0, loc), AddDays(at, 1, loc))
}

func TestFormatMillis(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	millis := time.Date(2025, 3, 10, 20, 15, 0, 0, time.UTC).UnixMilli()

	assert.Equal(t, "2025-03-11 01:15", FormatMillis(millis, loc))
	assert.Equal(t, "2025-03-10 20:15", FormatMillis(millis, time.UTC))
}
