package scheduler

import (
	"fmt"
	"time"
)

// IntervalSchedule fires every Interval after the previous run.
type IntervalSchedule struct {
	Interval time.Duration
}

func NewIntervalSchedule(interval time.Duration) *IntervalSchedule {
	return &IntervalSchedule{Interval: interval}
}

func (s *IntervalSchedule) Next(t time.Time) time.Time { return t.Add(s.Interval) }

func (s *IntervalSchedule) String() string { return "@every " + s.Interval.String() }

// DailySchedule fires once a day at a wall-clock time in Location.
type DailySchedule struct {
	Hour, Minute, Second int
	Location             *time.Location
}

// NewDailySchedule creates a DailySchedule in loc (UTC when nil).
func NewDailySchedule(hour, minute, second int, loc *time.Location) *DailySchedule {
	if loc == nil {
		loc = time.UTC
	}
	return &DailySchedule{Hour: hour, Minute: minute, Second: second, Location: loc}
}

func (s *DailySchedule) Next(t time.Time) time.Time {
	local := t.In(s.Location)
	for day := 0; ; day++ {
		candidate := time.Date(local.Year(), local.Month(), local.Day()+day, s.Hour, s.Minute, s.Second, 0, s.Location)
		if candidate.After(local) {
			return candidate
		}
	}
}

func (s *DailySchedule) String() string {
	return fmt.Sprintf("@daily %02d:%02d:%02d %s", s.Hour, s.Minute, s.Second, s.Location)
}
