package attendance

import (
	"sort"
	"time"

	"github.com/attendify/attendify/internal/domain/shared"
)

// Summary is the derived attendance state of one course.
// It is recomputed on every read and never stored.
type Summary struct {
	Course               Course `json:"course"`
	AttendedCount        int    `json:"attended_count"`
	TotalSessions        int    `json:"total_sessions"`
	AttendancePercentage int    `json:"attendance_percentage"`
	IsBelowThreshold     bool   `json:"is_below_threshold"`
}

// NeedsWarning reports whether a below-threshold warning applies.
// Courses with no past sessions never warn.
func (s Summary) NeedsWarning() bool {
	return s.TotalSessions > 0 && s.AttendancePercentage < s.Course.RequiredThreshold
}

// Summarize computes the summary of course from sessions as of now.
//
// Sessions of other courses are ignored, as are sessions after now.
// With no qualifying sessions the percentage is 0.
func Summarize(course Course, sessions []Session, now time.Time) Summary {
	var attended, total int
	for _, s := range sessions {
		if s.CourseID != course.ID || !s.IsPast(now) {
			continue
		}
		total++
		if s.Attended {
			attended++
		}
	}

	pct := shared.RatioPercentage(attended, total).Int()
	return Summary{
		Course:               course,
		AttendedCount:        attended,
		TotalSessions:        total,
		AttendancePercentage: pct,
		IsBelowThreshold:     pct < course.RequiredThreshold,
	}
}

// SortSummaries orders summaries by course code ascending.
func SortSummaries(summaries []Summary) {
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].Course.Code < summaries[j].Course.Code
	})
}

// SortSessions orders sessions by time ascending.
func SortSessions(sessions []Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].DateTimeMillis < sessions[j].DateTimeMillis
	})
}
