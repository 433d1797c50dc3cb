package service

import (
	"time"

	"github.com/stemsi/exstem-attempt/internal/model"
)

// RemainingSeconds derives the time left on an attempt from the stored
// elapsed time. A scheduled exam end caps the result. Never negative.
func RemainingSeconds(exam *model.Exam, attempt *model.Attempt, now time.Time) int {
	remaining := exam.DurationSeconds() - attempt.ElapsedSeconds
	if exam.EndTime != nil {
		untilEnd := int(exam.EndTime.Sub(now) / time.Second)
		if untilEnd < remaining {
			remaining = untilEnd
		}
	}
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ReconcileElapsed returns the elapsed value to store for a client report.
// The report is clamped to the wall-clock time since the attempt started
// (plus skew) and never lowers the stored value.
func ReconcileElapsed(stored, reported int, startedAt, now time.Time, skew time.Duration) int {
	ceiling := int((now.Sub(startedAt) + skew) / time.Second)
	if reported > ceiling {
		reported = ceiling
	}
	if reported < stored {
		return stored
	}
	return reported
}
