package util

import (
	"fmt"
	"time"
)

const ClockLayout = "15:04:05"

func AddTimeToDate(date time.Time, sourceTime time.Time) time.Time {
	newDateTime := time.Date(date.Year(), date.Month(), date.Day(), sourceTime.Hour(), sourceTime.Minute(), sourceTime.Second(), sourceTime.Nanosecond(), date.Location())

	return newDateTime
}

// AddClockToDate anchors a HH:MM:SS clock string on the calendar day of date
func AddClockToDate(date time.Time, clock string) (time.Time, error) {
	clockTime, err := time.Parse(ClockLayout, clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid clock time %q: %w", clock, err)
	}

	return AddTimeToDate(date, clockTime), nil
}

func FormatClock(t time.Time) string {
	return t.Format(ClockLayout)
}

func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// MinutesBetween returns b - a in fractional minutes
func MinutesBetween(a time.Time, b time.Time) float64 {
	return b.Sub(a).Minutes()
}
