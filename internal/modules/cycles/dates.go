package cycles

import "time"

// DateLayout is the wire/storage format for cycle dates. Cycle math is done
// on whole days in UTC; times of day never matter to statement boundaries.
const DateLayout = "2006-01-02"

// Day truncates a timestamp to midnight UTC.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Date builds a midnight-UTC date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this month.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ClampDay clamps a day-of-month into the month's valid range.
func ClampDay(day, year int, month time.Month) int {
	if day < 1 {
		return 1
	}
	if max := DaysInMonth(year, month); day > max {
		return max
	}
	return day
}

// SameDay reports whether two timestamps fall on the same UTC calendar day.
func SameDay(a, b time.Time) bool {
	return Day(a).Equal(Day(b))
}

// AddMonths shifts a year/month pair without the day-overflow surprises of
// time.Time.AddDate (Mar 31 minus one month must mean February, not March 3).
func AddMonths(year int, month time.Month, delta int) (int, time.Month) {
	t := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, delta, 0)
	return t.Year(), t.Month()
}

// minDay returns the earlier of two dates.
func minDay(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
