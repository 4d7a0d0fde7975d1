package sportsgate

import "time"

const dayLayout = "2006-01-02"

// dayKey returns the calendar date of t in loc as YYYY-MM-DD.
func dayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(dayLayout)
}

// startOfDay returns midnight of t's calendar day in loc.
func startOfDay(t time.Time, loc *time.Location) time.Time {
	tt := t.In(loc)
	return time.Date(tt.Year(), tt.Month(), tt.Day(), 0, 0, 0, 0, loc)
}

// nextMidnight returns the instant the budget ledger rolls over after t.
// Uses calendar arithmetic so DST days are 23 or 25 hours long.
func nextMidnight(t time.Time, loc *time.Location) time.Time {
	s := startOfDay(t, loc)
	return time.Date(s.Year(), s.Month(), s.Day()+1, 0, 0, 0, 0, loc)
}

// SeasonFor returns the football season that contains t.
// Seasons start in August and are named after their starting year,
// so January-July belong to the previous year's season.
func SeasonFor(t time.Time) int {
	if t.Month() >= time.August {
		return t.Year()
	}
	return t.Year() - 1
}
