package utils

import "time"

func Now() time.Time {
	return time.Now().UTC()
}

func StartOfDayUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
