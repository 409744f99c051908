package entities

import (
	"fmt"
	"time"
)

// DayLayout is the key format of a logical day
const DayLayout = "2006-01-02"

// DayStartHour is the local hour at which a logical day begins
const DayStartHour = 4

// LogicalDay returns the day key for t. Activity before 04:00 local time
// belongs to the previous day.
func LogicalDay(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Add(-DayStartHour * time.Hour).Format(DayLayout)
}

// DayBounds returns the [start, end) instants of a logical day
func DayBounds(day string, loc *time.Location) (time.Time, time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	d, err := time.ParseInLocation(DayLayout, day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDay, day)
	}
	start := time.Date(d.Year(), d.Month(), d.Day(), DayStartHour, 0, 0, 0, loc)
	end := time.Date(d.Year(), d.Month(), d.Day()+1, DayStartHour, 0, 0, 0, loc)
	return start.UTC(), end.UTC(), nil
}
