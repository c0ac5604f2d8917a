// Package timeperiod derives the fixed daily time-period buckets and
// day-of-week labels used to index speed records.
package timeperiod

import "time"

// Period is one of the seven fixed daily buckets.
type Period struct {
	// ID is the upstream numeric period identifier (1..7)
	ID int
	// Name is the stored label
	Name string
	// StartHour and EndHour bound the bucket, inclusive
	StartHour int
	EndHour   int
}

// The seven buckets partition the 24 hours of a day exactly.
var periods = [7]Period{
	{ID: 1, Name: "Overnight", StartHour: 0, EndHour: 3},
	{ID: 2, Name: "Early Morning", StartHour: 4, EndHour: 6},
	{ID: 3, Name: "AM Peak", StartHour: 7, EndHour: 9},
	{ID: 4, Name: "Midday", StartHour: 10, EndHour: 12},
	{ID: 5, Name: "Early Afternoon", StartHour: 13, EndHour: 15},
	{ID: 6, Name: "PM Peak", StartHour: 16, EndHour: 18},
	{ID: 7, Name: "Evening", StartHour: 19, EndHour: 23},
}

// All returns the seven periods in daily order.
func All() []Period {
	out := make([]Period, len(periods))
	copy(out, periods[:])
	return out
}

// FromHour returns the period containing the given hour of day.
// Every hour 0..23 falls in exactly one bucket; out-of-range hours
// return false.
func FromHour(hour int) (Period, bool) {
	if hour < 0 || hour > 23 {
		return Period{}, false
	}
	for _, p := range periods {
		if hour >= p.StartHour && hour <= p.EndHour {
			return p, true
		}
	}
	return Period{}, false
}

// FromTime returns the period containing the timestamp's hour.
func FromTime(t time.Time) Period {
	p, _ := FromHour(t.Hour())
	return p
}

// ByID returns the period with the given upstream identifier (1..7).
func ByID(id int) (Period, bool) {
	if id < 1 || id > 7 {
		return Period{}, false
	}
	return periods[id-1], true
}

// ByName returns the period with the given label.
func ByName(name string) (Period, bool) {
	for _, p := range periods {
		if p.Name == name {
			return p, true
		}
	}
	return Period{}, false
}

// DayOfWeek returns the stored day-of-week label for a timestamp.
func DayOfWeek(t time.Time) string {
	return t.Weekday().String()
}
