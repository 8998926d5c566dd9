package calendar

import (
	"errors"
	"fmt"
	"time"
)

// DateLayout is the calendar-day format used for every scheduled date.
const DateLayout = "2006-01-02"

// ErrInvalidRange is returned when a range's end precedes its start.
var ErrInvalidRange = errors.New("range end cannot be before start")

// ParseDate parses a YYYY-MM-DD string into a UTC midnight time.
// PRE: none
// POST: returns the parsed day or an error naming the bad value
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// FormatDate formats t as a calendar-day string, ignoring its clock and zone.
func FormatDate(t time.Time) string {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Format(DateLayout)
}

// AddDays shifts a calendar-day string by n days.
// PRE: date is a valid YYYY-MM-DD string
// POST: returns the shifted day, or an error if date does not parse
func AddDays(date string, n int) (string, error) {
	t, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, n).Format(DateLayout), nil
}

// StartOfWeek returns the first day of the week containing date.
// PRE: date is a valid YYYY-MM-DD string
// POST: result is <= date and falls on weekStart
func StartOfWeek(date string, weekStart time.Weekday) (string, error) {
	t, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	offset := (int(t.Weekday()) - int(weekStart) + 7) % 7
	return t.AddDate(0, 0, -offset).Format(DateLayout), nil
}

// Range is an inclusive interval of calendar days.
// INVARIANT: Start <= End once validated.
type Range struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Validate checks both bounds parse and are ordered.
func (r Range) Validate() error {
	start, err := ParseDate(r.Start)
	if err != nil {
		return err
	}
	end, err := ParseDate(r.End)
	if err != nil {
		return err
	}
	if end.Before(start) {
		return ErrInvalidRange
	}
	return nil
}

// Contains reports whether date lies inside the range.
// YYYY-MM-DD strings order lexically, so no parsing is needed.
func (r Range) Contains(date string) bool {
	return date >= r.Start && date <= r.End
}

// Days lists every day in the range in ascending order.
// PRE: r is valid
// POST: len(result) == number of days in r; empty for an invalid range
func (r Range) Days() []string {
	start, err := ParseDate(r.Start)
	if err != nil {
		return nil
	}
	end, err := ParseDate(r.End)
	if err != nil || end.Before(start) {
		return nil
	}
	var days []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format(DateLayout))
	}
	return days
}

// Len returns the number of days in the range.
func (r Range) Len() int {
	return len(r.Days())
}

// Union returns the smallest range covering both r and o.
func (r Range) Union(o Range) Range {
	out := r
	if o.Start < out.Start {
		out.Start = o.Start
	}
	if o.End > out.End {
		out.End = o.End
	}
	return out
}

// String renders the range as "start..end".
func (r Range) String() string {
	return r.Start + ".." + r.End
}
