package planner

import (
	"time"

	"coachcal/internal/domain/calendar"
)

// Day is one rendered day column.
type Day struct {
	Date    string
	Weekday time.Weekday
	Today   bool
	Items   []calendar.Item
}

// Days lays out every day of r, including empty ones, with the items that
// fall on it in (position, id) order. Items outside r are ignored.
func Days(r calendar.Range, items []calendar.Item, today string) []Day {
	byDate := make(map[string][]calendar.Item)
	for _, it := range items {
		if r.Contains(it.ScheduledDate) {
			byDate[it.ScheduledDate] = append(byDate[it.ScheduledDate], it)
		}
	}
	dates := r.Days()
	out := make([]Day, 0, len(dates))
	for _, d := range dates {
		t, _ := calendar.ParseDate(d)
		day := byDate[d]
		calendar.SortItems(day)
		out = append(out, Day{Date: d, Weekday: t.Weekday(), Today: d == today, Items: day})
	}
	return out
}

// Measurer reports the rendered height of a day.
type Measurer interface {
	DayHeight(d Day) float64
}

// RowMeasurer assumes a fixed header and a fixed height per item card.
type RowMeasurer struct {
	HeaderPx float64
	ItemPx   float64
	GapPx    float64
}

// DefaultRowMeasurer matches the HTML board's card sizes.
var DefaultRowMeasurer = RowMeasurer{HeaderPx: 48, ItemPx: 72, GapPx: 8}

// DayHeight implements Measurer.
func (m RowMeasurer) DayHeight(d Day) float64 {
	return m.HeaderPx + float64(len(d.Items))*(m.ItemPx+m.GapPx)
}

// ContentHeight sums the height of every day.
func ContentHeight(m Measurer, days []Day) float64 {
	var h float64
	for _, d := range days {
		h += m.DayHeight(d)
	}
	return h
}

// DayTop returns the offset of date's container from the top of the list.
func DayTop(m Measurer, days []Day, date string) (float64, bool) {
	var top float64
	for _, d := range days {
		if d.Date == date {
			return top, true
		}
		top += m.DayHeight(d)
	}
	return 0, false
}
