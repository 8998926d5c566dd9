package calendar

import "sort"

// SortItems orders items by (ScheduledDate, Position, ID) in place.
func SortItems(items []Item) {
	sort.SliceStable(items, func(i, j int) bool { return Less(items[i], items[j]) })
}

// DayOrder returns the items scheduled on date, ordered by position.
func DayOrder(items []Item, date string) []Item {
	var day []Item
	for _, it := range items {
		if it.ScheduledDate == date {
			day = append(day, it)
		}
	}
	SortItems(day)
	return day
}

// IndexInDay returns the index of id among the items on date, or -1.
func IndexInDay(items []Item, date, id string) int {
	for i, it := range DayOrder(items, date) {
		if it.ID == id {
			return i
		}
	}
	return -1
}

// Reorder moves one item to targetIndex on targetDate and densely renumbers
// both the source and destination days. items is the full set of the client's
// items on the affected days (other days are ignored).
//
// PRE: moved.ID is present in items; targetDate is a valid date
// POST: returns every item whose ScheduledDate or Position changed, the moved
// item first; targetIndex is clamped to [0, len(destination without moved)]
func Reorder(items []Item, movedID, targetDate string, targetIndex int) []Item {
	var moved Item
	found := false
	for _, it := range items {
		if it.ID == movedID {
			moved = it
			found = true
			break
		}
	}
	if !found {
		return nil
	}
	sourceDate := moved.ScheduledDate

	var dest []Item
	for _, it := range DayOrder(items, targetDate) {
		if it.ID != movedID {
			dest = append(dest, it)
		}
	}
	if targetIndex < 0 {
		targetIndex = 0
	}
	if targetIndex > len(dest) {
		targetIndex = len(dest)
	}
	moved.ScheduledDate = targetDate
	dest = append(dest, Item{})
	copy(dest[targetIndex+1:], dest[targetIndex:])
	dest[targetIndex] = moved

	original := make(map[string]Item, len(items))
	for _, it := range items {
		original[it.ID] = it
	}

	var changed []Item
	record := func(it Item) {
		prev := original[it.ID]
		if prev.ScheduledDate != it.ScheduledDate || prev.Position != it.Position {
			changed = append(changed, it)
		}
	}

	for i := range dest {
		dest[i].Position = i
	}
	record(dest[targetIndex])
	for i, it := range dest {
		if i != targetIndex {
			record(it)
		}
	}

	if sourceDate != targetDate {
		var src []Item
		for _, it := range DayOrder(items, sourceDate) {
			if it.ID != movedID {
				src = append(src, it)
			}
		}
		for i := range src {
			src[i].Position = i
			record(src[i])
		}
	}
	return changed
}

// Renumber assigns dense positions to the items on date, preserving order.
// POST: returns the items whose position changed
func Renumber(items []Item, date string) []Item {
	var changed []Item
	for i, it := range DayOrder(items, date) {
		if it.Position != i {
			it.Position = i
			changed = append(changed, it)
		}
	}
	return changed
}
