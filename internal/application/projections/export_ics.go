package projections

import (
	"context"
	"io"
	"strings"

	ics "github.com/arran4/golang-ical"

	"coachcal/internal/domain/calendar"
)

// icsProductID identifies exported calendars.
const icsProductID = "-//coachcal//client calendar//EN"

// ExportICSQuery carries input for the ICS export projection.
type ExportICSQuery struct {
	Query calendar.Query
	// Name is shown by calendar apps as the subscription title.
	Name string
}

// QueryExportICS writes a client's items in a range as an iCalendar
// document of all-day events, one per item.
// PRE: query is valid per QueryListItems
// POST: w holds a complete VCALENDAR; event UIDs are the item ids
func QueryExportICS(ctx context.Context, query ExportICSQuery, deps ListItemsDeps, w io.Writer) error {
	items, err := QueryListItems(ctx, query.Query, deps)
	if err != nil {
		return err
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(icsProductID)
	if query.Name != "" {
		cal.SetName(query.Name)
		cal.SetXWRCalName(query.Name)
	}

	for _, it := range items {
		day, err := calendar.ParseDate(it.ScheduledDate)
		if err != nil {
			return err
		}
		sum := calendar.Summarize(it)

		ev := cal.AddEvent(it.ID)
		ev.SetCreatedTime(it.CreatedAt)
		ev.SetDtStampTime(it.UpdatedAt)
		ev.SetModifiedAt(it.UpdatedAt)
		ev.SetAllDayStartAt(day)
		ev.SetAllDayEndAt(day.AddDate(0, 0, 1))
		ev.SetSummary(sum.Title)
		if len(sum.Lines) > 0 {
			ev.SetDescription(strings.Join(sum.Lines, "\n"))
		}
		ev.SetStatus(eventStatus(it.Status))
	}
	return cal.SerializeTo(w)
}

// eventStatus maps item status onto the statuses VEVENT allows.
func eventStatus(s calendar.Status) ics.ObjectStatus {
	if s == calendar.StatusCancelled {
		return ics.ObjectStatusCancelled
	}
	return ics.ObjectStatusConfirmed
}
