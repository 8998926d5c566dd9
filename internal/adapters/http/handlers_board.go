package web

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/url"
	"strings"

	"coachcal/internal/application/orchestrators"
	"coachcal/internal/application/planner"
	"coachcal/internal/application/projections"
	"coachcal/internal/domain/calendar"
)

// boardLoader feeds a planner window straight from the item store.
type boardLoader struct {
	clientID string
	items    []calendar.Item
}

// Load implements planner.Loader.
func (l *boardLoader) Load(ctx context.Context, r calendar.Range) error {
	items, err := projections.QueryListItems(ctx, calendar.Query{ClientID: l.clientID, Range: r}, listDeps())
	if err != nil {
		return err
	}
	l.items = items
	return nil
}

// Retain implements planner.Loader. A page load never holds items outside
// the range it just loaded.
func (l *boardLoader) Retain(calendar.Range) {}

type boardCard struct {
	ID     string
	Type   string
	Title  string
	Lines  []string
	Note   string
	Status string
}

type boardDay struct {
	Date    string
	Weekday string
	Today   bool
	Cards   []boardCard
}

type boardPage struct {
	ClientID string
	Range    calendar.Range
	Prev     string
	Next     string
	Days     []boardDay
	Types    []calendar.ItemType
}

// handleBoard handles GET /clients/{clientID}/board?date=YYYY-MM-DD.
// The page shows the padded window around date, today by default.
func handleBoard(w http.ResponseWriter, r *http.Request) {
	clientID := r.PathValue("clientID")
	today := calendar.FormatDate(timeNow())
	date := r.URL.Query().Get("date")
	if date == "" {
		date = today
	}
	if _, err := calendar.ParseDate(date); err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	loader := &boardLoader{clientID: clientID}
	win := planner.NewWindow(loader, boardWindow, timeNow)
	if err := win.JumpTo(r.Context(), date); err != nil {
		if errors.Is(err, projections.ErrInvalidQuery) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		internalError(w, err)
		return
	}

	rng := win.Interval()
	page := boardPage{ClientID: clientID, Range: rng, Types: calendar.ItemTypes}
	page.Prev, _ = calendar.AddDays(date, -rng.Len())
	page.Next, _ = calendar.AddDays(date, rng.Len())
	for _, d := range planner.Days(rng, loader.items, today) {
		bd := boardDay{Date: d.Date, Weekday: d.Weekday.String()[:3], Today: d.Today}
		for _, it := range d.Items {
			bd.Cards = append(bd.Cards, toCard(it))
		}
		page.Days = append(page.Days, bd)
	}
	renderTemplate(w, r, "board.html", page)
}

func toCard(it calendar.Item) boardCard {
	sum := calendar.Summarize(it)
	c := boardCard{ID: it.ID, Type: string(it.Type), Title: sum.Title, Status: string(it.Status)}
	if n, ok := it.Content.(calendar.NoteContent); ok {
		c.Note = n.Text
	} else {
		c.Lines = sum.Lines
	}
	return c
}

// handleBoardAddItem handles the add-item form on the board page and
// appends the new item to the end of its day.
func handleBoardAddItem(w http.ResponseWriter, r *http.Request) {
	clientID := r.PathValue("clientID")
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}
	typ := calendar.ItemType(r.FormValue("type"))
	text := strings.TrimSpace(r.FormValue("text"))

	var content calendar.Content
	switch typ {
	case calendar.TypeNote:
		content = calendar.NoteContent{Text: text}
	case calendar.TypeRest:
		content = calendar.RestContent{Reason: text}
	case calendar.TypeMetric:
		content = calendar.MetricContent{Name: text}
	case calendar.TypeSession:
		content = calendar.SessionContent{}
	default:
		http.Error(w, "unknown item type", http.StatusBadRequest)
		return
	}

	date := r.FormValue("date")
	_, err := orchestrators.ExecuteCreateItem(r.Context(), orchestrators.CreateItemInput{
		ClientID:      clientID,
		Type:          typ,
		Title:         strings.TrimSpace(r.FormValue("title")),
		Content:       content,
		ScheduledDate: date,
		Position:      math.MaxInt,
	}, itemDeps())
	if err != nil {
		writeError(w, err)
		return
	}
	target := "/clients/" + url.PathEscape(clientID) + "/board?" + url.Values{"date": {date}}.Encode()
	http.Redirect(w, r, target, http.StatusSeeOther)
}
