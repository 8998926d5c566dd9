package web

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"coachcal/internal/adapters/http/perf"
	"coachcal/internal/adapters/storage"
	"coachcal/internal/adapters/storage/calendaritem"
	"coachcal/internal/application/planner"
	"coachcal/internal/domain/calendar"
)

var testCSRFKey = []byte("0123456789abcdef0123456789abcdef")

func testNow() time.Time { return time.Date(2024, 6, 12, 9, 0, 0, 0, time.UTC) }

// newTestMux wires the full middleware chain over an in-memory database.
func newTestMux(t *testing.T) (http.Handler, *calendaritem.SQLiteStore) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	if err := storage.MigrateDB(db, ":memory:"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store := calendaritem.NewSQLiteStore(db)

	prevNow, prevID, prevRate := timeNow, generateID, RateLimitPerSecond
	t.Cleanup(func() { timeNow, generateID, RateLimitPerSecond = prevNow, prevID, prevRate })
	timeNow = testNow
	n := 0
	generateID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	RateLimitPerSecond = 1000

	h := NewMux("", &Stores{ItemStore: store}, perf.NewCollector(100), Options{
		CSRFKey: testCSRFKey,
		Window:  planner.DefaultWindowConfig(),
	})
	return h, store
}

func doJSON(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeItem(t *testing.T, rec *httptest.ResponseRecorder) calendar.Item {
	t.Helper()
	var it calendar.Item
	if err := json.NewDecoder(rec.Body).Decode(&it); err != nil {
		t.Fatalf("decode item: %v (%s)", err, rec.Body.String())
	}
	return it
}

func listTitles(t *testing.T, h http.Handler, start, end string) []string {
	t.Helper()
	rec := doJSON(t, h, "GET", "/api/clients/c1/items?start="+start+"&end="+end, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp listResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	var out []string
	for _, it := range resp.Items {
		out = append(out, fmt.Sprintf("%s@%s/%d", it.Title, it.ScheduledDate, it.Position))
	}
	return out
}

func noteBody(date, title string, pos int) string {
	return fmt.Sprintf(`{"item_type":"note","title":%q,"content":{"text":"x"},"scheduled_date":%q,"position":%d,"status":"scheduled"}`, title, date, pos)
}

// TestItemsAPI_Lifecycle exercises create, list, move and delete end to end.
func TestItemsAPI_Lifecycle(t *testing.T) {
	h, _ := newTestMux(t)

	rec := doJSON(t, h, "POST", "/api/clients/c1/items", noteBody("2024-06-10", "A", 0))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create A = %d: %s", rec.Code, rec.Body.String())
	}
	a := decodeItem(t, rec)
	if a.ID != "id-1" || a.ClientID != "c1" {
		t.Errorf("created %+v", a)
	}
	if rec := doJSON(t, h, "POST", "/api/clients/c1/items", noteBody("2024-06-10", "B", 0)); rec.Code != http.StatusCreated {
		t.Fatalf("create B = %d", rec.Code)
	}
	if got := strings.Join(listTitles(t, h, "2024-06-10", "2024-06-16"), " "); got != "B@2024-06-10/0 A@2024-06-10/1" {
		t.Errorf("after inserts: %s", got)
	}

	rec = doJSON(t, h, "PATCH", "/api/items/id-1", `{"scheduled_date":"2024-06-11"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("move = %d: %s", rec.Code, rec.Body.String())
	}
	if moved := decodeItem(t, rec); moved.ScheduledDate != "2024-06-11" || moved.Position != 0 {
		t.Errorf("moved %+v", moved)
	}

	if rec := doJSON(t, h, "DELETE", "/api/items/id-2", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", rec.Code)
	}
	if got := strings.Join(listTitles(t, h, "2024-06-10", "2024-06-16"), " "); got != "A@2024-06-11/0" {
		t.Errorf("after delete: %s", got)
	}
	if rec := doJSON(t, h, "DELETE", "/api/items/id-2", ""); rec.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", rec.Code)
	}
}

// TestCreateItem_Rejects verifies malformed and invalid bodies are 400s.
func TestCreateItem_Rejects(t *testing.T) {
	h, _ := newTestMux(t)
	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{"item_type":`},
		{"unknown type", `{"item_type":"yoga","title":"x","scheduled_date":"2024-06-10"}`},
		{"empty title", noteBody("2024-06-10", " ", 0)},
		{"bad date", noteBody("2024-13-40", "A", 0)},
		{"negative position", noteBody("2024-06-10", "A", -1)},
		{"other client", `{"client_id":"c2","item_type":"rest","scheduled_date":"2024-06-10"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := doJSON(t, h, "POST", "/api/clients/c1/items", tt.body); rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (%s)", rec.Code, rec.Body.String())
			}
		})
	}
}

// TestUpdateItem_Content verifies content patches decode against the stored type.
func TestUpdateItem_Content(t *testing.T) {
	h, store := newTestMux(t)
	doJSON(t, h, "POST", "/api/clients/c1/items", noteBody("2024-06-10", "A", 0))

	rec := doJSON(t, h, "PATCH", "/api/items/id-1", `{"content":{"text":"new text"},"status":"completed"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	got, err := store.GetByID(t.Context(), "id-1")
	if err != nil {
		t.Fatal(err)
	}
	if n, ok := got.Content.(calendar.NoteContent); !ok || n.Text != "new text" || got.Status != calendar.StatusCompleted {
		t.Errorf("stored %+v", got)
	}
}

// TestUpdateItem_Errors verifies status mapping for bad patches.
func TestUpdateItem_Errors(t *testing.T) {
	h, _ := newTestMux(t)
	doJSON(t, h, "POST", "/api/clients/c1/items", noteBody("2024-06-10", "A", 0))

	tests := []struct {
		name string
		id   string
		body string
		want int
	}{
		{"missing item", "nope", `{"title":"x"}`, http.StatusNotFound},
		{"empty patch", "id-1", `{}`, http.StatusBadRequest},
		{"bad json", "id-1", `{"title":`, http.StatusBadRequest},
		{"negative position", "id-1", `{"position":-2}`, http.StatusBadRequest},
		{"wrong content", "id-1", `{"content":{"text":5}}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := doJSON(t, h, "PATCH", "/api/items/"+tt.id, tt.body); rec.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

// TestListItems_InvalidQuery verifies range validation.
func TestListItems_InvalidQuery(t *testing.T) {
	h, _ := newTestMux(t)
	for _, q := range []string{"start=2024-06-10", "start=2024-06-10&end=2024-06-01", "start=2024-01-01&end=2026-01-01"} {
		if rec := doJSON(t, h, "GET", "/api/clients/c1/items?"+q, ""); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, rec.Code)
		}
	}
}

// TestRepeatItem verifies copies come back and foreign templates are hidden.
func TestRepeatItem(t *testing.T) {
	h, _ := newTestMux(t)
	doJSON(t, h, "POST", "/api/clients/c1/items", noteBody("2024-06-10", "Plan", 0))

	rec := doJSON(t, h, "POST", "/api/clients/c1/items/repeat", `{"template_id":"id-1","rule":"FREQ=WEEKLY;COUNT=3"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp listResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if len(resp.Items) != 2 || resp.Items[0].ScheduledDate != "2024-06-17" || resp.Items[1].ScheduledDate != "2024-06-24" {
		t.Errorf("copies = %+v", resp.Items)
	}

	if rec := doJSON(t, h, "POST", "/api/clients/c1/items/repeat", `{"template_id":"id-1","rule":"FREQ=SOMETIMES"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad rule status = %d, want 400", rec.Code)
	}
	if rec := doJSON(t, h, "POST", "/api/clients/c2/items/repeat", `{"template_id":"id-1","rule":"FREQ=DAILY"}`); rec.Code != http.StatusNotFound {
		t.Errorf("foreign template status = %d, want 404", rec.Code)
	}
}

// TestExportICS verifies the calendar download.
func TestExportICS(t *testing.T) {
	h, _ := newTestMux(t)
	doJSON(t, h, "POST", "/api/clients/c1/items", noteBody("2024-06-10", "Plan", 0))

	rec := doJSON(t, h, "GET", "/api/clients/c1/calendar.ics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Errorf("Content-Type = %q", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{"BEGIN:VCALENDAR", "UID:id-1", "SUMMARY:Plan"} {
		if !strings.Contains(body, want) {
			t.Errorf("ics missing %q", want)
		}
	}
}

// TestHealthAndPerf verifies the operational endpoints.
func TestHealthAndPerf(t *testing.T) {
	h, _ := newTestMux(t)

	if rec := doJSON(t, h, "GET", "/health", ""); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ok") {
		t.Errorf("health = %d %s", rec.Code, rec.Body.String())
	}

	rec := doJSON(t, h, "GET", "/api/admin/perf?window=1h", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("perf status = %d", rec.Code)
	}
	var snap perf.Snapshot
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatal(err)
	}
	if snap.Requests < 1 {
		t.Errorf("Requests = %d, want the health call recorded", snap.Requests)
	}

	if rec := doJSON(t, h, "GET", "/api/admin/perf?window=soon", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad window status = %d, want 400", rec.Code)
	}
}
