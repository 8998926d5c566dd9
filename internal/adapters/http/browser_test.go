//go:build browser

package web_test

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"

	_ "modernc.org/sqlite"

	web "coachcal/internal/adapters/http"
	"coachcal/internal/adapters/http/perf"
	"coachcal/internal/adapters/storage"
	"coachcal/internal/adapters/storage/calendaritem"
	"coachcal/internal/application/orchestrators"
	"coachcal/internal/application/planner"
	"coachcal/internal/domain/calendar"
)

// testApp holds the running test server and Playwright handles.
type testApp struct {
	BaseURL string
	Store   *calendaritem.SQLiteStore
	Browser playwright.Browser
}

// newTestApp starts the full server on a temp database and launches Chromium.
func newTestApp(t *testing.T) *testApp {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		t.Fatalf("failed to open test DB: %v", err)
	}
	if err := storage.MigrateDB(db, dbPath); err != nil {
		t.Fatalf("failed to migrate test DB: %v", err)
	}
	store := calendaritem.NewSQLiteStore(db)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	handler := web.NewMux("", &web.Stores{ItemStore: store}, perf.NewCollector(100), web.Options{
		CSRFKey: []byte("0123456789abcdef0123456789abcdef"),
		Window:  planner.DefaultWindowConfig(),
	})
	srv := &http.Server{Handler: handler}
	go srv.Serve(listener)

	pw, err := playwright.Run()
	if err != nil {
		t.Fatalf("failed to start Playwright: %v", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{Headless: playwright.Bool(true)})
	if err != nil {
		t.Fatalf("failed to launch browser: %v", err)
	}
	t.Cleanup(func() {
		browser.Close()
		pw.Stop()
		srv.Close()
		db.Close()
	})

	return &testApp{BaseURL: "http://" + listener.Addr().String(), Store: store, Browser: browser}
}

func (a *testApp) newPage(t *testing.T) playwright.Page {
	t.Helper()
	page, err := a.Browser.NewPage()
	if err != nil {
		t.Fatalf("failed to create page: %v", err)
	}
	t.Cleanup(func() { page.Close() })
	return page
}

// TestBoard_AddSessionThroughForm submits the add form on a day and
// expects the new card on the reloaded board.
func TestBoard_AddSessionThroughForm(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	app := newTestApp(t)
	day := calendar.FormatDate(time.Now())

	page := app.newPage(t)
	if _, err := page.Goto(app.BaseURL + "/clients/c1/board?date=" + day); err != nil {
		t.Fatalf("failed to open board: %v", err)
	}

	section := page.Locator("#day-" + day)
	if err := section.Locator("summary").Click(); err != nil {
		t.Fatalf("failed to open add form: %v", err)
	}
	if err := section.Locator("input[name=title]").Fill("Legs"); err != nil {
		t.Fatalf("failed to fill title: %v", err)
	}
	if err := section.Locator("button[type=submit]").Click(); err != nil {
		t.Fatalf("failed to submit: %v", err)
	}

	card := section.Locator(".card.session .title")
	if err := card.WaitFor(playwright.LocatorWaitForOptions{Timeout: playwright.Float(5000)}); err != nil {
		t.Fatalf("new card not shown: %v", err)
	}
	if text, _ := card.TextContent(); text != "Legs" {
		t.Errorf("card title = %q, want Legs", text)
	}
}

// TestBoard_ShowsSeededOrder checks cards render in stored position order.
func TestBoard_ShowsSeededOrder(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	app := newTestApp(t)
	day := calendar.FormatDate(time.Now())
	deps := orchestrators.ItemDeps{ItemStore: app.Store, GenerateID: uuid.NewString, Now: time.Now}
	for i, title := range []string{"Warm up", "Main set", "Cool down"} {
		_, err := orchestrators.ExecuteCreateItem(context.Background(), orchestrators.CreateItemInput{
			ClientID: "c1", Type: calendar.TypeNote, Title: title,
			Content: calendar.NoteContent{Text: "notes"}, ScheduledDate: day, Position: i,
		}, deps)
		if err != nil {
			t.Fatalf("seed %s: %v", title, err)
		}
	}

	page := app.newPage(t)
	if _, err := page.Goto(app.BaseURL + "/clients/c1/board?date=" + day); err != nil {
		t.Fatalf("failed to open board: %v", err)
	}
	titles, err := page.Locator("#day-" + day + " .card .title").AllTextContents()
	if err != nil {
		t.Fatalf("read titles: %v", err)
	}
	want := []string{"Warm up", "Main set", "Cool down"}
	if len(titles) != len(want) {
		t.Fatalf("titles = %v, want %v", titles, want)
	}
	for i := range want {
		if titles[i] != want[i] {
			t.Errorf("titles[%d] = %q, want %q", i, titles[i], want[i])
		}
	}
}
