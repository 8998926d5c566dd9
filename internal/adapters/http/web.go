package web

import (
	"net/http"

	"coachcal/internal/adapters/http/middleware"
	"coachcal/internal/adapters/http/perf"
	"coachcal/internal/adapters/storage/calendaritem"
	"coachcal/internal/application/planner"
)

// Stores holds all storage dependencies.
type Stores struct {
	ItemStore calendaritem.Store
}

// Options configures NewMux.
type Options struct {
	// CSRFKey is the 32-byte secret for form tokens.
	CSRFKey []byte
	// Secure is true when served over TLS in production.
	Secure         bool
	TrustedOrigins []string
	// Window sizes the server-rendered board page.
	Window planner.WindowConfig
}

// Global stores instance (set by NewMux)
var stores *Stores

// RateLimitPerSecond caps item writes per client address. Tests can increase this.
var RateLimitPerSecond = 10

// Global perf collector (set by NewMux)
var perfCollector *perf.Collector

// boardWindow sizes the board page (set by NewMux).
var boardWindow = planner.DefaultWindowConfig()

// NewMux wires HTTP handlers for the app.
func NewMux(staticDir string, s *Stores, collector *perf.Collector, opts Options) http.Handler {
	stores = s
	perfCollector = collector
	boardWindow = opts.Window

	mux := http.NewServeMux()
	if staticDir != "" {
		mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))
	}
	registerRoutes(mux)

	limiter := middleware.NewWriteLimiter(RateLimitPerSecond)

	return middleware.Stack(mux,
		middleware.Timing(collector),
		middleware.SecurityHeaders(opts.Secure),
		middleware.LimitWrites(limiter),
		middleware.CSRF(opts.CSRFKey, middleware.CSRFOptions{Secure: opts.Secure, TrustedOrigins: opts.TrustedOrigins}),
	)
}

func registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", handleHealth)

	mux.HandleFunc("GET /api/clients/{clientID}/items", handleListItems)
	mux.HandleFunc("POST /api/clients/{clientID}/items", handleCreateItem)
	mux.HandleFunc("POST /api/clients/{clientID}/items/repeat", handleRepeatItem)
	mux.HandleFunc("GET /api/clients/{clientID}/calendar.ics", handleExportICS)
	mux.HandleFunc("PATCH /api/items/{id}", handleUpdateItem)
	mux.HandleFunc("DELETE /api/items/{id}", handleDeleteItem)

	mux.HandleFunc("GET /clients/{clientID}/board", handleBoard)
	mux.HandleFunc("POST /clients/{clientID}/board/items", handleBoardAddItem)

	mux.HandleFunc("GET /api/admin/perf", handlePerf)
}
