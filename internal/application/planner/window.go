package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"coachcal/internal/domain/calendar"
)

// Direction names the side of the window an extension grows.
type Direction string

// Extension directions.
const (
	Past   Direction = "past"
	Future Direction = "future"
)

// ErrWindowNotReady is returned when the window is used before Init.
var ErrWindowNotReady = errors.New("window is not initialized")

// Loader is what the window needs from the item store.
type Loader interface {
	Load(ctx context.Context, r calendar.Range) error
	Retain(r calendar.Range)
}

// WindowConfig sizes the materialized interval. The zero value of every
// field selects its default; weeks start on Monday unless WeekStartsSunday.
type WindowConfig struct {
	PaddingWeeks     int
	PageDays         int
	WeekStartsSunday bool
	EdgeThresholdPx  float64
}

// WeekStart returns the first day of a week.
func (c WindowConfig) WeekStart() time.Weekday {
	if c.WeekStartsSunday {
		return time.Sunday
	}
	return time.Monday
}

// DefaultWindowConfig returns two weeks of padding either side, one-week
// pages, Monday-aligned weeks and a 200px edge threshold.
func DefaultWindowConfig() WindowConfig {
	return WindowConfig{
		PaddingWeeks:    2,
		PageDays:        7,
		EdgeThresholdPx: 200,
	}
}

func (c WindowConfig) withDefaults() WindowConfig {
	d := DefaultWindowConfig()
	if c.PaddingWeeks <= 0 {
		c.PaddingWeeks = d.PaddingWeeks
	}
	if c.PageDays <= 0 {
		c.PageDays = d.PageDays
	}
	if c.EdgeThresholdPx <= 0 {
		c.EdgeThresholdPx = d.EdgeThresholdPx
	}
	return c
}

// Viewport is the scroll state reported by the rendering layer.
type Viewport struct {
	ScrollTop     float64
	Height        float64
	ContentHeight float64
}

// Extension describes the days an extension added. Added is zero when the
// extension failed and committed nothing.
type Extension struct {
	Direction Direction
	Added     calendar.Range
	// Shared is set when this caller joined a fetch issued by another call.
	Shared bool
}

// Committed reports whether the extension moved a boundary.
func (e Extension) Committed() bool { return e.Added.Start != "" }

// Window owns the materialized date interval and grows it on demand.
// INVARIANT: a boundary only moves after the days it exposes are loaded.
// Loads that change the interval run one at a time, so a page is always
// computed from, and committed to, the interval that is current.
type Window struct {
	loader   Loader
	cfg      WindowConfig
	now      func() time.Time
	group    singleflight.Group
	boundary chan struct{} // held across load and commit

	mu       sync.Mutex
	anchor   string
	interval calendar.Range
	ready    bool
}

// NewWindow creates a window around today. Call Init before use.
func NewWindow(loader Loader, cfg WindowConfig, now func() time.Time) *Window {
	if now == nil {
		now = time.Now
	}
	return &Window{loader: loader, cfg: cfg.withDefaults(), now: now, boundary: make(chan struct{}, 1)}
}

// lockBoundary waits for any other interval change to finish.
func (w *Window) lockBoundary(ctx context.Context) (unlock func(), err error) {
	select {
	case w.boundary <- struct{}{}:
		return func() { <-w.boundary }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Config returns the effective window configuration.
func (w *Window) Config() WindowConfig { return w.cfg }

// Init loads the initial interval around today.
// POST: on error the window stays uninitialized
func (w *Window) Init(ctx context.Context) error {
	return w.JumpTo(ctx, calendar.FormatDate(w.now()))
}

// JumpTo re-anchors the window on date, loads the padded interval around it
// and evicts every held item outside it. This is the only way the interval
// shrinks.
// PRE: date is a valid day
// POST: on error the previous interval is kept
func (w *Window) JumpTo(ctx context.Context, date string) error {
	r, err := w.initialRange(date)
	if err != nil {
		return err
	}
	unlock, err := w.lockBoundary(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	if err := w.loader.Load(ctx, r); err != nil {
		slog.Warn("window_load_failed", "range", r.String(), "error", err)
		return fmt.Errorf("load window: %w", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.anchor = date
	w.interval = r
	w.ready = true
	w.loader.Retain(r)
	slog.Debug("window_anchored", "anchor", date, "range", r.String())
	return nil
}

// initialRange pads the anchor's week on both sides.
func (w *Window) initialRange(date string) (calendar.Range, error) {
	weekStart, err := calendar.StartOfWeek(date, w.cfg.WeekStart())
	if err != nil {
		return calendar.Range{}, err
	}
	pad := w.cfg.PaddingWeeks * 7
	start, err := calendar.AddDays(weekStart, -pad)
	if err != nil {
		return calendar.Range{}, err
	}
	end, err := calendar.AddDays(weekStart, pad+6)
	if err != nil {
		return calendar.Range{}, err
	}
	return calendar.Range{Start: start, End: end}, nil
}

// Interval returns the committed interval.
func (w *Window) Interval() calendar.Range {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.interval
}

// Anchor returns the day the window was last anchored on.
func (w *Window) Anchor() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.anchor
}

// Ready reports whether Init or JumpTo has succeeded.
func (w *Window) Ready() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ready
}

// ExtendPast loads one page before the interval and then moves the start
// back. Concurrent calls for the same page share one fetch and one update.
func (w *Window) ExtendPast(ctx context.Context) (Extension, error) {
	return w.extend(ctx, Past)
}

// ExtendFuture loads one page after the interval and then moves the end
// forward.
func (w *Window) ExtendFuture(ctx context.Context) (Extension, error) {
	return w.extend(ctx, Future)
}

func (w *Window) extend(ctx context.Context, dir Direction) (Extension, error) {
	if !w.Ready() {
		return Extension{Direction: dir}, ErrWindowNotReady
	}

	v, err, shared := w.group.Do(string(dir), func() (interface{}, error) {
		unlock, err := w.lockBoundary(ctx)
		if err != nil {
			return Extension{Direction: dir}, err
		}
		defer unlock()

		page, err := w.page(w.Interval(), dir)
		if err != nil {
			return Extension{Direction: dir}, err
		}
		if err := w.loader.Load(ctx, page); err != nil {
			slog.Warn("window_extend_failed", "direction", string(dir), "range", page.String(), "error", err)
			return Extension{Direction: dir}, err
		}
		return w.commit(dir, page), nil
	})
	ext := v.(Extension)
	ext.Shared = shared
	if err != nil {
		return ext, fmt.Errorf("extend %s: %w", dir, err)
	}
	return ext, nil
}

// page returns the days an extension in dir would expose.
func (w *Window) page(base calendar.Range, dir Direction) (calendar.Range, error) {
	n := w.cfg.PageDays
	if dir == Past {
		start, err := calendar.AddDays(base.Start, -n)
		if err != nil {
			return calendar.Range{}, err
		}
		end, err := calendar.AddDays(base.Start, -1)
		if err != nil {
			return calendar.Range{}, err
		}
		return calendar.Range{Start: start, End: end}, nil
	}
	start, err := calendar.AddDays(base.End, 1)
	if err != nil {
		return calendar.Range{}, err
	}
	end, err := calendar.AddDays(base.End, n)
	if err != nil {
		return calendar.Range{}, err
	}
	return calendar.Range{Start: start, End: end}, nil
}

// commit adds the loaded page to the interval and bounds the store to it.
// PRE: the caller holds the boundary lock
func (w *Window) commit(dir Direction, page calendar.Range) Extension {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.interval = w.interval.Union(page)
	w.loader.Retain(w.interval)
	slog.Debug("window_extended", "direction", string(dir), "range", w.interval.String())
	return Extension{Direction: dir, Added: page}
}

// Triggers reports which edges of the viewport are close enough to the end
// of the rendered days to warrant an extension.
func (w *Window) Triggers(v Viewport) (past, future bool) {
	t := w.cfg.EdgeThresholdPx
	past = v.ScrollTop < t
	future = v.ContentHeight-(v.ScrollTop+v.Height) < t
	return past, future
}
