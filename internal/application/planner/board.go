package planner

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"coachcal/internal/domain/calendar"
)

// BoardConfig wires a Board.
type BoardConfig struct {
	ClientID           string
	Window             WindowConfig
	Measurer           Measurer
	Notifier           Notifier
	Now                func() time.Time
	NewTempID          func() string
	ReconcileAfterMove bool
}

// ScrollResult is what the rendering layer applies after a scroll event.
type ScrollResult struct {
	// ScrollTop is the offset to render with; it differs from the reported
	// one when days were prepended.
	ScrollTop      float64
	ExtendedPast   bool
	ExtendedFuture bool
	// Skipped is set when the event arrived while an extension was applied.
	Skipped bool
}

// Board ties the calendar core together for one client: the item store, its
// window, scroll anchoring, drag and clipboard.
type Board struct {
	Store     *ItemStore
	Window    *Window
	Anchor    *Anchor
	Drag      *Drag
	Clipboard *Clipboard

	measurer Measurer
	now      func() time.Time
	applying atomic.Bool
}

// NewBoard builds an unopened board over remote.
func NewBoard(remote Remote, cfg BoardConfig) *Board {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Measurer == nil {
		cfg.Measurer = DefaultRowMeasurer
	}
	store := NewItemStore(remote, cfg.ClientID, StoreOptions{
		Notifier:           cfg.Notifier,
		NewTempID:          cfg.NewTempID,
		ReconcileAfterMove: cfg.ReconcileAfterMove,
		Now:                cfg.Now,
	})
	window := NewWindow(store, cfg.Window, cfg.Now)
	return &Board{
		Store:     store,
		Window:    window,
		Anchor:    &Anchor{},
		Drag:      NewDrag(store, window.Interval),
		Clipboard: NewClipboard(store),
		measurer:  cfg.Measurer,
		now:       cfg.Now,
	}
}

// Open loads the initial window around today.
func (b *Board) Open(ctx context.Context) error {
	return b.Window.Init(ctx)
}

// JumpTo re-anchors the board on date and re-arms the initial scroll.
func (b *Board) JumpTo(ctx context.Context, date string) error {
	if err := b.Window.JumpTo(ctx, date); err != nil {
		return err
	}
	b.Anchor.Reset()
	return nil
}

// Today returns the current calendar day.
func (b *Board) Today() string { return calendar.FormatDate(b.now()) }

// Days lays out the committed interval.
func (b *Board) Days() []Day {
	return Days(b.Window.Interval(), b.Store.Items(), b.Today())
}

// ContentHeight is the rendered height of every day in the interval.
func (b *Board) ContentHeight() float64 {
	return ContentHeight(b.measurer, b.Days())
}

// InitialScroll returns the offset that aligns the anchor day with the top
// of the viewport, once.
func (b *Board) InitialScroll() (float64, bool) {
	days := b.Days()
	return b.Anchor.InitialScroll(b.Window.Anchor(), func(date string) (float64, bool) {
		return DayTop(b.measurer, days, date)
	})
}

// HandleScroll extends the window when v is near either edge. A backward
// extension shifts ScrollTop by the height of the prepended days so the
// visible day stays put. Events arriving while an extension is being
// applied are skipped. Fetch failures leave the interval unchanged and are
// retried by the next qualifying event.
func (b *Board) HandleScroll(ctx context.Context, v Viewport) (ScrollResult, error) {
	res := ScrollResult{ScrollTop: v.ScrollTop}
	if !b.applying.CompareAndSwap(false, true) {
		res.Skipped = true
		return res, nil
	}
	defer b.applying.Store(false)

	past, future := b.Window.Triggers(v)
	var errs []error
	if past {
		b.Anchor.Begin(b.ContentHeight())
		ext, err := b.Window.ExtendPast(ctx)
		if err != nil || !ext.Committed() {
			b.Anchor.Abort()
		} else {
			res.ScrollTop = b.Anchor.Commit(b.ContentHeight(), res.ScrollTop)
			res.ExtendedPast = true
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	if future {
		ext, err := b.Window.ExtendFuture(ctx)
		if err != nil {
			errs = append(errs, err)
		} else if ext.Committed() {
			res.ExtendedFuture = true
		}
	}
	return res, errors.Join(errs...)
}
