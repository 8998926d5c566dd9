package planner

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"coachcal/internal/domain/calendar"
)

// ErrDragActive is returned by Start while another drag is in progress.
var ErrDragActive = errors.New("a drag is already in progress")

// DragState is the gesture state.
type DragState int

// Drag states.
const (
	DragIdle DragState = iota
	DragDragging
)

// Outcome is how a gesture resolved.
type Outcome int

// Gesture outcomes.
const (
	OutcomeMoved Outcome = iota
	OutcomeNoOp
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeMoved:
		return "moved"
	case OutcomeNoOp:
		return "noop"
	default:
		return "cancelled"
	}
}

// TargetKind says what the pointer was over when the drag ended.
type TargetKind int

// Target kinds.
const (
	TargetNowhere TargetKind = iota
	TargetDay
	TargetItem
)

// Target is a drop target.
type Target struct {
	Kind   TargetKind
	Date   string // TargetDay
	ItemID string // TargetItem
	After  bool   // TargetItem: pointer was on the lower half
}

// OnDay targets a day container with no item under the pointer.
func OnDay(date string) Target { return Target{Kind: TargetDay, Date: date} }

// OnItem targets an existing item; after selects the slot below it.
func OnItem(id string, after bool) Target {
	return Target{Kind: TargetItem, ItemID: id, After: after}
}

// Nowhere is a drop outside any valid target.
func Nowhere() Target { return Target{} }

// Mover is the part of the item store a drag reads and writes.
type Mover interface {
	Get(id string) (calendar.Item, bool)
	ItemsOn(date string) []calendar.Item
	Move(ctx context.Context, id, date string, index int) error
}

// Nudge directions for the keyboard path.
type Nudge int

// Keyboard moves.
const (
	NudgeUp Nudge = iota
	NudgeDown
	NudgePrevDay
	NudgeNextDay
)

// Drag turns a gesture into at most one Move. Over never touches the store.
type Drag struct {
	store  Mover
	bounds func() calendar.Range

	mu     sync.Mutex
	state  DragState
	itemID string
	over   Target
}

// NewDrag creates an idle drag engine. bounds, when non-nil, limits drops to
// the materialized interval.
func NewDrag(store Mover, bounds func() calendar.Range) *Drag {
	return &Drag{store: store, bounds: bounds}
}

// State returns the current gesture state.
func (d *Drag) State() DragState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Start begins dragging id.
// PRE: state is Idle and id is held
func (d *Drag) Start(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == DragDragging {
		return ErrDragActive
	}
	if _, ok := d.store.Get(id); !ok {
		return ErrUnknownItem
	}
	d.state = DragDragging
	d.itemID = id
	d.over = Nowhere()
	return nil
}

// Over records the candidate target for highlighting.
func (d *Drag) Over(t Target) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == DragDragging {
		d.over = t
	}
}

// Highlight returns the day that should be highlighted, if any.
func (d *Drag) Highlight() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != DragDragging {
		return "", false
	}
	switch d.over.Kind {
	case TargetDay:
		return d.over.Date, true
	case TargetItem:
		if it, ok := d.store.Get(d.over.ItemID); ok {
			return it.ScheduledDate, true
		}
	}
	return "", false
}

// Cancel abandons the gesture.
func (d *Drag) Cancel() {
	d.mu.Lock()
	d.reset()
	d.mu.Unlock()
}

// Drop ends the gesture on t. It issues exactly one Move when the target
// resolves to a different slot and none otherwise. The engine is Idle again
// when Drop returns.
func (d *Drag) Drop(ctx context.Context, t Target) (Outcome, error) {
	d.mu.Lock()
	if d.state != DragDragging {
		d.mu.Unlock()
		return OutcomeCancelled, nil
	}
	id := d.itemID
	d.reset()
	d.mu.Unlock()

	cur, ok := d.store.Get(id)
	if !ok {
		return OutcomeCancelled, nil
	}
	date, index, ok := d.resolve(cur, t)
	if !ok {
		slog.Debug("drag_cancelled", "item_id", id)
		return OutcomeCancelled, nil
	}
	return d.move(ctx, cur, date, index)
}

// Nudge moves id one step from the keyboard with the same single-Move
// contract as Drop. Day moves land at the end of the neighbouring day.
func (d *Drag) Nudge(ctx context.Context, id string, dir Nudge) (Outcome, error) {
	cur, ok := d.store.Get(id)
	if !ok {
		return OutcomeCancelled, ErrUnknownItem
	}
	switch dir {
	case NudgeUp:
		idx := d.indexOf(cur)
		if idx <= 0 {
			return OutcomeNoOp, nil
		}
		return d.move(ctx, cur, cur.ScheduledDate, idx-1)
	case NudgeDown:
		idx := d.indexOf(cur)
		if idx < 0 || idx >= len(d.store.ItemsOn(cur.ScheduledDate))-1 {
			return OutcomeNoOp, nil
		}
		return d.move(ctx, cur, cur.ScheduledDate, idx+1)
	case NudgePrevDay, NudgeNextDay:
		step := 1
		if dir == NudgePrevDay {
			step = -1
		}
		date, err := calendar.AddDays(cur.ScheduledDate, step)
		if err != nil {
			return OutcomeCancelled, err
		}
		if !d.inBounds(date) {
			return OutcomeCancelled, nil
		}
		return d.move(ctx, cur, date, len(d.store.ItemsOn(date)))
	}
	return OutcomeCancelled, nil
}

// resolve maps a target to (date, index). index counts the destination
// day's items other than the dragged one.
func (d *Drag) resolve(cur calendar.Item, t Target) (string, int, bool) {
	switch t.Kind {
	case TargetDay:
		if _, err := calendar.ParseDate(t.Date); err != nil || !d.inBounds(t.Date) {
			return "", 0, false
		}
		return t.Date, len(others(d.store.ItemsOn(t.Date), cur.ID)), true
	case TargetItem:
		if t.ItemID == cur.ID {
			return cur.ScheduledDate, d.indexOf(cur), true
		}
		over, ok := d.store.Get(t.ItemID)
		if !ok || !d.inBounds(over.ScheduledDate) {
			return "", 0, false
		}
		day := others(d.store.ItemsOn(over.ScheduledDate), cur.ID)
		idx := -1
		for i, it := range day {
			if it.ID == over.ID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return "", 0, false
		}
		if t.After {
			idx++
		}
		return over.ScheduledDate, idx, true
	}
	return "", 0, false
}

// move issues the Move unless (date, index) is the item's current slot.
func (d *Drag) move(ctx context.Context, cur calendar.Item, date string, index int) (Outcome, error) {
	if date == cur.ScheduledDate && index == d.indexOf(cur) {
		return OutcomeNoOp, nil
	}
	if err := d.store.Move(ctx, cur.ID, date, index); err != nil {
		return OutcomeMoved, err
	}
	return OutcomeMoved, nil
}

func (d *Drag) indexOf(cur calendar.Item) int {
	for i, it := range d.store.ItemsOn(cur.ScheduledDate) {
		if it.ID == cur.ID {
			return i
		}
	}
	return -1
}

func (d *Drag) inBounds(date string) bool {
	if d.bounds == nil {
		return true
	}
	return d.bounds().Contains(date)
}

func (d *Drag) reset() {
	d.state = DragIdle
	d.itemID = ""
	d.over = Nowhere()
}

func others(items []calendar.Item, id string) []calendar.Item {
	out := items[:0:0]
	for _, it := range items {
		if it.ID != id {
			out = append(out, it)
		}
	}
	return out
}
