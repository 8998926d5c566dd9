package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"coachcal/internal/domain/calendar"
)

// ErrUnknownItem is returned when a mutation names an item that is not held.
var ErrUnknownItem = errors.New("item is not loaded")

// reconcileTimeout bounds the background re-load after a successful move.
const reconcileTimeout = 15 * time.Second

// Draft is the user's input for a new item.
type Draft struct {
	Type          calendar.ItemType
	Title         string
	Content       calendar.Content
	ScheduledDate string
	Position      int
	Status        calendar.Status
}

// StoreOptions configures an ItemStore.
type StoreOptions struct {
	Notifier Notifier
	// NewTempID generates temporary ids; defaults to calendar.NewTempID.
	NewTempID func() string
	// ReconcileAfterMove re-loads the touched days in the background after a
	// successful move so server-side renumbering is picked up.
	ReconcileAfterMove bool
	Now                func() time.Time
}

// ItemStore is the single writer of the held item set. Every mutation runs
// three phases: snapshot, optimistic apply, then confirm or rollback once the
// remote call resolves. Mutations on the same id are serialized in arrival
// order; mutations on different ids run concurrently.
type ItemStore struct {
	remote    Remote
	clientID  string
	notifier  Notifier
	newTempID func() string
	reconcile bool
	now       func() time.Time
	lanes     *lanes

	mu      sync.Mutex
	held    map[string]*calendar.Item
	aliases map[string]string // temporary id -> server id
	// laneKeys maps a confirmed server id back to the temporary id its
	// lane was opened under, so an item keeps one lane for its lifetime.
	laneKeys map[string]string
	pending map[string]int    // in-flight remote calls per id
	window  *calendar.Range   // eviction bounds set by Retain
	gen     uint64            // bumped on every change to held
}

// NewItemStore creates an empty store for one client.
// PRE: remote is non-nil; clientID is non-empty
// POST: store holds no items
func NewItemStore(remote Remote, clientID string, opts StoreOptions) *ItemStore {
	s := &ItemStore{
		remote:    remote,
		clientID:  clientID,
		notifier:  opts.Notifier,
		newTempID: opts.NewTempID,
		reconcile: opts.ReconcileAfterMove,
		now:       opts.Now,
		lanes:     newLanes(),
		held:      make(map[string]*calendar.Item),
		aliases:   make(map[string]string),
		laneKeys:  make(map[string]string),
		pending:   make(map[string]int),
	}
	if s.notifier == nil {
		s.notifier = LogNotifier{}
	}
	if s.newTempID == nil {
		s.newTempID = calendar.NewTempID
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// ClientID returns the client whose calendar this store holds.
func (s *ItemStore) ClientID() string { return s.clientID }

// --- Reads ---

// Items returns copies of all held items ordered by (date, position, id).
func (s *ItemStore) Items() []calendar.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.itemsLocked()
}

// ItemsOn returns copies of the items held for one day, in order.
func (s *ItemStore) ItemsOn(date string) []calendar.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dayItemsLocked(date)
}

// Get returns a copy of the held item, resolving confirmed temporary ids.
func (s *ItemStore) Get(id string) (calendar.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.held[s.resolveLocked(id)]
	if !ok {
		return calendar.Item{}, false
	}
	return slot.Clone(), true
}

// Pending reports whether a mutation for id is queued or in flight.
func (s *ItemStore) Pending(id string) bool {
	s.mu.Lock()
	key := s.laneKeyLocked(id)
	s.mu.Unlock()
	return s.lanes.busy(key)
}

// slot returns the live pointer for id. The pointer stays stable across
// confirmation and reloads, so consumers can diff renders by identity.
func (s *ItemStore) slot(id string) *calendar.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.held[s.resolveLocked(id)]
}

// --- Loading and eviction ---

// Load fetches r from the remote and merges it into the held set. Items in r
// that the remote no longer returns are dropped; items with a mutation in
// flight keep their optimistic value.
// PRE: r is a valid range
// POST: on error the held set is unchanged
func (s *ItemStore) Load(ctx context.Context, r calendar.Range) error {
	if err := r.Validate(); err != nil {
		return err
	}
	items, err := s.remote.ListItems(ctx, calendar.Query{ClientID: s.clientID, Range: r})
	if err != nil {
		return fmt.Errorf("list items %s: %w", r, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	fetched := make(map[string]bool, len(items))
	for _, it := range items {
		fetched[it.ID] = true
		if s.pending[it.ID] > 0 {
			continue
		}
		if slot, ok := s.held[it.ID]; ok {
			*slot = it.Clone()
			continue
		}
		cp := it.Clone()
		s.held[it.ID] = &cp
	}
	for id, slot := range s.held {
		if fetched[id] || s.pending[id] > 0 || calendar.IsTemporaryID(id) {
			continue
		}
		if r.Contains(slot.ScheduledDate) {
			delete(s.held, id)
		}
	}
	s.gen++
	slog.Debug("items_loaded", "client_id", s.clientID, "range", r.String(), "count", len(items))
	return nil
}

// Retain evicts every held item dated outside r. Evicted items are not
// deleted remotely. Later rollbacks never re-insert items outside r.
func (s *ItemStore) Retain(r calendar.Range) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bounds := r
	s.window = &bounds
	evicted := 0
	for id, slot := range s.held {
		if !r.Contains(slot.ScheduledDate) {
			delete(s.held, id)
			evicted++
		}
	}
	if evicted > 0 {
		s.gen++
		slog.Debug("items_evicted", "client_id", s.clientID, "range", r.String(), "count", evicted)
	}
}

// --- Mutations ---

// effect is the optimistic change a mutation applies and the remote call
// that confirms it.
type effect struct {
	upserts []calendar.Item
	removes []string
	call    func(ctx context.Context) (calendar.Item, error)
	// confirm runs under the store lock after the call succeeds.
	confirm func(result calendar.Item)
}

func (e effect) touched() []string {
	ids := make([]string, 0, len(e.upserts)+len(e.removes))
	for _, it := range e.upserts {
		ids = append(ids, it.ID)
	}
	return append(ids, e.removes...)
}

// Create inserts an item optimistically under a temporary id, then swaps in
// the server's entity in the same slot once InsertItem succeeds.
// PRE: d describes a valid item (validation errors return before any change)
// POST: on success no held item carries the temporary id; on failure the
// temporary item is gone, the notifier fired once and the error is returned
func (s *ItemStore) Create(ctx context.Context, d Draft) (calendar.Item, error) {
	it := calendar.Item{
		ID:            s.newTempID(),
		ClientID:      s.clientID,
		Type:          d.Type,
		Title:         d.Title,
		Content:       calendar.CloneContent(d.Content),
		Position:      d.Position,
		ScheduledDate: d.ScheduledDate,
		Status:        d.Status,
	}
	it.Normalize()
	if err := it.Validate(); err != nil {
		return calendar.Item{}, err
	}
	tempID := it.ID

	release, err := s.lanes.acquire(ctx, tempID)
	if err != nil {
		return calendar.Item{}, err
	}
	defer release()

	s.mu.Lock()
	snap := s.snapshotLocked()
	day := append(s.dayItemsLocked(it.ScheduledDate), it)
	changed := calendar.Reorder(day, tempID, it.ScheduledDate, d.Position)
	eff := effect{upserts: []calendar.Item{it}}
	for _, c := range changed {
		if c.ID == tempID {
			eff.upserts[0] = c
		} else {
			eff.upserts = append(eff.upserts, c)
		}
	}
	submitted := eff.upserts[0]
	s.applyLocked(eff)
	gen := s.gen
	s.pending[tempID]++
	s.mu.Unlock()

	toSend := submitted.Clone()
	toSend.ID = ""
	created, err := s.remote.InsertItem(ctx, toSend)
	if err == nil && created.ID == "" {
		err = errors.New("remote returned an item without id")
	}

	s.mu.Lock()
	s.donePendingLocked(tempID)
	if err != nil {
		s.rollbackLocked(snap, gen, eff.touched())
		s.mu.Unlock()
		s.fail(OpCreate, tempID, err)
		return calendar.Item{}, fmt.Errorf("create item: %w", err)
	}
	s.aliases[tempID] = created.ID
	s.laneKeys[created.ID] = tempID
	slot := s.held[tempID]
	if slot == nil {
		// Outside the window or evicted while in flight.
		s.mu.Unlock()
		return created, nil
	}
	*slot = created.Clone()
	delete(s.held, tempID)
	s.held[created.ID] = slot
	s.gen++
	s.mu.Unlock()

	slog.Info("item_event", "event", "item_created", "item_id", created.ID, "client_id", s.clientID, "date", created.ScheduledDate)
	return created, nil
}

// Move changes an item's day and/or order. index is the position among the
// destination day's other items. The change is visible to readers before
// UpdateItem is called.
// PRE: id is held; date is a valid day
// POST: on failure the held set equals its pre-move value and the notifier
// fired once
func (s *ItemStore) Move(ctx context.Context, id, date string, index int) error {
	if _, err := calendar.ParseDate(date); err != nil {
		return err
	}
	return s.run(ctx, OpMove, id, func(cur calendar.Item) (effect, bool, error) {
		changed := calendar.Reorder(s.dayItemsLocked(cur.ScheduledDate, date), cur.ID, date, index)
		if len(changed) == 0 {
			return effect{}, false, nil
		}
		moved := changed[0]
		return effect{
			upserts: changed,
			call: func(ctx context.Context) (calendar.Item, error) {
				return s.remote.UpdateItem(ctx, cur.ID, calendar.MovePatch(moved.ScheduledDate, moved.Position))
			},
		}, true, nil
	})
}

// Update applies a partial change. Patches that change date or position
// renumber the affected days the same way Move does.
// PRE: id is held; the patched item validates
// POST: on failure the held set is restored and the notifier fired once
func (s *ItemStore) Update(ctx context.Context, id string, p calendar.Patch) error {
	if p.IsEmpty() {
		return calendar.ErrEmptyPatch
	}
	return s.run(ctx, OpUpdate, id, func(cur calendar.Item) (effect, bool, error) {
		next := p.Apply(cur)
		if err := next.Validate(); err != nil {
			return effect{}, false, err
		}
		upserts := []calendar.Item{next}
		if p.MovesItem() {
			day := s.dayItemsLocked(cur.ScheduledDate, next.ScheduledDate)
			for _, c := range calendar.Reorder(day, cur.ID, next.ScheduledDate, next.Position) {
				if c.ID == cur.ID {
					next.ScheduledDate, next.Position = c.ScheduledDate, c.Position
					upserts[0] = next
					continue
				}
				upserts = append(upserts, c)
			}
		}
		rid := cur.ID
		return effect{
			upserts: upserts,
			call: func(ctx context.Context) (calendar.Item, error) {
				return s.remote.UpdateItem(ctx, rid, p)
			},
			confirm: func(result calendar.Item) {
				if result.ID != rid {
					return
				}
				if slot, ok := s.held[rid]; ok {
					*slot = result.Clone()
				}
			},
		}, true, nil
	})
}

// Remove deletes an item optimistically and compacts its day.
// PRE: id is held
// POST: on failure the item is back in its original slot
func (s *ItemStore) Remove(ctx context.Context, id string) error {
	return s.run(ctx, OpRemove, id, func(cur calendar.Item) (effect, bool, error) {
		var rest []calendar.Item
		for _, it := range s.dayItemsLocked(cur.ScheduledDate) {
			if it.ID != cur.ID {
				rest = append(rest, it)
			}
		}
		rid := cur.ID
		return effect{
			removes: []string{rid},
			upserts: calendar.Renumber(rest, cur.ScheduledDate),
			call: func(ctx context.Context) (calendar.Item, error) {
				return calendar.Item{}, s.remote.DeleteItem(ctx, rid)
			},
		}, true, nil
	})
}

// planFunc computes a mutation's effect from the current item. It runs under
// the store lock. ok=false means there is nothing to do.
type planFunc func(cur calendar.Item) (eff effect, ok bool, err error)

// run executes one update-shaped mutation through its item's lane.
func (s *ItemStore) run(ctx context.Context, op Op, id string, plan planFunc) error {
	s.mu.Lock()
	key := s.laneKeyLocked(id)
	s.mu.Unlock()

	release, err := s.lanes.acquire(ctx, key)
	if err != nil {
		return err
	}
	defer release()

	// Resolve again: a create queued ahead of us may have swapped the id.
	s.mu.Lock()
	rid := s.resolveLocked(id)
	slot, ok := s.held[rid]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%s %s: %w", op, id, ErrUnknownItem)
	}
	eff, ok, err := plan(slot.Clone())
	if err != nil || !ok {
		s.mu.Unlock()
		return err
	}
	snap := s.snapshotLocked()
	s.applyLocked(eff)
	gen := s.gen
	s.pending[rid]++
	s.mu.Unlock()

	result, err := eff.call(ctx)

	s.mu.Lock()
	s.donePendingLocked(rid)
	if err != nil {
		s.rollbackLocked(snap, gen, eff.touched())
		s.mu.Unlock()
		s.fail(op, rid, err)
		return fmt.Errorf("%s item %s: %w", op, rid, err)
	}
	if eff.confirm != nil {
		eff.confirm(result)
		s.gen++
	}
	var reconcile *calendar.Range
	if op == OpMove && s.reconcile && len(eff.upserts) > 0 {
		r := touchedRange(snap[rid], eff.upserts)
		reconcile = &r
	}
	s.mu.Unlock()

	slog.Info("item_event", "event", "item_"+string(op)+"d", "item_id", rid, "client_id", s.clientID)
	if reconcile != nil {
		go s.reconcileRange(*reconcile)
	}
	return nil
}

func (s *ItemStore) reconcileRange(r calendar.Range) {
	s.mu.Lock()
	if s.window != nil {
		var ok bool
		if r, ok = clipRange(r, *s.window); !ok {
			s.mu.Unlock()
			return
		}
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
	defer cancel()
	if err := s.Load(ctx, r); err != nil {
		slog.Debug("reconcile_failed", "client_id", s.clientID, "range", r.String(), "error", err)
	}
}

func (s *ItemStore) fail(op Op, id string, err error) {
	slog.Warn("item_rollback", "op", string(op), "item_id", id, "client_id", s.clientID, "error", err)
	s.notifier.Notify(Notice{Op: op, ItemID: id, Err: err, At: s.now()})
}

// --- Locked helpers ---

func (s *ItemStore) resolveLocked(id string) string {
	if rid, ok := s.aliases[id]; ok {
		return rid
	}
	return id
}

// laneKeyLocked names the lane for id: the id an item was first held
// under, whatever it has been renamed to since.
func (s *ItemStore) laneKeyLocked(id string) string {
	rid := s.resolveLocked(id)
	if key, ok := s.laneKeys[rid]; ok {
		return key
	}
	return rid
}

func (s *ItemStore) itemsLocked() []calendar.Item {
	out := make([]calendar.Item, 0, len(s.held))
	for _, slot := range s.held {
		out = append(out, slot.Clone())
	}
	calendar.SortItems(out)
	return out
}

// dayItemsLocked returns copies of the items on the given days, in order.
func (s *ItemStore) dayItemsLocked(dates ...string) []calendar.Item {
	want := make(map[string]bool, len(dates))
	for _, d := range dates {
		want[d] = true
	}
	var out []calendar.Item
	for _, slot := range s.held {
		if want[slot.ScheduledDate] {
			out = append(out, slot.Clone())
		}
	}
	calendar.SortItems(out)
	return out
}

func (s *ItemStore) snapshotLocked() map[string]calendar.Item {
	snap := make(map[string]calendar.Item, len(s.held))
	for id, slot := range s.held {
		snap[id] = slot.Clone()
	}
	return snap
}

// applyLocked writes an effect. Items it places outside the window are
// dropped from the held set rather than kept.
func (s *ItemStore) applyLocked(e effect) {
	for _, id := range e.removes {
		delete(s.held, id)
	}
	for _, it := range e.upserts {
		if !s.inWindowLocked(it) {
			delete(s.held, it.ID)
			continue
		}
		s.putLocked(it)
	}
	s.gen++
}

// putLocked writes it into its existing slot, or a new one.
func (s *ItemStore) putLocked(it calendar.Item) {
	if slot, ok := s.held[it.ID]; ok {
		*slot = it.Clone()
		return
	}
	cp := it.Clone()
	s.held[it.ID] = &cp
}

// rollbackLocked restores the pre-mutation state. If nothing else changed the
// held set since this mutation applied, the whole snapshot is restored;
// otherwise only the items this mutation touched are put back, so other
// in-flight optimistic changes survive.
func (s *ItemStore) rollbackLocked(snap map[string]calendar.Item, gen uint64, touched []string) {
	if s.gen == gen {
		for id := range s.held {
			if _, ok := snap[id]; !ok {
				delete(s.held, id)
			}
		}
		for _, it := range snap {
			if s.inWindowLocked(it) {
				s.putLocked(it)
			}
		}
	} else {
		for _, id := range touched {
			prev, ok := snap[id]
			if !ok {
				delete(s.held, id)
				continue
			}
			if s.inWindowLocked(prev) {
				s.putLocked(prev)
			}
		}
	}
	s.gen++
}

func (s *ItemStore) inWindowLocked(it calendar.Item) bool {
	return s.window == nil || s.window.Contains(it.ScheduledDate)
}

func (s *ItemStore) donePendingLocked(id string) {
	if s.pending[id] <= 1 {
		delete(s.pending, id)
		return
	}
	s.pending[id]--
}

// touchedRange spans the source day and every day an effect wrote to.
func touchedRange(before calendar.Item, upserts []calendar.Item) calendar.Range {
	r := calendar.Range{Start: upserts[0].ScheduledDate, End: upserts[0].ScheduledDate}
	if before.ScheduledDate != "" {
		r = r.Union(calendar.Range{Start: before.ScheduledDate, End: before.ScheduledDate})
	}
	for _, it := range upserts[1:] {
		r = r.Union(calendar.Range{Start: it.ScheduledDate, End: it.ScheduledDate})
	}
	return r
}

// clipRange returns the part of r inside bounds.
func clipRange(r, bounds calendar.Range) (calendar.Range, bool) {
	if r.Start < bounds.Start {
		r.Start = bounds.Start
	}
	if r.End > bounds.End {
		r.End = bounds.End
	}
	return r, r.Start <= r.End
}
