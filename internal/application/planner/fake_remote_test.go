package planner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"coachcal/internal/domain/calendar"
)

var errRejected = errors.New("remote rejected the write")

var fixedNow = func() time.Time { return time.Date(2024, 6, 12, 9, 0, 0, 0, time.UTC) }

type updateCall struct {
	ID    string
	Patch calendar.Patch
}

// fakeRemote is an in-memory Remote with per-id gates and failures.
type fakeRemote struct {
	mu      sync.Mutex
	items   map[string]calendar.Item
	nextID  int
	lists   []calendar.Range
	inserts []calendar.Item
	updates []updateCall
	deletes []string

	listErr   error
	insertErr error
	updateErr map[string]error
	deleteErr map[string]error

	// listGate, when set, blocks ListItems until closed.
	listGate chan struct{}
	// updateGates block UpdateItem for an id until closed.
	updateGates map[string]chan struct{}
	// entered receives the id of every UpdateItem call as it starts.
	entered chan string
}

func newFakeRemote(items ...calendar.Item) *fakeRemote {
	f := &fakeRemote{
		items:       make(map[string]calendar.Item),
		updateErr:   make(map[string]error),
		deleteErr:   make(map[string]error),
		updateGates: make(map[string]chan struct{}),
	}
	for _, it := range items {
		f.items[it.ID] = it
	}
	return f
}

func (f *fakeRemote) ListItems(ctx context.Context, q calendar.Query) ([]calendar.Item, error) {
	f.mu.Lock()
	f.lists = append(f.lists, q.Range)
	gate, err := f.listGate, f.listErr
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []calendar.Item
	for _, it := range f.items {
		if it.ClientID == q.ClientID && q.Range.Contains(it.ScheduledDate) {
			out = append(out, it.Clone())
		}
	}
	calendar.SortItems(out)
	return out, nil
}

func (f *fakeRemote) InsertItem(ctx context.Context, it calendar.Item) (calendar.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts = append(f.inserts, it.Clone())
	if f.insertErr != nil {
		return calendar.Item{}, f.insertErr
	}
	f.nextID++
	it.ID = fmt.Sprintf("srv-%d", f.nextID)
	f.items[it.ID] = it.Clone()
	return it, nil
}

func (f *fakeRemote) UpdateItem(ctx context.Context, id string, p calendar.Patch) (calendar.Item, error) {
	f.mu.Lock()
	f.updates = append(f.updates, updateCall{ID: id, Patch: p})
	gate, entered := f.updateGates[id], f.entered
	f.mu.Unlock()
	if entered != nil {
		entered <- id
	}
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.updateErr[id]; err != nil {
		return calendar.Item{}, err
	}
	cur, ok := f.items[id]
	if !ok {
		return calendar.Item{}, errors.New("not found")
	}
	next := p.Apply(cur)
	f.items[id] = next
	return next.Clone(), nil
}

func (f *fakeRemote) DeleteItem(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, id)
	if err := f.deleteErr[id]; err != nil {
		return err
	}
	delete(f.items, id)
	return nil
}

func (f *fakeRemote) counts() (lists, inserts, updates, deletes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.lists), len(f.inserts), len(f.updates), len(f.deletes)
}

func (f *fakeRemote) updateCalls() []updateCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]updateCall(nil), f.updates...)
}

// recorder collects notices.
type recorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *recorder) Notify(n Notice) {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notices)
}

func note(id, date string, pos int) calendar.Item {
	return calendar.Item{
		ID:            id,
		ClientID:      "client-1",
		Type:          calendar.TypeNote,
		Title:         id,
		Content:       calendar.NoteContent{Text: "body of " + id},
		Position:      pos,
		ScheduledDate: date,
		Status:        calendar.StatusScheduled,
	}
}

func session(id, date string, pos int, title string) calendar.Item {
	return calendar.Item{
		ID:       id,
		ClientID: "client-1",
		Type:     calendar.TypeSession,
		Title:    title,
		Content: calendar.SessionContent{Blocks: []calendar.ExerciseBlock{
			{Name: "Squat", Sets: []calendar.SetSpec{{Reps: 5, Weight: 100}, {Reps: 5, Weight: 100}}},
		}},
		Position:      pos,
		ScheduledDate: date,
		Status:        calendar.StatusScheduled,
	}
}

func itemIDs(items []calendar.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func sameIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// sequentialIDs returns a temporary id generator yielding tmp-1, tmp-2, ...
func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s%d", calendar.TempIDPrefix, n)
	}
}

var wideRange = calendar.Range{Start: "2024-01-01", End: "2024-12-31"}

// loadedStore returns a store over remote with wideRange loaded.
func loadedStore(f *fakeRemote, n Notifier) *ItemStore {
	s := NewItemStore(f, "client-1", StoreOptions{Notifier: n, NewTempID: sequentialIDs(), Now: fixedNow})
	if err := s.Load(context.Background(), wideRange); err != nil {
		panic(err)
	}
	return s
}
