package planner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func openBoard(t *testing.T, f *fakeRemote) *Board {
	t.Helper()
	b := NewBoard(f, BoardConfig{
		ClientID:  "client-1",
		Window:    DefaultWindowConfig(),
		Measurer:  RowMeasurer{HeaderPx: 10, ItemPx: 20},
		Notifier:  &recorder{},
		Now:       fixedNow,
		NewTempID: sequentialIDs(),
	})
	if err := b.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	return b
}

// TestBoard_ScrollAnchorStable tests the top day stays aligned after a prepend.
func TestBoard_ScrollAnchorStable(t *testing.T) {
	f := newFakeRemote(
		note("old", "2024-05-22", 0),
		note("old2", "2024-05-22", 1),
		note("A", "2024-05-28", 0),
	)
	b := openBoard(t, f)

	anchorDay := "2024-05-28"
	topBefore, ok := DayTop(b.measurer, b.Days(), anchorDay)
	if !ok {
		t.Fatal("anchor day not rendered")
	}
	res, err := b.HandleScroll(context.Background(), Viewport{ScrollTop: topBefore, Height: 400, ContentHeight: 10000})
	if err != nil {
		t.Fatalf("HandleScroll: %v", err)
	}
	if !res.ExtendedPast || res.ExtendedFuture {
		t.Fatalf("unexpected result %+v", res)
	}
	topAfter, _ := DayTop(b.measurer, b.Days(), anchorDay)
	if res.ScrollTop != topAfter {
		t.Fatalf("ScrollTop = %v, anchor day now at %v", res.ScrollTop, topAfter)
	}
	// One week of headers plus the two cards on 2024-05-22.
	if added := res.ScrollTop - topBefore; added != 7*10+2*20 {
		t.Errorf("compensation = %v, want 110", added)
	}
	if _, ok := b.Store.Get("old"); !ok {
		t.Error("expected the prepended week's items to be held")
	}
}

// TestBoard_ForwardExtensionNoCompensation tests appending below keeps the offset.
func TestBoard_ForwardExtensionNoCompensation(t *testing.T) {
	b := openBoard(t, newFakeRemote())
	end := b.Window.Interval().End

	res, err := b.HandleScroll(context.Background(), Viewport{ScrollTop: 5000, Height: 400, ContentHeight: 5300})
	if err != nil {
		t.Fatalf("HandleScroll: %v", err)
	}
	if !res.ExtendedFuture || res.ExtendedPast || res.ScrollTop != 5000 {
		t.Fatalf("unexpected result %+v", res)
	}
	if b.Window.Interval().End <= end {
		t.Errorf("end did not move from %s", end)
	}
}

// TestBoard_ScrollFailure tests a failed fetch keeps the interval and offset.
func TestBoard_ScrollFailure(t *testing.T) {
	f := newFakeRemote()
	b := openBoard(t, f)
	before := b.Window.Interval()
	f.mu.Lock()
	f.listErr = errRejected
	f.mu.Unlock()

	res, err := b.HandleScroll(context.Background(), Viewport{ScrollTop: 0, Height: 400, ContentHeight: 10000})
	if !errors.Is(err, errRejected) {
		t.Fatalf("expected errRejected, got %v", err)
	}
	if res.ExtendedPast || res.ScrollTop != 0 {
		t.Errorf("unexpected result %+v", res)
	}
	if b.Window.Interval() != before {
		t.Errorf("interval moved to %v", b.Window.Interval())
	}
}

// TestBoard_ScrollReentrancy tests events during an extension are skipped.
func TestBoard_ScrollReentrancy(t *testing.T) {
	f := newFakeRemote()
	b := openBoard(t, f)
	lists, _, _, _ := f.counts()

	b.applying.Store(true)
	res, err := b.HandleScroll(context.Background(), Viewport{ScrollTop: 0, Height: 400, ContentHeight: 10000})
	if err != nil || !res.Skipped {
		t.Fatalf("expected a skipped event, got %+v %v", res, err)
	}
	if now, _, _, _ := f.counts(); now != lists {
		t.Errorf("expected no fetch, got %d new", now-lists)
	}
}

// TestBoard_InitialScroll tests the one-time scroll to today.
func TestBoard_InitialScroll(t *testing.T) {
	b := openBoard(t, newFakeRemote(note("A", "2024-06-01", 0)))

	off, ok := b.InitialScroll()
	// 16 days from 2024-05-27 precede today, one of them with a card.
	if !ok || off != 16*10+20 {
		t.Fatalf("InitialScroll = %v, %v", off, ok)
	}
	if _, ok := b.InitialScroll(); ok {
		t.Error("expected the initial scroll to run once")
	}

	if err := b.JumpTo(context.Background(), "2024-09-04"); err != nil {
		t.Fatalf("JumpTo: %v", err)
	}
	if _, ok := b.InitialScroll(); !ok {
		t.Error("expected JumpTo to re-arm the initial scroll")
	}
	if _, ok := b.Store.Get("A"); ok {
		t.Error("expected items outside the new window to be evicted")
	}
}

// TestBoard_JumpDuringExtension tests items fetched by an extension that
// finishes after a re-anchor is queued are not held past the new interval.
func TestBoard_JumpDuringExtension(t *testing.T) {
	f := newFakeRemote(
		note("old", "2024-05-22", 0),
		note("A", "2024-06-10", 0),
		note("later", "2024-09-10", 0),
	)
	b := openBoard(t, f)
	gate := make(chan struct{})
	f.mu.Lock()
	f.listGate = gate
	f.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := b.Window.ExtendPast(context.Background()); err != nil {
			t.Errorf("ExtendPast: %v", err)
		}
	}()
	for lists, _, _, _ := f.counts(); lists < 2; lists, _, _, _ = f.counts() {
		time.Sleep(time.Millisecond)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := b.JumpTo(context.Background(), "2024-09-10"); err != nil {
			t.Errorf("JumpTo: %v", err)
		}
	}()
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	interval := b.Window.Interval()
	if interval.Start != "2024-08-26" || interval.End != "2024-09-29" {
		t.Fatalf("Interval = %v", interval)
	}
	for _, it := range b.Store.Items() {
		if !interval.Contains(it.ScheduledDate) {
			t.Errorf("held %s on %s outside %v", it.ID, it.ScheduledDate, interval)
		}
	}
	if _, ok := b.Store.Get("later"); !ok {
		t.Error("expected the re-anchored interval to be loaded")
	}
}
