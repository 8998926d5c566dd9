package planner

import "sync"

// Anchor keeps the visible day in place when days are prepended above the
// viewport, and performs the one-time scroll to the anchor day on open.
type Anchor struct {
	mu         sync.Mutex
	measuring  bool
	before     float64
	didInitial bool
}

// Begin records the content height before a backward prepend is rendered.
func (a *Anchor) Begin(contentHeight float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.measuring = true
	a.before = contentHeight
}

// Commit returns the scroll offset that keeps the anchored day in place
// after the prepend: scrollTop plus the height added above it. Without a
// matching Begin it returns scrollTop unchanged.
func (a *Anchor) Commit(contentHeight, scrollTop float64) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.measuring {
		return scrollTop
	}
	a.measuring = false
	delta := contentHeight - a.before
	if delta < 0 {
		delta = 0
	}
	return scrollTop + delta
}

// Abort discards a Begin whose prepend never happened.
func (a *Anchor) Abort() {
	a.mu.Lock()
	a.measuring = false
	a.mu.Unlock()
}

// InitialScroll returns the offset of day's container the first time it is
// known. Later calls return ok=false until Reset.
func (a *Anchor) InitialScroll(day string, dayTop func(date string) (float64, bool)) (offset float64, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.didInitial {
		return 0, false
	}
	top, found := dayTop(day)
	if !found {
		return 0, false
	}
	a.didInitial = true
	return top, true
}

// Reset re-arms InitialScroll, e.g. after the window is re-anchored.
func (a *Anchor) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.didInitial = false
	a.measuring = false
}
