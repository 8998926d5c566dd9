package planner

import (
	"context"
	"errors"
	"strings"
	"sync"

	"coachcal/internal/domain/calendar"
)

// CopySuffix marks a pasted item's title.
const CopySuffix = " (Copy)"

// ErrClipboardEmpty is returned by Paste when nothing has been copied.
var ErrClipboardEmpty = errors.New("clipboard is empty")

// Creator is the part of the item store a paste writes through.
type Creator interface {
	Create(ctx context.Context, d Draft) (calendar.Item, error)
}

type clip struct {
	itemType calendar.ItemType
	content  calendar.Content
	title    string
}

// Clipboard holds at most one copied item. Its contents survive any number
// of pastes until Clear or the next Copy.
type Clipboard struct {
	store Creator

	mu    sync.Mutex
	entry *clip
}

// NewClipboard creates an empty clipboard that pastes into store.
func NewClipboard(store Creator) *Clipboard {
	return &Clipboard{store: store}
}

// Copy replaces the clipboard with its type, content and title. The id, day
// and position are not kept.
func (c *Clipboard) Copy(it calendar.Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entry = &clip{
		itemType: it.Type,
		content:  calendar.CloneContent(it.Content),
		title:    it.Title,
	}
}

// Empty reports whether there is nothing to paste.
func (c *Clipboard) Empty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entry == nil
}

// Clear empties the clipboard.
func (c *Clipboard) Clear() {
	c.mu.Lock()
	c.entry = nil
	c.mu.Unlock()
}

// Paste creates a copy of the clipboard item at the top of date.
// PRE: the clipboard is not empty
// POST: the new item has the copied type and content and a fresh id
func (c *Clipboard) Paste(ctx context.Context, date string) (calendar.Item, error) {
	c.mu.Lock()
	if c.entry == nil {
		c.mu.Unlock()
		return calendar.Item{}, ErrClipboardEmpty
	}
	d := Draft{
		Type:          c.entry.itemType,
		Title:         CopyTitle(c.entry.title),
		Content:       calendar.CloneContent(c.entry.content),
		ScheduledDate: date,
		Position:      0,
	}
	c.mu.Unlock()
	return c.store.Create(ctx, d)
}

// CopyTitle appends CopySuffix unless title already carries it.
func CopyTitle(title string) string {
	if strings.HasSuffix(title, CopySuffix) {
		return title
	}
	return title + CopySuffix
}
