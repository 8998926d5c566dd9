// Package planner is the client scheduling calendar core: a windowed,
// optimistic view over a remote item store with drag reordering,
// copy/paste and scroll-anchor bookkeeping.
package planner

import (
	"context"
	"log/slog"
	"time"

	"coachcal/internal/domain/calendar"
)

// Remote is the persistence collaborator the calendar core writes through.
// Implementations may be slow or fail; every failure is treated as a
// rejected write and rolled back by the ItemStore.
type Remote interface {
	ListItems(ctx context.Context, q calendar.Query) ([]calendar.Item, error)
	InsertItem(ctx context.Context, it calendar.Item) (calendar.Item, error)
	UpdateItem(ctx context.Context, id string, p calendar.Patch) (calendar.Item, error)
	DeleteItem(ctx context.Context, id string) error
}

// Op names a store operation in notices and logs.
type Op string

// Operation constants.
const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpMove   Op = "move"
	OpRemove Op = "remove"
)

// Notice reports a failed, rolled back mutation.
type Notice struct {
	Op     Op
	ItemID string
	Err    error
	At     time.Time
}

// Notifier surfaces failures to the user. It is called once per failed
// mutation, after the rollback and without any store lock held.
type Notifier interface {
	Notify(n Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

// Notify implements Notifier.
func (f NotifierFunc) Notify(n Notice) { f(n) }

// LogNotifier logs notices with slog.
type LogNotifier struct{}

// Notify implements Notifier.
func (LogNotifier) Notify(n Notice) {
	slog.Warn("item_mutation_failed",
		"op", string(n.Op),
		"item_id", n.ItemID,
		"error", n.Err,
	)
}
