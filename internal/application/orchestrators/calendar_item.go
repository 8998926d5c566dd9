package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"coachcal/internal/adapters/storage/calendaritem"
	"coachcal/internal/domain/calendar"
)

// ErrInvalidItem wraps every input validation failure so transports can
// distinguish bad requests from storage faults.
var ErrInvalidItem = errors.New("invalid item")

func invalid(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidItem, err)
}

// --- Create Item ---

// CreateItemInput carries input for the create item orchestrator.
type CreateItemInput struct {
	ClientID      string
	Type          calendar.ItemType
	Title         string
	Content       calendar.Content
	ScheduledDate string
	Position      int
	Status        calendar.Status
}

// ItemDeps holds dependencies shared by the calendar item orchestrators.
type ItemDeps struct {
	ItemStore  calendaritem.Store
	GenerateID func() string
	Now        func() time.Time
}

// ExecuteCreateItem inserts a new item at Position within its day.
// PRE: ClientID, Type and ScheduledDate are set
// POST: item persisted with a server id; siblings at or after Position shifted down by one
func ExecuteCreateItem(ctx context.Context, input CreateItemInput, deps ItemDeps) (calendar.Item, error) {
	now := deps.Now()
	it := calendar.Item{
		ID:            deps.GenerateID(),
		ClientID:      input.ClientID,
		Type:          input.Type,
		Title:         input.Title,
		Content:       calendar.CloneContent(input.Content),
		ScheduledDate: input.ScheduledDate,
		Status:        input.Status,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	it.Normalize()
	if input.Position < 0 {
		return calendar.Item{}, invalid(calendar.ErrNegativeOffset)
	}
	if err := it.Validate(); err != nil {
		return calendar.Item{}, invalid(err)
	}

	err := deps.ItemStore.InTx(ctx, func(tx calendaritem.Store) error {
		day, err := tx.ListDay(ctx, it.ClientID, it.ScheduledDate)
		if err != nil {
			return err
		}
		it.Position = len(day)
		changed := calendar.Reorder(append(day, it), it.ID, it.ScheduledDate, input.Position)
		for _, c := range changed {
			if c.ID == it.ID {
				it.Position = c.Position
				continue
			}
			c.UpdatedAt = now
			if err := tx.Save(ctx, c); err != nil {
				return err
			}
		}
		return tx.Save(ctx, it)
	})
	if err != nil {
		return calendar.Item{}, err
	}

	slog.Info("item_event", "event", "item_created", "item_id", it.ID, "client_id", it.ClientID, "date", it.ScheduledDate, "position", it.Position)
	return it, nil
}

// --- Update Item ---

// UpdateItemInput carries input for the update item orchestrator.
type UpdateItemInput struct {
	ItemID string
	Patch  calendar.Patch
}

// ExecuteUpdateItem applies a partial update. A change of date or position
// renumbers the source and destination days in the same transaction.
// PRE: ItemID is non-empty; Patch is not empty
// POST: item updated; both affected days densely numbered from 0
func ExecuteUpdateItem(ctx context.Context, input UpdateItemInput, deps ItemDeps) (calendar.Item, error) {
	if input.ItemID == "" {
		return calendar.Item{}, invalid(errors.New("item ID is required"))
	}
	if input.Patch.IsEmpty() {
		return calendar.Item{}, invalid(calendar.ErrEmptyPatch)
	}
	if input.Patch.Position != nil && *input.Patch.Position < 0 {
		return calendar.Item{}, invalid(calendar.ErrNegativeOffset)
	}
	now := deps.Now()

	var out calendar.Item
	err := deps.ItemStore.InTx(ctx, func(tx calendaritem.Store) error {
		cur, err := tx.GetByID(ctx, input.ItemID)
		if err != nil {
			return err
		}
		next := input.Patch.Apply(cur)
		next.UpdatedAt = now
		if err := next.Validate(); err != nil {
			return invalid(err)
		}

		if input.Patch.MovesItem() {
			affected, err := tx.ListDay(ctx, cur.ClientID, cur.ScheduledDate)
			if err != nil {
				return err
			}
			if next.ScheduledDate != cur.ScheduledDate {
				dest, err := tx.ListDay(ctx, cur.ClientID, next.ScheduledDate)
				if err != nil {
					return err
				}
				affected = append(affected, dest...)
			}
			next.ScheduledDate, next.Position = cur.ScheduledDate, cur.Position
			for _, c := range calendar.Reorder(affected, cur.ID, derefDate(input.Patch, cur), derefPosition(input.Patch, cur)) {
				if c.ID == cur.ID {
					next.ScheduledDate, next.Position = c.ScheduledDate, c.Position
					continue
				}
				c.UpdatedAt = now
				if err := tx.Save(ctx, c); err != nil {
					return err
				}
			}
		}

		out = next
		return tx.Save(ctx, next)
	})
	if err != nil {
		return calendar.Item{}, err
	}

	slog.Info("item_event", "event", "item_updated", "item_id", out.ID, "date", out.ScheduledDate, "position", out.Position)
	return out, nil
}

func derefDate(p calendar.Patch, cur calendar.Item) string {
	if p.ScheduledDate != nil {
		return *p.ScheduledDate
	}
	return cur.ScheduledDate
}

// derefPosition defaults a date-only move to the end of the destination day.
func derefPosition(p calendar.Patch, cur calendar.Item) int {
	if p.Position != nil {
		return *p.Position
	}
	if p.ScheduledDate != nil && *p.ScheduledDate != cur.ScheduledDate {
		return math.MaxInt
	}
	return cur.Position
}

// --- Delete Item ---

// DeleteItemInput carries input for the delete item orchestrator.
type DeleteItemInput struct {
	ItemID string
}

// ExecuteDeleteItem removes an item and closes the gap it leaves in its day.
// PRE: ItemID is non-empty; item exists
// POST: item removed; remaining items on that day densely numbered
func ExecuteDeleteItem(ctx context.Context, input DeleteItemInput, deps ItemDeps) error {
	if input.ItemID == "" {
		return invalid(errors.New("item ID is required"))
	}
	now := deps.Now()

	var cur calendar.Item
	err := deps.ItemStore.InTx(ctx, func(tx calendaritem.Store) error {
		var err error
		cur, err = tx.GetByID(ctx, input.ItemID)
		if err != nil {
			return err
		}
		if err := tx.Delete(ctx, cur.ID); err != nil {
			return err
		}
		day, err := tx.ListDay(ctx, cur.ClientID, cur.ScheduledDate)
		if err != nil {
			return err
		}
		for _, c := range calendar.Renumber(day, cur.ScheduledDate) {
			c.UpdatedAt = now
			if err := tx.Save(ctx, c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.Info("item_event", "event", "item_deleted", "item_id", cur.ID, "date", cur.ScheduledDate)
	return nil
}
